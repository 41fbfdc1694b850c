package notification

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Priority orders notifications for display; urgent additionally drives
// client-side alerting.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

var validPriorities = map[Priority]bool{
	PriorityLow: true, PriorityNormal: true, PriorityHigh: true, PriorityUrgent: true,
}

// Type tags the Data payload. The set is closed; anything else is carried as
// TypeOpaque so unknown producers still round-trip their payload.
type Type string

const (
	TypeAppointment    Type = "appointment"
	TypeLabResult      Type = "lab_result"
	TypePrescription   Type = "prescription"
	TypeMessage        Type = "message"
	TypeEmergencyAlert Type = "emergency_alert"
	TypeDeviceAlert    Type = "device_alert"
	TypeSystem         Type = "system"
	TypeOpaque         Type = "opaque"
)

var knownTypes = map[Type]bool{
	TypeAppointment: true, TypeLabResult: true, TypePrescription: true,
	TypeMessage: true, TypeEmergencyAlert: true, TypeDeviceAlert: true,
	TypeSystem: true, TypeOpaque: true,
}

// ParseType maps a wire string onto the closed enum, folding unknown values
// to TypeOpaque.
func ParseType(s string) Type {
	t := Type(s)
	if knownTypes[t] {
		return t
	}
	return TypeOpaque
}

// Notification is a durable record owned by the gateway. Persistence always
// precedes push, so a delivered event can be re-fetched and a missed one is
// seen on the next fetch.
type Notification struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	RecipientUserID string          `db:"recipient_user_id" json:"recipient_user_id"`
	Title           string          `db:"title" json:"title"`
	Message         string          `db:"message" json:"message"`
	Type            Type            `db:"type" json:"type"`
	Data            json.RawMessage `db:"data" json:"data,omitempty"`
	Read            bool            `db:"read" json:"read"`
	ReadAt          *time.Time      `db:"read_at" json:"read_at,omitempty"`
	Priority        Priority        `db:"priority" json:"priority"`
	ExpiresAt       *time.Time      `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// Expired reports whether the record is logically deleted by time. Expired
// notifications are invisible to every read operation even before the sweep
// physically purges them.
func (n *Notification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && n.ExpiresAt.Before(now)
}

// Draft is the caller-supplied part of a notification; the dispatcher fills
// in identity, recipient, and timestamps.
type Draft struct {
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Type      Type            `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Priority  Priority        `json:"priority"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
}

func (d *Draft) validate() error {
	if d.Title == "" {
		return fmt.Errorf("title is required")
	}
	if d.Type == "" {
		d.Type = TypeSystem
	}
	d.Type = ParseType(string(d.Type))
	if d.Priority == "" {
		d.Priority = PriorityNormal
	}
	if !validPriorities[d.Priority] {
		return fmt.Errorf("invalid priority: %s", d.Priority)
	}
	return nil
}

// Typed payload shapes for the known notification types. Decode returns the
// matching struct, or the raw bytes for TypeOpaque and unknown tags.

// AppointmentData accompanies TypeAppointment.
type AppointmentData struct {
	AppointmentID string    `json:"appointment_id"`
	ProviderName  string    `json:"provider_name,omitempty"`
	ScheduledFor  time.Time `json:"scheduled_for"`
}

// LabResultData accompanies TypeLabResult.
type LabResultData struct {
	OrderID  string `json:"order_id"`
	TestName string `json:"test_name,omitempty"`
	Abnormal bool   `json:"abnormal,omitempty"`
}

// MessageData accompanies TypeMessage.
type MessageData struct {
	SenderID    string   `json:"sender_id"`
	Content     string   `json:"content"`
	Attachments []string `json:"attachments,omitempty"`
}

// EmergencyAlertData accompanies TypeEmergencyAlert.
type EmergencyAlertData struct {
	PatientID string `json:"patient_id"`
	Location  string `json:"location,omitempty"`
	Severity  string `json:"severity"`
}

// DeviceAlertData accompanies TypeDeviceAlert.
type DeviceAlertData struct {
	DeviceID string  `json:"device_id"`
	Metric   string  `json:"metric"`
	Value    float64 `json:"value"`
	Unit     string  `json:"unit,omitempty"`
}

// Decode unmarshals n.Data into the struct matching n.Type. Opaque payloads
// come back as json.RawMessage untouched.
func Decode(n *Notification) (interface{}, error) {
	if len(n.Data) == 0 {
		return nil, nil
	}

	var out interface{}
	switch n.Type {
	case TypeAppointment:
		out = &AppointmentData{}
	case TypeLabResult:
		out = &LabResultData{}
	case TypeMessage:
		out = &MessageData{}
	case TypeEmergencyAlert:
		out = &EmergencyAlertData{}
	case TypeDeviceAlert:
		out = &DeviceAlertData{}
	default:
		return n.Data, nil
	}

	if err := json.Unmarshal(n.Data, out); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", n.Type, err)
	}
	return out, nil
}
