package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/medisync/gateway/internal/domain/notification"
	"github.com/medisync/gateway/internal/platform/auth"
	"github.com/medisync/gateway/internal/platform/compliance"
)

// Inbound event names accepted from clients.
const (
	EventJoinRoom           = "joinRoom"
	EventLeaveRoom          = "leaveRoom"
	EventSendMessage        = "sendMessage"
	EventTelemedicineSignal = "telemedicineSignal"
	EventEmergencyAlert     = "emergencyAlert"
	EventDeviceData         = "deviceData"
)

// telemedicineRoomPrefix scopes client-joinable rooms. User and role rooms
// are managed by the hub only.
const telemedicineRoomPrefix = "telemedicine:"

// eventTimeout bounds the work done for one inbound event.
const eventTimeout = 10 * time.Second

// InboundEvent is the wire frame read from clients.
type InboundEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Guard admits or rejects one inbound event. A rejection is sent back to the
// client as an error event; the transport stays open. Admitted events are
// audited through AuditEvent after they complete, so the entry carries the
// real outcome.
type Guard interface {
	GuardEvent(ctx context.Context, userID, role, eventType string) (*compliance.Rejection, error)
	AuditEvent(ctx context.Context, userID, eventType string, status int, start time.Time)
}

// Router reads inbound events from a connection, runs each through the
// guard, and dispatches admitted events.
type Router struct {
	hub        *Hub
	guard      Guard
	dispatcher *notification.Dispatcher
	logger     zerolog.Logger
}

func NewRouter(hub *Hub, guard Guard, dispatcher *notification.Dispatcher, logger zerolog.Logger) *Router {
	return &Router{
		hub:        hub,
		guard:      guard,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "realtime_router").Logger(),
	}
}

// ReadPump reads events until the transport fails, then deregisters the
// client. Malformed frames are ignored; rejected and failed events produce
// an error event on the same connection.
func (r *Router) ReadPump(client *Client) {
	defer func() {
		r.hub.Deregister(client)
		client.conn.Close()
	}()

	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			return
		}

		var evt InboundEvent
		if err := json.Unmarshal(raw, &evt); err != nil || evt.Event == "" {
			continue
		}
		r.Handle(client, evt)
	}
}

// Handle processes one inbound event end to end.
func (r *Router) Handle(client *Client, evt InboundEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	start := time.Now()

	rejection, err := r.guard.GuardEvent(ctx, client.UserID, client.Role, evt.Event)
	if err != nil {
		r.logger.Error().Err(err).Str("event", evt.Event).Msg("guard failure; event dropped")
		r.sendError(client, "internal_error", "The event could not be processed.")
		return
	}
	if rejection != nil {
		r.sendRejection(client, rejection)
		return
	}

	var handleErr error
	switch evt.Event {
	case EventJoinRoom:
		handleErr = r.handleJoinRoom(client, evt.Data)
	case EventLeaveRoom:
		handleErr = r.handleLeaveRoom(client, evt.Data)
	case EventSendMessage:
		handleErr = r.handleSendMessage(ctx, client, evt.Data)
	case EventTelemedicineSignal:
		handleErr = r.handleTelemedicineSignal(client, evt.Data)
	case EventEmergencyAlert:
		handleErr = r.handleEmergencyAlert(ctx, client, evt.Data)
	case EventDeviceData:
		handleErr = r.handleDeviceData(ctx, client, evt.Data)
	default:
		handleErr = fmt.Errorf("unknown event %q", evt.Event)
	}

	status := http.StatusOK
	if handleErr != nil {
		status = http.StatusInternalServerError
	}
	r.guard.AuditEvent(ctx, client.UserID, evt.Event, status, start)

	if handleErr != nil {
		r.logger.Debug().Err(handleErr).Str("event", evt.Event).
			Str("user_id", client.UserID).Msg("inbound event failed")
		r.sendError(client, "event_failed", handleErr.Error())
	}
}

type roomPayload struct {
	Room string `json:"room"`
}

func (r *Router) handleJoinRoom(client *Client, data json.RawMessage) error {
	var p roomPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("invalid joinRoom payload")
	}
	if !strings.HasPrefix(p.Room, telemedicineRoomPrefix) {
		return fmt.Errorf("room %q is not joinable", p.Room)
	}
	r.hub.Join(client, p.Room)
	r.sendEvent(client, "joinedRoom", map[string]string{"room": p.Room})
	return nil
}

func (r *Router) handleLeaveRoom(client *Client, data json.RawMessage) error {
	var p roomPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("invalid leaveRoom payload")
	}
	if !strings.HasPrefix(p.Room, telemedicineRoomPrefix) {
		return fmt.Errorf("room %q is not leavable", p.Room)
	}
	r.hub.Leave(client, p.Room)
	return nil
}

type sendMessagePayload struct {
	RecipientID string   `json:"recipientId"`
	Content     string   `json:"content"`
	Attachments []string `json:"attachments,omitempty"`
}

// handleSendMessage persists a message notification for the recipient, which
// in turn pushes a newMessage event to their live connections.
func (r *Router) handleSendMessage(ctx context.Context, client *Client, data json.RawMessage) error {
	var p sendMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("invalid sendMessage payload")
	}
	if p.RecipientID == "" || p.Content == "" {
		return fmt.Errorf("recipientId and content are required")
	}

	msgData, err := json.Marshal(notification.MessageData{
		SenderID:    client.UserID,
		Content:     p.Content,
		Attachments: p.Attachments,
	})
	if err != nil {
		return err
	}
	_, err = r.dispatcher.SendToUser(ctx, p.RecipientID, notification.Draft{
		Title:    "New message",
		Message:  p.Content,
		Type:     notification.TypeMessage,
		Data:     msgData,
		Priority: notification.PriorityNormal,
	})
	return err
}

type telemedicineSignalPayload struct {
	Room   string          `json:"room"`
	Signal json.RawMessage `json:"signal"`
}

// handleTelemedicineSignal relays an opaque signaling payload to the other
// members of a telemedicine room. The payload is never inspected or stored.
func (r *Router) handleTelemedicineSignal(client *Client, data json.RawMessage) error {
	var p telemedicineSignalPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("invalid telemedicineSignal payload")
	}
	if !strings.HasPrefix(p.Room, telemedicineRoomPrefix) {
		return fmt.Errorf("room %q is not a telemedicine room", p.Room)
	}

	evt, err := NewEvent(EventTelemedicineSignal, map[string]interface{}{
		"room":     p.Room,
		"senderId": client.UserID,
		"signal":   p.Signal,
	})
	if err != nil {
		return err
	}
	r.hub.SendToRoomExcept(p.Room, client.ID, evt)
	return nil
}

type emergencyAlertPayload struct {
	PatientID string `json:"patientId"`
	Message   string `json:"message"`
	Location  string `json:"location"`
	Severity  string `json:"severity"`
}

// emergencyAlertRoles are the roles notified of an emergency.
var emergencyAlertRoles = []string{auth.RoleDoctor, auth.RoleNurse, auth.RoleAdmin}

func (r *Router) handleEmergencyAlert(ctx context.Context, client *Client, data json.RawMessage) error {
	var p emergencyAlertPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("invalid emergencyAlert payload")
	}
	if p.PatientID == "" {
		return fmt.Errorf("patientId is required")
	}
	if p.Severity == "" {
		p.Severity = "critical"
	}
	if p.Message == "" {
		p.Message = fmt.Sprintf("Emergency reported for patient %s", p.PatientID)
	}

	alertData, err := json.Marshal(notification.EmergencyAlertData{
		PatientID: p.PatientID,
		Location:  p.Location,
		Severity:  p.Severity,
	})
	if err != nil {
		return err
	}
	draft := notification.Draft{
		Title:    "Emergency alert",
		Message:  p.Message,
		Type:     notification.TypeEmergencyAlert,
		Data:     alertData,
		Priority: notification.PriorityUrgent,
	}

	for _, role := range emergencyAlertRoles {
		if _, err := r.dispatcher.SendToRole(ctx, role, draft); err != nil {
			return fmt.Errorf("alert dispatch to %s: %w", role, err)
		}
	}
	return nil
}

type deviceDataPayload struct {
	DeviceID string  `json:"deviceId"`
	Type     string  `json:"type"`
	Value    float64 `json:"value"`
	Unit     string  `json:"unit"`
}

// handleDeviceData evaluates a vitals reading against the abnormality
// thresholds and alerts the clinical roles when out of range. Normal
// readings are discarded.
func (r *Router) handleDeviceData(ctx context.Context, client *Client, data json.RawMessage) error {
	var p deviceDataPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("invalid deviceData payload")
	}
	if p.DeviceID == "" || p.Type == "" {
		return fmt.Errorf("deviceId and type are required")
	}

	if !AbnormalReading(p.Type, p.Value) {
		return nil
	}

	alertData, err := json.Marshal(notification.DeviceAlertData{
		DeviceID: p.DeviceID,
		Metric:   p.Type,
		Value:    p.Value,
		Unit:     p.Unit,
	})
	if err != nil {
		return err
	}
	draft := notification.Draft{
		Title:    "Abnormal reading",
		Message:  fmt.Sprintf("Abnormal %s reading from device %s for patient %s", p.Type, p.DeviceID, client.UserID),
		Type:     notification.TypeDeviceAlert,
		Data:     alertData,
		Priority: notification.PriorityHigh,
	}

	for _, role := range []string{auth.RoleDoctor, auth.RoleNurse} {
		if _, err := r.dispatcher.SendToRole(ctx, role, draft); err != nil {
			return fmt.Errorf("device alert dispatch to %s: %w", role, err)
		}
	}
	return nil
}

func (r *Router) sendEvent(client *Client, eventType string, data interface{}) {
	evt, err := NewEvent(eventType, data)
	if err != nil {
		return
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return
	}
	client.trySend(payload)
}

func (r *Router) sendError(client *Client, code, message string) {
	r.sendEvent(client, "error", map[string]string{"error": code, "message": message})
}

func (r *Router) sendRejection(client *Client, rej *compliance.Rejection) {
	r.sendEvent(client, "error", rej)
}
