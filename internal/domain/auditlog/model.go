package auditlog

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Action classifies what a unit of work did.
type Action string

const (
	ActionAuthentication Action = "AUTHENTICATION"
	ActionAdministrative Action = "ADMINISTRATIVE"
	ActionDataAccess     Action = "DATA_ACCESS"
	ActionDataCreate     Action = "DATA_CREATE"
	ActionDataModify     Action = "DATA_MODIFY"
	ActionDataDelete     Action = "DATA_DELETE"
	ActionPHIAccess      Action = "PHI_ACCESS"
	ActionOther          Action = "OTHER"
)

// IsMutating reports whether the action changes data. Mutating actions get
// full sanitized detail; anonymous reads are logged minimally to bound log
// volume.
func (a Action) IsMutating() bool {
	switch a {
	case ActionDataCreate, ActionDataModify, ActionDataDelete:
		return true
	}
	return false
}

// Entry is a single append-only audit record. Never updated or deleted by
// the running system.
type Entry struct {
	ID               uuid.UUID              `db:"id" json:"id"`
	UserID           *string                `db:"user_id" json:"user_id,omitempty"`
	Action           Action                 `db:"action" json:"action"`
	ResourceType     string                 `db:"resource_type" json:"resource_type"`
	ResourceID       *string                `db:"resource_id" json:"resource_id,omitempty"`
	Timestamp        time.Time              `db:"timestamp" json:"timestamp"`
	DurationMs       int64                  `db:"duration_ms" json:"duration_ms"`
	HTTPStatus       int                    `db:"http_status" json:"http_status"`
	SanitizedDetails map[string]interface{} `db:"sanitized_details" json:"sanitized_details,omitempty"`
}

// denyList terms may never appear as keys in SanitizedDetails, even nested.
var denyList = []string{"password", "token", "ssn", "creditcard", "secret"}

// ScrubDetails returns a copy of details with every deny-listed key removed,
// recursing into nested maps and slices of maps. A nil input stays nil.
func ScrubDetails(details map[string]interface{}) map[string]interface{} {
	if details == nil {
		return nil
	}
	out := make(map[string]interface{}, len(details))
	for k, v := range details {
		if deniedKey(k) {
			continue
		}
		out[k] = scrubValue(v)
	}
	return out
}

func scrubValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return ScrubDetails(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = scrubValue(item)
		}
		return out
	default:
		return v
	}
}

func deniedKey(key string) bool {
	lower := strings.ToLower(key)
	for _, term := range denyList {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
