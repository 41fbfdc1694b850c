package compliance

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/medisync/gateway/internal/domain/auditlog"
)

// Rejection describes why a realtime event was refused. The transport stays
// open either way; the client receives the rejection as an event and decides
// whether to re-authenticate.
type Rejection struct {
	Code            string `json:"error"`
	Message         string `json:"message"`
	ConsentRequired bool   `json:"consentRequired,omitempty"`
	Status          int    `json:"-"`
}

// GuardEvent runs the consent and idle-timeout gates for one inbound
// realtime event. Rejections are audited here; admitted events are audited
// by the caller through AuditEvent once the outcome is known. A nil
// Rejection means the event is admitted. Gate-infrastructure failures fail
// closed.
func (p *Pipeline) GuardEvent(ctx context.Context, userID, role, eventType string) (*Rejection, error) {
	start := time.Now()

	ok, err := p.consentCurrent(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		p.metrics.RejectionsTotal.WithLabelValues("consent").Inc()
		p.auditEvent(ctx, userID, eventType, http.StatusForbidden, start)
		return &Rejection{
			Code:            "consent_required",
			Message:         "You must accept the current compliance agreement before using realtime features.",
			ConsentRequired: true,
			Status:          http.StatusForbidden,
		}, nil
	}

	expired, err := p.touchSession(ctx, userID, start)
	if err != nil {
		return nil, err
	}
	if expired {
		p.metrics.RejectionsTotal.WithLabelValues("idle_timeout").Inc()
		p.auditEvent(ctx, userID, eventType, StatusLoginTimeout, start)
		return &Rejection{
			Code:    "session_expired",
			Message: "Your session expired due to inactivity. Please sign in again.",
			Status:  StatusLoginTimeout,
		}, nil
	}

	return nil, nil
}

// AuditEvent records the outcome of one admitted realtime event. start is
// when the event began, so the entry's duration covers the whole unit of
// work, not just the gates.
func (p *Pipeline) AuditEvent(ctx context.Context, userID, eventType string, status int, start time.Time) {
	p.auditEvent(ctx, userID, eventType, status, start)
}

// RedactForRole applies the response-redaction stage to an outbound realtime
// payload. Allow-listed roles receive the payload unchanged.
func (p *Pipeline) RedactForRole(role string, payload []byte) []byte {
	if p.allowRoles[strings.ToLower(role)] {
		return payload
	}
	return RedactJSON(payload)
}

func (p *Pipeline) auditEvent(ctx context.Context, userID, eventType string, status int, start time.Time) {
	entry := &auditlog.Entry{
		Action:       auditlog.ActionDataAccess,
		ResourceType: "realtime",
		Timestamp:    time.Now().UTC(),
		DurationMs:   time.Since(start).Milliseconds(),
		HTTPStatus:   status,
	}
	if userID != "" {
		entry.UserID = &userID
	}
	if eventType != "" {
		entry.ResourceID = &eventType
	}
	if err := p.sink.Record(ctx, entry); err != nil {
		p.logger.Error().Err(err).Str("event", eventType).Msg("audit record failed under fail policy")
	}
}
