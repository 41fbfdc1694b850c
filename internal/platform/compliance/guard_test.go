package compliance

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestGuardEvent_AdmitsConsentedActiveUser(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.consentedUser("u1", "doctor")

	rej, err := f.pipeline.GuardEvent(context.Background(), "u1", "doctor", "joinRoom")
	if err != nil {
		t.Fatalf("GuardEvent: %v", err)
	}
	if rej != nil {
		t.Fatalf("expected admission, got rejection %+v", rej)
	}
	// Admission alone writes nothing; the outcome entry comes from the caller
	// once the event has run.
	if f.repo.count() != 0 {
		t.Fatalf("admission must not be audited before the outcome, got %d entries", f.repo.count())
	}
}

func TestAuditEvent_RecordsOutcomeAndDuration(t *testing.T) {
	f := newFixture(t, time.Minute)

	start := time.Now().Add(-40 * time.Millisecond)
	f.pipeline.AuditEvent(context.Background(), "u1", "sendMessage", http.StatusOK, start)

	if f.repo.count() != 1 {
		t.Fatalf("expected 1 audit entry, got %d", f.repo.count())
	}
	entry := f.repo.last()
	if entry.HTTPStatus != http.StatusOK {
		t.Errorf("expected status 200, got %d", entry.HTTPStatus)
	}
	if entry.ResourceType != "realtime" || entry.ResourceID == nil || *entry.ResourceID != "sendMessage" {
		t.Errorf("unexpected resource in entry: %s/%v", entry.ResourceType, entry.ResourceID)
	}
	if entry.DurationMs < 40 {
		t.Errorf("duration should cover the whole event, got %dms", entry.DurationMs)
	}

	f.pipeline.AuditEvent(context.Background(), "u1", "sendMessage", http.StatusInternalServerError, time.Now())
	if f.repo.last().HTTPStatus != http.StatusInternalServerError {
		t.Errorf("failed outcome should be recorded as 500, got %d", f.repo.last().HTTPStatus)
	}
}

func TestGuardEvent_ConsentRejection(t *testing.T) {
	f := newFixture(t, time.Minute)
	// User exists but has no recorded consent.

	rej, err := f.pipeline.GuardEvent(context.Background(), "u1", "patient", "sendMessage")
	if err != nil {
		t.Fatalf("GuardEvent: %v", err)
	}
	if rej == nil || !rej.ConsentRequired || rej.Status != http.StatusForbidden {
		t.Fatalf("expected consent rejection, got %+v", rej)
	}
	if f.repo.count() != 1 {
		t.Fatalf("rejected event must be audited once, got %d entries", f.repo.count())
	}
}

func TestGuardEvent_IdleRejectionKeepsAuditing(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.consentedUser("u1", "nurse")
	f.sessions.Touch(context.Background(), "u1", time.Now().Add(-time.Hour))

	rej, err := f.pipeline.GuardEvent(context.Background(), "u1", "nurse", "deviceData")
	if err != nil {
		t.Fatalf("GuardEvent: %v", err)
	}
	if rej == nil || rej.Status != StatusLoginTimeout {
		t.Fatalf("expected idle rejection, got %+v", rej)
	}
	if rej.Code != "session_expired" {
		t.Errorf("unexpected rejection code %s", rej.Code)
	}

	// The transport stays open; a later event re-establishes the session.
	rej, err = f.pipeline.GuardEvent(context.Background(), "u1", "nurse", "deviceData")
	if err != nil {
		t.Fatalf("GuardEvent: %v", err)
	}
	if rej != nil {
		t.Fatalf("event after re-established session should be admitted, got %+v", rej)
	}
}
