package notification

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseType(t *testing.T) {
	if got := ParseType("lab_result"); got != TypeLabResult {
		t.Fatalf("expected lab_result, got %s", got)
	}
	if got := ParseType("future_feature"); got != TypeOpaque {
		t.Fatalf("unknown type should fold to opaque, got %s", got)
	}
	if got := ParseType("opaque"); got != TypeOpaque {
		t.Fatalf("expected opaque, got %s", got)
	}
}

func TestNotification_Expired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	if (&Notification{}).Expired(now) {
		t.Error("nil expires_at should never expire")
	}
	if !(&Notification{ExpiresAt: &past}).Expired(now) {
		t.Error("past expires_at should be expired")
	}
	if (&Notification{ExpiresAt: &future}).Expired(now) {
		t.Error("future expires_at should not be expired")
	}
}

func TestDraft_Validate(t *testing.T) {
	d := Draft{Title: "Lab results ready", Type: "lab_result"}
	if err := d.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if d.Priority != PriorityNormal {
		t.Errorf("expected default priority normal, got %s", d.Priority)
	}

	d = Draft{Title: "x", Type: "something_new"}
	if err := d.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if d.Type != TypeOpaque {
		t.Errorf("unknown type should validate as opaque, got %s", d.Type)
	}

	if err := (&Draft{}).validate(); err == nil {
		t.Error("expected error for missing title")
	}
	if err := (&Draft{Title: "x", Priority: "extreme"}).validate(); err == nil {
		t.Error("expected error for invalid priority")
	}
}

func TestDecode_TypedPayloads(t *testing.T) {
	n := &Notification{
		Type: TypeDeviceAlert,
		Data: json.RawMessage(`{"device_id":"dev-1","metric":"heart_rate","value":132,"unit":"bpm"}`),
	}
	out, err := Decode(n)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	alert, ok := out.(*DeviceAlertData)
	if !ok {
		t.Fatalf("expected *DeviceAlertData, got %T", out)
	}
	if alert.Metric != "heart_rate" || alert.Value != 132 {
		t.Errorf("unexpected payload: %+v", alert)
	}
}

func TestDecode_OpaquePassesThrough(t *testing.T) {
	raw := json.RawMessage(`{"anything":"goes"}`)
	out, err := Decode(&Notification{Type: TypeOpaque, Data: raw})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(out.(json.RawMessage)) != string(raw) {
		t.Errorf("opaque payload should pass through untouched")
	}
}
