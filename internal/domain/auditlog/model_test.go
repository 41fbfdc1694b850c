package auditlog

import (
	"testing"
)

func TestScrubDetails_RemovesDeniedKeys(t *testing.T) {
	details := map[string]interface{}{
		"path":        "/api/v1/records/123",
		"password":    "hunter2",
		"authToken":   "abc",
		"ssn":         "123-45-6789",
		"creditCard":  "4111111111111111",
		"apiSecret":   "shh",
		"patientName": "kept",
	}

	out := ScrubDetails(details)

	for _, denied := range []string{"password", "authToken", "ssn", "creditCard", "apiSecret"} {
		if _, ok := out[denied]; ok {
			t.Errorf("expected key %q to be scrubbed", denied)
		}
	}
	if out["path"] != "/api/v1/records/123" {
		t.Errorf("expected path to survive, got %v", out["path"])
	}
	if out["patientName"] != "kept" {
		t.Errorf("expected patientName to survive, got %v", out["patientName"])
	}
}

func TestScrubDetails_Nested(t *testing.T) {
	details := map[string]interface{}{
		"request": map[string]interface{}{
			"password": "nested",
			"method":   "POST",
		},
		"items": []interface{}{
			map[string]interface{}{"token": "x", "id": "1"},
		},
	}

	out := ScrubDetails(details)

	req := out["request"].(map[string]interface{})
	if _, ok := req["password"]; ok {
		t.Error("expected nested password to be scrubbed")
	}
	if req["method"] != "POST" {
		t.Errorf("expected nested method to survive, got %v", req["method"])
	}

	item := out["items"].([]interface{})[0].(map[string]interface{})
	if _, ok := item["token"]; ok {
		t.Error("expected token inside slice to be scrubbed")
	}
	if item["id"] != "1" {
		t.Errorf("expected id inside slice to survive, got %v", item["id"])
	}
}

func TestScrubDetails_Nil(t *testing.T) {
	if ScrubDetails(nil) != nil {
		t.Error("expected nil input to stay nil")
	}
}

func TestScrubDetails_DoesNotMutateInput(t *testing.T) {
	details := map[string]interface{}{"password": "x", "ok": "y"}
	ScrubDetails(details)
	if _, ok := details["password"]; !ok {
		t.Error("input map should not be mutated")
	}
}

func TestAction_IsMutating(t *testing.T) {
	mutating := []Action{ActionDataCreate, ActionDataModify, ActionDataDelete}
	for _, a := range mutating {
		if !a.IsMutating() {
			t.Errorf("%s should be mutating", a)
		}
	}
	for _, a := range []Action{ActionDataAccess, ActionPHIAccess, ActionAuthentication, ActionOther} {
		if a.IsMutating() {
			t.Errorf("%s should not be mutating", a)
		}
	}
}
