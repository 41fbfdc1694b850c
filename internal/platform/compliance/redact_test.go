package compliance

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestRedactJSON_RemovesSensitiveFields(t *testing.T) {
	body := []byte(`{
		"name": "Pat Doe",
		"ssn": "123-45-6789",
		"patientSSN": "123-45-6789",
		"internal_notes": "do not show",
		"financialAccountId": "acct-9",
		"visit": {"internalNote": "nested", "date": "2026-08-01"},
		"results": [{"ssn": "x", "value": 7}]
	}`)

	var out map[string]interface{}
	if err := json.Unmarshal(RedactJSON(body), &out); err != nil {
		t.Fatalf("redacted output is not valid JSON: %v", err)
	}

	for _, key := range []string{"ssn", "patientSSN", "internal_notes", "financialAccountId"} {
		if _, ok := out[key]; ok {
			t.Errorf("expected %q to be redacted", key)
		}
	}
	if out["name"] != "Pat Doe" {
		t.Errorf("expected name to survive, got %v", out["name"])
	}

	visit := out["visit"].(map[string]interface{})
	if _, ok := visit["internalNote"]; ok {
		t.Error("expected nested internalNote to be redacted")
	}
	if visit["date"] != "2026-08-01" {
		t.Error("expected nested date to survive")
	}

	item := out["results"].([]interface{})[0].(map[string]interface{})
	if _, ok := item["ssn"]; ok {
		t.Error("expected ssn inside array element to be redacted")
	}
	if item["value"] != float64(7) {
		t.Error("expected value inside array element to survive")
	}
}

func TestRedactJSON_TopLevelArray(t *testing.T) {
	body := []byte(`[{"ssn":"a","id":1},{"ssn":"b","id":2}]`)

	var out []map[string]interface{}
	if err := json.Unmarshal(RedactJSON(body), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for i, item := range out {
		if _, ok := item["ssn"]; ok {
			t.Errorf("element %d: ssn should be redacted", i)
		}
		if _, ok := item["id"]; !ok {
			t.Errorf("element %d: id should survive", i)
		}
	}
}

func TestRedactJSON_NonJSONUntouched(t *testing.T) {
	body := []byte("plain text, not json")
	if got := string(RedactJSON(body)); got != string(body) {
		t.Errorf("non-JSON body must pass through unchanged, got %q", got)
	}
	if got := RedactJSON(nil); len(got) != 0 {
		t.Errorf("empty body must stay empty")
	}
}

func TestPipeline_ResponseRedactedForPatient(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.consentedUser("u1", "patient")

	rec := f.do(t, http.MethodGet, "/api/v1/records/123", "u1", "patient", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"record": "r-1",
			"ssn":    "123-45-6789",
		})
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := body["ssn"]; ok {
		t.Error("ssn must be redacted for patient role")
	}
	if body["record"] != "r-1" {
		t.Error("non-sensitive field must survive redaction")
	}
}

func TestPipeline_ResponseUnredactedForDoctor(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.consentedUser("u1", "doctor")

	rec := f.do(t, http.MethodGet, "/api/v1/records/123", "u1", "doctor", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{"ssn": "123-45-6789"})
	})

	var body map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["ssn"] != "123-45-6789" {
		t.Error("allow-listed role must receive the unredacted body")
	}
}

func TestRedactForRole(t *testing.T) {
	f := newFixture(t, time.Minute)
	payload := []byte(`{"ssn":"x","id":"1"}`)

	var redacted map[string]interface{}
	json.Unmarshal(f.pipeline.RedactForRole("patient", payload), &redacted)
	if _, ok := redacted["ssn"]; ok {
		t.Error("patient payload should be redacted")
	}

	if string(f.pipeline.RedactForRole("admin", payload)) != string(payload) {
		t.Error("admin payload should pass through unchanged")
	}
}
