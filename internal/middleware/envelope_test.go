package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteData(t *testing.T) {
	w := httptest.NewRecorder()
	WriteData(w, http.StatusCreated, map[string]string{"id": "r1"})

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["success"] != true {
		t.Errorf("success = %v", body["success"])
	}
	if data, ok := body["data"].(map[string]any); !ok || data["id"] != "r1" {
		t.Errorf("data = %v", body["data"])
	}
}

func TestWriteData_NilKeepsDataKey(t *testing.T) {
	w := httptest.NewRecorder()
	WriteData(w, http.StatusOK, nil)

	var body map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if raw, ok := body["data"]; !ok || string(raw) != "null" {
		t.Errorf("data = %s, ok = %v", raw, ok)
	}
}

func TestWriteValidationError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteValidationError(w, map[string]string{
		"email":          "Invalid email",
		"profile.name":   "Required",
		"profile.name.x": "nested",
	})

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
	var body struct {
		Error   string                     `json:"error"`
		Details map[string]json.RawMessage `json:"details"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Error != "Validation error" {
		t.Errorf("error = %q", body.Error)
	}
	if string(body.Details["email"]) != `{"_errors":["Invalid email"]}` {
		t.Errorf("details.email = %s", body.Details["email"])
	}
	if string(body.Details["profile"]) != `{"name":{"_errors":["Required"],"x":{"_errors":["nested"]}}}` {
		t.Errorf("details.profile = %s", body.Details["profile"])
	}
}

func TestSplitPath(t *testing.T) {
	got := splitPath("a.b.c")
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Errorf("splitPath() = %v", got)
	}
}
