package middleware

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
)

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()

	WriteSuccess(w, 200, map[string]string{"name": "acme"})

	if w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var env Envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if env.Status != StatusSuccess {
		t.Errorf("status = %q, want %q", env.Status, StatusSuccess)
	}
	if env.Error != "" {
		t.Errorf("error = %q, want empty", env.Error)
	}
	value, ok := env.Value.(map[string]any)
	if !ok || value["name"] != "acme" {
		t.Errorf("value = %v, want map with name=acme", env.Value)
	}
}

func TestWriteSuccess_NullValue(t *testing.T) {
	w := httptest.NewRecorder()

	WriteSuccess(w, 200, nil)

	var raw map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}

	// valueキーはnullとして必ず存在する
	value, present := raw["value"]
	if !present {
		t.Fatal("value key should be present")
	}
	if value != nil {
		t.Errorf("value = %v, want null", value)
	}
	if _, present := raw["error"]; present {
		t.Error("error key should be omitted on success")
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteError(w, 409, "名前が衝突しています")

	if w.Code != 409 {
		t.Errorf("status = %d, want 409", w.Code)
	}

	var env Envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if env.Status != StatusError {
		t.Errorf("status = %q, want %q", env.Status, StatusError)
	}
	if env.Error != "名前が衝突しています" {
		t.Errorf("error = %q", env.Error)
	}
}

func TestWriteInternalServerError_GenericMessage(t *testing.T) {
	w := httptest.NewRecorder()

	WriteInternalServerError(w)

	if w.Code != 500 {
		t.Errorf("status = %d, want 500", w.Code)
	}

	var env Envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if env.Error != "Internal error" {
		t.Errorf("error = %q, want generic message", env.Error)
	}
}
