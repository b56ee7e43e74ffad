package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/opalizer/internal/middleware"
	"github.com/hitoshi/opalizer/internal/worker/events"
)

// mockEnqueuer はEventEnqueuerのモック実装。
type mockEnqueuer struct {
	tasks  []*events.Task
	accept bool
}

func (m *mockEnqueuer) Enqueue(task *events.Task) bool {
	m.tasks = append(m.tasks, task)
	return m.accept
}

func TestEventHandler_ReceiveEvent_Enqueues(t *testing.T) {
	enqueuer := &mockEnqueuer{accept: true}
	h := NewEventHandler(enqueuer)

	body := `{"latitude":40.0,"longitude":-74.0,"user_id":"user-1","location_search":"?utm_source=google"}`
	req := withTenant(httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(body)))
	w := httptest.NewRecorder()

	h.ReceiveEvent(w, req)

	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", w.Code)
	}

	if len(enqueuer.tasks) != 1 {
		t.Fatalf("enqueued tasks = %d, want 1", len(enqueuer.tasks))
	}
	task := enqueuer.tasks[0]
	if task.Tenant.ID != "tenant-1" {
		t.Errorf("task tenant = %q, want tenant-1", task.Tenant.ID)
	}
	if task.Payload.UserID != "user-1" {
		t.Errorf("task payload user = %q, want user-1", task.Payload.UserID)
	}
	if task.Payload.LocationSearch != "?utm_source=google" {
		t.Errorf("task payload location_search = %q", task.Payload.LocationSearch)
	}

	env := decodeEnvelope(t, w)
	if env.Status != middleware.StatusSuccess {
		t.Errorf("envelope status = %q, want success", env.Status)
	}
}

func TestEventHandler_ReceiveEvent_QueueFull_StillAccepted(t *testing.T) {
	// キュー満杯でもクライアントへの応答は成功（イベントはデッドレターに記録済み）
	enqueuer := &mockEnqueuer{accept: false}
	h := NewEventHandler(enqueuer)

	body := `{"latitude":40.0,"longitude":-74.0}`
	req := withTenant(httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(body)))
	w := httptest.NewRecorder()

	h.ReceiveEvent(w, req)

	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", w.Code)
	}
}

func TestEventHandler_ReceiveEvent_WithoutTenant(t *testing.T) {
	h := NewEventHandler(&mockEnqueuer{accept: true})

	req := httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(`{"latitude":40.0,"longitude":-74.0}`))
	w := httptest.NewRecorder()

	h.ReceiveEvent(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestEventHandler_ReceiveEvent_MalformedBody(t *testing.T) {
	enqueuer := &mockEnqueuer{accept: true}
	h := NewEventHandler(enqueuer)

	req := withTenant(httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(`{not json`)))
	w := httptest.NewRecorder()

	h.ReceiveEvent(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if len(enqueuer.tasks) != 0 {
		t.Error("malformed payloads must not be enqueued")
	}
}

func TestEventHandler_ReceiveEvent_OutOfRangeCoordinates(t *testing.T) {
	enqueuer := &mockEnqueuer{accept: true}
	h := NewEventHandler(enqueuer)

	req := withTenant(httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(`{"latitude":91.0,"longitude":-74.0}`)))
	w := httptest.NewRecorder()

	h.ReceiveEvent(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if len(enqueuer.tasks) != 0 {
		t.Error("out-of-range coordinates must not be enqueued")
	}
}
