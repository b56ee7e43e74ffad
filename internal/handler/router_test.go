package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/opalizer/internal/middleware"
	"github.com/hitoshi/opalizer/internal/model"
)

// mockTenantDirectory はテナントサービスとAPIキー解決の両方を提供する
// ルーターテスト用モック。
type mockTenantDirectory struct {
	mockTenantService
	tenant *model.Tenant
}

func (m *mockTenantDirectory) GetByAPIKey(ctx context.Context, apiKey string) (*model.Tenant, error) {
	if m.tenant != nil && m.tenant.APIKey == apiKey {
		return m.tenant, nil
	}
	return nil, nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	rl := middleware.NewRateLimiter(middleware.RateLimitConfig{
		GeneralRate:         1000,
		GeneralBurst:        1000,
		IngestRate:          1000,
		IngestBurst:         1000,
		CleanupInterval:     time.Minute,
		InactivityThreshold: time.Minute,
	}, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	t.Cleanup(rl.Stop)

	directory := &mockTenantDirectory{
		tenant: &model.Tenant{ID: "tenant-1", Name: "acme", SchemaName: "acme", APIKey: "key-1"},
	}

	deps := &RouterDeps{
		TenantFinder:  directory,
		RateLimiter:   rl,
		AdminUsername: "admin",
		AdminPassword: "secret",
		Logger:        slog.New(slog.NewJSONHandler(io.Discard, nil)),

		AppName: "opalizer",
		DB:      &mockPinger{},

		TenantService: directory,
		StoreService:  &mockStoreService{},
		Dispatcher:    &mockEnqueuer{accept: true},
	}

	return NewRouter(deps)
}

func TestRouter_AppInfo(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestRouter_Health(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestRouter_TenantsRequireBasicAuth(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/tenants", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestRouter_TenantsWithBasicAuth(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/tenants", nil)
	req.SetBasicAuth("admin", "secret")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestRouter_StoresRequireAPIKey(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/stores", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestRouter_EventIngestWithAPIKey(t *testing.T) {
	router := newTestRouter(t)

	body := `{"latitude":40.0,"longitude":-74.0,"user_id":"u1"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(body))
	req.Header.Set("X-API-Key", "key-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", w.Code)
	}
}

func TestRouter_EventIngestUnknownKey(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(`{}`))
	req.Header.Set("X-API-Key", "bogus")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/v1/events", nil)
	req.Header.Set("Origin", "https://tenant-site.example")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("CORS headers should be present on preflight")
	}
}
