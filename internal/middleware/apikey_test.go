package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/opalizer/internal/model"
)

// mockTenantFinder はTenantFinderのモック実装。
type mockTenantFinder struct {
	getByAPIKeyFn func(ctx context.Context, apiKey string) (*model.Tenant, error)
}

func (m *mockTenantFinder) GetByAPIKey(ctx context.Context, apiKey string) (*model.Tenant, error) {
	if m.getByAPIKeyFn != nil {
		return m.getByAPIKeyFn(ctx, apiKey)
	}
	return nil, nil
}

func TestAPIKeyMiddleware_ResolvesTenant(t *testing.T) {
	expected := &model.Tenant{ID: "tenant-1", Name: "acme", APIKey: "key-1", SchemaName: "acme"}
	finder := &mockTenantFinder{
		getByAPIKeyFn: func(ctx context.Context, apiKey string) (*model.Tenant, error) {
			if apiKey != "key-1" {
				return nil, nil
			}
			return expected, nil
		},
	}

	var resolved *model.Tenant
	mw := NewAPIKeyMiddleware(finder)
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant, err := TenantFromContext(r.Context())
		if err != nil {
			t.Errorf("TenantFromContext() error = %v", err)
		}
		resolved = tenant
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/stores", nil)
	req.Header.Set("X-API-Key", "key-1")
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if resolved == nil || resolved.ID != "tenant-1" {
		t.Errorf("resolved tenant = %+v, want tenant-1", resolved)
	}
}

func TestAPIKeyMiddleware_MissingKey(t *testing.T) {
	mw := NewAPIKeyMiddleware(&mockTenantFinder{})
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/stores", nil)
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAPIKeyMiddleware_UnknownKey(t *testing.T) {
	mw := NewAPIKeyMiddleware(&mockTenantFinder{})
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/stores", nil)
	req.Header.Set("X-API-Key", "unknown")
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAPIKeyMiddleware_LookupFailure(t *testing.T) {
	finder := &mockTenantFinder{
		getByAPIKeyFn: func(ctx context.Context, apiKey string) (*model.Tenant, error) {
			return nil, errors.New("db down")
		},
	}

	mw := NewAPIKeyMiddleware(finder)
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/stores", nil)
	req.Header.Set("X-API-Key", "key-1")
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestTenantFromContext_Missing(t *testing.T) {
	if _, err := TenantFromContext(context.Background()); err == nil {
		t.Error("an empty context should not resolve a tenant")
	}
}
