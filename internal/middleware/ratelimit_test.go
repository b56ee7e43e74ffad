package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/opalizer/internal/model"
)

func rateLimitTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestRateLimiter_AllowsRequestsWithinBurst(t *testing.T) {
	cfg := RateLimitConfig{
		GeneralRate:         2,
		GeneralBurst:        5,
		IngestRate:          1,
		IngestBurst:         1,
		CleanupInterval:     time.Minute,
		InactivityThreshold: time.Minute,
	}

	rl := NewRateLimiter(cfg, rateLimitTestLogger())
	defer rl.Stop()

	callCount := 0
	h := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.WriteHeader(http.StatusOK)
	}))

	tenant := &model.Tenant{ID: "tenant-1"}
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/stores", nil)
		req = req.WithContext(ContextWithTenant(req.Context(), tenant))
		w := httptest.NewRecorder()

		h.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want 200", i, w.Code)
		}
	}

	if callCount != 5 {
		t.Errorf("handler call count = %d, want 5", callCount)
	}
}

func TestRateLimiter_Returns429OverLimit(t *testing.T) {
	cfg := RateLimitConfig{
		GeneralRate:         1,
		GeneralBurst:        2,
		IngestRate:          1,
		IngestBurst:         1,
		CleanupInterval:     time.Minute,
		InactivityThreshold: time.Minute,
	}

	rl := NewRateLimiter(cfg, rateLimitTestLogger())
	defer rl.Stop()

	h := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tenant := &model.Tenant{ID: "tenant-1"}
	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/stores", nil)
		req = req.WithContext(ContextWithTenant(req.Context(), tenant))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		statuses = append(statuses, w.Code)

		if w.Code == http.StatusTooManyRequests && w.Header().Get("Retry-After") == "" {
			t.Error("429 response should carry Retry-After")
		}
	}

	if statuses[0] != http.StatusOK || statuses[1] != http.StatusOK {
		t.Errorf("burst requests should pass, got %v", statuses)
	}
	if statuses[2] != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", statuses[2])
	}
}

func TestRateLimiter_TenantsAreIsolated(t *testing.T) {
	cfg := RateLimitConfig{
		GeneralRate:         1,
		GeneralBurst:        1,
		IngestRate:          1,
		IngestBurst:         1,
		CleanupInterval:     time.Minute,
		InactivityThreshold: time.Minute,
	}

	rl := NewRateLimiter(cfg, rateLimitTestLogger())
	defer rl.Stop()

	h := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// tenant-1 のバーストを使い切る
	req1 := httptest.NewRequest(http.MethodGet, "/v1/stores", nil)
	req1 = req1.WithContext(ContextWithTenant(req1.Context(), &model.Tenant{ID: "tenant-1"}))
	w1 := httptest.NewRecorder()
	h.ServeHTTP(w1, req1)

	// tenant-2 は独立したバケットを持つ
	req2 := httptest.NewRequest(http.MethodGet, "/v1/stores", nil)
	req2 = req2.WithContext(ContextWithTenant(req2.Context(), &model.Tenant{ID: "tenant-2"}))
	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, req2)

	if w2.Code != http.StatusOK {
		t.Errorf("tenant-2 status = %d, want 200 (buckets must be per-tenant)", w2.Code)
	}
}

func TestRateLimiter_FallsBackToRemoteIP(t *testing.T) {
	cfg := RateLimitConfig{
		GeneralRate:         1,
		GeneralBurst:        1,
		IngestRate:          1,
		IngestBurst:         1,
		CleanupInterval:     time.Minute,
		InactivityThreshold: time.Minute,
	}

	rl := NewRateLimiter(cfg, rateLimitTestLogger())
	defer rl.Stop()

	h := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// テナント未解決のリクエストはIP単位で制限される
	req1 := httptest.NewRequest(http.MethodGet, "/", nil)
	req1.RemoteAddr = "192.0.2.1:1234"
	w1 := httptest.NewRecorder()
	h.ServeHTTP(w1, req1)

	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	req2.RemoteAddr = "192.0.2.1:5678"
	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, req2)

	if w1.Code != http.StatusOK {
		t.Errorf("first request status = %d, want 200", w1.Code)
	}
	if w2.Code != http.StatusTooManyRequests {
		t.Errorf("second request from the same IP status = %d, want 429", w2.Code)
	}

	// 別IPは別バケット
	req3 := httptest.NewRequest(http.MethodGet, "/", nil)
	req3.RemoteAddr = "192.0.2.2:1234"
	w3 := httptest.NewRecorder()
	h.ServeHTTP(w3, req3)

	if w3.Code != http.StatusOK {
		t.Errorf("request from another IP status = %d, want 200", w3.Code)
	}
}

func TestRateLimiter_GeneralAndIngestAreSeparate(t *testing.T) {
	cfg := RateLimitConfig{
		GeneralRate:         1,
		GeneralBurst:        1,
		IngestRate:          50,
		IngestBurst:         100,
		CleanupInterval:     time.Minute,
		InactivityThreshold: time.Minute,
	}

	rl := NewRateLimiter(cfg, rateLimitTestLogger())
	defer rl.Stop()

	general := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	ingest := rl.IngestMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tenant := &model.Tenant{ID: "tenant-1"}

	// 一般系のバーストを使い切る
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/stores", nil)
		req = req.WithContext(ContextWithTenant(req.Context(), tenant))
		general.ServeHTTP(httptest.NewRecorder(), req)
	}

	// 受信系は影響を受けない
	req := httptest.NewRequest(http.MethodPost, "/v1/events", nil)
	req = req.WithContext(ContextWithTenant(req.Context(), tenant))
	w := httptest.NewRecorder()
	ingest.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("ingest status = %d, want 200 (limiter classes must be independent)", w.Code)
	}
}

func TestDefaultRateLimitConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()

	if cfg.GeneralRate != 10 {
		t.Errorf("GeneralRate = %v, want 10", cfg.GeneralRate)
	}
	if cfg.IngestRate != 50 {
		t.Errorf("IngestRate = %v, want 50", cfg.IngestRate)
	}
	if cfg.CleanupInterval <= 0 {
		t.Error("CleanupInterval should be positive")
	}
}
