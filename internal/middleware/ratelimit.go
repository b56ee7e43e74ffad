package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig はレートリミッターの設定。
type RateLimitConfig struct {
	// GeneralRate は管理系・店舗系エンドポイントの秒間リクエスト数
	GeneralRate rate.Limit
	// GeneralBurst は一般エンドポイントのバーストサイズ
	GeneralBurst int
	// IngestRate はイベント受信エンドポイントの秒間リクエスト数
	IngestRate rate.Limit
	// IngestBurst は受信エンドポイントのバーストサイズ
	IngestBurst int
	// CleanupInterval は未使用リミッターの削除間隔
	CleanupInterval time.Duration
	// InactivityThreshold はリミッターを未使用と判定する閾値
	InactivityThreshold time.Duration
}

// DefaultRateLimitConfig はデフォルトのレートリミット設定を返す。
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		GeneralRate:         10,
		GeneralBurst:        20,
		IngestRate:          50,
		IngestBurst:         100,
		CleanupInterval:     10 * time.Minute,
		InactivityThreshold: 30 * time.Minute,
	}
}

// keyLimiter はキーごとのリミッターと最終アクセス時刻を保持する。
type keyLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter はテナント（未解決の場合は接続元IP）単位のトークンバケット制限を行う。
// 一般系と受信系で別々のリミッター群を持つ。
type RateLimiter struct {
	config   RateLimitConfig
	logger   *slog.Logger
	mu       sync.Mutex
	general  map[string]*keyLimiter
	ingest   map[string]*keyLimiter
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter はレートリミッターを生成し、クリーンアップループを開始する。
func NewRateLimiter(config RateLimitConfig, logger *slog.Logger) *RateLimiter {
	rl := &RateLimiter{
		config:  config,
		logger:  logger,
		general: make(map[string]*keyLimiter),
		ingest:  make(map[string]*keyLimiter),
		stopCh:  make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Stop はクリーンアップループを停止する。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCh)
	})
}

// cleanupLoop は一定間隔で未使用のリミッターを削除する。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup はInactivityThresholdを超えて未使用のリミッターを削除する。
func (rl *RateLimiter) cleanup() {
	cutoff := time.Now().Add(-rl.config.InactivityThreshold)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, kl := range rl.general {
		if kl.lastSeen.Before(cutoff) {
			delete(rl.general, key)
		}
	}
	for key, kl := range rl.ingest {
		if kl.lastSeen.Before(cutoff) {
			delete(rl.ingest, key)
		}
	}
}

// getLimiter はキーに対応するリミッターを取得または生成する。
func (rl *RateLimiter) getLimiter(limiters map[string]*keyLimiter, key string, r rate.Limit, burst int) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	kl, ok := limiters[key]
	if !ok {
		kl = &keyLimiter{
			limiter: rate.NewLimiter(r, burst),
		}
		limiters[key] = kl
	}
	kl.lastSeen = time.Now()
	return kl.limiter
}

// limitKey はレートリミットのキーを決定する。
// テナントが解決済みならテナントID、それ以外は接続元IPを使う。
func limitKey(r *http.Request) string {
	if tenant, err := TenantFromContext(r.Context()); err == nil {
		return "tenant:" + tenant.ID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}

// GeneralMiddleware は一般系エンドポイント向けのレートリミットミドルウェアを返す。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(func(key string) *rate.Limiter {
		return rl.getLimiter(rl.general, key, rl.config.GeneralRate, rl.config.GeneralBurst)
	})
}

// IngestMiddleware はイベント受信エンドポイント向けのレートリミットミドルウェアを返す。
func (rl *RateLimiter) IngestMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(func(key string) *rate.Limiter {
		return rl.getLimiter(rl.ingest, key, rl.config.IngestRate, rl.config.IngestBurst)
	})
}

func (rl *RateLimiter) middleware(pick func(key string) *rate.Limiter) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := limitKey(r)
			limiter := pick(key)

			if !limiter.Allow() {
				rl.logger.Warn("レートリミット超過",
					slog.String("key", key),
					slog.String("path", r.URL.Path))
				w.Header().Set("Retry-After", strconv.Itoa(1))
				WriteError(w, http.StatusTooManyRequests, "Too many requests")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
