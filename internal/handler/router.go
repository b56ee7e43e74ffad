package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/opalizer/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TenantFinder  middleware.TenantFinder
	RateLimiter   *middleware.RateLimiter
	AdminUsername string
	AdminPassword string
	Logger        *slog.Logger
	StatusHook    middleware.StatusRecorderHook

	// システム
	AppName string
	DB      Pinger

	// サービス
	TenantService TenantServiceInterface
	StoreService  StoreServiceInterface
	Dispatcher    EventEnqueuer

	// /metrics エンドポイントのハンドラー
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	SecurityHeaders → CORS → Recovery → Logging → (BasicAuth | APIKey) → RateLimit
//
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.StatusHook))

	tenantHandler := NewTenantHandler(deps.TenantService)
	storeHandler := NewStoreHandler(deps.StoreService)
	eventHandler := NewEventHandler(deps.Dispatcher)
	systemHandler := NewSystemHandler(deps.AppName, deps.DB)

	// --- 認証不要のルート ---

	r.With(deps.RateLimiter.GeneralMiddleware()).Get("/", systemHandler.AppInfo)
	r.With(deps.RateLimiter.GeneralMiddleware()).Get("/ip", systemHandler.ClientIP)
	r.Get("/health", systemHandler.Health)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- 管理者Basic認証のルート ---

	r.Route("/v1/tenants", func(r chi.Router) {
		r.Use(middleware.NewBasicAuthMiddleware(deps.AdminUsername, deps.AdminPassword))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/", tenantHandler.ListTenants)
		r.Post("/", tenantHandler.CreateTenant)
		r.Get("/{name}", tenantHandler.GetTenant)
		r.Delete("/{name}", tenantHandler.DeleteTenant)
	})

	// --- テナントAPIキー認証のルート ---

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAPIKeyMiddleware(deps.TenantFinder))

		// 店舗管理。作成はビーコン設定の一括投入を想定して
		// イベントと同じ高いレート上限を使う。
		r.Route("/v1/stores", func(r chi.Router) {
			r.With(deps.RateLimiter.GeneralMiddleware()).Get("/", storeHandler.ListStores)
			r.With(deps.RateLimiter.IngestMiddleware()).Post("/", storeHandler.CreateStore)
			r.With(deps.RateLimiter.GeneralMiddleware()).Get("/{id}", storeHandler.GetStore)
			r.With(deps.RateLimiter.GeneralMiddleware()).Delete("/{id}", storeHandler.DeleteStore)
		})

		// イベント受信（ビーコン向けに高いレート上限）
		r.With(deps.RateLimiter.IngestMiddleware()).Post("/v1/events", eventHandler.ReceiveEvent)
	})

	return r
}
