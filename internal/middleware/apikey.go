package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/opalizer/internal/model"
)

// apiKeyHeader は店舗/イベントAPIのテナントAPIキーを運ぶヘッダー。
const apiKeyHeader = "X-API-Key"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// tenantContextKey はリクエストコンテキストに解決済みテナントを
// 格納するためのキー。
var tenantContextKey = contextKey("tenant")

// TenantFinder はAPIキーからのテナント解決に必要なインターフェース。
// tenant.Serviceの部分集合として定義する。
type TenantFinder interface {
	GetByAPIKey(ctx context.Context, apiKey string) (*model.Tenant, error)
}

// NewAPIKeyMiddleware はX-API-Keyヘッダーからテナントを解決し、
// リクエストコンテキストに注入するミドルウェアを返す。
// 以降のすべての業務ロジックはこの解決済みテナントのスキーマ内でのみ
// 動作する。キーが無い・未知のリクエストには401を返す。
func NewAPIKeyMiddleware(finder TenantFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(apiKeyHeader)
			if key == "" {
				WriteError(w, http.StatusUnauthorized, "API key is required")
				return
			}

			tenant, err := finder.GetByAPIKey(r.Context(), key)
			if err != nil {
				slog.Error("failed to resolve tenant",
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}
			if tenant == nil {
				WriteError(w, http.StatusUnauthorized, "Invalid API key")
				return
			}

			ctx := context.WithValue(r.Context(), tenantContextKey, tenant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TenantFromContext はリクエストコンテキストから解決済みテナントを取得する。
// APIキーミドルウェアを通過したリクエストでのみ有効。
func TenantFromContext(ctx context.Context) (*model.Tenant, error) {
	tenant, ok := ctx.Value(tenantContextKey).(*model.Tenant)
	if !ok || tenant == nil {
		return nil, fmt.Errorf("tenant not found in context")
	}
	return tenant, nil
}

// ContextWithTenant はコンテキストにテナントを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithTenant(ctx context.Context, tenant *model.Tenant) context.Context {
	return context.WithValue(ctx, tenantContextKey, tenant)
}
