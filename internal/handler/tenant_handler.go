package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/opalizer/internal/middleware"
	"github.com/hitoshi/opalizer/internal/model"
)

// TenantServiceInterface はテナントハンドラーが必要とするサービスインターフェース。
type TenantServiceInterface interface {
	// Create は新しいテナントを作成し専用スキーマをプロビジョンする。
	Create(ctx context.Context, name string) (*model.Tenant, error)
	// GetByName は指定名のテナントを取得する。見つからない場合はnil。
	GetByName(ctx context.Context, name string) (*model.Tenant, error)
	// ListAll は全テナントを返す。
	ListAll(ctx context.Context) ([]*model.Tenant, error)
	// Delete はテナントとそのスキーマを削除する。
	Delete(ctx context.Context, name string, cascade bool) error
}

// TenantHandler はテナント管理のHTTPハンドラー。管理者Basic認証の
// 背後に配置される。
type TenantHandler struct {
	service TenantServiceInterface
}

// NewTenantHandler はTenantHandlerを生成する。
func NewTenantHandler(service TenantServiceInterface) *TenantHandler {
	return &TenantHandler{service: service}
}

// createTenantRequest はテナント作成リクエストのボディ。
type createTenantRequest struct {
	Name string `json:"name"`
}

// tenantResponse はテナント情報のAPIレスポンス。
// APIキーは管理者にのみ見えるこのサーフェスでだけ返す。
type tenantResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SchemaName string `json:"schema_name"`
	APIKey     string `json:"api_key"`
	CreatedAt  string `json:"created_at"`
}

func toTenantResponse(t *model.Tenant) *tenantResponse {
	return &tenantResponse{
		ID:         t.ID,
		Name:       t.Name,
		SchemaName: t.SchemaName,
		APIKey:     t.APIKey,
		CreatedAt:  t.CreatedAt.Format(time.RFC3339),
	}
}

// CreateTenant はテナント作成を処理する。
// POST /v1/tenants
func (h *TenantHandler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "リクエストボディの解析に失敗しました")
		return
	}
	if req.Name == "" {
		middleware.WriteError(w, http.StatusBadRequest, "テナント名が空です")
		return
	}

	tenant, err := h.service.Create(r.Context(), req.Name)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	middleware.WriteSuccess(w, http.StatusCreated, toTenantResponse(tenant))
}

// GetTenant はテナント詳細を取得する。見つからない場合もエラーにせず、
// valueをnullにした成功エンベロープを返す。
// GET /v1/tenants/{name}
func (h *TenantHandler) GetTenant(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	tenant, err := h.service.GetByName(r.Context(), name)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if tenant == nil {
		middleware.WriteSuccess(w, http.StatusOK, nil)
		return
	}

	middleware.WriteSuccess(w, http.StatusOK, toTenantResponse(tenant))
}

// ListTenants は全テナントの一覧を返す。
// GET /v1/tenants
func (h *TenantHandler) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.service.ListAll(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]*tenantResponse, 0, len(tenants))
	for _, t := range tenants {
		resp = append(resp, toTenantResponse(t))
	}

	middleware.WriteSuccess(w, http.StatusOK, resp)
}

// DeleteTenant はテナントを削除する。cascade=trueクエリパラメータで
// スキーマ内のオブジェクトごと削除する。依存オブジェクトが残っている
// RESTRICT削除は409を返し、何も削除されない。
// DELETE /v1/tenants/{name}
func (h *TenantHandler) DeleteTenant(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	cascade := r.URL.Query().Get("cascade") == "true"

	if err := h.service.Delete(r.Context(), name, cascade); err != nil {
		handleServiceError(w, err)
		return
	}

	middleware.WriteSuccess(w, http.StatusOK, nil)
}
