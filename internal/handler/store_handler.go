package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/opalizer/internal/middleware"
	"github.com/hitoshi/opalizer/internal/model"
	"github.com/hitoshi/opalizer/internal/store"
)

// StoreServiceInterface は店舗ハンドラーが必要とするサービスインターフェース。
// 全操作は解決済みテナントのスキーマ内で実行される。
type StoreServiceInterface interface {
	Create(ctx context.Context, tenant *model.Tenant, input *store.CreateInput) (*model.Store, error)
	GetByID(ctx context.Context, tenant *model.Tenant, id string) (*model.Store, error)
	ListAll(ctx context.Context, tenant *model.Tenant) ([]*model.Store, error)
	Delete(ctx context.Context, tenant *model.Tenant, id string) error
}

// StoreHandler は店舗管理のHTTPハンドラー。APIキーミドルウェアの
// 背後に配置される。
type StoreHandler struct {
	service StoreServiceInterface
}

// NewStoreHandler はStoreHandlerを生成する。
func NewStoreHandler(service StoreServiceInterface) *StoreHandler {
	return &StoreHandler{service: service}
}

// createStoreRequest は店舗作成リクエストのボディ。住所は自由記述で
// 受け取り、サーバー側でジオコーディングする。
type createStoreRequest struct {
	Name      string  `json:"name"`
	Owner     string  `json:"owner"`
	Address   string  `json:"address"`
	Apartment string  `json:"apartment"`
	City      string  `json:"city"`
	State     string  `json:"state"`
	Country   string  `json:"country"`
	ZipCode   string  `json:"zip_code"`
	RadiusM   float64 `json:"radius_m"`
}

// storeResponse は店舗情報のAPIレスポンス。
type storeResponse struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Owner     string  `json:"owner"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	RadiusM   float64 `json:"radius_m"`
	CreatedAt string  `json:"created_at"`
}

func toStoreResponse(s *model.Store) *storeResponse {
	return &storeResponse{
		ID:        s.ID,
		Name:      s.Name,
		Owner:     s.Owner,
		Latitude:  s.Latitude,
		Longitude: s.Longitude,
		RadiusM:   s.RadiusM,
		CreatedAt: s.CreatedAt.Format(time.RFC3339),
	}
}

// CreateStore は店舗作成を処理する。
// POST /v1/stores
func (h *StoreHandler) CreateStore(w http.ResponseWriter, r *http.Request) {
	tenant, err := middleware.TenantFromContext(r.Context())
	if err != nil {
		slog.Error("テナントがコンテキストに存在しません", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	var req createStoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "リクエストボディの解析に失敗しました")
		return
	}
	if req.Name == "" {
		middleware.WriteError(w, http.StatusBadRequest, "店舗名が空です")
		return
	}
	if req.RadiusM <= 0 {
		middleware.WriteError(w, http.StatusBadRequest, "ジオフェンス半径は正の値が必要です")
		return
	}

	input := &store.CreateInput{
		Name:      req.Name,
		Owner:     req.Owner,
		Address:   req.Address,
		Apartment: req.Apartment,
		City:      req.City,
		State:     req.State,
		Country:   req.Country,
		ZipCode:   req.ZipCode,
		RadiusM:   req.RadiusM,
	}

	st, err := h.service.Create(r.Context(), tenant, input)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	middleware.WriteSuccess(w, http.StatusCreated, toStoreResponse(st))
}

// GetStore は店舗詳細を取得する。見つからない場合はvalueをnullにした
// 成功エンベロープを返す。
// GET /v1/stores/{id}
func (h *StoreHandler) GetStore(w http.ResponseWriter, r *http.Request) {
	tenant, err := middleware.TenantFromContext(r.Context())
	if err != nil {
		middleware.WriteInternalServerError(w)
		return
	}

	st, err := h.service.GetByID(r.Context(), tenant, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if st == nil {
		middleware.WriteSuccess(w, http.StatusOK, nil)
		return
	}

	middleware.WriteSuccess(w, http.StatusOK, toStoreResponse(st))
}

// ListStores はテナントの全店舗一覧を返す。
// GET /v1/stores
func (h *StoreHandler) ListStores(w http.ResponseWriter, r *http.Request) {
	tenant, err := middleware.TenantFromContext(r.Context())
	if err != nil {
		middleware.WriteInternalServerError(w)
		return
	}

	stores, err := h.service.ListAll(r.Context(), tenant)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]*storeResponse, 0, len(stores))
	for _, s := range stores {
		resp = append(resp, toStoreResponse(s))
	}

	middleware.WriteSuccess(w, http.StatusOK, resp)
}

// DeleteStore は店舗を削除する。
// DELETE /v1/stores/{id}
func (h *StoreHandler) DeleteStore(w http.ResponseWriter, r *http.Request) {
	tenant, err := middleware.TenantFromContext(r.Context())
	if err != nil {
		middleware.WriteInternalServerError(w)
		return
	}

	if err := h.service.Delete(r.Context(), tenant, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	middleware.WriteSuccess(w, http.StatusOK, nil)
}
