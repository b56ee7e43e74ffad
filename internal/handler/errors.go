package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/opalizer/internal/middleware"
	"github.com/hitoshi/opalizer/internal/model"
	"github.com/hitoshi/opalizer/internal/store"
)

// handleServiceError はサービス層のエラーをHTTPレスポンスに変換する。
// 型付きエラーはそれぞれ対応するステータスコードへ、それ以外は
// 詳細をログに残して一般的な500を返す。
func handleServiceError(w http.ResponseWriter, err error) {
	var nameNotAvailable *model.TenantNameNotAvailableError
	if errors.As(err, &nameNotAvailable) {
		middleware.WriteError(w, http.StatusConflict, nameNotAvailable.Error())
		return
	}

	var storeNotAvailable *model.StoreNameNotAvailableError
	if errors.As(err, &storeNotAvailable) {
		middleware.WriteError(w, http.StatusConflict, storeNotAvailable.Error())
		return
	}

	var reserved *model.ReservedSchemaError
	if errors.As(err, &reserved) {
		middleware.WriteError(w, http.StatusConflict, reserved.Error())
		return
	}

	var dependent *model.DependentObjectsExistError
	if errors.As(err, &dependent) {
		middleware.WriteError(w, http.StatusConflict, dependent.Error())
		return
	}

	var geocodeUnavailable *model.GeocodeUnavailableError
	if errors.As(err, &geocodeUnavailable) {
		middleware.WriteError(w, http.StatusBadGateway, "ジオコーディングサービスが一時的に利用できません")
		return
	}

	if errors.Is(err, store.ErrAddressNotResolved) {
		middleware.WriteError(w, http.StatusBadRequest, store.ErrAddressNotResolved.Error())
		return
	}

	slog.Error("リクエスト処理に失敗しました", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}
