package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/opalizer/internal/middleware"
	"github.com/hitoshi/opalizer/internal/model"
	"github.com/hitoshi/opalizer/internal/worker/events"
)

// EventEnqueuer はイベントハンドラーが必要とするディスパッチャーの
// インターフェース。
type EventEnqueuer interface {
	// Enqueue はタスクをキューに追加する。満杯時はfalseを返す。
	Enqueue(task *events.Task) bool
}

// EventHandler はビーコンイベント受信のHTTPハンドラー。
// 受信したイベントはバックグラウンドのディスパッチャーに引き渡し、
// 帰属処理の完了を待たずにレスポンスを返す。
type EventHandler struct {
	dispatcher EventEnqueuer
}

// NewEventHandler はEventHandlerを生成する。
func NewEventHandler(dispatcher EventEnqueuer) *EventHandler {
	return &EventHandler{dispatcher: dispatcher}
}

// ReceiveEvent はビーコンイベントを受信する。
// ペイロードの検証後すぐに202を返し、ジオフェンス判定・永続化・
// 住所注釈・インプレッション加算はワーカーが行う。キューが満杯の
// 場合もクライアントには202を返す（イベントはデッドレターに記録済み）。
// POST /v1/events
func (h *EventHandler) ReceiveEvent(w http.ResponseWriter, r *http.Request) {
	tenant, err := middleware.TenantFromContext(r.Context())
	if err != nil {
		slog.Error("テナントがコンテキストに存在しません", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	var payload model.BeaconPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "リクエストボディの解析に失敗しました")
		return
	}
	if payload.Latitude < -90 || payload.Latitude > 90 ||
		payload.Longitude < -180 || payload.Longitude > 180 {
		middleware.WriteError(w, http.StatusBadRequest, "座標が範囲外です")
		return
	}

	h.dispatcher.Enqueue(&events.Task{
		Tenant:  tenant,
		Payload: &payload,
	})

	middleware.WriteSuccess(w, http.StatusAccepted, nil)
}
