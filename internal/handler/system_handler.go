package handler

import (
	"context"
	"net"
	"net/http"

	"github.com/hitoshi/opalizer/internal/middleware"
)

// Pinger はヘルスチェックが必要とするデータベース接続のインターフェース。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// SystemHandler はアプリ情報・疎通確認系のHTTPハンドラー。
type SystemHandler struct {
	appName string
	db      Pinger
}

// NewSystemHandler はSystemHandlerを生成する。
func NewSystemHandler(appName string, db Pinger) *SystemHandler {
	return &SystemHandler{
		appName: appName,
		db:      db,
	}
}

// AppInfo はアプリケーション名を返す。
// GET /
func (h *SystemHandler) AppInfo(w http.ResponseWriter, r *http.Request) {
	middleware.WriteSuccess(w, http.StatusOK, map[string]string{
		"app_name": h.appName,
	})
}

// ClientIP は接続元IPアドレスをエコーする。ビーコンスクリプトの
// 疎通確認用。
// GET /ip
func (h *SystemHandler) ClientIP(w http.ResponseWriter, r *http.Request) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	middleware.WriteSuccess(w, http.StatusOK, map[string]string{
		"ip": host,
	})
}

// Health はデータベースへの疎通を確認する。
// GET /health
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	middleware.WriteSuccess(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
