// Package middleware はHTTPミドルウェアとレスポンスエンベロープを提供する。
package middleware

import (
	"encoding/json"
	"net/http"
)

// RequestStatus はレスポンスエンベロープのstatusフィールドの値。
type RequestStatus string

const (
	// StatusSuccess は成功レスポンス。
	StatusSuccess RequestStatus = "success"
	// StatusError はエラーレスポンス。
	StatusError RequestStatus = "error"
)

// Envelope は全APIエンドポイント共通のレスポンスフォーマット。
// 成功時はvalueにペイロード（またはnull）、エラー時はerrorにメッセージを載せる。
type Envelope struct {
	Status RequestStatus `json:"status"`
	Value  any           `json:"value"`
	Error  string        `json:"error,omitempty"`
}

// WriteSuccess は成功エンベロープを書き込む。valueはnilでもよい。
func WriteSuccess(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(Envelope{
		Status: StatusSuccess,
		Value:  value,
	})
}

// WriteError はエラーエンベロープを書き込む。
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(Envelope{
		Status: StatusError,
		Value:  nil,
		Error:  message,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、クライアントには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteError(w, http.StatusInternalServerError, "Internal error")
}
