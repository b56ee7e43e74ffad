package middleware

import (
	"crypto/subtle"
	"net/http"
)

// NewBasicAuthMiddleware はテナント管理APIを保護するHTTP Basic認証
// ミドルウェアを返す。資格情報の比較はタイミング攻撃を避けるため
// 定数時間で行う。認証失敗時はWWW-Authenticateヘッダー付きの401を返す。
func NewBasicAuthMiddleware(username, password string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()

			usernameMatch := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
			passwordMatch := subtle.ConstantTimeCompare([]byte(pass), []byte(password)) == 1

			if !ok || !usernameMatch || !passwordMatch {
				w.Header().Set("WWW-Authenticate", `Basic realm="opalizer admin"`)
				WriteError(w, http.StatusUnauthorized, "Incorrect username or password")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
