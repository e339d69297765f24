package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// TokenAuth rejects requests that do not carry token, either as
// "Authorization: Bearer <token>" or as a ?token= query parameter (browsers
// cannot set headers on websocket upgrades). An empty token disables the
// check. /healthz is always open.
func TokenAuth(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" || validToken(token, requestToken(r)) {
			next.ServeHTTP(w, r)
			return
		}
		http.Error(w, ErrUnauthorized.Error(), http.StatusUnauthorized)
	})
}

func requestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func validToken(want, got string) bool {
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}
