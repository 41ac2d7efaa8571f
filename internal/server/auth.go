package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/yolsda-go/internal/logging"
)

// authRealm is advertised in WWW-Authenticate challenges.
const authRealm = `Bearer realm="yolsda"`

// authMiddleware guards the chat and conversation history routes with a
// shared API key sent as "Authorization: Bearer <key>". An empty apiKey
// leaves next unprotected; New warns about it once at startup.
//
// Rejections answer 401 with the same {"detail"} body as every other API
// error, so the web UI can show them. The presented token is never logged.
func authMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}
	want := []byte(apiKey)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		switch {
		case !ok:
			reject(w, r, authRealm, "missing bearer token", "Authentification requise")
		case subtle.ConstantTimeCompare([]byte(token), want) != 1:
			reject(w, r, authRealm+`, error="invalid_token"`, "invalid bearer token", "Clé d'API invalide")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// reject logs why a request was refused and writes the 401.
func reject(w http.ResponseWriter, r *http.Request, challenge, reason, detail string) {
	logging.FromContext(r.Context()).Warn("auth: "+reason,
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)
	w.Header().Set("WWW-Authenticate", challenge)
	writeError(w, r, http.StatusUnauthorized, detail)
}

// bearerToken returns the token of an "Authorization: Bearer <token>"
// header. The scheme is case-insensitive; ok is false when the header is
// absent, uses another scheme, or carries no token.
func bearerToken(r *http.Request) (token string, ok bool) {
	scheme, rest, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(rest)
	return token, token != ""
}
