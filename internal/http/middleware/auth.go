package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKey string

const CallerKey contextKey = "caller"

// KeyResolver maps an inbound API key to a caller identity.
type KeyResolver interface {
	Resolve(ctx context.Context, key string) (caller string, ok bool)
}

// StaticKeys is a fixed key -> caller table, typically loaded from config.
type StaticKeys map[string]string

func (s StaticKeys) Resolve(_ context.Context, key string) (string, bool) {
	caller, ok := s[key]
	return caller, ok && key != ""
}

// CallerFrom returns the caller stored by RequireAPIKey, or "".
func CallerFrom(ctx context.Context) string {
	caller, _ := ctx.Value(CallerKey).(string)
	return caller
}

// RequireAPIKey rejects requests without a valid "Authorization: Api-Key <key>"
// header and stores the resolved caller in the request context.
func RequireAPIKey(keys KeyResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, ok := apiKey(r.Header.Get("Authorization"))
			if !ok {
				w.Header().Set("WWW-Authenticate", "Api-Key")
				writeError(w, http.StatusUnauthorized, "authentication credentials were not provided")
				return
			}
			caller, ok := keys.Resolve(r.Context(), key)
			if !ok {
				writeError(w, http.StatusForbidden, "invalid API key")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), CallerKey, caller)))
		})
	}
}

func apiKey(header string) (string, bool) {
	scheme, key, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Api-Key") {
		return "", false
	}
	key = strings.TrimSpace(key)
	return key, key != ""
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
