package middleware

import (
	"net/http"
	"strings"

	"github.com/mediafirewall/persona-voice/internal/service/auth"
	"github.com/mediafirewall/persona-voice/pkg/utils"
)

// Authenticate resolves the bearer token (or the "token" query parameter used by
// WebSocket upgrades) into an auth.Context on the request context.
func Authenticate(svc *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				utils.RespondRedirect(w, http.StatusUnauthorized, "authentication required", auth.HomeLogin)
				return
			}
			ac, ok := svc.Resolve(token)
			if !ok {
				utils.RespondRedirect(w, http.StatusUnauthorized, "session expired", auth.HomeLogin)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithContext(r.Context(), token, ac)))
		})
	}
}

// RequireRole rejects contexts of any other role and points them at their own home screen.
func RequireRole(role auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, ok := auth.FromContext(r.Context())
			if !ok {
				utils.RespondRedirect(w, http.StatusUnauthorized, "authentication required", auth.HomeLogin)
				return
			}
			if ac.Role != role {
				utils.RespondRedirect(w, http.StatusForbidden, "not available for "+string(ac.Role)+" accounts", ac.Home())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
