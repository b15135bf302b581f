package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/smsfleet/smsfleet-api/internal/pkg/response"
)

// AdminSecret guards admin and worker-trigger routes with a shared bearer secret.
// Full authentication lives outside this service; callers of these routes are
// internal tooling with the deploy-time secret.
func AdminSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				response.InternalError(w)
				return
			}

			header := r.Header.Get("Authorization")
			token := ""
			if strings.HasPrefix(header, "Bearer ") {
				token = strings.TrimPrefix(header, "Bearer ")
			}

			if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				response.Unauthorized(w, "Invalid or missing admin token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
