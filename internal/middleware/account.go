package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/smsfleet/smsfleet-api/internal/pkg/response"
)

type contextKey string

const accountIDKey contextKey = "account_id"

// AccountID extracts the caller's account id from the X-Account-Id header and
// stores it in the request context. Identity verification happens at the edge
// gateway; this service trusts the header it forwards.
func AccountID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID := strings.TrimSpace(r.Header.Get("X-Account-Id"))
		if accountID == "" {
			response.Unauthorized(w, "Missing account id")
			return
		}

		ctx := context.WithValue(r.Context(), accountIDKey, accountID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetAccountID returns the account id stored by AccountID middleware
func GetAccountID(ctx context.Context) string {
	if id, ok := ctx.Value(accountIDKey).(string); ok {
		return id
	}
	return ""
}
