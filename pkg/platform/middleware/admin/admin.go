// Package admin guards operator routes (client registration, expiry sweeps).
package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	dErrors "verity/pkg/domain-errors"
	"verity/pkg/platform/httputil"
	"verity/pkg/requestcontext"
)

const (
	HeaderAdminToken = "X-Admin-Token"
	// HeaderOperator names the operator for audit attribution.
	HeaderOperator = "X-Operator-Id"

	operatorFallback = "admin"
)

// RequireAdminToken compares X-Admin-Token against expectedToken in constant
// time. An empty expected token disables the routes.
func RequireAdminToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := r.Header.Get(HeaderAdminToken)
			if expectedToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
				logger.WarnContext(ctx, "admin token rejected",
					"request_id", requestcontext.RequestID(ctx),
					"path", r.URL.Path,
					"token_present", token != "",
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "admin token required"))
				return
			}

			operator := strings.TrimSpace(r.Header.Get(HeaderOperator))
			if operator == "" {
				operator = operatorFallback
			}
			ctx = requestcontext.WithActorID(ctx, operator)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
