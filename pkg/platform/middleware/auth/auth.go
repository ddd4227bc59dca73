package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"verity/pkg/requestcontext"
)

const (
	// HeaderAPIKey carries the client credential.
	HeaderAPIKey = "X-API-Key"
	// HeaderActorID optionally names the back-office reviewer acting for the client.
	HeaderActorID = "X-Actor-Id"
)

// APIKeyAuthenticator resolves an API key to the owning client ID.
type APIKeyAuthenticator interface {
	Authenticate(ctx context.Context, apiKey string) (string, error)
}

// PermissionChecker answers whether a client holds a named permission.
type PermissionChecker interface {
	Allowed(ctx context.Context, clientID, permission string) (bool, error)
}

// writeJSONError writes a JSON error response with the given status code and error details.
func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireAPIKey authenticates the X-API-Key header and stores the client
// (and optional actor) in the request context.
func RequireAPIKey(authenticator APIKeyAuthenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			apiKey := strings.TrimSpace(r.Header.Get(HeaderAPIKey))
			if apiKey == "" {
				logger.WarnContext(ctx, "unauthorized access - missing api key",
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing X-API-Key header")
				return
			}

			clientID, err := authenticator.Authenticate(ctx, apiKey)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid api key",
					"error", err,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid API key")
				return
			}

			ctx = requestcontext.WithClientID(ctx, clientID)
			if actor := strings.TrimSpace(r.Header.Get(HeaderActorID)); actor != "" {
				ctx = requestcontext.WithActorID(ctx, actor)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission rejects requests whose client lacks the permission.
// Must run after RequireAPIKey.
func RequirePermission(checker PermissionChecker, permission string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)
			clientID := requestcontext.ClientID(ctx)

			allowed, err := checker.Allowed(ctx, clientID, permission)
			if err != nil {
				logger.ErrorContext(ctx, "failed to evaluate permission",
					"error", err,
					"client_id", clientID,
					"permission", permission,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to evaluate permission")
				return
			}
			if !allowed {
				logger.WarnContext(ctx, "forbidden - missing permission",
					"client_id", clientID,
					"permission", permission,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusForbidden, "forbidden", "Missing permission "+permission)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SessionValidator verifies a capture session token.
type SessionValidator interface {
	ValidateSession(token string) (caseID, clientID string, err error)
}

// RequireSessionToken authenticates "Authorization: Bearer <session token>"
// for capture routes. The token's case must match the case ID caseIDFrom
// extracts from the request.
func RequireSessionToken(validator SessionValidator, caseIDFrom func(*http.Request) string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			header := r.Header.Get("Authorization")
			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || strings.TrimSpace(token) == "" {
				logger.WarnContext(ctx, "unauthorized access - missing session token",
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing session token")
				return
			}

			caseID, clientID, err := validator.ValidateSession(strings.TrimSpace(token))
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid session token",
					"error", err,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid session token")
				return
			}
			if want := caseIDFrom(r); want != "" && want != caseID {
				logger.WarnContext(ctx, "forbidden - session bound to another case",
					"case_id", want,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusForbidden, "forbidden", "Session does not grant access to this case")
				return
			}

			ctx = requestcontext.WithClientID(ctx, clientID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
