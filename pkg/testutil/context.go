package testutil

import (
	"net/http"
	"time"

	"verity/pkg/requestcontext"
)

// WithClient adds an authenticated client ID to the request context.
// This simulates what the API key middleware does for authenticated requests.
func WithClient(req *http.Request, clientID string) *http.Request {
	return req.WithContext(requestcontext.WithClientID(req.Context(), clientID))
}

// WithActor adds both client and reviewer identity to the request context.
func WithActor(req *http.Request, clientID, actorID string) *http.Request {
	ctx := requestcontext.WithClientID(req.Context(), clientID)
	ctx = requestcontext.WithActorID(ctx, actorID)
	return req.WithContext(ctx)
}

// WithTime pins the request-scoped clock.
func WithTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}
