// Package tenant manages API clients: their keys, webhook settings and
// permissions.
package tenant

import (
	"log/slog"

	"verity/internal/tenant/handler"
	"verity/internal/tenant/metrics"
	"verity/internal/tenant/service"
)

// Service exposes client authentication and management.
type Service = service.Service

// Handler wires HTTP endpoints to the tenant service.
type Handler = handler.Handler

// NewService constructs the tenant service with its metrics and logger.
func NewService(store service.Store, m *metrics.Metrics, logger *slog.Logger) *Service {
	return service.New(store, service.WithMetrics(m), service.WithLogger(logger))
}

// NewHandler constructs an HTTP handler for the admin client routes.
func NewHandler(s *Service, logger *slog.Logger) *Handler {
	return handler.New(s, logger)
}
