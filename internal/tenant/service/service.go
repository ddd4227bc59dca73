// Package service authenticates API clients and serves their webhook
// configuration and permissions to the rest of the pipeline.
package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"verity/internal/tenant/metrics"
	"verity/internal/tenant/models"
	"verity/internal/tenant/secrets"
	dErrors "verity/pkg/domain-errors"
	"verity/pkg/platform/sentinel"
	"verity/pkg/requestcontext"
)

// Store persists clients.
type Store interface {
	Register(ctx context.Context, c *models.Client, cfg *models.WebhookConfig, permissions []string) error
	FindByAPIKeyID(ctx context.Context, keyID string) (*models.Client, error)
	WebhookConfig(ctx context.Context, clientID string) (*models.WebhookConfig, error)
	UpdateWebhookConfig(ctx context.Context, clientID string, cfg *models.WebhookConfig) error
	Permissions(ctx context.Context, clientID string) ([]string, error)
	SetActive(ctx context.Context, clientID string, active bool) error
}

var knownPermissions = []string{models.PermissionCasesDecide, models.PermissionCasesBulk}

// Service orchestrates client operations.
type Service struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures the Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New creates the service.
func New(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authenticate resolves an API key to its client ID. Every failure reads the
// same to the caller.
func (s *Service) Authenticate(ctx context.Context, apiKey string) (string, error) {
	start := time.Now()
	if s.metrics != nil {
		defer s.metrics.ObserveAuthenticate(start)
	}
	invalid := dErrors.New(dErrors.CodeUnauthorized, "invalid api key")

	keyID, secret, ok := secrets.SplitAPIKey(apiKey)
	if !ok {
		s.authFailed("malformed")
		return "", invalid
	}
	c, err := s.store.FindByAPIKeyID(ctx, keyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.authFailed("unknown_key")
			return "", invalid
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to load client")
	}
	if !c.Active {
		s.authFailed("inactive")
		return "", invalid
	}
	if err := secrets.Verify(secret, c.APIKeyHash); err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			s.authFailed("bad_secret")
			return "", invalid
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify api key")
	}
	return c.ID, nil
}

func (s *Service) authFailed(reason string) {
	if s.metrics != nil {
		s.metrics.IncrementAuthFailure(reason)
	}
}

// WebhookConfig returns the client's webhook settings.
func (s *Service) WebhookConfig(ctx context.Context, clientID string) (*models.WebhookConfig, error) {
	cfg, err := s.store.WebhookConfig(ctx, clientID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "client not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load webhook config")
	}
	return cfg, nil
}

// Permissions lists the permissions granted to a client.
func (s *Service) Permissions(ctx context.Context, clientID string) ([]string, error) {
	perms, err := s.store.Permissions(ctx, clientID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "client not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load permissions")
	}
	return perms, nil
}

// WebhookInput is the requested webhook configuration.
type WebhookInput struct {
	URL     string
	Secret  string
	Enabled bool
	Events  []string
}

func (in WebhookInput) build() (*models.WebhookConfig, error) {
	return models.NewWebhookConfig(in.URL, in.Secret, in.Enabled, in.Events)
}

// RegisterRequest registers a new API client.
type RegisterRequest struct {
	Name        string
	Webhook     *WebhookInput
	Permissions []string
}

// RegisterResult carries the API key; it is never retrievable again.
type RegisterResult struct {
	Client *models.Client
	APIKey string
}

// RegisterClient creates a client with a fresh API key.
func (s *Service) RegisterClient(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	start := time.Now()
	if s.metrics != nil {
		defer s.metrics.ObserveRegisterClient(start)
	}

	for _, p := range req.Permissions {
		if !slices.Contains(knownPermissions, p) {
			return nil, dErrors.New(dErrors.CodeValidation, "unknown permission: "+p)
		}
	}
	var cfg *models.WebhookConfig
	if req.Webhook != nil {
		built, err := req.Webhook.build()
		if err != nil {
			return nil, err
		}
		cfg = built
	}

	keyID, secret, full, err := secrets.NewAPIKey()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate api key")
	}
	hash, err := secrets.Hash(secret)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash api key")
	}
	c, err := models.NewClient(uuid.NewString(), req.Name, keyID, hash, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.store.Register(ctx, c, cfg, req.Permissions); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "client already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register client")
	}

	if s.metrics != nil {
		s.metrics.ClientsRegistered.Inc()
	}
	s.logger.InfoContext(ctx, "client registered",
		"client_id", c.ID,
		"api_key_id", c.APIKeyID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return &RegisterResult{Client: c, APIKey: full}, nil
}

// UpdateWebhook replaces a client's webhook configuration.
func (s *Service) UpdateWebhook(ctx context.Context, clientID string, in WebhookInput) (*models.WebhookConfig, error) {
	cfg, err := in.build()
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateWebhookConfig(ctx, clientID, cfg); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "client not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update webhook config")
	}
	s.logger.InfoContext(ctx, "client webhook updated",
		"client_id", clientID,
		"enabled", cfg.Enabled,
		"events", cfg.Events,
		"request_id", requestcontext.RequestID(ctx),
	)
	return cfg, nil
}

// SetActive enables or disables a client. A disabled client's API key stops
// authenticating immediately.
func (s *Service) SetActive(ctx context.Context, clientID string, active bool) error {
	if err := s.store.SetActive(ctx, clientID, active); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeNotFound, "client not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update client")
	}
	s.logger.InfoContext(ctx, "client activation changed",
		"client_id", clientID,
		"active", active,
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}
