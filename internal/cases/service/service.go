// Package service implements the verification case lifecycle: idempotent
// creation, document processing, reviewer decisions and expiry. Every status
// change goes through one conditional write; webhook notification and audit
// are layered on top and never undo a persisted transition.
package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks -exclude_interfaces=SessionIssuer,Extractor,FieldValidator

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"verity/internal/cases/metrics"
	"verity/internal/cases/models"
	"verity/internal/extraction"
	"verity/internal/validation"
	"verity/pkg/platform/audit"
)

const (
	// DefaultCaseTTL bounds how long a case stays open.
	DefaultCaseTTL = 7 * 24 * time.Hour
	// DefaultSessionTTL bounds the capture session token.
	DefaultSessionTTL = time.Hour

	defaultReservationWait = 2 * time.Second
	reservationPoll        = 50 * time.Millisecond
)

// Store persists cases. UpdateIfStatus must be a compare-and-swap on the
// stored status, returning sentinel.ErrInvalidState when it moved and
// sentinel.ErrNotFound when the case is missing.
type Store interface {
	Create(ctx context.Context, c *models.Case) error
	FindByID(ctx context.Context, id string) (*models.Case, error)
	UpdateIfStatus(ctx context.Context, c *models.Case, expected models.Status) error
	ListExpirable(ctx context.Context, now time.Time, limit int) ([]*models.Case, error)
}

// IdempotencyGuard reserves client idempotency keys.
type IdempotencyGuard interface {
	Check(ctx context.Context, clientID, key string) (caseID string, found bool, err error)
	Store(ctx context.Context, clientID, key, caseID string) error
	Release(ctx context.Context, clientID, key string)
}

// Notifier hands a webhook job to the delivery pipeline.
type Notifier interface {
	Notify(ctx context.Context, c *models.Case, eventType string) error
}

// AuditPublisher records audit events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// SessionIssuer signs capture session tokens.
type SessionIssuer interface {
	Issue(caseID, clientID string, now, expiresAt time.Time) (string, error)
}

// Extractor converts OCR blocks into fields.
type Extractor interface {
	Extract(documentType string, blocks []extraction.OCRBlock) extraction.Result
}

// FieldValidator applies jurisdiction rules to extracted fields.
type FieldValidator interface {
	Validate(documentType string, fields map[string]string, now time.Time) validation.Result
}

// Service orchestrates case operations.
type Service struct {
	store      Store
	guard      IdempotencyGuard
	notifier   Notifier
	auditor    AuditPublisher
	sessions   SessionIssuer
	extractor  Extractor
	validator  FieldValidator
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	caseTTL    time.Duration
	sessionTTL time.Duration
	sdkBaseURL string
	newID      func() string
	// reservationWait bounds how long a losing create waits for the winner's case.
	reservationWait time.Duration
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

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = p
	}
}

func WithSessionIssuer(issuer SessionIssuer) Option {
	return func(s *Service) {
		s.sessions = issuer
	}
}

// WithExtractor replaces the built-in extraction engine.
func WithExtractor(e Extractor) Option {
	return func(s *Service) {
		s.extractor = e
	}
}

// WithFieldValidator replaces the built-in field validator.
func WithFieldValidator(v FieldValidator) Option {
	return func(s *Service) {
		s.validator = v
	}
}

// WithCaseTTL sets how long new cases stay open.
func WithCaseTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.caseTTL = ttl
		}
	}
}

// WithSessionTTL caps capture session lifetime; a session never outlives its case.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

// WithSDKBaseURL sets the capture link prefix returned on creation.
func WithSDKBaseURL(url string) Option {
	return func(s *Service) {
		s.sdkBaseURL = url
	}
}

// WithIDGenerator overrides case ID generation (tests).
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

// WithReservationWait bounds the wait for a concurrent creator's case.
func WithReservationWait(d time.Duration) Option {
	return func(s *Service) {
		s.reservationWait = d
	}
}

// New wires the service. Extraction and validation default to the built-in
// engines.
func New(store Store, guard IdempotencyGuard, notifier Notifier, opts ...Option) *Service {
	s := &Service{
		store:           store,
		guard:           guard,
		notifier:        notifier,
		extractor:       extraction.NewEngine(),
		validator:       validation.NewValidator(),
		logger:          slog.Default(),
		tracer:          otel.Tracer("verity/cases"),
		caseTTL:         DefaultCaseTTL,
		sessionTTL:      DefaultSessionTTL,
		newID:           newCaseID,
		reservationWait: defaultReservationWait,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
