// Package service delivers signed webhooks with bounded retry.
//
// A send loads the client's webhook settings, builds the event payload, signs
// it and POSTs it. 2xx ends the chain, 4xx ends it without retry, and 5xx,
// timeouts and network errors are retried on a fixed delay schedule. Every
// attempt is appended to the attempt store.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	casemodels "verity/internal/cases/models"
	tenantmodels "verity/internal/tenant/models"
	"verity/internal/webhook/metrics"
	"verity/internal/webhook/models"
	"verity/internal/webhook/payload"
	"verity/internal/webhook/signer"
	"verity/pkg/platform/audit"
)

const (
	DefaultMaxAttempts    = 3
	DefaultAttemptTimeout = 10 * time.Second
	UserAgent             = "Verity-Webhooks/1.0"
)

// DefaultRetryDelays is the wait before attempt n+1, indexed by n-1. Attempts
// past the end reuse the last delay.
var DefaultRetryDelays = []time.Duration{time.Second, 5 * time.Second, 15 * time.Second}

// ErrAbandoned is returned when every attempt failed or the receiver rejected
// the payload.
var ErrAbandoned = errors.New("webhook delivery abandoned")

// ConfigSource loads a client's webhook settings.
type ConfigSource interface {
	WebhookConfig(ctx context.Context, clientID string) (*tenantmodels.WebhookConfig, error)
}

// AttemptStore appends delivery attempts.
type AttemptStore interface {
	Append(ctx context.Context, a *models.Attempt) error
}

// AuditPublisher records abandonment.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Doer sends HTTP requests; *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Result summarizes one send.
type Result struct {
	WebhookID string
	Skipped   bool
	Delivered bool
	Attempts  int
}

// Engine delivers webhooks.
type Engine struct {
	configs        ConfigSource
	attempts       AttemptStore
	auditor        AuditPublisher
	client         Doer
	logger         *slog.Logger
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	maxAttempts    int
	attemptTimeout time.Duration
	delays         []time.Duration
	sleep          func(time.Duration)
	now            func() time.Time
	newID          func() string
}

// Option configures the Engine.
type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(e *Engine) {
		e.auditor = p
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c Doer) Option {
	return func(e *Engine) {
		e.client = c
	}
}

func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

func WithAttemptTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.attemptTimeout = d
		}
	}
}

// WithRetryDelays replaces the delay schedule.
func WithRetryDelays(delays ...time.Duration) Option {
	return func(e *Engine) {
		if len(delays) > 0 {
			e.delays = delays
		}
	}
}

// WithSleep replaces the wait between attempts.
func WithSleep(sleep func(time.Duration)) Option {
	return func(e *Engine) {
		e.sleep = sleep
	}
}

// WithClock replaces the engine clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an Engine.
func New(configs ConfigSource, attempts AttemptStore, opts ...Option) *Engine {
	e := &Engine{
		configs:        configs,
		attempts:       attempts,
		client:         &http.Client{},
		logger:         slog.Default(),
		tracer:         otel.Tracer("verity/webhook"),
		maxAttempts:    DefaultMaxAttempts,
		attemptTimeout: DefaultAttemptTimeout,
		delays:         DefaultRetryDelays,
		sleep:          time.Sleep,
		now:            time.Now,
		newID:          func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Send delivers eventType for c. A disabled, unconfigured or unsubscribed
// client is a skip, not an error.
func (e *Engine) Send(ctx context.Context, c *casemodels.Case, eventType string) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "webhook.Send",
		trace.WithAttributes(
			attribute.String("case.id", c.ID),
			attribute.String("webhook.event", eventType),
		),
	)
	defer span.End()

	cfg, err := e.configs.WebhookConfig(ctx, c.ClientID)
	if err != nil {
		return nil, fmt.Errorf("load webhook config for client %s: %w", c.ClientID, err)
	}
	target := *cfg
	if c.WebhookURL != "" {
		target.URL = c.WebhookURL
	}
	if reason, skip := skipReason(&target, eventType); skip {
		e.logger.InfoContext(ctx, "webhook skipped",
			"case_id", c.ID,
			"client_id", c.ClientID,
			"event", eventType,
			"reason", reason,
		)
		if e.metrics != nil {
			e.metrics.Skipped.WithLabelValues(reason).Inc()
		}
		return &Result{Skipped: true}, nil
	}

	sentAt := e.now()
	body, err := payload.Marshal(c, eventType, sentAt)
	if err != nil {
		return nil, fmt.Errorf("encode webhook payload: %w", err)
	}
	d := &delivery{
		webhookID: e.newID(),
		c:         c,
		event:     eventType,
		url:       target.URL,
		body:      body,
		ts:        sentAt.Unix(),
		signature: signer.Sign(target.Secret, sentAt.Unix(), body),
	}
	span.SetAttributes(attribute.String("webhook.id", d.webhookID))
	return e.deliver(ctx, d)
}

func skipReason(cfg *tenantmodels.WebhookConfig, event string) (string, bool) {
	switch {
	case !cfg.Enabled:
		return "disabled", true
	case cfg.URL == "":
		return "no_url", true
	case cfg.Secret == "":
		return "no_secret", true
	case !cfg.Subscribed(event):
		return "not_subscribed", true
	}
	return "", false
}

type delivery struct {
	webhookID string
	c         *casemodels.Case
	event     string
	url       string
	body      []byte
	ts        int64
	signature string
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeClientError
	outcomeRetryable
)

func (e *Engine) deliver(ctx context.Context, d *delivery) (*Result, error) {
	res := &Result{WebhookID: d.webhookID}
	var last *models.Attempt
	for n := 1; n <= e.maxAttempts; n++ {
		res.Attempts = n
		a, out := e.attempt(ctx, d, n)
		last = a

		switch out {
		case outcomeSuccess:
			e.record(ctx, a)
			e.finish(d.event, "delivered", n)
			res.Delivered = true
			e.logger.InfoContext(ctx, "webhook delivered",
				"webhook_id", d.webhookID,
				"case_id", d.c.ID,
				"event", d.event,
				"attempt", n,
				"status_code", a.StatusCode,
			)
			return res, nil
		case outcomeClientError:
			a.Abandoned = true
			e.record(ctx, a)
			e.finish(d.event, "rejected", n)
			reason := "receiver rejected the payload with " + strconv.Itoa(a.StatusCode)
			if a.StatusCode == 0 {
				reason = "request could not be built: " + a.Error
			}
			e.abandon(ctx, d, a, reason)
			return res, fmt.Errorf("%w: %s", ErrAbandoned, reason)
		}

		if n == e.maxAttempts {
			break
		}
		delay := e.delay(n)
		next := a.CreatedAt.Add(delay)
		a.NextRetryAt = &next
		e.record(ctx, a)
		e.logger.WarnContext(ctx, "webhook attempt failed, retrying",
			"webhook_id", d.webhookID,
			"case_id", d.c.ID,
			"event", d.event,
			"attempt", n,
			"status_code", a.StatusCode,
			"error", a.Error,
			"retry_in", delay,
		)
		e.sleep(delay)
	}

	last.Abandoned = true
	e.record(ctx, last)
	e.finish(d.event, "abandoned", res.Attempts)
	e.abandon(ctx, d, last, fmt.Sprintf("failed after %d attempts", res.Attempts))
	return res, fmt.Errorf("%w after %d attempts", ErrAbandoned, res.Attempts)
}

func (e *Engine) delay(attempt int) time.Duration {
	i := attempt - 1
	if i >= len(e.delays) {
		i = len(e.delays) - 1
	}
	return e.delays[i]
}

// attempt performs one POST. The returned attempt is not yet recorded.
func (e *Engine) attempt(ctx context.Context, d *delivery, n int) (*models.Attempt, outcome) {
	start := e.now()
	a := &models.Attempt{
		WebhookID:     d.webhookID,
		AttemptNumber: n,
		CaseID:        d.c.ID,
		ClientID:      d.c.ClientID,
		EventType:     d.event,
		URL:           d.url,
		CreatedAt:     start,
	}

	actx, cancel := context.WithTimeout(ctx, e.attemptTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(actx, http.MethodPost, d.url, bytes.NewReader(d.body))
	if err != nil {
		a.Error = err.Error()
		a.FailedAt = &start
		return a, outcomeClientError
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set(signer.HeaderEvent, d.event)
	req.Header.Set(signer.HeaderID, d.webhookID)
	req.Header.Set(signer.HeaderTimestamp, strconv.FormatInt(d.ts, 10))
	req.Header.Set(signer.HeaderSignature, d.signature)

	resp, err := e.client.Do(req)
	if e.metrics != nil {
		e.metrics.AttemptDuration.Observe(time.Since(start).Seconds())
	}
	ended := e.now()
	if err != nil {
		a.Error = err.Error()
		a.FailedAt = &ended
		e.countAttempt("network_error")
		return a, outcomeRetryable
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, models.MaxResponseBody+4))
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	a.StatusCode = resp.StatusCode
	a.ResponseBody = models.TruncateBody(raw)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		a.DeliveredAt = &ended
		e.countAttempt("success")
		return a, outcomeSuccess
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		a.FailedAt = &ended
		e.countAttempt("client_error")
		return a, outcomeClientError
	default:
		a.FailedAt = &ended
		e.countAttempt("server_error")
		return a, outcomeRetryable
	}
}

func (e *Engine) record(ctx context.Context, a *models.Attempt) {
	if err := e.attempts.Append(ctx, a); err != nil {
		e.logger.ErrorContext(ctx, "failed to record webhook attempt",
			"webhook_id", a.WebhookID,
			"attempt", a.AttemptNumber,
			"error", err,
		)
		if e.metrics != nil {
			e.metrics.RecordFailures.Inc()
		}
	}
}

func (e *Engine) abandon(ctx context.Context, d *delivery, last *models.Attempt, reason string) {
	e.logger.ErrorContext(ctx, "webhook delivery abandoned",
		"webhook_id", d.webhookID,
		"case_id", d.c.ID,
		"client_id", d.c.ClientID,
		"event", d.event,
		"attempts", last.AttemptNumber,
		"status_code", last.StatusCode,
		"error", last.Error,
		"reason", reason,
	)
	if e.auditor == nil {
		return
	}
	err := e.auditor.Emit(ctx, audit.Event{
		CaseID:   d.c.ID,
		ClientID: d.c.ClientID,
		Action:   string(audit.EventWebhookAbandoned),
		Decision: d.event,
		Reason:   reason,
	})
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to audit webhook abandonment",
			"webhook_id", d.webhookID,
			"error", err,
		)
	}
}

func (e *Engine) countAttempt(outcome string) {
	if e.metrics != nil {
		e.metrics.Attempts.WithLabelValues(outcome).Inc()
	}
}

func (e *Engine) finish(event, result string, attempts int) {
	if e.metrics != nil {
		e.metrics.Deliveries.WithLabelValues(event, result).Inc()
		e.metrics.AttemptsPerSend.Observe(float64(attempts))
	}
}
