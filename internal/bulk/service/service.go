// Package service applies one reviewer decision to many cases.
//
// Items are isolated from each other: each runs its own conditional
// transition, transient storage errors are retried per item, and a failed
// item never aborts the batch. Results come back in input order.
package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"verity/internal/bulk/metrics"
	casemodels "verity/internal/cases/models"
	caseservice "verity/internal/cases/service"
	dErrors "verity/pkg/domain-errors"
	"verity/pkg/platform/sentinel"
	"verity/pkg/requestcontext"
)

const (
	DefaultMaxItems    = 50
	DefaultConcurrency = 8
)

// DefaultRetryBackoff is the wait before each retry of a transient failure;
// its length is the retry count.
var DefaultRetryBackoff = []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}

// Decider applies a decision to one case.
type Decider interface {
	Decide(ctx context.Context, caseID string, d caseservice.Decision) (*casemodels.Case, error)
}

// Request is a bulk decision.
type Request struct {
	CaseIDs  []string
	Decision casemodels.Status
	Reason   string
	Code     string
	Notes    string
}

// ItemResult is the outcome for one case.
type ItemResult struct {
	CaseID    string `json:"caseId"`
	Success   bool   `json:"success"`
	Status    string `json:"status,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"errorCode,omitempty"`
	Attempts  int    `json:"attempts"`
}

type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Result is the outcome of a bulk decision.
type Result struct {
	BulkOperationID string       `json:"bulkOperationId"`
	Decision        string       `json:"decision"`
	Results         []ItemResult `json:"results"`
	Summary         Summary      `json:"summary"`
}

// Service runs bulk decisions.
type Service struct {
	decider     Decider
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	maxItems    int
	concurrency int
	backoff     []time.Duration
	sleep       func(time.Duration)
	newID       func() string
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

func WithMaxItems(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxItems = n
		}
	}
}

func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithRetryBackoff replaces the transient retry schedule.
func WithRetryBackoff(backoff ...time.Duration) Option {
	return func(s *Service) {
		s.backoff = backoff
	}
}

// WithSleep replaces the wait between retries.
func WithSleep(sleep func(time.Duration)) Option {
	return func(s *Service) {
		s.sleep = sleep
	}
}

func New(decider Decider, opts ...Option) *Service {
	s := &Service{
		decider:     decider,
		logger:      slog.Default(),
		tracer:      otel.Tracer("verity/bulk"),
		maxItems:    DefaultMaxItems,
		concurrency: DefaultConcurrency,
		backoff:     DefaultRetryBackoff,
		sleep:       time.Sleep,
		newID:       func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate checks the request before any item is touched. Blank and
// repeated ids are not request errors; they fail as items in Decide.
func (s *Service) Validate(req *Request) error {
	if req.Decision != casemodels.StatusApproved && req.Decision != casemodels.StatusRejected {
		return dErrors.New(dErrors.CodeBadRequest, "bulk decision must be approved or rejected")
	}
	if len(req.CaseIDs) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one case id is required")
	}
	if len(req.CaseIDs) > s.maxItems {
		return dErrors.New(dErrors.CodeValidation, "too many case ids in one request")
	}
	for i, id := range req.CaseIDs {
		req.CaseIDs[i] = strings.TrimSpace(id)
	}
	if req.Decision == casemodels.StatusRejected && strings.TrimSpace(req.Reason) == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required when rejecting")
	}
	return nil
}

// Decide applies req to every case. It returns an error only when the
// request itself is invalid.
func (s *Service) Decide(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	req.CaseIDs = slices.Clone(req.CaseIDs)
	if err := s.Validate(&req); err != nil {
		return nil, err
	}

	opID := s.newID()
	ctx, span := s.tracer.Start(ctx, "bulk.Decide", trace.WithAttributes(
		attribute.String("bulk.operation_id", opID),
		attribute.String("bulk.decision", string(req.Decision)),
		attribute.Int("bulk.size", len(req.CaseIDs)),
	))
	defer span.End()

	decision := caseservice.Decision{
		Status:          req.Decision,
		Reason:          strings.TrimSpace(req.Reason),
		Code:            req.Code,
		Notes:           req.Notes,
		BulkOperationID: opID,
		BatchSize:       len(req.CaseIDs),
	}

	results := make([]ItemResult, len(req.CaseIDs))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, caseID := range req.CaseIDs {
		if caseID == "" {
			results[i] = ItemResult{Error: "case id is required", ErrorCode: string(dErrors.CodeValidation)}
			s.countItem("failed")
			continue
		}
		g.Go(func() error {
			results[i] = s.decideItem(ctx, caseID, decision)
			return nil
		})
	}
	_ = g.Wait()

	res := &Result{BulkOperationID: opID, Decision: string(req.Decision), Results: results}
	res.Summary.Total = len(results)
	for _, r := range results {
		if r.Success {
			res.Summary.Succeeded++
		} else {
			res.Summary.Failed++
		}
	}

	if s.metrics != nil {
		s.metrics.ObserveBatch(len(results), start)
		s.metrics.Operations.WithLabelValues(string(req.Decision), outcome(res.Summary)).Inc()
	}
	s.logger.InfoContext(ctx, "bulk decision completed",
		"bulk_operation_id", opID,
		"decision", req.Decision,
		"total", res.Summary.Total,
		"succeeded", res.Summary.Succeeded,
		"failed", res.Summary.Failed,
		"actor_id", requestcontext.ActorID(ctx),
		"request_id", requestcontext.RequestID(ctx),
	)
	return res, nil
}

func outcome(sum Summary) string {
	switch {
	case sum.Failed == 0:
		return "success"
	case sum.Succeeded == 0:
		return "failed"
	default:
		return "partial"
	}
}

func (s *Service) decideItem(ctx context.Context, caseID string, d caseservice.Decision) ItemResult {
	item := ItemResult{CaseID: caseID}
	for attempt := 0; ; attempt++ {
		item.Attempts = attempt + 1
		c, err := s.decider.Decide(ctx, caseID, d)
		if err == nil {
			item.Success = true
			item.Status = string(c.Status)
			s.countItem("succeeded")
			return item
		}
		if sentinel.IsTransient(err) && attempt < len(s.backoff) && ctx.Err() == nil {
			if s.metrics != nil {
				s.metrics.ItemRetries.Inc()
			}
			s.logger.WarnContext(ctx, "bulk item hit transient storage error, retrying",
				"case_id", caseID,
				"attempt", item.Attempts,
				"error", err,
			)
			s.sleep(s.backoff[attempt])
			continue
		}

		item.Error, item.ErrorCode = describe(err)
		s.countItem("failed")
		s.logger.InfoContext(ctx, "bulk item failed",
			"case_id", caseID,
			"attempts", item.Attempts,
			"error", err,
		)
		return item
	}
}

// describe renders a per-item failure. Internal details stay in the log.
func describe(err error) (string, string) {
	if sentinel.IsTransient(err) {
		return "storage temporarily unavailable; retries exhausted", string(dErrors.CodeTimeout)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "request ended before the case was decided", string(dErrors.CodeTimeout)
	}
	code := dErrors.CodeOf(err)
	if de, ok := dErrors.As(err); ok && code != dErrors.CodeInternal {
		return de.Message, string(code)
	}
	return "internal error", string(dErrors.CodeInternal)
}

func (s *Service) countItem(result string) {
	if s.metrics != nil {
		s.metrics.Items.WithLabelValues(result).Inc()
	}
}
