package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"verity/internal/cases/models"
	dErrors "verity/pkg/domain-errors"
	"verity/pkg/mask"
	"verity/pkg/platform/audit"
	"verity/pkg/platform/sentinel"
	"verity/pkg/requestcontext"
)

// CreateRequest carries the validated input of a case creation.
type CreateRequest struct {
	ClientID       string
	Customer       models.Customer
	DocumentType   models.DocumentType
	RedirectURL    string
	WebhookURL     string
	Metadata       map[string]string
	IdempotencyKey string
}

// CreateResult is the created (or replayed) case with its capture session.
type CreateResult struct {
	Case         *models.Case
	SessionToken string
	SDKURL       string
	// Idempotent is set when the case already existed under the same key.
	Idempotent bool
}

func newCaseID() string {
	return uuid.NewString()
}

// Create opens a case. With an idempotency key, the key is reserved before
// the case is written; a request that loses the reservation race returns
// the winner's case instead of creating a second one.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	ctx, span := s.tracer.Start(ctx, "cases.Create")
	defer span.End()
	start := time.Now()
	if s.metrics != nil {
		defer s.metrics.ObserveCreate(start)
	}

	if req.ClientID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "client ID required")
	}
	if req.Customer.IsEmpty() {
		return nil, dErrors.New(dErrors.CodeValidation, "customer must include at least one of email, name or phone")
	}
	if req.DocumentType == "" {
		req.DocumentType = models.DocumentNationalID
	}
	key := strings.TrimSpace(req.IdempotencyKey)

	if key != "" {
		caseID, found, err := s.guard.Check(ctx, req.ClientID, key)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check idempotency key")
		}
		if found {
			return s.replay(ctx, caseID)
		}
	}

	now := requestcontext.Now(ctx)
	c := &models.Case{
		ID:           s.newID(),
		ClientID:     req.ClientID,
		DocumentType: req.DocumentType,
		Status:       models.StatusCreated,
		Customer:     req.Customer,
		RedirectURL:  req.RedirectURL,
		WebhookURL:   req.WebhookURL,
		Metadata:     req.Metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    now.Add(s.caseTTL),
	}
	span.SetAttributes(attribute.String("case.id", c.ID))

	if key != "" {
		if err := s.guard.Store(ctx, req.ClientID, key, c.ID); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return s.replayAfterConflict(ctx, req.ClientID, key)
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reserve idempotency key")
		}
	}

	if err := s.store.Create(ctx, c); err != nil {
		if key != "" {
			s.guard.Release(ctx, req.ClientID, key)
		}
		span.RecordError(err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create case")
	}

	if s.metrics != nil {
		s.metrics.CasesCreated.Inc()
	}
	s.logger.InfoContext(ctx, "case created",
		"case_id", c.ID,
		"client_id", c.ClientID,
		"document_type", c.DocumentType,
		"customer_email", mask.Email(c.Customer.Email),
		"request_id", requestcontext.RequestID(ctx),
	)
	s.emit(ctx, audit.Event{
		Action:   string(audit.EventCaseCreated),
		CaseID:   c.ID,
		ClientID: c.ClientID,
	})

	return s.result(c, now, false)
}

// replayAfterConflict resolves a lost reservation race: the winner's record
// is re-read. A winner that released its key (its create failed) is reported
// as a conflict the caller may retry.
func (s *Service) replayAfterConflict(ctx context.Context, clientID, key string) (*CreateResult, error) {
	caseID, found, err := s.guard.Check(ctx, clientID, key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check idempotency key")
	}
	if !found {
		return nil, dErrors.New(dErrors.CodeConflict, "a request with this idempotency key did not complete; retry")
	}
	return s.replay(ctx, caseID)
}

// replay returns the case reserved under an idempotency key, waiting briefly
// when the reservation is visible before the case row.
func (s *Service) replay(ctx context.Context, caseID string) (*CreateResult, error) {
	c, err := s.awaitCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IdempotentReplays.Inc()
	}
	s.logger.InfoContext(ctx, "idempotent create replayed",
		"case_id", c.ID,
		"client_id", c.ClientID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return s.result(c, requestcontext.Now(ctx), true)
}

func (s *Service) awaitCase(ctx context.Context, caseID string) (*models.Case, error) {
	deadline := time.Now().Add(s.reservationWait)
	for {
		c, err := s.store.FindByID(ctx, caseID)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load case")
		}
		if !time.Now().Before(deadline) {
			return nil, dErrors.New(dErrors.CodeConflict, "a request with this idempotency key is still in progress")
		}
		timer := time.NewTimer(reservationPoll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "request cancelled while waiting for case")
		case <-timer.C:
		}
	}
}

func (s *Service) result(c *models.Case, now time.Time, idempotent bool) (*CreateResult, error) {
	res := &CreateResult{
		Case:       c,
		SDKURL:     fmt.Sprintf("%s/v/%s", strings.TrimRight(s.sdkBaseURL, "/"), c.ID),
		Idempotent: idempotent,
	}
	if s.sessions != nil && c.IsOpen() {
		expiresAt := now.Add(s.sessionTTL)
		if c.ExpiresAt.Before(expiresAt) {
			expiresAt = c.ExpiresAt
		}
		token, err := s.sessions.Issue(c.ID, c.ClientID, now, expiresAt)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue session token")
		}
		res.SessionToken = token
	}
	return res, nil
}
