package service

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"verity/internal/cases/models"
	dErrors "verity/pkg/domain-errors"
	"verity/pkg/platform/audit"
	"verity/pkg/platform/sentinel"
	"verity/pkg/requestcontext"
)

// UpdateStatus moves a case to newStatus and merges extra into it.
// CompletedAt follows the terminal flag of newStatus. Entering approved,
// rejected, resubmission_required or expired enqueues a webhook; enqueue
// failures are logged, never returned.
func (s *Service) UpdateStatus(ctx context.Context, caseID string, newStatus models.Status, extra models.Update) (*models.Case, error) {
	ctx, span := s.tracer.Start(ctx, "cases.UpdateStatus")
	defer span.End()
	span.SetAttributes(attribute.String("case.id", caseID), attribute.String("case.status", string(newStatus)))

	if !newStatus.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown status: "+string(newStatus))
	}
	c, err := s.load(ctx, caseID)
	if err != nil {
		return nil, err
	}
	from := c.Status
	updated, err := s.transition(ctx, c, newStatus, extra)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	s.emit(ctx, audit.Event{
		Action:   string(audit.EventCaseStatusChanged),
		CaseID:   updated.ID,
		ClientID: updated.ClientID,
		Decision: string(updated.Status),
		Reason:   fmt.Sprintf("%s -> %s", from, updated.Status),
		ActorID:  requestcontext.ActorID(ctx),
	})
	return updated, nil
}

// load reads a case, hiding cases owned by another client.
func (s *Service) load(ctx context.Context, caseID string) (*models.Case, error) {
	if caseID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "case ID required")
	}
	c, err := s.store.FindByID(ctx, caseID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "case not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load case")
	}
	if clientID := requestcontext.ClientID(ctx); clientID != "" && clientID != c.ClientID {
		return nil, dErrors.New(dErrors.CodeNotFound, "case not found")
	}
	return c, nil
}

// transition applies next to c and persists it conditioned on c's current
// status, then notifies.
func (s *Service) transition(ctx context.Context, c *models.Case, next models.Status, extra models.Update) (*models.Case, error) {
	from := c.Status
	if !from.CanTransitionTo(next) {
		s.recordRejected("not_allowed")
		if from.IsTerminal() {
			return nil, dErrors.New(dErrors.CodeConflict, fmt.Sprintf("case is already %s", from))
		}
		return nil, dErrors.New(dErrors.CodeConflict, fmt.Sprintf("cannot move case from %s to %s", from, next))
	}

	updated := c.Clone()
	updated.ApplyStatus(next, extra, requestcontext.Now(ctx))
	if err := s.store.UpdateIfStatus(ctx, updated, from); err != nil {
		return nil, s.writeError(err)
	}

	if s.metrics != nil {
		s.metrics.RecordTransition(string(next))
	}
	s.logger.InfoContext(ctx, "case status changed",
		"case_id", updated.ID,
		"client_id", updated.ClientID,
		"from", from,
		"to", next,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.notify(ctx, updated)
	return updated, nil
}

// writeError translates a failed conditional write. Transient storage
// errors stay in the chain so callers can retry them.
func (s *Service) writeError(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "case not found")
	case errors.Is(err, sentinel.ErrInvalidState):
		s.recordRejected("concurrent_update")
		return dErrors.Wrap(err, dErrors.CodeConflict, "case status changed concurrently")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update case")
	}
}

func (s *Service) recordRejected(reason string) {
	if s.metrics != nil {
		s.metrics.RecordRejectedTransition(reason)
	}
}

func (s *Service) notify(ctx context.Context, c *models.Case) {
	event, ok := c.Status.EventType()
	if !ok || s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, c, event); err != nil {
		if s.metrics != nil {
			s.metrics.NotifyFailures.Inc()
		}
		s.logger.ErrorContext(ctx, "failed to enqueue webhook",
			"case_id", c.ID,
			"client_id", c.ClientID,
			"event", event,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

// emit records an audit event. The status change it describes is already
// persisted, so failures are logged only.
func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to record audit event",
			"action", event.Action,
			"case_id", event.CaseID,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}
