package service

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"verity/internal/cases/models"
	dErrors "verity/pkg/domain-errors"
	"verity/pkg/platform/audit"
	"verity/pkg/platform/middleware/device"
	"verity/pkg/platform/sentinel"
	"verity/pkg/requestcontext"
)

// Decision is a reviewer verdict on a case awaiting review.
type Decision struct {
	Status models.Status
	Reason string
	Code   string
	Notes  string
	// BulkOperationID and BatchSize are set when the decision is one item of
	// a bulk request.
	BulkOperationID string
	BatchSize       int
}

var decisionStatuses = map[models.Status]bool{
	models.StatusApproved:             true,
	models.StatusRejected:             true,
	models.StatusResubmissionRequired: true,
}

// Validate checks the decision independent of any case.
func (d Decision) Validate() error {
	if !decisionStatuses[d.Status] {
		return dErrors.New(dErrors.CodeBadRequest, "decision must be approved, rejected or resubmission_required")
	}
	if d.Status != models.StatusApproved && strings.TrimSpace(d.Reason) == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required when rejecting or requesting resubmission")
	}
	return nil
}

// Decide applies d to a case in pending_review or in_review. The write is
// conditioned on the status read, so two reviewers racing on one case
// cannot both win. A compliance audit entry and the webhook follow the
// write.
func (s *Service) Decide(ctx context.Context, caseID string, d Decision) (*models.Case, error) {
	ctx, span := s.tracer.Start(ctx, "cases.Decide")
	defer span.End()
	span.SetAttributes(attribute.String("case.id", caseID), attribute.String("decision", string(d.Status)))

	if err := d.Validate(); err != nil {
		return nil, err
	}
	c, err := s.load(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if !c.Status.IsReviewable() {
		s.recordRejected("not_reviewable")
		return nil, dErrors.Wrap(sentinel.ErrInvalidState, dErrors.CodeConflict,
			fmt.Sprintf("case is %s; only pending_review or in_review cases can be decided", c.Status))
	}

	update := models.Update{}
	if d.Status != models.StatusApproved {
		update.RejectionReason = strings.TrimSpace(d.Reason)
		update.RejectionCode = d.Code
	}
	updated, err := s.transition(ctx, c, d.Status, update)
	if err != nil {
		return nil, err
	}

	reason := d.Reason
	if d.Status == models.StatusApproved {
		reason = d.Notes
	}
	s.emit(ctx, audit.Event{
		Action:          string(decisionAction(d)),
		CaseID:          updated.ID,
		ClientID:        updated.ClientID,
		Decision:        string(d.Status),
		Reason:          reason,
		ActorID:         requestcontext.ActorID(ctx),
		Agent:           device.Summary(requestcontext.UserAgent(ctx)),
		BulkOperationID: d.BulkOperationID,
		BatchSize:       d.BatchSize,
	})
	return updated, nil
}

func decisionAction(d Decision) audit.AuditEvent {
	bulk := d.BulkOperationID != ""
	switch d.Status {
	case models.StatusApproved:
		if bulk {
			return audit.EventCaseBulkApproved
		}
		return audit.EventCaseApproved
	case models.StatusRejected:
		if bulk {
			return audit.EventCaseBulkRejected
		}
		return audit.EventCaseRejected
	default:
		return audit.EventCaseResubmissionReq
	}
}

// Approve approves a single case.
func (s *Service) Approve(ctx context.Context, caseID, notes string) (*models.Case, error) {
	return s.Decide(ctx, caseID, Decision{Status: models.StatusApproved, Notes: notes})
}

// Reject rejects a single case.
func (s *Service) Reject(ctx context.Context, caseID, reason, code string) (*models.Case, error) {
	return s.Decide(ctx, caseID, Decision{Status: models.StatusRejected, Reason: reason, Code: code})
}

// RequestResubmission asks the customer to capture documents again.
func (s *Service) RequestResubmission(ctx context.Context, caseID, reason string) (*models.Case, error) {
	return s.Decide(ctx, caseID, Decision{Status: models.StatusResubmissionRequired, Reason: reason})
}
