package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"verity/internal/cases/models"
	"verity/internal/extraction"
	dErrors "verity/pkg/domain-errors"
	"verity/pkg/platform/audit"
	"verity/pkg/requestcontext"
)

// Get returns a case owned by the calling client.
func (s *Service) Get(ctx context.Context, caseID string) (*models.Case, error) {
	return s.load(ctx, caseID)
}

// MarkDocumentsUploading records that the capture SDK started uploading.
// Repeating the call while uploading is a no-op.
func (s *Service) MarkDocumentsUploading(ctx context.Context, caseID string) (*models.Case, error) {
	c, err := s.load(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.Status == models.StatusDocumentsUploading {
		return c, nil
	}
	return s.transition(ctx, c, models.StatusDocumentsUploading, models.Update{})
}

// Submit closes capture; the case waits for OCR and biometric results.
func (s *Service) Submit(ctx context.Context, caseID string) (*models.Case, error) {
	c, err := s.load(ctx, caseID)
	if err != nil {
		return nil, err
	}
	updated, err := s.transition(ctx, c, models.StatusSubmitted, models.Update{})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, audit.Event{
		Action:   string(audit.EventCaseSubmitted),
		CaseID:   updated.ID,
		ClientID: updated.ClientID,
	})
	return updated, nil
}

// ProcessOutcome reports how a processed document was routed.
type ProcessOutcome struct {
	Case                  *models.Case
	MissingRequiredFields []string
	ValidationErrors      []string
	Warnings              []string
}

// ProcessDocument runs extraction and validation over a submitted case's
// OCR output and routes it: an expired document is auto-rejected; a clean
// extraction that validates with passing biometrics is approved; anything
// else waits for a reviewer. A case left in processing by a failed routing
// write is processed again from there.
func (s *Service) ProcessDocument(ctx context.Context, caseID string, in models.ProcessingInput) (*ProcessOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "cases.ProcessDocument")
	defer span.End()
	span.SetAttributes(attribute.String("case.id", caseID))
	start := time.Now()
	if s.metrics != nil {
		defer s.metrics.ObserveProcess(start)
	}

	if len(in.Blocks) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "at least one OCR block is required")
	}
	c, err := s.load(ctx, caseID)
	if err != nil {
		return nil, err
	}
	processing := c
	if c.Status != models.StatusProcessing {
		processing, err = s.transition(ctx, c, models.StatusProcessing, models.Update{})
		if err != nil {
			return nil, err
		}
	}

	docType := string(processing.DocumentType)
	ext := s.extractor.Extract(docType, in.Blocks)
	val := s.validator.Validate(docType, ext.Fields, requestcontext.Now(ctx))
	if s.metrics != nil {
		s.metrics.ExtractionScore.Observe(ext.OverallConfidence)
	}

	next, update := route(ext, val.Valid, val.Expired, val.ExpiredDays, in.Biometrics)
	routed, err := s.transition(ctx, processing, next, update)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to route processed case",
			"case_id", caseID,
			"target", next,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, err
	}

	warnings := append(append([]string{}, ext.Warnings...), val.Warnings...)
	s.emit(ctx, audit.Event{
		Action:   string(audit.EventCaseProcessed),
		CaseID:   routed.ID,
		ClientID: routed.ClientID,
		Decision: string(routed.Status),
		Reason:   routed.RejectionReason,
	})
	return &ProcessOutcome{
		Case:                  routed,
		MissingRequiredFields: ext.MissingRequiredFields,
		ValidationErrors:      val.Errors,
		Warnings:              warnings,
	}, nil
}

func route(ext extraction.Result, valid, expired bool, expiredDays int, bio *models.BiometricSummary) (models.Status, models.Update) {
	overall := ext.OverallConfidence
	update := models.Update{
		ExtractedData:     ext.Fields,
		FieldConfidence:   ext.Confidence,
		OverallConfidence: &overall,
		Biometrics:        bio,
	}
	switch {
	case expired:
		update.RejectionReason = fmt.Sprintf("document expired %d days ago", expiredDays)
		update.RejectionCode = models.RejectionDocumentExpired
		return models.StatusAutoRejected, update
	case valid && !ext.RequiresManualReview && bio != nil && bio.Passed && !bio.RequiresManualReview:
		return models.StatusApproved, update
	default:
		return models.StatusPendingReview, update
	}
}
