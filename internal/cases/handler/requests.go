package handler

import (
	"net/url"
	"strings"

	"verity/internal/cases/models"
	"verity/internal/documents"
	"verity/internal/extraction"
	dErrors "verity/pkg/domain-errors"
)

const (
	maxMetadataEntries = 20
	maxMetadataValue   = 500
	maxIdempotencyKey  = 255
	maxReasonLength    = 1000
	maxOCRBlocks       = 200
)

// CustomerRequest identifies the person being verified.
type CustomerRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// CreateRequest is the body of POST /v1/verifications.
type CreateRequest struct {
	Customer       CustomerRequest   `json:"customer"`
	DocumentType   string            `json:"documentType"`
	RedirectURL    string            `json:"redirectUrl"`
	WebhookURL     string            `json:"webhookUrl"`
	Metadata       map[string]string `json:"metadata"`
	IdempotencyKey string            `json:"idempotencyKey"`

	parsedDocumentType models.DocumentType
}

// Validate normalizes and validates the request.
func (r *CreateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	r.Customer.Email = strings.TrimSpace(strings.ToLower(r.Customer.Email))
	r.Customer.Name = strings.TrimSpace(r.Customer.Name)
	r.Customer.Phone = strings.TrimSpace(r.Customer.Phone)
	if r.Customer.Email == "" && r.Customer.Name == "" && r.Customer.Phone == "" {
		return dErrors.New(dErrors.CodeValidation, "customer must include at least one of email, name or phone")
	}
	if r.Customer.Email != "" && !strings.Contains(r.Customer.Email, "@") {
		return dErrors.New(dErrors.CodeValidation, "customer.email is not a valid email address")
	}

	docType, ok := models.ParseDocumentType(r.DocumentType)
	if !ok {
		return dErrors.New(dErrors.CodeValidation, "documentType must be national_id, passport, drivers_licence or other_id")
	}
	r.parsedDocumentType = docType

	r.RedirectURL = strings.TrimSpace(r.RedirectURL)
	if err := validateHTTPSURL("redirectUrl", r.RedirectURL); err != nil {
		return err
	}
	r.WebhookURL = strings.TrimSpace(r.WebhookURL)
	if err := validateHTTPSURL("webhookUrl", r.WebhookURL); err != nil {
		return err
	}

	if len(r.Metadata) > maxMetadataEntries {
		return dErrors.New(dErrors.CodeValidation, "metadata must have at most 20 entries")
	}
	for k, v := range r.Metadata {
		if strings.TrimSpace(k) == "" || len(v) > maxMetadataValue {
			return dErrors.New(dErrors.CodeValidation, "metadata keys must be non-empty and values at most 500 characters")
		}
	}

	r.IdempotencyKey = strings.TrimSpace(r.IdempotencyKey)
	if len(r.IdempotencyKey) > maxIdempotencyKey {
		return dErrors.New(dErrors.CodeValidation, "idempotencyKey must be at most 255 characters")
	}
	return nil
}

// ParsedDocumentType returns the document type resolved by Validate.
func (r *CreateRequest) ParsedDocumentType() models.DocumentType {
	return r.parsedDocumentType
}

func validateHTTPSURL(field, raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return dErrors.New(dErrors.CodeValidation, field+" must be an absolute https URL")
	}
	return nil
}

// UploadURLRequest is the body of POST /v1/verifications/{id}/upload-url.
type UploadURLRequest struct {
	Part        string `json:"part"`
	ContentType string `json:"contentType"`

	parsedPart documents.Part
}

func (r *UploadURLRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	part, err := documents.ParsePart(r.Part)
	if err != nil {
		return err
	}
	r.parsedPart = part
	r.ContentType = strings.ToLower(strings.TrimSpace(r.ContentType))
	if r.ContentType == "" {
		r.ContentType = "image/jpeg"
	}
	return documents.ValidateContentType(r.ContentType)
}

// BlockRequest is one OCR text block.
type BlockRequest struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// BiometricsRequest is the scored liveness and face-match outcome.
type BiometricsRequest struct {
	LivenessScore        float64 `json:"livenessScore"`
	SimilarityScore      float64 `json:"similarityScore"`
	Passed               bool    `json:"passed"`
	RequiresManualReview bool    `json:"requiresManualReview"`
}

// OCRRequest is the body of POST /v1/verifications/{id}/ocr.
type OCRRequest struct {
	Blocks     []BlockRequest     `json:"blocks"`
	Biometrics *BiometricsRequest `json:"biometrics"`
}

func (r *OCRRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Blocks) == 0 {
		return dErrors.New(dErrors.CodeValidation, "blocks must contain at least one OCR block")
	}
	if len(r.Blocks) > maxOCRBlocks {
		return dErrors.New(dErrors.CodeValidation, "blocks must contain at most 200 OCR blocks")
	}
	for _, b := range r.Blocks {
		if b.Confidence < 0 || b.Confidence > 100 {
			return dErrors.New(dErrors.CodeValidation, "block confidence must be between 0 and 100")
		}
	}
	return nil
}

// Input converts the request into the service input.
func (r *OCRRequest) Input() models.ProcessingInput {
	in := models.ProcessingInput{Blocks: make([]extraction.OCRBlock, 0, len(r.Blocks))}
	for _, b := range r.Blocks {
		in.Blocks = append(in.Blocks, extraction.OCRBlock{Text: b.Text, Confidence: b.Confidence})
	}
	if r.Biometrics != nil {
		in.Biometrics = &models.BiometricSummary{
			LivenessScore:        r.Biometrics.LivenessScore,
			SimilarityScore:      r.Biometrics.SimilarityScore,
			Passed:               r.Biometrics.Passed,
			RequiresManualReview: r.Biometrics.RequiresManualReview,
		}
	}
	return in
}

// ApproveRequest is the optional body of POST /v1/verifications/{id}/approve.
type ApproveRequest struct {
	Notes string `json:"notes"`
}

func (r *ApproveRequest) Validate() error {
	r.Notes = strings.TrimSpace(r.Notes)
	if len(r.Notes) > maxReasonLength {
		return dErrors.New(dErrors.CodeValidation, "notes must be at most 1000 characters")
	}
	return nil
}

// RejectRequest is the body of POST /v1/verifications/{id}/reject.
type RejectRequest struct {
	Reason string `json:"reason"`
	Code   string `json:"code"`
}

func (r *RejectRequest) Validate() error {
	r.Reason = strings.TrimSpace(r.Reason)
	r.Code = strings.ToUpper(strings.TrimSpace(r.Code))
	return validateReason(r.Reason)
}

// ResubmitRequest is the body of POST /v1/verifications/{id}/resubmit.
type ResubmitRequest struct {
	Reason string `json:"reason"`
}

func (r *ResubmitRequest) Validate() error {
	r.Reason = strings.TrimSpace(r.Reason)
	return validateReason(r.Reason)
}

func validateReason(reason string) error {
	if reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	if len(reason) > maxReasonLength {
		return dErrors.New(dErrors.CodeValidation, "reason must be at most 1000 characters")
	}
	return nil
}
