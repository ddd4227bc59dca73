package handler

import (
	"time"

	"verity/internal/cases/models"
	"verity/internal/cases/service"
	"verity/internal/documents"
	"verity/internal/extraction"
	"verity/pkg/mask"
)

// CreateResponse is the data of a create response.
type CreateResponse struct {
	CaseID       string    `json:"caseId"`
	Status       string    `json:"status"`
	SessionToken string    `json:"sessionToken,omitempty"`
	SDKURL       string    `json:"sdkUrl"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

func fromCreateResult(res *service.CreateResult) CreateResponse {
	return CreateResponse{
		CaseID:       res.Case.ID,
		Status:       string(res.Case.Status),
		SessionToken: res.SessionToken,
		SDKURL:       res.SDKURL,
		ExpiresAt:    res.Case.ExpiresAt,
	}
}

// CaseResponse is the client view of a case.
type CaseResponse struct {
	CaseID            string                   `json:"caseId"`
	Status            string                   `json:"status"`
	DocumentType      string                   `json:"documentType"`
	Customer          models.Customer          `json:"customer"`
	ExtractedData     map[string]string        `json:"extractedData,omitempty"`
	FieldConfidence   map[string]float64       `json:"fieldConfidence,omitempty"`
	OverallConfidence float64                  `json:"overallConfidence"`
	Biometrics        *models.BiometricSummary `json:"biometrics,omitempty"`
	RejectionReason   string                   `json:"rejectionReason,omitempty"`
	RejectionCode     string                   `json:"rejectionCode,omitempty"`
	RedirectURL       string                   `json:"redirectUrl,omitempty"`
	Metadata          map[string]string        `json:"metadata,omitempty"`
	CreatedAt         time.Time                `json:"createdAt"`
	UpdatedAt         time.Time                `json:"updatedAt"`
	SubmittedAt       *time.Time               `json:"submittedAt,omitempty"`
	CompletedAt       *time.Time               `json:"completedAt,omitempty"`
	ExpiresAt         time.Time                `json:"expiresAt"`
}

func fromCase(c *models.Case) CaseResponse {
	return CaseResponse{
		CaseID:            c.ID,
		Status:            string(c.Status),
		DocumentType:      string(c.DocumentType),
		Customer:          c.Customer,
		ExtractedData:     maskedFields(c.ExtractedData),
		FieldConfidence:   c.FieldConfidence,
		OverallConfidence: c.OverallConfidence,
		Biometrics:        c.Biometrics,
		RejectionReason:   c.RejectionReason,
		RejectionCode:     c.RejectionCode,
		RedirectURL:       c.RedirectURL,
		Metadata:          c.Metadata,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
		SubmittedAt:       c.SubmittedAt,
		CompletedAt:       c.CompletedAt,
		ExpiresAt:         c.ExpiresAt,
	}
}

// maskedFields copies fields with document identifiers reduced to their
// last four characters.
func maskedFields(fields map[string]string) map[string]string {
	if fields == nil {
		return nil
	}
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	for _, f := range extraction.DocumentNumberFields {
		if v, ok := out[f]; ok {
			out[f] = mask.DocumentNumber(v)
		}
	}
	return out
}

// ProcessResponse reports how OCR output was routed.
type ProcessResponse struct {
	CaseResponse
	MissingRequiredFields []string `json:"missingRequiredFields,omitempty"`
	ValidationErrors      []string `json:"validationErrors,omitempty"`
	Warnings              []string `json:"warnings,omitempty"`
}

func fromOutcome(out *service.ProcessOutcome) ProcessResponse {
	return ProcessResponse{
		CaseResponse:          fromCase(out.Case),
		MissingRequiredFields: out.MissingRequiredFields,
		ValidationErrors:      out.ValidationErrors,
		Warnings:              out.Warnings,
	}
}

// UploadURLResponse is a presigned PUT for one document part.
type UploadURLResponse struct {
	UploadURL string            `json:"uploadUrl"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	Key       string            `json:"key"`
	ExpiresAt time.Time         `json:"expiresAt"`
	MaxBytes  int64             `json:"maxBytes,omitempty"`
}

func fromUpload(u *documents.Upload) UploadURLResponse {
	headers := make(map[string]string, len(u.Headers))
	for k := range u.Headers {
		headers[k] = u.Headers.Get(k)
	}
	return UploadURLResponse{
		UploadURL: u.URL,
		Method:    u.Method,
		Headers:   headers,
		Key:       u.Key,
		ExpiresAt: u.ExpiresAt,
		MaxBytes:  u.MaxBytes,
	}
}

// ExpireResponse reports how many cases one sweep expired.
type ExpireResponse struct {
	Expired int `json:"expired"`
}
