// Package models holds the verification case aggregate and its status
// lifecycle.
package models

import (
	"time"

	"verity/internal/extraction"
)

// Case is one identity-verification case.
//
// Invariants:
//   - CompletedAt is non-nil exactly when Status is terminal
//   - OverallConfidence is the weighted mean over present fields only
//   - Customer carries at least one of email, name or phone
type Case struct {
	ID                string             `json:"caseId"`
	ClientID          string             `json:"clientId"`
	DocumentType      DocumentType       `json:"documentType"`
	Status            Status             `json:"status"`
	Customer          Customer           `json:"customer"`
	ExtractedData     map[string]string  `json:"extractedData,omitempty"`
	FieldConfidence   map[string]float64 `json:"fieldConfidence,omitempty"`
	OverallConfidence float64            `json:"overallConfidence"`
	Biometrics        *BiometricSummary  `json:"biometrics,omitempty"`
	RejectionReason   string             `json:"rejectionReason,omitempty"`
	RejectionCode     string             `json:"rejectionCode,omitempty"`
	RedirectURL       string             `json:"redirectUrl,omitempty"`
	WebhookURL        string             `json:"webhookUrl,omitempty"`
	Metadata          map[string]string  `json:"metadata,omitempty"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`
	SubmittedAt       *time.Time         `json:"submittedAt,omitempty"`
	CompletedAt       *time.Time         `json:"completedAt,omitempty"`
	ExpiresAt         time.Time          `json:"expiresAt"`
}

// Customer identifies the person being verified.
type Customer struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// IsEmpty reports whether no identifying field is set.
func (c Customer) IsEmpty() bool {
	return c.Email == "" && c.Name == "" && c.Phone == ""
}

// BiometricSummary is the scored result of the liveness and face-match checks.
type BiometricSummary struct {
	LivenessScore        float64 `json:"livenessScore"`
	SimilarityScore      float64 `json:"similarityScore"`
	Passed               bool    `json:"passed"`
	RequiresManualReview bool    `json:"requiresManualReview"`
}

// Update carries the optional fields merged into a case alongside a status
// change. Nil maps and empty strings leave the stored value untouched.
type Update struct {
	ExtractedData     map[string]string
	FieldConfidence   map[string]float64
	OverallConfidence *float64
	Biometrics        *BiometricSummary
	RejectionReason   string
	RejectionCode     string
}

// ApplyStatus moves the case to status at now and merges u. CompletedAt is
// stamped for terminal statuses and cleared otherwise.
func (c *Case) ApplyStatus(status Status, u Update, now time.Time) {
	c.Status = status
	c.UpdatedAt = now
	if status.IsTerminal() {
		t := now
		c.CompletedAt = &t
	} else {
		c.CompletedAt = nil
	}
	if status == StatusSubmitted && c.SubmittedAt == nil {
		t := now
		c.SubmittedAt = &t
	}

	if u.ExtractedData != nil {
		if c.ExtractedData == nil {
			c.ExtractedData = make(map[string]string, len(u.ExtractedData))
		}
		for k, v := range u.ExtractedData {
			c.ExtractedData[k] = v
		}
	}
	if u.FieldConfidence != nil {
		if c.FieldConfidence == nil {
			c.FieldConfidence = make(map[string]float64, len(u.FieldConfidence))
		}
		for k, v := range u.FieldConfidence {
			c.FieldConfidence[k] = v
		}
	}
	if u.OverallConfidence != nil {
		c.OverallConfidence = *u.OverallConfidence
	}
	if u.Biometrics != nil {
		b := *u.Biometrics
		c.Biometrics = &b
	}
	if u.RejectionReason != "" {
		c.RejectionReason = u.RejectionReason
	}
	if u.RejectionCode != "" {
		c.RejectionCode = u.RejectionCode
	}
}

// Clone returns a deep copy so stores never share maps with callers.
func (c *Case) Clone() *Case {
	if c == nil {
		return nil
	}
	out := *c
	if c.ExtractedData != nil {
		out.ExtractedData = make(map[string]string, len(c.ExtractedData))
		for k, v := range c.ExtractedData {
			out.ExtractedData[k] = v
		}
	}
	if c.FieldConfidence != nil {
		out.FieldConfidence = make(map[string]float64, len(c.FieldConfidence))
		for k, v := range c.FieldConfidence {
			out.FieldConfidence[k] = v
		}
	}
	if c.Metadata != nil {
		out.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	if c.Biometrics != nil {
		b := *c.Biometrics
		out.Biometrics = &b
	}
	if c.SubmittedAt != nil {
		t := *c.SubmittedAt
		out.SubmittedAt = &t
	}
	if c.CompletedAt != nil {
		t := *c.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

// IsOpen reports whether the case can still be expired by the sweep.
func (c *Case) IsOpen() bool {
	return !c.Status.IsTerminal()
}

// ProcessingInput is the OCR and biometric output handed to a submitted case.
type ProcessingInput struct {
	Blocks     []extraction.OCRBlock
	Biometrics *BiometricSummary
}
