// Package payload builds the JSON envelope sent to client webhooks.
//
// Only approved events carry biographic data, and then only a fixed subset
// with the document number masked. Rejected events carry the customer email
// and the rejection reason.
package payload

import (
	"encoding/json"
	"time"

	casemodels "verity/internal/cases/models"
	"verity/internal/extraction"
	"verity/pkg/mask"
)

// Envelope is the body of every webhook.
type Envelope struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

type Approved struct {
	CaseID            string            `json:"caseId"`
	Status            string            `json:"status"`
	DocumentType      string            `json:"documentType"`
	Customer          Customer          `json:"customer"`
	Document          Document          `json:"document"`
	Person            Person            `json:"person"`
	Biometrics        *Biometrics       `json:"biometrics,omitempty"`
	OverallConfidence float64           `json:"overallConfidence"`
	CompletedAt       *time.Time        `json:"completedAt,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

type Customer struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

type Document struct {
	NumberMasked string `json:"numberMasked"`
	ExpiryDate   string `json:"expiryDate,omitempty"`
	Nationality  string `json:"nationality,omitempty"`
}

type Person struct {
	Surname     string `json:"surname,omitempty"`
	Forenames   string `json:"forenames,omitempty"`
	DateOfBirth string `json:"dateOfBirth,omitempty"`
	Sex         string `json:"sex,omitempty"`
}

type Biometrics struct {
	LivenessScore   float64 `json:"livenessScore"`
	SimilarityScore float64 `json:"similarityScore"`
	Passed          bool    `json:"passed"`
}

type Rejected struct {
	CaseID   string   `json:"caseId"`
	Status   string   `json:"status"`
	Customer Customer `json:"customer"`
	Reason   string   `json:"reason"`
	Code     string   `json:"code,omitempty"`
}

type ResubmissionRequired struct {
	CaseID string `json:"caseId"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type Expired struct {
	CaseID    string    `json:"caseId"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Build returns the envelope for event on c.
func Build(c *casemodels.Case, event string, now time.Time) Envelope {
	return Envelope{
		Event:     event,
		Timestamp: now.UTC().Format(time.RFC3339),
		Data:      data(c, event),
	}
}

// Marshal builds and encodes the envelope.
func Marshal(c *casemodels.Case, event string, now time.Time) ([]byte, error) {
	return json.Marshal(Build(c, event, now))
}

func data(c *casemodels.Case, event string) any {
	switch event {
	case casemodels.EventApproved:
		return approved(c)
	case casemodels.EventRejected:
		return Rejected{
			CaseID:   c.ID,
			Status:   string(c.Status),
			Customer: Customer{Email: c.Customer.Email},
			Reason:   c.RejectionReason,
			Code:     c.RejectionCode,
		}
	case casemodels.EventResubmissionRequired:
		return ResubmissionRequired{CaseID: c.ID, Status: string(c.Status), Reason: c.RejectionReason}
	case casemodels.EventExpired:
		return Expired{CaseID: c.ID, Status: string(c.Status), ExpiresAt: c.ExpiresAt}
	default:
		return map[string]string{"caseId": c.ID, "status": string(c.Status)}
	}
}

func approved(c *casemodels.Case) Approved {
	fields := c.ExtractedData
	out := Approved{
		CaseID:       c.ID,
		Status:       string(c.Status),
		DocumentType: c.DocumentType.String(),
		Customer:     Customer{Email: c.Customer.Email, Name: c.Customer.Name},
		Document: Document{
			NumberMasked: mask.DocumentNumber(documentNumber(fields)),
			ExpiryDate:   fields[extraction.FieldDateOfExpiry],
			Nationality:  fields[extraction.FieldNationality],
		},
		Person: Person{
			Surname:     fields[extraction.FieldSurname],
			Forenames:   fields[extraction.FieldForenames],
			DateOfBirth: fields[extraction.FieldDateOfBirth],
			Sex:         fields[extraction.FieldSex],
		},
		OverallConfidence: c.OverallConfidence,
		CompletedAt:       c.CompletedAt,
		Metadata:          c.Metadata,
	}
	if b := c.Biometrics; b != nil {
		out.Biometrics = &Biometrics{
			LivenessScore:   b.LivenessScore,
			SimilarityScore: b.SimilarityScore,
			Passed:          b.Passed,
		}
	}
	return out
}

func documentNumber(fields map[string]string) string {
	for _, f := range extraction.DocumentNumberFields {
		if v := fields[f]; v != "" {
			return v
		}
	}
	return ""
}
