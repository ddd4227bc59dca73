// Package models holds the webhook job and delivery-attempt records.
package models

import (
	"time"

	casemodels "verity/internal/cases/models"
)

// MaxResponseBody caps the stored receiver response.
const MaxResponseBody = 1000

// Job is one event to deliver. It carries the case as it was when the event
// fired so a delayed delivery reports that state.
type Job struct {
	EventType  string           `json:"eventType"`
	Case       *casemodels.Case `json:"case"`
	EnqueuedAt time.Time        `json:"enqueuedAt"`
	RequestID  string           `json:"requestId,omitempty"`
}

// Attempt is one HTTP delivery try, keyed by (WebhookID, AttemptNumber).
// Attempts are append-only.
type Attempt struct {
	WebhookID     string     `json:"webhookId"`
	AttemptNumber int        `json:"attemptNumber"`
	CaseID        string     `json:"caseId"`
	ClientID      string     `json:"clientId"`
	EventType     string     `json:"eventType"`
	URL           string     `json:"url"`
	StatusCode    int        `json:"statusCode,omitempty"`
	Error         string     `json:"error,omitempty"`
	ResponseBody  string     `json:"responseBody,omitempty"`
	DeliveredAt   *time.Time `json:"deliveredAt,omitempty"`
	FailedAt      *time.Time `json:"failedAt,omitempty"`
	NextRetryAt   *time.Time `json:"nextRetryAt,omitempty"`
	Abandoned     bool       `json:"abandoned"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// Succeeded reports whether the receiver accepted the delivery.
func (a *Attempt) Succeeded() bool {
	return a.DeliveredAt != nil
}

// TruncateBody bounds a response body to MaxResponseBody bytes without
// splitting a UTF-8 sequence.
func TruncateBody(body []byte) string {
	if len(body) <= MaxResponseBody {
		return string(body)
	}
	cut := MaxResponseBody
	for cut > 0 && body[cut]&0xC0 == 0x80 {
		cut--
	}
	return string(body[:cut])
}
