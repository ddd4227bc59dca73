package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies and storage routing.
type EventCategory string

const (
	// CategoryCompliance covers case decisions with regulatory significance.
	// These require long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring.
	// Examples: API key failures, permission denials.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine lifecycle activity.
	// Examples: case creation, document submission, webhook abandonment.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	CaseID    string
	ClientID  string
	Action    string
	Decision  string
	Reason    string
	RequestID string
	// ActorID is the reviewer or operator who performed the action.
	ActorID string
	// Agent is a short summary of the actor's User-Agent ("Chrome 120 / macOS").
	Agent string
	// BulkOperationID groups entries written by one bulk decision.
	BulkOperationID string
	BatchSize       int
}

type AuditEvent string

const (
	// Case lifecycle events
	EventCaseCreated         AuditEvent = "case_created"
	EventCaseSubmitted       AuditEvent = "case_submitted"
	EventCaseProcessed       AuditEvent = "case_processed"
	EventCaseStatusChanged   AuditEvent = "case_status_changed"
	EventCaseExpired         AuditEvent = "case_expired"
	EventCaseResubmissionReq AuditEvent = "case_resubmission_requested"

	// Decision events
	EventCaseApproved     AuditEvent = "case_approved"
	EventCaseRejected     AuditEvent = "case_rejected"
	EventCaseBulkApproved AuditEvent = "case_bulk_approved"
	EventCaseBulkRejected AuditEvent = "case_bulk_rejected"

	// Security events
	EventAuthFailed       AuditEvent = "auth_failed"
	EventPermissionDenied AuditEvent = "permission_denied"

	// Delivery events
	EventWebhookAbandoned AuditEvent = "webhook_abandoned"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	EventCaseApproved:        CategoryCompliance,
	EventCaseRejected:        CategoryCompliance,
	EventCaseBulkApproved:    CategoryCompliance,
	EventCaseBulkRejected:    CategoryCompliance,
	EventCaseResubmissionReq: CategoryCompliance,

	EventAuthFailed:       CategorySecurity,
	EventPermissionDenied: CategorySecurity,

	EventCaseCreated:       CategoryOperations,
	EventCaseSubmitted:     CategoryOperations,
	EventCaseProcessed:     CategoryOperations,
	EventCaseStatusChanged: CategoryOperations,
	EventCaseExpired:       CategoryOperations,
	EventWebhookAbandoned:  CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByCase(ctx context.Context, caseID string) ([]Event, error)
}
