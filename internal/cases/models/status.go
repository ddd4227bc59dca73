package models

// Status is a case lifecycle state.
type Status string

const (
	StatusCreated              Status = "created"
	StatusDocumentsUploading   Status = "documents_uploading"
	StatusSubmitted            Status = "submitted"
	StatusProcessing           Status = "processing"
	StatusPendingReview        Status = "pending_review"
	StatusInReview             Status = "in_review"
	StatusApproved             Status = "approved"
	StatusRejected             Status = "rejected"
	StatusResubmissionRequired Status = "resubmission_required"
	StatusAutoRejected         Status = "auto_rejected"
	StatusExpired              Status = "expired"
)

var terminalStatuses = map[Status]bool{
	StatusApproved:     true,
	StatusRejected:     true,
	StatusAutoRejected: true,
	StatusExpired:      true,
}

// Every open status may also move to expired; that edge is added in CanTransitionTo.
var transitions = map[Status][]Status{
	StatusCreated:              {StatusDocumentsUploading, StatusSubmitted},
	StatusDocumentsUploading:   {StatusSubmitted},
	StatusSubmitted:            {StatusProcessing},
	StatusProcessing:           {StatusPendingReview, StatusInReview, StatusApproved, StatusAutoRejected},
	StatusPendingReview:        {StatusInReview, StatusApproved, StatusRejected, StatusResubmissionRequired},
	StatusInReview:             {StatusApproved, StatusRejected, StatusResubmissionRequired},
	StatusResubmissionRequired: {StatusDocumentsUploading, StatusSubmitted},
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	if terminalStatuses[s] {
		return true
	}
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether no further transition may leave s.
func (s Status) IsTerminal() bool {
	return terminalStatuses[s]
}

// IsReviewable reports whether a reviewer decision may be applied in s.
func (s Status) IsReviewable() bool {
	return s == StatusPendingReview || s == StatusInReview
}

// CanTransitionTo reports whether the lifecycle allows s -> next.
func (s Status) CanTransitionTo(next Status) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StatusExpired {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// EventType returns the webhook event emitted when a case enters s, if any.
func (s Status) EventType() (string, bool) {
	switch s {
	case StatusApproved:
		return EventApproved, true
	case StatusRejected:
		return EventRejected, true
	case StatusResubmissionRequired:
		return EventResubmissionRequired, true
	case StatusExpired:
		return EventExpired, true
	}
	return "", false
}

func (s Status) String() string {
	return string(s)
}

// Webhook event names.
const (
	EventApproved             = "verification.approved"
	EventRejected             = "verification.rejected"
	EventResubmissionRequired = "verification.resubmission_required"
	EventExpired              = "verification.expired"
)

// Rejection codes set without a reviewer.
const (
	RejectionDocumentExpired = "DOCUMENT_EXPIRED"
	RejectionCaseExpired     = "CASE_EXPIRED"
)
