package handler

import (
	"strings"

	dErrors "verity/pkg/domain-errors"
	pstrings "verity/pkg/platform/strings"
)

// WebhookRequest configures where a client receives events.
type WebhookRequest struct {
	URL     string   `json:"url"`
	Secret  string   `json:"secret"`
	Enabled bool     `json:"enabled"`
	Events  []string `json:"events"`
}

// Validate trims the URL and normalizes events. URL and secret rules live on
// the model.
func (r *WebhookRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	r.URL = strings.TrimSpace(r.URL)
	r.Events = pstrings.DedupeAndTrimLower(r.Events)
	if len(r.Events) > 20 {
		return dErrors.New(dErrors.CodeValidation, "at most 20 events may be subscribed")
	}
	return nil
}

// RegisterClientRequest registers a new API client.
type RegisterClientRequest struct {
	Name        string          `json:"name"`
	Webhook     *WebhookRequest `json:"webhook,omitempty"`
	Permissions []string        `json:"permissions"`
}

func (r *RegisterClientRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	r.Permissions = pstrings.DedupeAndTrimLower(r.Permissions)
	if r.Webhook != nil {
		return r.Webhook.Validate()
	}
	return nil
}
