// Package models holds the client registration and its webhook settings.
package models

import (
	"net/url"
	"slices"
	"strings"
	"time"

	dErrors "verity/pkg/domain-errors"
	pstrings "verity/pkg/platform/strings"
)

// Permissions a client can hold.
const (
	PermissionCasesDecide = "cases:decide"
	PermissionCasesBulk   = "cases:bulk"
)

// Client is an API consumer of the verification service.
//
// Invariants:
//   - Name is non-empty and at most 128 characters
//   - APIKeyID is the public half of the API key; APIKeyHash is the bcrypt
//     hash of the secret half
type Client struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	APIKeyID   string    `json:"api_key_id"`
	APIKeyHash string    `json:"-"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewClient validates and constructs an active client.
func NewClient(id, name, apiKeyID, apiKeyHash string, now time.Time) (*Client, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "client name cannot be empty")
	}
	if len(name) > 128 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "client name must be 128 characters or less")
	}
	if apiKeyID == "" || apiKeyHash == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "api key is required")
	}
	return &Client{
		ID:         id,
		Name:       name,
		APIKeyID:   apiKeyID,
		APIKeyHash: apiKeyHash,
		Active:     true,
		CreatedAt:  now,
	}, nil
}

// WebhookConfig is where and how a client receives case events.
type WebhookConfig struct {
	URL     string   `json:"url"`
	Secret  string   `json:"-"`
	Enabled bool     `json:"enabled"`
	Events  []string `json:"events"`
}

// NewWebhookConfig normalizes the event list and checks the URL is HTTPS.
// An enabled config needs both a URL and a secret.
func NewWebhookConfig(rawURL, secret string, enabled bool, events []string) (*WebhookConfig, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL != "" {
		u, err := url.Parse(rawURL)
		if err != nil || u.Scheme != "https" || u.Host == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "webhook url must be an absolute https URL")
		}
	}
	if enabled && (rawURL == "" || secret == "") {
		return nil, dErrors.New(dErrors.CodeValidation, "an enabled webhook needs a url and a secret")
	}
	return &WebhookConfig{
		URL:     rawURL,
		Secret:  secret,
		Enabled: enabled,
		Events:  pstrings.DedupeAndTrimLower(events),
	}, nil
}

// Subscribed reports whether the config wants event.
func (c *WebhookConfig) Subscribed(event string) bool {
	return slices.Contains(c.Events, event)
}

// Deliverable reports whether any delivery can happen at all.
func (c *WebhookConfig) Deliverable() bool {
	return c != nil && c.Enabled && c.URL != ""
}
