package handler

import (
	"time"

	"verity/internal/tenant/models"
)

// WebhookResponse never carries the secret.
type WebhookResponse struct {
	URL       string   `json:"url"`
	Enabled   bool     `json:"enabled"`
	Events    []string `json:"events"`
	HasSecret bool     `json:"hasSecret"`
}

// RegisterClientResponse is the only response that carries the API key.
type RegisterClientResponse struct {
	ClientID    string           `json:"clientId"`
	Name        string           `json:"name"`
	APIKey      string           `json:"apiKey"`
	APIKeyID    string           `json:"apiKeyId"`
	Permissions []string         `json:"permissions"`
	Webhook     *WebhookResponse `json:"webhook,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
}

type ClientStatusResponse struct {
	ClientID string `json:"clientId"`
	Active   bool   `json:"active"`
}

func fromWebhookConfig(cfg *models.WebhookConfig) *WebhookResponse {
	if cfg == nil {
		return nil
	}
	events := cfg.Events
	if events == nil {
		events = []string{}
	}
	return &WebhookResponse{
		URL:       cfg.URL,
		Enabled:   cfg.Enabled,
		Events:    events,
		HasSecret: cfg.Secret != "",
	}
}
