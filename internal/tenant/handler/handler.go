// Package handler serves the operator routes that manage API clients.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"verity/internal/tenant/models"
	"verity/internal/tenant/service"
	dErrors "verity/pkg/domain-errors"
	"verity/pkg/platform/httputil"
	"verity/pkg/requestcontext"
)

// Service is the client management surface.
type Service interface {
	RegisterClient(ctx context.Context, req service.RegisterRequest) (*service.RegisterResult, error)
	UpdateWebhook(ctx context.Context, clientID string, in service.WebhookInput) (*models.WebhookConfig, error)
	SetActive(ctx context.Context, clientID string, active bool) error
}

// Handler serves /admin/clients. The caller guards it with the admin token.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

// Register mounts the admin client routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/admin/clients", h.HandleRegisterClient)
	r.Put("/admin/clients/{id}/webhook", h.HandleUpdateWebhook)
	r.Post("/admin/clients/{id}/activate", h.handleSetActive(true))
	r.Post("/admin/clients/{id}/deactivate", h.handleSetActive(false))
}

// HandleRegisterClient handles POST /admin/clients.
func (h *Handler) HandleRegisterClient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RegisterClientRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	in := service.RegisterRequest{Name: req.Name, Permissions: req.Permissions}
	if req.Webhook != nil {
		in.Webhook = &service.WebhookInput{
			URL:     req.Webhook.URL,
			Secret:  req.Webhook.Secret,
			Enabled: req.Webhook.Enabled,
			Events:  req.Webhook.Events,
		}
	}

	res, err := h.service.RegisterClient(ctx, in)
	if err != nil {
		h.writeError(ctx, w, "register client", "", err)
		return
	}

	perms := req.Permissions
	if perms == nil {
		perms = []string{}
	}
	resp := RegisterClientResponse{
		ClientID:    res.Client.ID,
		Name:        res.Client.Name,
		APIKey:      res.APIKey,
		APIKeyID:    res.Client.APIKeyID,
		Permissions: perms,
		CreatedAt:   res.Client.CreatedAt,
	}
	if in.Webhook != nil {
		resp.Webhook = &WebhookResponse{
			URL:       in.Webhook.URL,
			Enabled:   in.Webhook.Enabled,
			Events:    req.Webhook.Events,
			HasSecret: in.Webhook.Secret != "",
		}
	}
	httputil.WriteEnvelope(ctx, w, http.StatusCreated, resp, nil)
}

// HandleUpdateWebhook handles PUT /admin/clients/{id}/webhook.
func (h *Handler) HandleUpdateWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	clientID := chi.URLParam(r, "id")

	req, ok := httputil.DecodeAndPrepare[WebhookRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	cfg, err := h.service.UpdateWebhook(ctx, clientID, service.WebhookInput{
		URL:     req.URL,
		Secret:  req.Secret,
		Enabled: req.Enabled,
		Events:  req.Events,
	})
	if err != nil {
		h.writeError(ctx, w, "update webhook", clientID, err)
		return
	}
	httputil.WriteEnvelope(ctx, w, http.StatusOK, fromWebhookConfig(cfg), nil)
}

func (h *Handler) handleSetActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		clientID := chi.URLParam(r, "id")
		if err := h.service.SetActive(ctx, clientID, active); err != nil {
			h.writeError(ctx, w, "set client active", clientID, err)
			return
		}
		httputil.WriteEnvelope(ctx, w, http.StatusOK, ClientStatusResponse{ClientID: clientID, Active: active}, nil)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, op, clientID string, err error) {
	attrs := []any{
		"op", op,
		"client_id", clientID,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	}
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "client admin request failed", attrs...)
	} else {
		h.logger.InfoContext(ctx, "client admin request rejected", attrs...)
	}
	httputil.WriteError(w, err)
}
