// Package handler serves the bulk approve and reject routes.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"verity/internal/bulk/service"
	casemodels "verity/internal/cases/models"
	dErrors "verity/pkg/domain-errors"
	"verity/pkg/platform/httputil"
	"verity/pkg/requestcontext"
)

// Service runs bulk decisions.
type Service interface {
	Decide(ctx context.Context, req service.Request) (*service.Result, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

// Register mounts the bulk routes. The caller guards them with the bulk
// permission.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/verifications/bulk/approve", h.HandleApprove)
	r.Post("/v1/verifications/bulk/reject", h.HandleReject)
}

// BulkApproveRequest is the body of POST /v1/verifications/bulk/approve.
type BulkApproveRequest struct {
	CaseIDs []string `json:"caseIds"`
	Notes   string   `json:"notes"`
}

func (r *BulkApproveRequest) Validate() error {
	if r == nil || len(r.CaseIDs) == 0 {
		return dErrors.New(dErrors.CodeValidation, "caseIds is required")
	}
	r.Notes = strings.TrimSpace(r.Notes)
	return nil
}

// BulkRejectRequest is the body of POST /v1/verifications/bulk/reject.
type BulkRejectRequest struct {
	CaseIDs []string `json:"caseIds"`
	Reason  string   `json:"reason"`
	Code    string   `json:"code"`
}

func (r *BulkRejectRequest) Validate() error {
	if r == nil || len(r.CaseIDs) == 0 {
		return dErrors.New(dErrors.CodeValidation, "caseIds is required")
	}
	r.Reason = strings.TrimSpace(r.Reason)
	r.Code = strings.ToUpper(strings.TrimSpace(r.Code))
	if r.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	return nil
}

// BulkResponse is the data of a bulk response.
type BulkResponse struct {
	Results []service.ItemResult `json:"results"`
	Summary service.Summary      `json:"summary"`
}

func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[BulkApproveRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	h.decide(ctx, w, service.Request{CaseIDs: req.CaseIDs, Decision: casemodels.StatusApproved, Notes: req.Notes})
}

func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[BulkRejectRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	h.decide(ctx, w, service.Request{CaseIDs: req.CaseIDs, Decision: casemodels.StatusRejected, Reason: req.Reason, Code: req.Code})
}

func (h *Handler) decide(ctx context.Context, w http.ResponseWriter, req service.Request) {
	res, err := h.service.Decide(ctx, req)
	if err != nil {
		h.logger.InfoContext(ctx, "bulk request rejected",
			"decision", req.Decision,
			"size", len(req.CaseIDs),
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteEnvelope(ctx, w, StatusFor(res.Summary),
		BulkResponse{Results: res.Results, Summary: res.Summary},
		map[string]any{"bulkOperationId": res.BulkOperationID},
	)
}

// StatusFor maps a summary onto 200 (all succeeded), 207 (mixed) or 422
// (all failed).
func StatusFor(sum service.Summary) int {
	switch {
	case sum.Failed == 0:
		return http.StatusOK
	case sum.Succeeded == 0:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusMultiStatus
	}
}
