// Package handler exposes verification cases over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"verity/internal/cases/models"
	"verity/internal/cases/service"
	"verity/internal/documents"
	dErrors "verity/pkg/domain-errors"
	"verity/pkg/platform/httputil"
	"verity/pkg/requestcontext"
)

// HeaderIdempotencyKey may carry the idempotency key instead of the body.
const HeaderIdempotencyKey = "Idempotency-Key"

// Service is the case service surface the handlers use.
type Service interface {
	Create(ctx context.Context, req service.CreateRequest) (*service.CreateResult, error)
	Get(ctx context.Context, caseID string) (*models.Case, error)
	MarkDocumentsUploading(ctx context.Context, caseID string) (*models.Case, error)
	Submit(ctx context.Context, caseID string) (*models.Case, error)
	ProcessDocument(ctx context.Context, caseID string, in models.ProcessingInput) (*service.ProcessOutcome, error)
	Approve(ctx context.Context, caseID, notes string) (*models.Case, error)
	Reject(ctx context.Context, caseID, reason, code string) (*models.Case, error)
	RequestResubmission(ctx context.Context, caseID, reason string) (*models.Case, error)
	ExpireStale(ctx context.Context, limit int) (int, error)
}

// UploadPresigner issues document upload URLs.
type UploadPresigner interface {
	PresignUpload(ctx context.Context, clientID, caseID string, part documents.Part, contentType string, now time.Time) (*documents.Upload, error)
}

// Handler serves the /v1/verifications routes.
type Handler struct {
	service Service
	uploads UploadPresigner
	logger  *slog.Logger
}

// New creates a Handler. uploads may be nil when no document bucket is
// configured.
func New(svc Service, uploads UploadPresigner, logger *slog.Logger) *Handler {
	return &Handler{service: svc, uploads: uploads, logger: logger}
}

// CaseIDParam reads the {id} route parameter.
func CaseIDParam(r *http.Request) string {
	return chi.URLParam(r, "id")
}

// RegisterClientRoutes mounts the API-key routes.
func (h *Handler) RegisterClientRoutes(r chi.Router) {
	r.Post("/v1/verifications", h.HandleCreate)
	r.Get("/v1/verifications/{id}", h.HandleGet)
	r.Post("/v1/verifications/{id}/ocr", h.HandleProcessOCR)
}

// RegisterDecisionRoutes mounts the reviewer routes. The caller guards them
// with the decision permission.
func (h *Handler) RegisterDecisionRoutes(r chi.Router) {
	r.Post("/v1/verifications/{id}/approve", h.HandleApprove)
	r.Post("/v1/verifications/{id}/reject", h.HandleReject)
	r.Post("/v1/verifications/{id}/resubmit", h.HandleResubmit)
}

// RegisterCaptureRoutes mounts the session-token routes used by the capture SDK.
func (h *Handler) RegisterCaptureRoutes(r chi.Router) {
	r.Post("/v1/verifications/{id}/upload-url", h.HandleUploadURL)
	r.Post("/v1/verifications/{id}/submit", h.HandleSubmit)
}

// RegisterAdminRoutes mounts operator routes behind the admin token.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/admin/cases/expire", h.HandleExpire)
}

// HandleCreate handles POST /v1/verifications.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	clientID := requestcontext.ClientID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	key := req.IdempotencyKey
	if key == "" {
		key = strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
	}

	res, err := h.service.Create(ctx, service.CreateRequest{
		ClientID: clientID,
		Customer: models.Customer{
			Email: req.Customer.Email,
			Name:  req.Customer.Name,
			Phone: req.Customer.Phone,
		},
		DocumentType:   req.ParsedDocumentType(),
		RedirectURL:    req.RedirectURL,
		WebhookURL:     req.WebhookURL,
		Metadata:       req.Metadata,
		IdempotencyKey: key,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to create case",
			"request_id", requestID,
			"client_id", clientID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusCreated
	var meta map[string]any
	if res.Idempotent {
		status = http.StatusOK
		meta = map[string]any{"idempotent": true}
	}
	httputil.WriteEnvelope(ctx, w, status, fromCreateResult(res), meta)
}

// HandleGet handles GET /v1/verifications/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := h.service.Get(ctx, CaseIDParam(r))
	if err != nil {
		h.writeCaseError(ctx, w, "get", CaseIDParam(r), err)
		return
	}
	httputil.WriteEnvelope(ctx, w, http.StatusOK, fromCase(c), nil)
}

// HandleUploadURL handles POST /v1/verifications/{id}/upload-url.
func (h *Handler) HandleUploadURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	caseID := CaseIDParam(r)

	req, ok := httputil.DecodeAndPrepare[UploadURLRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if h.uploads == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "document uploads are not enabled"))
		return
	}

	c, err := h.service.MarkDocumentsUploading(ctx, caseID)
	if err != nil {
		h.writeCaseError(ctx, w, "upload-url", caseID, err)
		return
	}
	upload, err := h.uploads.PresignUpload(ctx, c.ClientID, c.ID, req.parsedPart, req.ContentType, requestcontext.Now(ctx))
	if err != nil {
		h.writeCaseError(ctx, w, "upload-url", caseID, err)
		return
	}
	httputil.WriteEnvelope(ctx, w, http.StatusOK, fromUpload(upload), nil)
}

// HandleSubmit handles POST /v1/verifications/{id}/submit.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := CaseIDParam(r)
	c, err := h.service.Submit(ctx, caseID)
	if err != nil {
		h.writeCaseError(ctx, w, "submit", caseID, err)
		return
	}
	httputil.WriteEnvelope(ctx, w, http.StatusOK, fromCase(c), nil)
}

// HandleProcessOCR handles POST /v1/verifications/{id}/ocr.
func (h *Handler) HandleProcessOCR(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	caseID := CaseIDParam(r)

	req, ok := httputil.DecodeAndPrepare[OCRRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	out, err := h.service.ProcessDocument(ctx, caseID, req.Input())
	if err != nil {
		h.writeCaseError(ctx, w, "ocr", caseID, err)
		return
	}
	h.logger.InfoContext(ctx, "document processed",
		"request_id", requestID,
		"case_id", caseID,
		"status", out.Case.Status,
		"overall_confidence", out.Case.OverallConfidence,
	)
	httputil.WriteEnvelope(ctx, w, http.StatusOK, fromOutcome(out), nil)
}

// HandleApprove handles POST /v1/verifications/{id}/approve.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := CaseIDParam(r)
	req, ok := httputil.DecodeAndPrepare[ApproveRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	c, err := h.service.Approve(ctx, caseID, req.Notes)
	if err != nil {
		h.writeCaseError(ctx, w, "approve", caseID, err)
		return
	}
	httputil.WriteEnvelope(ctx, w, http.StatusOK, fromCase(c), nil)
}

// HandleReject handles POST /v1/verifications/{id}/reject.
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := CaseIDParam(r)
	req, ok := httputil.DecodeAndPrepare[RejectRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	c, err := h.service.Reject(ctx, caseID, req.Reason, req.Code)
	if err != nil {
		h.writeCaseError(ctx, w, "reject", caseID, err)
		return
	}
	httputil.WriteEnvelope(ctx, w, http.StatusOK, fromCase(c), nil)
}

// HandleResubmit handles POST /v1/verifications/{id}/resubmit.
func (h *Handler) HandleResubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := CaseIDParam(r)
	req, ok := httputil.DecodeAndPrepare[ResubmitRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	c, err := h.service.RequestResubmission(ctx, caseID, req.Reason)
	if err != nil {
		h.writeCaseError(ctx, w, "resubmit", caseID, err)
		return
	}
	httputil.WriteEnvelope(ctx, w, http.StatusOK, fromCase(c), nil)
}

// HandleExpire handles POST /admin/cases/expire. It runs one sweep outside
// the ticker, bounded by the optional ?limit= query parameter.
func (h *Handler) HandleExpire(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
			return
		}
		limit = n
	}
	expired, err := h.service.ExpireStale(ctx, limit)
	if err != nil {
		h.writeCaseError(ctx, w, "expire", "", err)
		return
	}
	httputil.WriteEnvelope(ctx, w, http.StatusOK, ExpireResponse{Expired: expired}, nil)
}

// writeCaseError logs expected client errors at info and the rest at error.
func (h *Handler) writeCaseError(ctx context.Context, w http.ResponseWriter, op, caseID string, err error) {
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"client_id", requestcontext.ClientID(ctx),
		"case_id", caseID,
		"op", op,
		"error", err,
	}
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "case request failed", attrs...)
	} else {
		h.logger.InfoContext(ctx, "case request rejected", attrs...)
	}
	httputil.WriteError(w, err)
}
