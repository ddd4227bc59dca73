// Package handler exposes the webhook attempt trail of a case.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	casemodels "verity/internal/cases/models"
	"verity/internal/webhook/models"
	dErrors "verity/pkg/domain-errors"
	"verity/pkg/platform/httputil"
	"verity/pkg/requestcontext"
)

// CaseReader resolves a case for the calling client; it returns NotFound
// for another client's case.
type CaseReader interface {
	Get(ctx context.Context, caseID string) (*casemodels.Case, error)
}

// AttemptLister lists stored attempts.
type AttemptLister interface {
	ListByCase(ctx context.Context, caseID string) ([]models.Attempt, error)
}

type Handler struct {
	cases    CaseReader
	attempts AttemptLister
	logger   *slog.Logger
}

func New(cases CaseReader, attempts AttemptLister, logger *slog.Logger) *Handler {
	return &Handler{cases: cases, attempts: attempts, logger: logger}
}

// Register mounts GET /v1/verifications/{id}/webhooks.
func (h *Handler) Register(r chi.Router) {
	r.Get("/v1/verifications/{id}/webhooks", h.HandleList)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := chi.URLParam(r, "id")

	if _, err := h.cases.Get(ctx, caseID); err != nil {
		h.logger.InfoContext(ctx, "webhook attempts lookup rejected",
			"case_id", caseID,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	attempts, err := h.attempts.ListByCase(ctx, caseID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list webhook attempts",
			"case_id", caseID,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list webhook attempts"))
		return
	}
	if attempts == nil {
		attempts = []models.Attempt{}
	}
	httputil.WriteEnvelope(ctx, w, http.StatusOK, attempts, map[string]any{"count": len(attempts)})
}
