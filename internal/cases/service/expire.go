package service

import (
	"context"

	"verity/internal/cases/models"
	dErrors "verity/pkg/domain-errors"
	"verity/pkg/platform/audit"
	"verity/pkg/requestcontext"
)

// DefaultExpireBatch bounds one sweep.
const DefaultExpireBatch = 200

// ExpireStale moves open cases past their ExpiresAt to expired and returns
// how many were expired. A case that changed status while the sweep ran is
// skipped; it is picked up again next sweep if still open.
func (s *Service) ExpireStale(ctx context.Context, limit int) (int, error) {
	ctx, span := s.tracer.Start(ctx, "cases.ExpireStale")
	defer span.End()

	if limit <= 0 {
		limit = DefaultExpireBatch
	}
	now := requestcontext.Now(ctx)
	stale, err := s.store.ListExpirable(ctx, now, limit)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list expirable cases")
	}

	expired := 0
	for _, c := range stale {
		updated, err := s.transition(ctx, c, models.StatusExpired, models.Update{
			RejectionReason: "verification was not completed before the case expired",
			RejectionCode:   models.RejectionCaseExpired,
		})
		if err != nil {
			s.logger.WarnContext(ctx, "failed to expire case",
				"case_id", c.ID,
				"status", c.Status,
				"error", err,
			)
			continue
		}
		expired++
		s.emit(ctx, audit.Event{
			Action:   string(audit.EventCaseExpired),
			CaseID:   updated.ID,
			ClientID: updated.ClientID,
			Decision: string(models.StatusExpired),
		})
	}
	if expired > 0 {
		s.logger.InfoContext(ctx, "expired stale cases", "count", expired, "scanned", len(stale))
	}
	return expired, nil
}
