package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	casemodels "verity/internal/cases/models"
	"verity/internal/webhook/metrics"
	"verity/internal/webhook/service"
	"verity/pkg/requestcontext"
)

// InProcess delivers each job on its own goroutine. The goroutine runs on a
// context detached from the request so a finished request does not cancel
// pending retries.
type InProcess struct {
	sender  Sender
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewInProcess(sender Sender, logger *slog.Logger, m *metrics.Metrics) *InProcess {
	return &InProcess{sender: sender, logger: logger, metrics: m}
}

// Notify schedules delivery of a snapshot of c.
func (q *InProcess) Notify(ctx context.Context, c *casemodels.Case, eventType string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.count("closed")
		return ErrClosed
	}

	snapshot := c.Clone()
	dctx := context.WithoutCancel(ctx)
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		res, err := q.sender.Send(dctx, snapshot, eventType)
		if err != nil {
			level := slog.LevelError
			if errors.Is(err, service.ErrAbandoned) {
				level = slog.LevelWarn
			}
			q.logger.Log(dctx, level, "webhook job failed",
				"case_id", snapshot.ID,
				"event", eventType,
				"request_id", requestcontext.RequestID(dctx),
				"error", err,
			)
			return
		}
		q.logger.DebugContext(dctx, "webhook job finished",
			"case_id", snapshot.ID,
			"event", eventType,
			"skipped", res.Skipped,
			"attempts", res.Attempts,
		)
	}()
	q.count("ok")
	return nil
}

// Close stops accepting jobs and waits for in-flight deliveries or ctx.
func (q *InProcess) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *InProcess) count(result string) {
	if q.metrics != nil {
		q.metrics.JobsEnqueued.WithLabelValues("inprocess", result).Inc()
	}
}
