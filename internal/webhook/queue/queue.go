// Package queue decouples webhook delivery from the case status write.
//
// Both queues implement the case service's Notifier. Notify returns once the
// job is handed off; delivery and its retries happen on the consumer side.
package queue

import (
	"context"
	"errors"

	casemodels "verity/internal/cases/models"
	"verity/internal/webhook/service"
)

// ErrClosed is returned by Notify after the queue was shut down.
var ErrClosed = errors.New("webhook queue closed")

// Sender delivers one webhook.
type Sender interface {
	Send(ctx context.Context, c *casemodels.Case, eventType string) (*service.Result, error)
}
