//go:build integration

package queue_test

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	casemodels "verity/internal/cases/models"
	"verity/internal/platform/kafka"
	"verity/internal/platform/kafka/consumer"
	"verity/internal/platform/kafka/producer"
	"verity/internal/webhook/queue"
	"verity/internal/webhook/service"
	"verity/pkg/testutil/containers"
)

type channelSender struct {
	mu   sync.Mutex
	seen []string
	got  chan struct{}
}

func (s *channelSender) Send(_ context.Context, c *casemodels.Case, event string) (*service.Result, error) {
	s.mu.Lock()
	s.seen = append(s.seen, c.ID+":"+event)
	s.mu.Unlock()
	s.got <- struct{}{}
	return &service.Result{Delivered: true, Attempts: 1}, nil
}

func TestKafkaQueueRoundTrip(t *testing.T) {
	broker := containers.NewRedpandaContainer(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	const topic = "verity.webhook-jobs.test"
	require.NoError(t, kafka.EnsureTopic(ctx, broker.Brokers, topic, 3))

	prod, err := producer.New(broker.Brokers)
	require.NoError(t, err)
	defer prod.Close()

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	sender := &channelSender{got: make(chan struct{}, 4)}
	cons, err := consumer.New(broker.Brokers, "verity-webhook-test", []string{topic}, queue.NewWorker(sender, logger), logger)
	require.NoError(t, err)

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = cons.Run(runCtx)
	}()

	q := queue.NewKafka(prod, topic, nil)
	require.NoError(t, q.Notify(ctx, &casemodels.Case{ID: "case-1", Status: casemodels.StatusApproved}, casemodels.EventApproved))
	require.NoError(t, q.Notify(ctx, &casemodels.Case{ID: "case-1", Status: casemodels.StatusExpired}, casemodels.EventExpired))

	for range 2 {
		select {
		case <-sender.got:
		case <-ctx.Done():
			t.Fatal("jobs were not consumed")
		}
	}
	stop()
	<-done

	sender.mu.Lock()
	defer sender.mu.Unlock()
	assert.Equal(t, []string{"case-1:" + casemodels.EventApproved, "case-1:" + casemodels.EventExpired}, sender.seen)
}
