package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	casemodels "verity/internal/cases/models"
	"verity/internal/platform/kafka/consumer"
	"verity/internal/platform/kafka/producer"
	"verity/internal/webhook/models"
	"verity/internal/webhook/service"
	"verity/pkg/requestcontext"
)

type sent struct {
	caseID string
	status casemodels.Status
	event  string
	ctxErr error
	reqID  string
}

type fakeSender struct {
	mu    sync.Mutex
	calls []sent
	err   error
	block chan struct{}
	done  chan struct{}
}

func newFakeSender() *fakeSender {
	return &fakeSender{done: make(chan struct{}, 16)}
}

func (f *fakeSender) Send(ctx context.Context, c *casemodels.Case, event string) (*service.Result, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.calls = append(f.calls, sent{caseID: c.ID, status: c.Status, event: event, ctxErr: ctx.Err(), reqID: requestcontext.RequestID(ctx)})
	f.mu.Unlock()
	f.done <- struct{}{}
	if f.err != nil {
		return nil, f.err
	}
	return &service.Result{Delivered: true, Attempts: 1}, nil
}

func (f *fakeSender) snapshot() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.calls...)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("sender was not called")
	}
}

func TestInProcessOutlivesRequestContext(t *testing.T) {
	sender := newFakeSender()
	sender.block = make(chan struct{})
	q := NewInProcess(sender, discard(), nil)

	ctx, cancel := context.WithCancel(requestcontext.WithRequestID(context.Background(), "req-1"))
	c := &casemodels.Case{ID: "case-1", Status: casemodels.StatusApproved}
	require.NoError(t, q.Notify(ctx, c, casemodels.EventApproved))

	cancel()
	c.Status = casemodels.StatusExpired
	close(sender.block)
	waitFor(t, sender.done)

	calls := sender.snapshot()
	require.Len(t, calls, 1)
	assert.NoError(t, calls[0].ctxErr, "delivery runs on a detached context")
	assert.Equal(t, casemodels.StatusApproved, calls[0].status, "delivery uses the snapshot")
	assert.Equal(t, "req-1", calls[0].reqID)
}

func TestInProcessCloseDrainsAndRejects(t *testing.T) {
	sender := newFakeSender()
	sender.err = service.ErrAbandoned
	q := NewInProcess(sender, discard(), nil)

	for range 3 {
		require.NoError(t, q.Notify(context.Background(), &casemodels.Case{ID: "case-1"}, casemodels.EventRejected))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Close(ctx))
	assert.Len(t, sender.snapshot(), 3)

	err := q.Notify(context.Background(), &casemodels.Case{ID: "case-2"}, casemodels.EventRejected)
	assert.ErrorIs(t, err, ErrClosed)
}

type fakePublisher struct {
	msgs []producer.Message
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, msg producer.Message) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func TestKafkaNotifyPublishesKeyedJob(t *testing.T) {
	pub := &fakePublisher{}
	q := NewKafka(pub, "verity.webhook-jobs", nil)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithRequestID(requestcontext.WithTime(context.Background(), now), "req-7")

	c := &casemodels.Case{ID: "case-1", ClientID: "client-1", Status: casemodels.StatusRejected, RejectionReason: "blurred"}
	require.NoError(t, q.Notify(ctx, c, casemodels.EventRejected))

	require.Len(t, pub.msgs, 1)
	msg := pub.msgs[0]
	assert.Equal(t, "verity.webhook-jobs", msg.Topic)
	assert.Equal(t, []byte("case-1"), msg.Key)
	assert.Equal(t, casemodels.EventRejected, msg.Headers["event-type"])

	var job models.Job
	require.NoError(t, json.Unmarshal(msg.Value, &job))
	assert.Equal(t, casemodels.EventRejected, job.EventType)
	assert.Equal(t, "blurred", job.Case.RejectionReason)
	assert.Equal(t, now, job.EnqueuedAt)
	assert.Equal(t, "req-7", job.RequestID)
}

func TestKafkaNotifyReturnsPublishError(t *testing.T) {
	q := NewKafka(&fakePublisher{err: errors.New("broker down")}, "topic", nil)
	err := q.Notify(context.Background(), &casemodels.Case{ID: "case-1"}, casemodels.EventApproved)
	assert.ErrorContains(t, err, "broker down")
}

func TestWorkerHandle(t *testing.T) {
	job, err := json.Marshal(models.Job{
		EventType: casemodels.EventApproved,
		Case:      &casemodels.Case{ID: "case-1", Status: casemodels.StatusApproved},
		RequestID: "req-9",
	})
	require.NoError(t, err)

	t.Run("delivers the job", func(t *testing.T) {
		sender := newFakeSender()
		w := NewWorker(sender, discard())
		require.NoError(t, w.Handle(context.Background(), &consumer.Message{Value: job}))

		calls := sender.snapshot()
		require.Len(t, calls, 1)
		assert.Equal(t, "case-1", calls[0].caseID)
		assert.Equal(t, "req-9", calls[0].reqID)
	})

	t.Run("abandoned delivery does not fail the message", func(t *testing.T) {
		sender := newFakeSender()
		sender.err = service.ErrAbandoned
		assert.NoError(t, NewWorker(sender, discard()).Handle(context.Background(), &consumer.Message{Value: job}))
	})

	t.Run("other errors fail the message", func(t *testing.T) {
		sender := newFakeSender()
		sender.err = errors.New("config store down")
		assert.Error(t, NewWorker(sender, discard()).Handle(context.Background(), &consumer.Message{Value: job}))
	})

	t.Run("malformed job", func(t *testing.T) {
		w := NewWorker(newFakeSender(), discard())
		assert.Error(t, w.Handle(context.Background(), &consumer.Message{Value: []byte(`{`)}))
		assert.Error(t, w.Handle(context.Background(), &consumer.Message{Value: []byte(`{"eventType":"verification.approved"}`)}))
	})
}
