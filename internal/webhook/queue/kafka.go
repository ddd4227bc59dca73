package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	casemodels "verity/internal/cases/models"
	"verity/internal/platform/kafka/consumer"
	"verity/internal/platform/kafka/producer"
	"verity/internal/webhook/metrics"
	"verity/internal/webhook/models"
	"verity/internal/webhook/service"
	"verity/pkg/requestcontext"
)

const (
	headerEventType = "event-type"
	headerRequestID = "request-id"
)

// Publisher is the producer surface the Kafka queue needs.
type Publisher interface {
	Publish(ctx context.Context, msg producer.Message) error
}

// Kafka publishes webhook jobs to a topic keyed by case ID, so events for one
// case stay ordered within a partition.
type Kafka struct {
	publisher Publisher
	topic     string
	metrics   *metrics.Metrics
}

func NewKafka(publisher Publisher, topic string, m *metrics.Metrics) *Kafka {
	return &Kafka{publisher: publisher, topic: topic, metrics: m}
}

// Notify publishes the job and waits for the broker acknowledgement.
func (k *Kafka) Notify(ctx context.Context, c *casemodels.Case, eventType string) error {
	job := models.Job{
		EventType:  eventType,
		Case:       c,
		EnqueuedAt: requestcontext.Now(ctx),
		RequestID:  requestcontext.RequestID(ctx),
	}
	value, err := json.Marshal(job)
	if err != nil {
		k.count("error")
		return fmt.Errorf("encode webhook job: %w", err)
	}
	err = k.publisher.Publish(ctx, producer.Message{
		Topic: k.topic,
		Key:   []byte(c.ID),
		Value: value,
		Headers: map[string]string{
			headerEventType: eventType,
			headerRequestID: job.RequestID,
		},
	})
	if err != nil {
		k.count("error")
		return fmt.Errorf("publish webhook job: %w", err)
	}
	k.count("ok")
	return nil
}

func (k *Kafka) count(result string) {
	if k.metrics != nil {
		k.metrics.JobsEnqueued.WithLabelValues("kafka", result).Inc()
	}
}

// Worker consumes webhook jobs and runs them through the delivery engine.
// Abandoned deliveries are already recorded by the engine, so they do not
// fail the message.
type Worker struct {
	sender Sender
	logger *slog.Logger
}

var _ consumer.Handler = (*Worker)(nil)

func NewWorker(sender Sender, logger *slog.Logger) *Worker {
	return &Worker{sender: sender, logger: logger}
}

func (w *Worker) Handle(ctx context.Context, msg *consumer.Message) error {
	var job models.Job
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		return fmt.Errorf("decode webhook job at offset %d: %w", msg.Offset, err)
	}
	if job.Case == nil || job.EventType == "" {
		return fmt.Errorf("webhook job at offset %d is missing case or event", msg.Offset)
	}
	if job.RequestID != "" {
		ctx = requestcontext.WithRequestID(ctx, job.RequestID)
	}

	res, err := w.sender.Send(ctx, job.Case, job.EventType)
	if err != nil {
		if errors.Is(err, service.ErrAbandoned) {
			return nil
		}
		return err
	}
	w.logger.DebugContext(ctx, "webhook job consumed",
		"case_id", job.Case.ID,
		"event", job.EventType,
		"partition", msg.Partition,
		"offset", msg.Offset,
		"skipped", res.Skipped,
		"attempts", res.Attempts,
	)
	return nil
}
