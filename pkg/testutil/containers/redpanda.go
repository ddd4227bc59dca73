//go:build integration

package containers

import (
	"context"
	"sync"
	"testing"

	"github.com/testcontainers/testcontainers-go/modules/redpanda"
)

// RedpandaContainer is a Kafka-compatible broker for queue tests.
type RedpandaContainer struct {
	Container *redpanda.Container
	Brokers   []string
}

var (
	rpOnce   sync.Once
	rpShared *RedpandaContainer
	rpErr    error
)

// NewRedpandaContainer returns the shared broker container.
func NewRedpandaContainer(t *testing.T) *RedpandaContainer {
	t.Helper()
	rpOnce.Do(func() {
		ctx := context.Background()
		container, err := redpanda.Run(ctx, "docker.redpanda.com/redpandadata/redpanda:v24.2.4",
			redpanda.WithAutoCreateTopics(),
		)
		if err != nil {
			rpErr = err
			return
		}
		seed, err := container.KafkaSeedBroker(ctx)
		if err != nil {
			rpErr = err
			return
		}
		rpShared = &RedpandaContainer{Container: container, Brokers: []string{seed}}
	})
	if rpErr != nil {
		t.Fatalf("failed to start redpanda container: %v", rpErr)
	}
	return rpShared
}
