package policy

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "verity/pkg/domain-errors"
)

type countingSource struct {
	calls atomic.Int32
	perms map[string][]string
	err   error
	delay time.Duration
}

func (s *countingSource) Permissions(_ context.Context, clientID string) ([]string, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	perms, ok := s.perms[clientID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "client not found")
	}
	return perms, nil
}

func TestAllowed(t *testing.T) {
	src := &countingSource{perms: map[string][]string{"client-1": {"cases:decide"}}}
	c := New(src, time.Minute)
	ctx := context.Background()

	ok, err := c.Allowed(ctx, "client-1", "cases:decide")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Allowed(ctx, "client-1", "cases:bulk")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int32(1), src.calls.Load(), "second check served from cache")

	ok, err = c.Allowed(ctx, "unknown", "cases:decide")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.Allowed(ctx, "", "cases:decide")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEntriesExpire(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	src := &countingSource{perms: map[string][]string{"client-1": {"cases:decide"}}}
	c := New(src, time.Minute, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_, err := c.Allowed(ctx, "client-1", "cases:decide")
	require.NoError(t, err)

	src.perms["client-1"] = nil
	now = now.Add(30 * time.Second)
	ok, _ := c.Allowed(ctx, "client-1", "cases:decide")
	assert.True(t, ok, "still cached")

	now = now.Add(31 * time.Second)
	ok, _ = c.Allowed(ctx, "client-1", "cases:decide")
	assert.False(t, ok, "reloaded after ttl")
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestInvalidate(t *testing.T) {
	src := &countingSource{perms: map[string][]string{"client-1": {"cases:bulk"}}}
	c := New(src, time.Hour)
	ctx := context.Background()

	_, _ = c.Allowed(ctx, "client-1", "cases:bulk")
	c.Invalidate("client-1")
	_, _ = c.Allowed(ctx, "client-1", "cases:bulk")
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestSourceErrorIsReturned(t *testing.T) {
	src := &countingSource{err: errors.New("connection refused")}
	c := New(src, time.Minute)

	_, err := c.Allowed(context.Background(), "client-1", "cases:decide")
	assert.Error(t, err)
}

func TestConcurrentMissesShareOneLoad(t *testing.T) {
	src := &countingSource{perms: map[string][]string{"client-1": {"cases:decide"}}, delay: 50 * time.Millisecond}
	c := New(src, time.Minute)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := c.Allowed(context.Background(), "client-1", "cases:decide")
			assert.NoError(t, err)
			assert.True(t, ok)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), src.calls.Load())
}
