package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"verity/pkg/platform/sentinel"
)

const idempotencyKeyPrefix = "idem:"

// RedisStore reserves keys with SET NX EX; Redis expiry enforces retention.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a Redis-backed reservation store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

type redisRecord struct {
	CaseID    string    `json:"case_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func redisKey(clientID, key string) string {
	return idempotencyKeyPrefix + clientID + ":" + key
}

func (s *RedisStore) Get(ctx context.Context, clientID, key string) (*Record, error) {
	raw, err := s.client.Get(ctx, redisKey(clientID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rr redisRecord
	if err := json.Unmarshal(raw, &rr); err != nil {
		return nil, fmt.Errorf("decode idempotency record: %w", err)
	}
	return &Record{
		ClientID:  clientID,
		Key:       key,
		CaseID:    rr.CaseID,
		CreatedAt: rr.CreatedAt,
		ExpiresAt: rr.ExpiresAt,
	}, nil
}

func (s *RedisStore) PutIfAbsent(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(redisRecord{CaseID: rec.CaseID, CreatedAt: rec.CreatedAt, ExpiresAt: rec.ExpiresAt})
	if err != nil {
		return fmt.Errorf("encode idempotency record: %w", err)
	}
	ttl := rec.ExpiresAt.Sub(rec.CreatedAt)
	ok, err := s.client.SetNX(ctx, redisKey(rec.ClientID, rec.Key), payload, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, clientID, key string) error {
	return s.client.Del(ctx, redisKey(clientID, key)).Err()
}
