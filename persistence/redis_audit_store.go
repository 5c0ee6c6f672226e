package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BaSui01/phasegate/types"
)

// RedisAuditStore keeps each session's audit trail in a Redis list, which
// preserves append order without any further indexing.
type RedisAuditStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisAuditStore connects to Redis and verifies the connection.
func NewRedisAuditStore(cfg RedisConfig) (*RedisAuditStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "phasegate:"
	}
	return &RedisAuditStore{client: client, keyPrefix: prefix + "audit:"}, nil
}

func (s *RedisAuditStore) auditKey(sessionID string) string {
	return s.keyPrefix + sessionID
}

// Append pushes the record onto the session's list.
func (s *RedisAuditStore) Append(ctx context.Context, rec types.AuditRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}
	if err := s.client.RPush(ctx, s.auditKey(rec.SessionID), data).Err(); err != nil {
		return types.NewError(types.ErrAuditUnavailable, "redis rpush failed").WithCause(err).WithRetryable(true)
	}
	return nil
}

// Query returns the session's records in append order.
func (s *RedisAuditStore) Query(ctx context.Context, sessionID string) ([]types.AuditRecord, error) {
	raw, err := s.client.LRange(ctx, s.auditKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, types.NewError(types.ErrAuditUnavailable, "redis lrange failed").WithCause(err).WithRetryable(true)
	}
	out := make([]types.AuditRecord, 0, len(raw))
	for _, item := range raw {
		var rec types.AuditRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal audit record: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Close closes the underlying client.
func (s *RedisAuditStore) Close() error {
	return s.client.Close()
}
