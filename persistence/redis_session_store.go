package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BaSui01/phasegate/types"
)

// RedisSessionStore is a Redis-based session store for distributed
// deployments. The revision CAS is implemented with WATCH/MULTI so that
// concurrent writers from different processes observe exactly one winner.
type RedisSessionStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisSessionStore connects to Redis and verifies the connection.
func NewRedisSessionStore(cfg RedisConfig) (*RedisSessionStore, error) {
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
	return &RedisSessionStore{
		client:    client,
		keyPrefix: prefix + "session:",
		ttl:       cfg.SessionTTL,
	}, nil
}

func (s *RedisSessionStore) sessionKey(sessionID string) string {
	return s.keyPrefix + sessionID
}

// Create stores a new session with SETNX semantics.
func (s *RedisSessionStore) Create(ctx context.Context, state *types.WorkflowState) error {
	if state == nil || state.SessionID == "" {
		return types.NewError(types.ErrInternalError, "invalid session state")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.sessionKey(state.SessionID), data, s.ttl).Result()
	if err != nil {
		return types.NewError(types.ErrStoreUnavailable, "redis setnx failed").WithCause(err).WithRetryable(true)
	}
	if !ok {
		return types.NewErrorf(types.ErrSessionExists, "session %s already exists", state.SessionID)
	}
	return nil
}

// Load returns the current state.
func (s *RedisSessionStore) Load(ctx context.Context, sessionID string) (*types.WorkflowState, error) {
	data, err := s.client.Get(ctx, s.sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, types.NewErrorf(types.ErrSessionNotFound, "session %s not found", sessionID)
	}
	if err != nil {
		return nil, types.NewError(types.ErrStoreUnavailable, "redis get failed").WithCause(err).WithRetryable(true)
	}
	var state types.WorkflowState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &state, nil
}

// Save replaces the state under WATCH: the write commits only if the stored
// revision still equals expectedRevision when the transaction executes.
func (s *RedisSessionStore) Save(ctx context.Context, state *types.WorkflowState, expectedRevision uint64) error {
	if state == nil || state.SessionID == "" {
		return types.NewError(types.ErrInternalError, "invalid session state")
	}
	key := s.sessionKey(state.SessionID)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return types.NewErrorf(types.ErrSessionNotFound, "session %s not found", state.SessionID)
		}
		if err != nil {
			return err
		}
		var cur types.WorkflowState
		if err := json.Unmarshal(raw, &cur); err != nil {
			return fmt.Errorf("failed to unmarshal session: %w", err)
		}
		if cur.Revision != expectedRevision {
			return types.NewStaleRevisionError(state.SessionID, expectedRevision, cur.Revision)
		}

		data, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txf, key)
	if errors.Is(err, redis.TxFailedErr) {
		// The watched key changed between read and EXEC.
		return types.NewErrorf(types.ErrStaleRevision,
			"session %s: concurrent update during save", state.SessionID).WithRetryable(true)
	}
	return err
}

// Delete removes a session.
func (s *RedisSessionStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.sessionKey(sessionID)).Err()
}

// Ping checks if the store is healthy.
func (s *RedisSessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}
