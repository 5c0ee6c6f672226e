package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/phasegate/types"
	"github.com/BaSui01/phasegate/workflow"
)

func sessionState(sessionID string, revision uint64) *types.WorkflowState {
	now := time.Now().UTC().Truncate(time.Second)
	return &types.WorkflowState{
		SessionID:    sessionID,
		Phase:        "draft",
		PhaseHistory: []types.PhaseTraversal{{Phase: "draft", EnteredAt: now}},
		Fields:       map[string]any{"content": "body"},
		Revision:     revision,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// The session store contract every backend must honor: create-once, load,
// revision-checked save.
func runSessionStoreContract(t *testing.T, store workflow.SessionStore) {
	t.Helper()
	ctx := context.Background()

	// Missing sessions.
	_, err := store.Load(ctx, "absent")
	assert.True(t, types.IsErrorCode(err, types.ErrSessionNotFound))
	err = store.Save(ctx, sessionState("absent", 1), 1)
	assert.True(t, types.IsErrorCode(err, types.ErrSessionNotFound))

	// Create once.
	require.NoError(t, store.Create(ctx, sessionState("s-1", 1)))
	err = store.Create(ctx, sessionState("s-1", 1))
	assert.True(t, types.IsErrorCode(err, types.ErrSessionExists))

	loaded, err := store.Load(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), loaded.Revision)
	assert.Equal(t, "body", loaded.Fields["content"])

	// CAS: save with the right expected revision wins.
	next := loaded.Clone()
	next.Fields["content"] = "v2"
	next.Revision = 2
	require.NoError(t, store.Save(ctx, next, 1))

	// A second save against the old revision is stale and changes nothing.
	late := loaded.Clone()
	late.Fields["content"] = "lost"
	late.Revision = 2
	err = store.Save(ctx, late, 1)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrStaleRevision))
	assert.True(t, types.IsRetryable(err))

	current, err := store.Load(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), current.Revision)
	assert.Equal(t, "v2", current.Fields["content"])

	// Delete is idempotent.
	require.NoError(t, store.Delete(ctx, "s-1"))
	require.NoError(t, store.Delete(ctx, "s-1"))
	_, err = store.Load(ctx, "s-1")
	assert.True(t, types.IsErrorCode(err, types.ErrSessionNotFound))

	require.NoError(t, store.Ping(ctx))
}

func TestMemorySessionStore_Contract(t *testing.T) {
	runSessionStoreContract(t, NewMemorySessionStore())
}

func TestFileSessionStore_Contract(t *testing.T) {
	store, err := NewFileSessionStore(t.TempDir())
	require.NoError(t, err)
	runSessionStoreContract(t, store)
}

func TestRedisSessionStore_Contract(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := NewRedisSessionStore(RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer store.Close()
	runSessionStoreContract(t, store)
}

func TestMemorySessionStore_IsolatesCallers(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	state := sessionState("s-iso", 1)
	require.NoError(t, store.Create(ctx, state))

	// Mutating the caller's copy must not leak into the store.
	state.Fields["content"] = "mutated"
	loaded, err := store.Load(ctx, "s-iso")
	require.NoError(t, err)
	assert.Equal(t, "body", loaded.Fields["content"])

	loaded.Fields["content"] = "mutated again"
	again, err := store.Load(ctx, "s-iso")
	require.NoError(t, err)
	assert.Equal(t, "body", again.Fields["content"])
}

func TestFileSessionStore_SanitizesSessionIDs(t *testing.T) {
	store, err := NewFileSessionStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, sessionState("../escape/attempt", 1)))
	loaded, err := store.Load(ctx, "../escape/attempt")
	require.NoError(t, err)
	assert.Equal(t, "../escape/attempt", loaded.SessionID)
}

func TestRedisSessionStore_SurvivesReconnectReads(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := NewRedisSessionStore(RedisConfig{Addr: mr.Addr(), KeyPrefix: "test:"})
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, sessionState("s-redis", 1)))

	// A second store over the same server sees the session.
	other, err := NewRedisSessionStore(RedisConfig{Addr: mr.Addr(), KeyPrefix: "test:"})
	require.NoError(t, err)
	defer other.Close()
	loaded, err := other.Load(ctx, "s-redis")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), loaded.Revision)
}

func TestNewSessionStore_Factory(t *testing.T) {
	store, err := NewSessionStore(StoreConfig{Type: StoreTypeMemory}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemorySessionStore{}, store)

	store, err = NewSessionStore(StoreConfig{Type: StoreTypeFile, BaseDir: t.TempDir()}, nil)
	require.NoError(t, err)
	assert.IsType(t, &FileSessionStore{}, store)

	_, err = NewSessionStore(StoreConfig{Type: "carrier-pigeon"}, nil)
	assert.Error(t, err)
}
