package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/phasegate/types"
)

func record(sessionID string, i int, ts time.Time) types.AuditRecord {
	return types.AuditRecord{
		ID:        fmt.Sprintf("rec-%d", i),
		SessionID: sessionID,
		Timestamp: ts,
		Actor:     "writer",
		Phase:     "draft",
		Action:    types.AuditActionFieldWrite,
		Field:     "content",
		Outcome:   types.AuditAccepted,
		Revision:  uint64(i),
	}
}

func TestMemorySink_AppendAndQuery(t *testing.T) {
	s := NewMemorySink()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	// Appended out of timestamp order.
	require.NoError(t, s.Append(ctx, record("s-1", 2, base.Add(2*time.Second))))
	require.NoError(t, s.Append(ctx, record("s-1", 1, base.Add(1*time.Second))))
	require.NoError(t, s.Append(ctx, record("s-2", 3, base)))

	recs, err := s.Query(ctx, "s-1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "rec-1", recs[0].ID)
	assert.Equal(t, "rec-2", recs[1].ID)

	other, err := s.Query(ctx, "s-2")
	require.NoError(t, err)
	assert.Len(t, other, 1)

	empty, err := s.Query(ctx, "s-none")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemorySink_StableOrderForEqualTimestamps(t *testing.T) {
	s := NewMemorySink()
	ctx := context.Background()
	ts := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, record("s-1", i, ts)))
	}
	recs, err := s.Query(ctx, "s-1")
	require.NoError(t, err)
	for i, rec := range recs {
		assert.Equal(t, fmt.Sprintf("rec-%d", i), rec.ID, "arrival order must survive equal timestamps")
	}
}

func TestMemorySink_QueryReturnsCopies(t *testing.T) {
	s := NewMemorySink()
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, record("s-1", 1, time.Now())))

	recs, err := s.Query(ctx, "s-1")
	require.NoError(t, err)
	recs[0].Reason = "tampered"

	again, err := s.Query(ctx, "s-1")
	require.NoError(t, err)
	assert.Empty(t, again[0].Reason)
}

func TestMemorySink_ClosedFailsAppends(t *testing.T) {
	s := NewMemorySink()
	require.NoError(t, s.Close())

	err := s.Append(context.Background(), record("s-1", 1, time.Now()))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrAuditUnavailable))

	_, err = s.Query(context.Background(), "s-1")
	assert.Error(t, err)
}
