package workflow

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/phasegate/types"
)

// Two proposals computed against the same revision: exactly one commits, the
// other gets a retryable stale-revision fault.
func TestConcurrentProposals_OneWinner(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	ctx := context.Background()

	state, err := eng.StartSession(ctx, "s-race")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	decisions := make([]Decision, 2)

	propose := func(i int, field, value string) {
		defer wg.Done()
		// Each goroutine proposes from its own copy of the same snapshot.
		_, decisions[i], errs[i] = eng.ProposeFieldWrite(ctx, state.Clone(), "writer", field, value)
	}

	wg.Add(2)
	go propose(0, "content", "from-a")
	go propose(1, "notes", "from-b")
	wg.Wait()

	var accepted, stale int
	for i := range errs {
		switch {
		case errs[i] == nil && decisions[i].Accepted:
			accepted++
		case types.IsErrorCode(errs[i], types.ErrStaleRevision):
			stale++
			assert.True(t, types.IsRetryable(errs[i]))
		default:
			t.Fatalf("unexpected outcome %d: err=%v decision=%+v", i, errs[i], decisions[i])
		}
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, 1, stale)

	stored, err := store.Load(ctx, "s-race")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stored.Revision, "exactly one commit advanced the revision")
}

// Serialized retries under contention: every proposal eventually lands when
// the loser reloads and reproposes.
func TestConcurrentProposals_RetryLoop(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.StartSession(ctx, "s-retry")
	require.NoError(t, err)

	const writers = 8
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			for {
				latest, err := eng.CurrentState(ctx, "s-retry")
				if err != nil {
					t.Error(err)
					return
				}
				_, d, err := eng.ProposeFieldWrite(ctx, latest, "writer", "notes", "v")
				if err == nil {
					if !d.Accepted {
						t.Errorf("unexpected rejection: %+v", d)
					}
					return
				}
				if !types.IsErrorCode(err, types.ErrStaleRevision) {
					t.Errorf("unexpected error: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	stored, err := store.Load(ctx, "s-retry")
	require.NoError(t, err)
	assert.Equal(t, uint64(1+writers), stored.Revision)
}
