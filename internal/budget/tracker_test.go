package budget

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveCommitRelease(t *testing.T) {
	t.Parallel()

	tr := NewTracker(1.0)

	r1, ok := tr.Reserve(0.4)
	require.True(t, ok)
	assert.InDelta(t, 0.4, tr.Outstanding(), 1e-9)

	tr.Commit(r1, 0.3)
	assert.InDelta(t, 0.3, tr.Committed(), 1e-9)
	assert.InDelta(t, 0.0, tr.Outstanding(), 1e-9)

	r2, ok := tr.Reserve(0.7)
	require.True(t, ok)
	tr.Release(r2)
	assert.InDelta(t, 0.3, tr.Committed(), 1e-9)
	assert.InDelta(t, 0.0, tr.Outstanding(), 1e-9)
}

func TestReserveRejectsOverCeiling(t *testing.T) {
	t.Parallel()

	tr := NewTracker(1.0)

	for i := 0; i < 4; i++ {
		r, ok := tr.Reserve(0.25)
		require.True(t, ok, "reservation %d", i)
		tr.Commit(r, 0.25)
	}

	_, ok := tr.Reserve(0.25)
	assert.False(t, ok, "fifth reservation must be rejected with zero headroom")
	assert.InDelta(t, 1.0, tr.Committed(), 1e-9)
}

func TestCommitDiffersFromEstimate(t *testing.T) {
	t.Parallel()

	tr := NewTracker(1.0)
	r, ok := tr.Reserve(0.5)
	require.True(t, ok)
	tr.Commit(r, 0.62)
	assert.InDelta(t, 0.62, tr.Committed(), 1e-9)
	assert.InDelta(t, 0.0, tr.Outstanding(), 1e-9)
}

func TestDoubleCommitIsIgnored(t *testing.T) {
	t.Parallel()

	tr := NewTracker(1.0)
	r, _ := tr.Reserve(0.2)
	tr.Commit(r, 0.2)
	tr.Commit(r, 0.2)
	tr.Release(r)
	assert.InDelta(t, 0.2, tr.Committed(), 1e-9)
}

func TestConcurrentReserveNeverOverCommits(t *testing.T) {
	t.Parallel()

	tr := NewTracker(1.0)

	var wg sync.WaitGroup
	granted := make(chan *Reservation, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r, ok := tr.Reserve(0.25); ok {
				granted <- r
			}
		}()
	}
	wg.Wait()
	close(granted)

	var n int
	for r := range granted {
		n++
		tr.Commit(r, 0.25)
	}

	assert.Equal(t, 4, n, "exactly four 0.25 reservations fit under 1.00")
	assert.InDelta(t, 1.0, tr.Committed(), 1e-9)
	assert.LessOrEqual(t, tr.Committed()+tr.Outstanding(), tr.Ceiling()+1e-9)
}

func TestResetClearsState(t *testing.T) {
	t.Parallel()

	tr := NewTracker(1.0)
	r, _ := tr.Reserve(0.5)
	tr.Commit(r, 0.5)

	tr.Reset(2.0)
	assert.InDelta(t, 0.0, tr.Committed(), 1e-9)
	assert.InDelta(t, 2.0, tr.Ceiling(), 1e-9)
}
