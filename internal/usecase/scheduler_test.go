package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DailyDigest/internal/domain"
)

func TestNextTrigger(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("digest", 2*60*60)

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "before today's slot fires today",
			now:  time.Date(2025, 3, 10, 6, 30, 0, 0, loc),
			want: time.Date(2025, 3, 10, 7, 0, 0, 0, loc),
		},
		{
			name: "after today's slot rolls to tomorrow",
			now:  time.Date(2025, 3, 10, 7, 0, 1, 0, loc),
			want: time.Date(2025, 3, 11, 7, 0, 0, 0, loc),
		},
		{
			name: "exactly at the slot rolls to tomorrow",
			now:  time.Date(2025, 3, 10, 7, 0, 0, 0, loc),
			want: time.Date(2025, 3, 11, 7, 0, 0, 0, loc),
		},
		{
			name: "month boundary",
			now:  time.Date(2025, 3, 31, 23, 0, 0, 0, loc),
			want: time.Date(2025, 4, 1, 7, 0, 0, 0, loc),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nextTrigger(tt.now, 7, 0)
			assert.True(t, got.Equal(tt.want), "got %s, want %s", got, tt.want)
			assert.True(t, got.After(tt.now), "trigger must be strictly after now")
		})
	}
}

func TestTriggerSkipsWhileRunActive(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{
		started: make(chan struct{}),
		block:   make(chan struct{}),
	}
	f := newFixture(2.0, 1, provider, nil)
	sched := NewScheduler(7, 0, time.UTC, f.orch, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := f.orch.StartRun(context.Background(), false)
		assert.NoError(t, err)
	}()

	<-provider.started

	// must return promptly as a logged skip, not queue a second run
	sched.Trigger(context.Background())

	close(provider.block)
	<-done

	assert.Len(t, f.store.runList(), 1)
}

func TestSchedulerStartStop(t *testing.T) {
	t.Parallel()

	f := newFixture(2.0, 1, nil, nil)
	sched := NewScheduler(7, 0, time.UTC, f.orch, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, sched.Start(ctx))
	require.NoError(t, sched.Start(ctx), "second Start is a no-op")
	require.NoError(t, sched.Stop(ctx))
	require.NoError(t, sched.Stop(ctx), "second Stop is a no-op")

	// the loop is gone, so a manual trigger still works
	res, err := f.orch.StartRun(ctx, true)
	require.NoError(t, err)
	assert.NotEqual(t, domain.RunBudgetExceeded, res.Status)
}
