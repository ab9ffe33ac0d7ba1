package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DailyDigest/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRunRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	started := time.Date(2026, time.August, 30, 6, 0, 0, 0, time.UTC)
	run := domain.Run{ID: "run-1", StartedAt: started, Status: domain.RunPending}
	require.NoError(t, store.AppendRun(ctx, run))

	completed := started.Add(3 * time.Minute)
	run.Status = domain.RunCompleted
	run.CompletedAt = &completed
	run.ArticleCount = 4
	run.TotalCost = 1.0
	require.NoError(t, store.UpdateRun(ctx, run))

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, got.Status)
	assert.Equal(t, 4, got.ArticleCount)
	assert.InDelta(t, 1.0, got.TotalCost, 1e-9)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(completed))
	assert.True(t, got.StartedAt.Equal(started))
	assert.Empty(t, got.FailureReason)
}

func TestUpdateUnknownRun(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	err := store.UpdateRun(context.Background(), domain.Run{ID: "missing", Status: domain.RunFailed})
	assert.Error(t, err)
}

func TestTotalCostEqualsSumOfSuccessEntries(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.AppendRun(ctx, domain.Run{ID: "run-2", StartedAt: now, Status: domain.RunPending}))

	entries := []domain.CostEntry{
		{RunID: "run-2", Stage: "select", Provider: "alpha", Cost: 0.05, Outcome: domain.OutcomeSuccess, CreatedAt: now},
		{RunID: "run-2", Stage: "write", Provider: "alpha", Cost: 0, Outcome: domain.OutcomeRetryable, CreatedAt: now},
		{RunID: "run-2", Stage: "write", Provider: "alpha", Cost: 0.20, Outcome: domain.OutcomeSuccess, CreatedAt: now},
		{RunID: "run-2", Stage: "edit", Provider: "beta", Cost: 0, Outcome: domain.OutcomeFatal, CreatedAt: now},
		{RunID: "run-2", Stage: "edit", Provider: "alpha", Cost: 0.10, Outcome: domain.OutcomeSuccess, CreatedAt: now},
	}
	for _, e := range entries {
		require.NoError(t, store.AppendCostEntry(ctx, e))
	}

	total, err := store.SumRunCosts(ctx, "run-2")
	require.NoError(t, err)
	assert.InDelta(t, 0.35, total, 1e-9, "only success outcomes contribute")
}

func TestSummarizeCostsByDateRange(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	day1 := time.Date(2026, time.August, 28, 6, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, time.August, 29, 6, 0, 0, 0, time.UTC)

	require.NoError(t, store.AppendRun(ctx, domain.Run{ID: "run-3", StartedAt: day1, Status: domain.RunPending}))
	require.NoError(t, store.AppendCostEntry(ctx, domain.CostEntry{
		RunID: "run-3", Stage: "write", Provider: "alpha", Cost: 0.40, Outcome: domain.OutcomeSuccess, CreatedAt: day1,
	}))
	require.NoError(t, store.AppendCostEntry(ctx, domain.CostEntry{
		RunID: "run-3", Stage: "select", Provider: "alpha", Cost: 0.10, Outcome: domain.OutcomeSuccess, CreatedAt: day2,
	}))
	require.NoError(t, store.AppendCostEntry(ctx, domain.CostEntry{
		RunID: "run-3", Stage: "write", Provider: "alpha", Cost: 0, Outcome: domain.OutcomeRetryable, CreatedAt: day2,
	}))

	summary, err := store.SummarizeCosts(ctx, day1, day2)
	require.NoError(t, err)
	assert.InDelta(t, 0.40, summary.Total, 1e-9, "range is inclusive of from, exclusive of to")
	assert.Equal(t, 1, summary.Entries)

	summary, err = store.SummarizeCosts(ctx, day1, day2.Add(24*time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, 0.50, summary.Total, 1e-9)
	assert.InDelta(t, 0.40, summary.ByStage["write"], 1e-9)
	assert.InDelta(t, 0.10, summary.ByStage["select"], 1e-9)
	assert.Equal(t, 2, summary.Entries)
}

func TestDeliveredHeadlines(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.AppendRun(ctx, domain.Run{ID: "run-4", StartedAt: now, Status: domain.RunPending}))
	require.NoError(t, store.AppendArticle(ctx, domain.Article{
		ID: "art-1", RunID: "run-4", Headline: "Old Story", Body: "text",
		Tags: []string{"tech", "ai"}, CreatedAt: now, GenerationCost: 0.25,
	}))

	seen, err := store.DeliveredHeadlines(ctx, []string{"Old Story", "Fresh Story"})
	require.NoError(t, err)
	assert.True(t, seen["Old Story"])
	assert.False(t, seen["Fresh Story"])

	seen, err = store.DeliveredHeadlines(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, seen)
}
