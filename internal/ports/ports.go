package ports

import (
	"context"
	"time"

	"DailyDigest/internal/domain"
)

// SourceFeed pulls fresh candidate items from upstream feeds.
type SourceFeed interface {
	FetchDaily(ctx context.Context, day time.Time) ([]domain.SourceItem, error)
}

// GenerationRequest carries one prompt to a generative-text provider.
type GenerationRequest struct {
	System    string
	Prompt    string
	Model     string
	MaxTokens int
}

// GenerationResult is the provider's text plus its reported usage.
type GenerationResult struct {
	Text  string
	Usage domain.Usage
}

// GenerationProvider is an external generative-text capability. Failures are
// wrapped in domain.ProviderError so callers can classify them.
type GenerationProvider interface {
	Name() string
	Generate(ctx context.Context, req GenerationRequest) (GenerationResult, error)
}

// DeliveryTransport sends an assembled digest. Implementations perform no
// retries themselves; retry policy lives with the orchestrator.
type DeliveryTransport interface {
	Name() string
	Send(ctx context.Context, d domain.Deliverable) error
}

// RunStore is the durable run ledger. Articles and cost entries are
// append-only; run rows are mutated only by the owning orchestrator.
type RunStore interface {
	AppendRun(ctx context.Context, run domain.Run) error
	UpdateRun(ctx context.Context, run domain.Run) error
	AppendArticle(ctx context.Context, article domain.Article) error
	AppendCostEntry(ctx context.Context, entry domain.CostEntry) error
	SummarizeCosts(ctx context.Context, from, to time.Time) (domain.CostSummary, error)
	DeliveredHeadlines(ctx context.Context, headlines []string) (map[string]bool, error)
}
