package domain

import "time"

// SourceItem is a candidate headline fetched before selection. Ephemeral:
// only items that survive selection become Articles.
type SourceItem struct {
	ID          string
	Headline    string
	Summary     string
	URL         string
	Source      string
	PublishedAt time.Time
}

// Article is one generated content unit belonging to exactly one Run.
type Article struct {
	ID             string
	RunID          string
	Headline       string
	Body           string
	Tags           []string
	CreatedAt      time.Time
	GenerationCost float64
}

// Usage reports billed units from a single provider call.
type Usage struct {
	InputUnits  int64
	OutputUnits int64
}

// CallOutcome classifies one billed external call attempt.
type CallOutcome string

const (
	OutcomeSuccess   CallOutcome = "success"
	OutcomeRetryable CallOutcome = "retryable-failure"
	OutcomeFatal     CallOutcome = "fatal-failure"
)

// CostEntry records one billed external call attempt. Entries are append-only;
// only success entries carry committed cost.
type CostEntry struct {
	RunID       string
	Stage       string
	Provider    string
	Model       string
	InputUnits  int64
	OutputUnits int64
	Cost        float64
	Outcome     CallOutcome
	CreatedAt   time.Time
}

// CostSummary aggregates successful spend over a date range.
type CostSummary struct {
	Total   float64
	ByStage map[string]float64
	Entries int
}

// Deliverable is the assembled digest handed to a delivery transport.
type Deliverable struct {
	Subject    string
	Text       string
	HTML       string
	Recipients []string
}
