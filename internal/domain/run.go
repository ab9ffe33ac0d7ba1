package domain

import "time"

// RunStatus enumerates pipeline milestones. Transitions are forward-only.
type RunStatus string

const (
	RunPending        RunStatus = "pending"
	RunSelecting      RunStatus = "selecting_stories"
	RunGenerating     RunStatus = "generating_articles"
	RunAssembling     RunStatus = "assembling"
	RunDelivering     RunStatus = "delivering"
	RunCompleted      RunStatus = "completed"
	RunFailed         RunStatus = "failed"
	RunBudgetExceeded RunStatus = "budget_exceeded"
)

// Terminal reports whether the status ends a run.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunBudgetExceeded:
		return true
	}
	return false
}

// Run is one end-to-end execution of the pipeline. Owned exclusively by the
// orchestrator while active; immutable once terminal.
type Run struct {
	ID            string
	StartedAt     time.Time
	CompletedAt   *time.Time
	Status        RunStatus
	ArticleCount  int
	TotalCost     float64
	FailureReason string
}

// RunResult is the synchronous outcome returned by StartRun.
type RunResult struct {
	RunID         string
	Status        RunStatus
	ArticleCount  int
	TotalCost     float64
	FailureReason string
}
