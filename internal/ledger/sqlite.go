// Package ledger persists runs, articles, and cost entries in an embedded
// SQLite database. Articles and cost entries are append-only; run rows are
// mutated in place only by the owning orchestrator while the run is active.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite" // pure Go SQLite driver

	"DailyDigest/internal/domain"
	"DailyDigest/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id             TEXT PRIMARY KEY,
    started_at     TEXT NOT NULL,
    completed_at   TEXT,
    status         TEXT NOT NULL,
    article_count  INTEGER NOT NULL DEFAULT 0,
    total_cost     REAL NOT NULL DEFAULT 0,
    failure_reason TEXT
);
CREATE TABLE IF NOT EXISTS articles (
    id              TEXT PRIMARY KEY,
    run_id          TEXT NOT NULL REFERENCES runs(id),
    headline        TEXT NOT NULL,
    content         TEXT NOT NULL,
    tags            TEXT,
    created_at      TEXT NOT NULL,
    generation_cost REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS cost_entries (
    run_id       TEXT NOT NULL REFERENCES runs(id),
    stage        TEXT NOT NULL,
    provider     TEXT NOT NULL,
    model        TEXT,
    input_units  INTEGER NOT NULL,
    output_units INTEGER NOT NULL,
    cost         REAL NOT NULL,
    outcome      TEXT NOT NULL,
    created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_articles_run ON articles(run_id);
CREATE INDEX IF NOT EXISTS idx_cost_entries_run ON cost_entries(run_id);
CREATE INDEX IF NOT EXISTS idx_cost_entries_created ON cost_entries(created_at);
`

// Store implements ports.RunStore on SQLite.
type Store struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

var _ ports.RunStore = (*Store)(nil)

// Open creates or opens the database at path and ensures the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent appenders.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db, sb: sq.StatementBuilder.PlaceholderFormat(sq.Question)}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// AppendRun inserts a new run row.
func (s *Store) AppendRun(ctx context.Context, run domain.Run) error {
	query := s.sb.Insert("runs").
		Columns("id", "started_at", "completed_at", "status", "article_count", "total_cost", "failure_reason").
		Values(run.ID, formatTime(run.StartedAt), formatTimePtr(run.CompletedAt), string(run.Status), run.ArticleCount, run.TotalCost, nullString(run.FailureReason))

	if _, err := query.RunWith(s.db).ExecContext(ctx); err != nil {
		return fmt.Errorf("append run: %w", err)
	}
	return nil
}

// UpdateRun advances status, timestamps, and totals for an existing run.
func (s *Store) UpdateRun(ctx context.Context, run domain.Run) error {
	query := s.sb.Update("runs").
		Set("status", string(run.Status)).
		Set("completed_at", formatTimePtr(run.CompletedAt)).
		Set("article_count", run.ArticleCount).
		Set("total_cost", run.TotalCost).
		Set("failure_reason", nullString(run.FailureReason)).
		Where(sq.Eq{"id": run.ID})

	res, err := query.RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update run: unknown run %s", run.ID)
	}
	return nil
}

// GetRun loads a single run row.
func (s *Store) GetRun(ctx context.Context, id string) (domain.Run, error) {
	query := s.sb.Select("id", "started_at", "completed_at", "status", "article_count", "total_cost", "failure_reason").
		From("runs").
		Where(sq.Eq{"id": id})

	var (
		run         domain.Run
		startedAt   string
		completedAt sql.NullString
		status      string
		reason      sql.NullString
	)
	err := query.RunWith(s.db).QueryRowContext(ctx).
		Scan(&run.ID, &startedAt, &completedAt, &status, &run.ArticleCount, &run.TotalCost, &reason)
	if err != nil {
		return domain.Run{}, fmt.Errorf("get run %s: %w", id, err)
	}

	run.Status = domain.RunStatus(status)
	run.StartedAt = parseTime(startedAt)
	if completedAt.Valid {
		t := parseTime(completedAt.String)
		run.CompletedAt = &t
	}
	run.FailureReason = reason.String
	return run, nil
}

// AppendArticle inserts an article row; articles are never mutated afterward.
func (s *Store) AppendArticle(ctx context.Context, article domain.Article) error {
	query := s.sb.Insert("articles").
		Columns("id", "run_id", "headline", "content", "tags", "created_at", "generation_cost").
		Values(article.ID, article.RunID, article.Headline, article.Body,
			strings.Join(article.Tags, ","), formatTime(article.CreatedAt), article.GenerationCost)

	if _, err := query.RunWith(s.db).ExecContext(ctx); err != nil {
		return fmt.Errorf("append article: %w", err)
	}
	return nil
}

// AppendCostEntry inserts one billed call attempt record.
func (s *Store) AppendCostEntry(ctx context.Context, entry domain.CostEntry) error {
	query := s.sb.Insert("cost_entries").
		Columns("run_id", "stage", "provider", "model", "input_units", "output_units", "cost", "outcome", "created_at").
		Values(entry.RunID, entry.Stage, entry.Provider, entry.Model,
			entry.InputUnits, entry.OutputUnits, entry.Cost, string(entry.Outcome), formatTime(entry.CreatedAt))

	if _, err := query.RunWith(s.db).ExecContext(ctx); err != nil {
		return fmt.Errorf("append cost entry: %w", err)
	}
	return nil
}

// SumRunCosts totals committed spend recorded for one run's successful calls.
func (s *Store) SumRunCosts(ctx context.Context, runID string) (float64, error) {
	query := s.sb.Select("COALESCE(SUM(cost), 0)").
		From("cost_entries").
		Where(sq.Eq{"run_id": runID, "outcome": string(domain.OutcomeSuccess)})

	var total float64
	if err := query.RunWith(s.db).QueryRowContext(ctx).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum run costs: %w", err)
	}
	return total, nil
}

// SummarizeCosts aggregates successful spend between from and to, inclusive
// of from, exclusive of to, broken down per stage.
func (s *Store) SummarizeCosts(ctx context.Context, from, to time.Time) (domain.CostSummary, error) {
	query := s.sb.Select("stage", "COALESCE(SUM(cost), 0)", "COUNT(*)").
		From("cost_entries").
		Where(sq.Eq{"outcome": string(domain.OutcomeSuccess)}).
		Where(sq.GtOrEq{"created_at": formatTime(from)}).
		Where(sq.Lt{"created_at": formatTime(to)}).
		GroupBy("stage")

	rows, err := query.RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return domain.CostSummary{}, fmt.Errorf("summarize costs: %w", err)
	}
	defer rows.Close()

	summary := domain.CostSummary{ByStage: map[string]float64{}}
	for rows.Next() {
		var (
			stage string
			cost  float64
			count int
		)
		if err := rows.Scan(&stage, &cost, &count); err != nil {
			return domain.CostSummary{}, fmt.Errorf("scan summary row: %w", err)
		}
		summary.ByStage[stage] = cost
		summary.Total += cost
		summary.Entries += count
	}
	if err := rows.Err(); err != nil {
		return domain.CostSummary{}, fmt.Errorf("summary rows: %w", err)
	}
	return summary, nil
}

// DeliveredHeadlines returns which of the given headlines already exist in
// the ledger, for deduplication across cycles.
func (s *Store) DeliveredHeadlines(ctx context.Context, headlines []string) (map[string]bool, error) {
	seen := map[string]bool{}
	if len(headlines) == 0 {
		return seen, nil
	}

	query := s.sb.Select("headline").
		From("articles").
		Where(sq.Eq{"headline": headlines})

	rows, err := query.RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query delivered headlines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scan headline: %w", err)
		}
		seen[h] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("headline rows: %w", err)
	}
	return seen, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
