package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"DailyDigest/internal/budget"
	"DailyDigest/internal/domain"
	"DailyDigest/internal/ports"
	"DailyDigest/internal/retry"
	"DailyDigest/internal/router"
)

// Deps wires all driven adapters into the orchestrator.
type Deps struct {
	Source ports.SourceFeed
	Router *router.Router
	Budget *budget.Tracker
	Store  ports.RunStore
	Logger *slog.Logger
}

// Options tunes one pipeline instance.
type Options struct {
	Ceiling        float64
	MaxItems       int
	SelectTop      int
	Workers        int
	TestMaxItems   int
	Retry          retry.Policy
	Recipients     []string
	Subject        string
	SelectorPrompt string
	WriterPrompt   string
	EditorPrompt   string
}

// Orchestrator drives the fixed stage sequence Select → Generate → Assemble
// → Deliver for one run at a time. It owns the in-memory Run for the cycle's
// duration and is the single writer of its ledger records.
type Orchestrator struct {
	source ports.SourceFeed
	router *router.Router
	budget *budget.Tracker
	store  ports.RunStore
	logger *slog.Logger
	opts   Options

	activeMu sync.Mutex
	activeID string

	// serializes ledger writes and Run mutation across generation workers
	ledgerMu sync.Mutex
}

// NewOrchestrator constructs the orchestration component.
func NewOrchestrator(deps Deps, opts Options) *Orchestrator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.SelectTop < 1 {
		opts.SelectTop = 5
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultPolicy()
	}
	return &Orchestrator{
		source: deps.Source,
		router: deps.Router,
		budget: deps.Budget,
		store:  deps.Store,
		logger: deps.Logger,
		opts:   opts,
	}
}

// ActiveRunID returns the identifier of the in-flight run, or "".
func (o *Orchestrator) ActiveRunID() string {
	o.activeMu.Lock()
	defer o.activeMu.Unlock()
	return o.activeID
}

// StartRun executes one full cycle. If another run is active it returns
// domain.ErrRunActive without touching the active run's state. The run and
// all its records are durably written before StartRun returns.
func (o *Orchestrator) StartRun(ctx context.Context, test bool) (domain.RunResult, error) {
	run := &domain.Run{ID: uuid.NewString(), StartedAt: time.Now().UTC(), Status: domain.RunPending}
	if !o.acquire(run.ID) {
		return domain.RunResult{}, domain.ErrRunActive
	}
	defer o.release()

	o.budget.Reset(o.opts.Ceiling)

	if err := o.store.AppendRun(ctx, *run); err != nil {
		return domain.RunResult{}, fmt.Errorf("open run record: %w", err)
	}
	o.info("run started", "run", run.ID, "test", test, "ceiling", o.opts.Ceiling)

	// Stage 1
	o.transition(ctx, run, domain.RunSelecting)
	items, err := o.selectStories(ctx, run, test)
	switch {
	case errors.Is(err, domain.ErrBudgetRejected):
		return o.finish(ctx, run, domain.RunBudgetExceeded, "budget exhausted before story selection"), nil
	case errors.Is(err, domain.ErrNoContent):
		return o.finish(ctx, run, domain.RunFailed, "no content: no fresh source items"), nil
	case err != nil:
		return o.finish(ctx, run, domain.RunFailed, fmt.Sprintf("select stories: %v", err)), nil
	}

	// Stage 2
	o.transition(ctx, run, domain.RunGenerating)
	articles := o.generateArticles(ctx, run, items)
	run.ArticleCount = len(articles)

	// Stage 3
	o.transition(ctx, run, domain.RunAssembling)
	if ctx.Err() != nil {
		return o.finish(ctx, run, domain.RunFailed, "run stopped by operator"), nil
	}
	if len(articles) == 0 {
		return o.finish(ctx, run, domain.RunFailed, "no content: zero articles generated"), nil
	}
	deliverable := o.assemble(run, articles)

	// Stage 4
	o.transition(ctx, run, domain.RunDelivering)
	if err := o.deliver(ctx, run, deliverable); err != nil {
		return o.finish(ctx, run, domain.RunFailed, fmt.Sprintf("delivery: %v", err)), nil
	}

	return o.finish(ctx, run, domain.RunCompleted, ""), nil
}

func (o *Orchestrator) acquire(runID string) bool {
	o.activeMu.Lock()
	defer o.activeMu.Unlock()
	if o.activeID != "" {
		return false
	}
	o.activeID = runID
	return true
}

func (o *Orchestrator) release() {
	o.activeMu.Lock()
	o.activeID = ""
	o.activeMu.Unlock()
}

// selectStories fetches candidates, drops already-delivered headlines, and
// issues the one costed select call that ranks the top items.
func (o *Orchestrator) selectStories(ctx context.Context, run *domain.Run, test bool) ([]domain.SourceItem, error) {
	items, err := o.source.FetchDaily(ctx, run.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("fetch sources: %w", err)
	}

	headlines := make([]string, len(items))
	for i, item := range items {
		headlines[i] = item.Headline
	}
	seen, err := o.store.DeliveredHeadlines(ctx, headlines)
	if err != nil {
		return nil, fmt.Errorf("dedupe headlines: %w", err)
	}

	fresh := items[:0]
	for _, item := range items {
		if !seen[item.Headline] {
			fresh = append(fresh, item)
		}
	}

	limit := o.opts.MaxItems
	if test && o.opts.TestMaxItems > 0 {
		limit = o.opts.TestMaxItems
	}
	if limit > 0 && len(fresh) > limit {
		fresh = fresh[:limit]
	}
	if len(fresh) == 0 {
		return nil, domain.ErrNoContent
	}

	top := o.opts.SelectTop
	if top > len(fresh) {
		top = len(fresh)
	}

	res, err := o.invokeCosted(ctx, run, router.Invocation{
		Task:   router.TaskSelect,
		System: o.opts.SelectorPrompt,
		Prompt: buildSelectionPrompt(fresh, top),
	})
	if err != nil {
		return nil, err
	}

	chosen := parseSelection(res.Text, len(fresh), top)
	selected := make([]domain.SourceItem, 0, len(chosen))
	for _, idx := range chosen {
		selected = append(selected, fresh[idx])
	}
	o.info("stories selected", "run", run.ID, "candidates", len(fresh), "selected", len(selected))
	return selected, nil
}

// generateArticles processes selected items on a bounded worker pool. Budget
// rejection stops further items but keeps completed articles; any other
// per-item failure skips that item only.
func (o *Orchestrator) generateArticles(ctx context.Context, run *domain.Run, items []domain.SourceItem) []domain.Article {
	var (
		mu        sync.Mutex
		articles  []domain.Article
		budgetHit atomic.Bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Workers)

	for _, item := range items {
		if budgetHit.Load() || gctx.Err() != nil {
			break
		}
		item := item
		g.Go(func() error {
			if budgetHit.Load() || gctx.Err() != nil {
				return nil
			}
			article, err := o.generateOne(gctx, run, item)
			switch {
			case errors.Is(err, domain.ErrBudgetRejected):
				budgetHit.Store(true)
				o.info("budget exhausted, ending generation early", "run", run.ID, "headline", item.Headline)
			case err != nil:
				o.warn("item skipped", "run", run.ID, "headline", item.Headline, "error", err)
			default:
				mu.Lock()
				articles = append(articles, *article)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return articles
}

// generateOne runs the strictly ordered write-then-edit pair for one item.
func (o *Orchestrator) generateOne(ctx context.Context, run *domain.Run, item domain.SourceItem) (*domain.Article, error) {
	writeRes, err := o.invokeCosted(ctx, run, router.Invocation{
		Task:   router.TaskWrite,
		System: o.opts.WriterPrompt,
		Prompt: buildWritePrompt(item),
	})
	if err != nil {
		return nil, err
	}

	editRes, err := o.invokeCosted(ctx, run, router.Invocation{
		Task:   router.TaskEdit,
		System: o.opts.EditorPrompt,
		Prompt: "Edit the following article for clarity and length. Return only the edited article.\n\n" + writeRes.Text,
	})
	if err != nil {
		return nil, err
	}

	article := &domain.Article{
		ID:             uuid.NewString(),
		RunID:          run.ID,
		Headline:       item.Headline,
		Body:           editRes.Text,
		Tags:           tagsFor(item),
		CreatedAt:      time.Now().UTC(),
		GenerationCost: writeRes.Cost + editRes.Cost,
	}

	o.ledgerMu.Lock()
	err = o.store.AppendArticle(ctx, *article)
	o.ledgerMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("persist article: %w", err)
	}
	return article, nil
}

// assemble composes the digest locally; no external call is made.
func (o *Orchestrator) assemble(run *domain.Run, articles []domain.Article) *domain.Deliverable {
	day := run.StartedAt.Format("Monday, 2 January 2006")

	var text strings.Builder
	var html strings.Builder
	html.WriteString("<h1>" + o.opts.Subject + "</h1>\n")

	for i, article := range articles {
		fmt.Fprintf(&text, "%d. %s\n\n%s\n\n", i+1, article.Headline, article.Body)
		fmt.Fprintf(&html, "<h2>%s</h2>\n<p>%s</p>\n", article.Headline,
			strings.ReplaceAll(article.Body, "\n\n", "</p>\n<p>"))
	}

	return &domain.Deliverable{
		Subject:    fmt.Sprintf("%s — %s", o.opts.Subject, day),
		Text:       text.String(),
		HTML:       html.String(),
		Recipients: o.opts.Recipients,
	}
}

// deliver issues the single routed delivery call. Failures do not roll back
// generated content.
func (o *Orchestrator) deliver(ctx context.Context, run *domain.Run, d *domain.Deliverable) error {
	_, err := o.invokeCosted(ctx, run, router.Invocation{
		Task:        router.TaskDeliver,
		Deliverable: d,
	})
	return err
}

// invokeCosted wraps one routed call with the uniform retry policy and
// records a cost entry per attempt. Budget rejection passes through
// untouched for the caller's planned partial-failure handling; a fatal
// per-item failure leaves zero committed cost (the reservation was already
// released by the router).
func (o *Orchestrator) invokeCosted(ctx context.Context, run *domain.Run, inv router.Invocation) (*router.Result, error) {
	var out *router.Result
	err := o.opts.Retry.Do(ctx, func(attempt int) error {
		res, err := o.router.Invoke(ctx, inv)
		if err != nil {
			if errors.Is(err, domain.ErrBudgetRejected) {
				return err
			}
			outcome := domain.OutcomeFatal
			if domain.IsRetryable(err) {
				outcome = domain.OutcomeRetryable
			}
			o.recordEntry(ctx, run, domain.CostEntry{
				RunID:     run.ID,
				Stage:     string(inv.Task),
				Provider:  domain.ProviderName(err),
				Outcome:   outcome,
				CreatedAt: time.Now().UTC(),
			})
			return err
		}

		o.budget.Commit(res.Reservation, res.Cost)
		o.recordEntry(ctx, run, domain.CostEntry{
			RunID:       run.ID,
			Stage:       string(inv.Task),
			Provider:    res.Provider,
			Model:       res.Model,
			InputUnits:  res.Usage.InputUnits,
			OutputUnits: res.Usage.OutputUnits,
			Cost:        res.Cost,
			Outcome:     domain.OutcomeSuccess,
			CreatedAt:   time.Now().UTC(),
		})
		out = res
		return nil
	})
	return out, err
}

// recordEntry appends the cost entry and keeps the run row's total in step
// with committed spend, under the single-writer lock.
func (o *Orchestrator) recordEntry(ctx context.Context, run *domain.Run, entry domain.CostEntry) {
	o.ledgerMu.Lock()
	defer o.ledgerMu.Unlock()

	if err := o.store.AppendCostEntry(ctx, entry); err != nil {
		o.warn("append cost entry", "run", run.ID, "stage", entry.Stage, "error", err)
	}
	if entry.Outcome == domain.OutcomeSuccess {
		run.TotalCost = o.budget.Committed()
		if err := o.store.UpdateRun(ctx, *run); err != nil {
			o.warn("update run totals", "run", run.ID, "error", err)
		}
	}
}

func (o *Orchestrator) transition(ctx context.Context, run *domain.Run, status domain.RunStatus) {
	o.ledgerMu.Lock()
	defer o.ledgerMu.Unlock()
	run.Status = status
	if err := o.store.UpdateRun(ctx, *run); err != nil {
		o.warn("persist transition", "run", run.ID, "status", status, "error", err)
	}
}

func (o *Orchestrator) finish(ctx context.Context, run *domain.Run, status domain.RunStatus, reason string) domain.RunResult {
	now := time.Now().UTC()

	o.ledgerMu.Lock()
	run.Status = status
	run.FailureReason = reason
	run.CompletedAt = &now
	run.TotalCost = o.budget.Committed()
	if err := o.store.UpdateRun(ctx, *run); err != nil {
		o.warn("finalize run", "run", run.ID, "error", err)
	}
	o.ledgerMu.Unlock()

	o.info("run finished",
		"run", run.ID,
		"status", string(status),
		"articles", run.ArticleCount,
		"cost", run.TotalCost,
		"reason", reason)

	return domain.RunResult{
		RunID:         run.ID,
		Status:        status,
		ArticleCount:  run.ArticleCount,
		TotalCost:     run.TotalCost,
		FailureReason: reason,
	}
}

func buildSelectionPrompt(items []domain.SourceItem, top int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Pick the %d most newsworthy stories from the list below. Reply with their numbers, comma separated.\n\n", top)
	for i, item := range items {
		fmt.Fprintf(&b, "%d. %s", i+1, item.Headline)
		if item.Summary != "" {
			fmt.Fprintf(&b, " — %s", item.Summary)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func buildWritePrompt(item domain.SourceItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Headline: %s\n", item.Headline)
	if item.Summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", item.Summary)
	}
	if item.URL != "" {
		fmt.Fprintf(&b, "Source: %s\n", item.URL)
	}
	b.WriteString("\nWrite a short news article covering this story.")
	return b.String()
}

// parseSelection extracts up to top one-based indexes from the model's
// reply; an unparseable reply falls back to the first top items.
func parseSelection(text string, n, top int) []int {
	var chosen []int
	used := map[int]bool{}

	for _, field := range strings.FieldsFunc(text, func(r rune) bool {
		return r < '0' || r > '9'
	}) {
		idx, err := strconv.Atoi(field)
		if err != nil || idx < 1 || idx > n || used[idx] {
			continue
		}
		used[idx] = true
		chosen = append(chosen, idx-1)
		if len(chosen) == top {
			break
		}
	}

	if len(chosen) == 0 {
		for i := 0; i < top && i < n; i++ {
			chosen = append(chosen, i)
		}
	}
	return chosen
}

func tagsFor(item domain.SourceItem) []string {
	tags := []string{}
	if item.Source != "" {
		tags = append(tags, item.Source)
	}
	return tags
}

func (o *Orchestrator) info(msg string, args ...any) {
	if o.logger != nil {
		o.logger.Info(msg, args...)
	}
}

func (o *Orchestrator) warn(msg string, args ...any) {
	if o.logger != nil {
		o.logger.Warn(msg, args...)
	}
}
