// Package router maps logical pipeline tasks to concrete external providers
// with pricing knowledge and single-step fallback ordering.
package router

import (
	"context"
	"fmt"
	"log/slog"

	"DailyDigest/internal/budget"
	"DailyDigest/internal/domain"
	"DailyDigest/internal/ports"
)

// TaskKind is the logical unit of work being routed.
type TaskKind string

const (
	TaskSelect  TaskKind = "select"
	TaskWrite   TaskKind = "write"
	TaskEdit    TaskKind = "edit"
	TaskDeliver TaskKind = "deliver"
)

// Route binds one provider/model with its pricing for a task. Prices are
// dollars per thousand units; FlatPrice covers paid per-message delivery.
type Route struct {
	Provider         string
	Model            string
	InputPricePer1K  float64
	OutputPricePer1K float64
	FlatPrice        float64
	MaxTokens        int
}

// Invocation is one routed call. Generation tasks use System/Prompt;
// deliver uses Deliverable.
type Invocation struct {
	Task        TaskKind
	System      string
	Prompt      string
	Deliverable *domain.Deliverable
}

// Result carries the call output, reported usage, actual cost computed from
// the invoked route's pricing, and the still-open reservation the caller must
// Commit (or Release on its own failure path).
type Result struct {
	Text        string
	Usage       domain.Usage
	Cost        float64
	Provider    string
	Model       string
	Reservation *budget.Reservation
}

// Router is a stateless mapping from task kinds to ordered provider routes.
// At most two routes (primary plus one fallback) are tried per invocation to
// bound cost and latency.
type Router struct {
	routes    map[TaskKind][]Route
	providers map[string]ports.GenerationProvider
	delivery  ports.DeliveryTransport
	budget    *budget.Tracker
	logger    *slog.Logger
}

// New wires the routing table to concrete providers and the budget tracker.
func New(routes map[TaskKind][]Route, providers map[string]ports.GenerationProvider, delivery ports.DeliveryTransport, tracker *budget.Tracker, logger *slog.Logger) *Router {
	return &Router{
		routes:    routes,
		providers: providers,
		delivery:  delivery,
		budget:    tracker,
		logger:    logger,
	}
}

// Invoke estimates cost for the primary route, reserves budget, performs the
// call, and on a retryable provider failure releases the hold and retries
// once against the fallback route with a fresh reservation. A failed
// reservation surfaces as domain.ErrBudgetRejected without side effects.
func (r *Router) Invoke(ctx context.Context, inv Invocation) (*Result, error) {
	routes, ok := r.routes[inv.Task]
	if !ok || len(routes) == 0 {
		return nil, fmt.Errorf("no route configured for task %s", inv.Task)
	}
	if len(routes) > 2 {
		routes = routes[:2]
	}

	var lastErr error
	for i, route := range routes {
		estimate := r.estimate(inv, route)
		reservation, granted := r.budget.Reserve(estimate)
		if !granted {
			return nil, domain.ErrBudgetRejected
		}

		res, err := r.call(ctx, inv, route)
		if err != nil {
			r.budget.Release(reservation)
			lastErr = err
			if domain.IsRetryable(err) && i == 0 && len(routes) > 1 {
				r.debug("falling back", "task", string(inv.Task), "from", route.Provider, "error", err)
				continue
			}
			return nil, err
		}

		res.Reservation = reservation
		res.Cost = route.FlatPrice +
			float64(res.Usage.InputUnits)/1000*route.InputPricePer1K +
			float64(res.Usage.OutputUnits)/1000*route.OutputPricePer1K
		return res, nil
	}
	return nil, lastErr
}

func (r *Router) call(ctx context.Context, inv Invocation, route Route) (*Result, error) {
	if inv.Task == TaskDeliver {
		if r.delivery == nil {
			return nil, fmt.Errorf("no delivery transport configured")
		}
		if inv.Deliverable == nil {
			return nil, fmt.Errorf("deliver invocation without deliverable")
		}
		if err := r.delivery.Send(ctx, *inv.Deliverable); err != nil {
			return nil, err
		}
		return &Result{Provider: r.delivery.Name()}, nil
	}

	provider, ok := r.providers[route.Provider]
	if !ok {
		return nil, &domain.ProviderError{
			Provider: route.Provider,
			Err:      fmt.Errorf("provider not registered"),
		}
	}

	out, err := provider.Generate(ctx, ports.GenerationRequest{
		System:    inv.System,
		Prompt:    inv.Prompt,
		Model:     route.Model,
		MaxTokens: route.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	return &Result{
		Text:     out.Text,
		Usage:    out.Usage,
		Provider: provider.Name(),
		Model:    route.Model,
	}, nil
}

// estimate prices the call from payload size before true usage is known.
// Input is approximated at four bytes per unit; output at the route's full
// completion cap, so the hold is pessimistic.
func (r *Router) estimate(inv Invocation, route Route) float64 {
	if inv.Task == TaskDeliver {
		return route.FlatPrice
	}
	inputUnits := float64(len(inv.System)+len(inv.Prompt)) / 4
	outputUnits := float64(route.MaxTokens)
	return route.FlatPrice +
		inputUnits/1000*route.InputPricePer1K +
		outputUnits/1000*route.OutputPricePer1K
}

func (r *Router) debug(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}
