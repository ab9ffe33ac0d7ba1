package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrBudgetRejected is the first-class outcome of a failed reservation,
	// not a provider fault. Callers end the stage gracefully instead of
	// retrying.
	ErrBudgetRejected = errors.New("budget reservation rejected")

	// ErrRunActive is returned when StartRun is invoked while another run
	// has not reached a terminal state.
	ErrRunActive = errors.New("another run is active")

	// ErrNoContent marks a run that produced zero articles; such a run never
	// attempts delivery.
	ErrNoContent = errors.New("no content generated")
)

// ProviderError wraps a failed external call with its classification.
// Retryable covers timeouts, rate limits and transient network faults;
// everything else (bad credentials, malformed requests, exhausted quota)
// is fatal for the unit of work.
type ProviderError struct {
	Provider  string
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	kind := "fatal"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transient provider failure.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// ProviderName extracts the provider from a wrapped call failure, if any.
func ProviderName(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Provider
	}
	return ""
}
