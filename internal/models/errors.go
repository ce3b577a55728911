package models

import (
	"errors"
	"fmt"
)

// Provider-level error taxonomy. The fetcher treats each of these as a
// signal to fall through to the next provider; only NoSourceAvailableError
// escapes to the orchestrator.
var (
	// ErrRateLimited means a provider's quota is exhausted; no network call
	// was made.
	ErrRateLimited = errors.New("provider rate limit exceeded")

	// ErrNoData means the provider responded but has nothing usable for the
	// symbol (zero price, error status, empty payload).
	ErrNoData = errors.New("provider returned no data")

	// ErrInsufficientHistory means a bar series is too short for a metric.
	// The metric is omitted; the error never propagates past the calculator.
	ErrInsufficientHistory = errors.New("insufficient history")
)

// NoSourceAvailableError is returned after every provider in the fallback
// chain has been exhausted for a symbol.
type NoSourceAvailableError struct {
	Symbol string
	Kind   string // "quote" or "historical"
}

func (e *NoSourceAvailableError) Error() string {
	return fmt.Sprintf("no source available for %s %s", e.Kind, e.Symbol)
}

// APIError represents an HTTP-level provider failure.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error: %s (status: %d, endpoint: %s)", e.Provider, e.Message, e.StatusCode, e.Endpoint)
}
