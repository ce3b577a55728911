// Package interfaces defines service contracts for Tapewatch
package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/tapewatch/internal/models"
)

// ProviderClient is one external market-data vendor integration. Adapters
// check the shared rate limiter before dispatching, never retry internally,
// and map vendor sentinel values to models.ErrNoData.
type ProviderClient interface {
	// Name returns the provider identifier used for rate limiting and
	// quote sourcing ("finnhub", "alpha_vantage", ...).
	Name() string

	// FetchQuote retrieves a real-time quote for a symbol.
	FetchQuote(ctx context.Context, symbol string) (*models.Quote, error)

	// FetchHistorical retrieves an ascending OHLCV series covering the
	// requested number of days at the given interval ("daily", "1hour", ...).
	FetchHistorical(ctx context.Context, symbol string, days int, interval string) ([]models.Bar, error)

	// SupportsExtendedHours reports whether the vendor exposes pre-market
	// and after-hours pricing.
	SupportsExtendedHours() bool

	// FetchExtendedHoursQuote retrieves an extended-hours quote. Providers
	// without extended-hours data return models.ErrNoData.
	FetchExtendedHoursQuote(ctx context.Context, symbol string) (*models.Quote, error)
}

// RateLimiter admits or denies provider calls against a sliding window.
type RateLimiter interface {
	// CanCall reports whether another call to the provider fits within
	// limit calls per window. A provider with no history always admits.
	CanCall(provider string, limit int, window time.Duration) bool

	// RecordCall counts a dispatched call against the provider's window
	// and daily diagnostic counter.
	RecordCall(provider string)

	// DailyCount returns today's diagnostic call count for the provider.
	DailyCount(provider string) int
}
