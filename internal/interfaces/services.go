package interfaces

import (
	"context"

	"github.com/bobmcallan/tapewatch/internal/models"
)

// Fetcher orchestrates the cache-first, priority-ordered provider chain.
type Fetcher interface {
	// GetQuote returns a quote from cache or the first provider that
	// produces one. Returns *models.NoSourceAvailableError when the whole
	// chain is exhausted.
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)

	// GetExtendedHoursQuote prefers extended-hours capable providers,
	// falling back to a regular quote.
	GetExtendedHoursQuote(ctx context.Context, symbol string) (*models.Quote, error)

	// GetHistorical returns an ascending daily bar series covering the
	// requested number of days.
	GetHistorical(ctx context.Context, symbol string, days int) ([]models.Bar, error)

	// GetStockData returns the quote, bar series, and derived metrics for
	// a symbol in one aggregate.
	GetStockData(ctx context.Context, symbol string) (*models.StockData, error)
}

// VolumeDetector flags unusual-volume symbols.
type VolumeDetector interface {
	// Analyze returns a VolumeAlert when the symbol shows unusual volume,
	// (nil, nil) when it does not.
	Analyze(ctx context.Context, symbol string) (*models.VolumeAlert, error)
}

// ExtendedHoursDetector flags significant extended-hours price moves.
type ExtendedHoursDetector interface {
	// CurrentSession returns the active market session from exchange-local
	// wall-clock time.
	CurrentSession() models.Session

	// Analyze returns an ExtendedHoursAlert for a significant move during
	// PREMARKET or AFTERHOURS, (nil, nil) otherwise.
	Analyze(ctx context.Context, symbol string) (*models.ExtendedHoursAlert, error)
}
