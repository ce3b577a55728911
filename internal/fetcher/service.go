// Package fetcher chains market-data providers behind a TTL cache
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bobmcallan/tapewatch/internal/common"
	"github.com/bobmcallan/tapewatch/internal/interfaces"
	"github.com/bobmcallan/tapewatch/internal/models"
	"github.com/bobmcallan/tapewatch/internal/signals"
)

const (
	DefaultQuoteTTL      = 60 * time.Second
	DefaultHistoricalTTL = time.Hour

	historicalDays = 30
)

// Service tries providers in priority order, serving from cache first.
// A provider failure logs and falls through to the next; only chain
// exhaustion surfaces as an error.
type Service struct {
	providers     []interfaces.ProviderClient
	cache         interfaces.Cache
	logger        *common.Logger
	quoteTTL      time.Duration
	historicalTTL time.Duration
}

// ServiceOption configures the fetcher
type ServiceOption func(*Service)

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithQuoteTTL sets the memory-only quote cache TTL
func WithQuoteTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.quoteTTL = ttl
	}
}

// WithHistoricalTTL sets the durable historical cache TTL
func WithHistoricalTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.historicalTTL = ttl
	}
}

// NewService creates a fetcher over the given provider chain. Order is
// priority order.
func NewService(providers []interfaces.ProviderClient, cache interfaces.Cache, opts ...ServiceOption) *Service {
	s := &Service{
		providers:     providers,
		cache:         cache,
		logger:        common.NewSilentLogger(),
		quoteTTL:      DefaultQuoteTTL,
		historicalTTL: DefaultHistoricalTTL,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func quoteKey(symbol string) string {
	return fmt.Sprintf("quote_%s", strings.ToUpper(symbol))
}

func histKey(symbol string, days int, interval string) string {
	return fmt.Sprintf("hist_%s_%d_%s", strings.ToUpper(symbol), days, interval)
}

// logProviderFailure classifies a provider error for the fall-through log.
func (s *Service) logProviderFailure(provider, symbol string, err error) {
	evt := s.logger.Warn().Str("provider", provider).Str("symbol", symbol)
	switch {
	case errors.Is(err, models.ErrRateLimited):
		evt.Msg("Provider rate limited, trying next")
	case errors.Is(err, models.ErrNoData):
		evt.Msg("Provider has no data for symbol, trying next")
	default:
		evt.Err(err).Msg("Provider request failed, trying next")
	}
}

// GetQuote returns a quote from cache or the first provider that produces
// one. Fresh quotes are cached in memory only.
func (s *Service) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	var cached models.Quote
	if s.cache.Get(quoteKey(symbol), &cached) {
		s.logger.Debug().Str("symbol", symbol).Msg("Quote served from cache")
		return &cached, nil
	}

	for _, provider := range s.providers {
		quote, err := provider.FetchQuote(ctx, symbol)
		if err != nil {
			s.logProviderFailure(provider.Name(), symbol, err)
			continue
		}

		s.cache.Set(quoteKey(symbol), quote, s.quoteTTL)
		s.logger.Debug().
			Str("symbol", symbol).
			Str("provider", provider.Name()).
			Msg("Quote fetched")
		return quote, nil
	}

	return nil, &models.NoSourceAvailableError{Symbol: symbol, Kind: "quote"}
}

// GetExtendedHoursQuote prefers extended-hours capable providers, then
// falls back to the regular quote chain.
func (s *Service) GetExtendedHoursQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	for _, provider := range s.providers {
		if !provider.SupportsExtendedHours() {
			continue
		}

		quote, err := provider.FetchExtendedHoursQuote(ctx, symbol)
		if err != nil {
			s.logProviderFailure(provider.Name(), symbol, err)
			continue
		}

		s.logger.Debug().
			Str("symbol", symbol).
			Str("provider", provider.Name()).
			Msg("Extended hours quote fetched")
		return quote, nil
	}

	return s.GetQuote(ctx, symbol)
}

// GetHistorical returns an ascending daily bar series, write-through
// cached so restarts do not refetch.
func (s *Service) GetHistorical(ctx context.Context, symbol string, days int) ([]models.Bar, error) {
	key := histKey(symbol, days, "daily")

	var cached []models.Bar
	if s.cache.Get(key, &cached) {
		s.logger.Debug().Str("symbol", symbol).Int("days", days).Msg("Historical served from cache")
		return cached, nil
	}

	for _, provider := range s.providers {
		bars, err := provider.FetchHistorical(ctx, symbol, days, "daily")
		if err != nil {
			s.logProviderFailure(provider.Name(), symbol, err)
			continue
		}

		if err := s.cache.SetDurable(key, bars, s.historicalTTL); err != nil {
			s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Failed to persist historical cache")
		}
		s.logger.Debug().
			Str("symbol", symbol).
			Str("provider", provider.Name()).
			Int("bars", len(bars)).
			Msg("Historical fetched")
		return bars, nil
	}

	return nil, &models.NoSourceAvailableError{Symbol: symbol, Kind: "historical"}
}

// GetStockData assembles quote, bar series, and derived metrics for a
// symbol. A missing bar series degrades to quote-only data.
func (s *Service) GetStockData(ctx context.Context, symbol string) (*models.StockData, error) {
	quote, err := s.GetQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}

	data := &models.StockData{
		Symbol:    strings.ToUpper(symbol),
		Quote:     quote,
		FetchedAt: time.Now(),
	}

	bars, err := s.GetHistorical(ctx, symbol, historicalDays)
	if err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("No historical data, metrics unavailable")
		return data, nil
	}

	data.Bars = bars
	data.Metrics = signals.Compute(bars)
	return data, nil
}

// Ensure Service implements Fetcher
var _ interfaces.Fetcher = (*Service)(nil)
