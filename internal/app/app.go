// Package app wires configuration, clients, and services together
package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bobmcallan/tapewatch/internal/clients/alphavantage"
	"github.com/bobmcallan/tapewatch/internal/clients/finnhub"
	"github.com/bobmcallan/tapewatch/internal/clients/polygon"
	"github.com/bobmcallan/tapewatch/internal/clients/twelvedata"
	"github.com/bobmcallan/tapewatch/internal/common"
	"github.com/bobmcallan/tapewatch/internal/detect/extended"
	"github.com/bobmcallan/tapewatch/internal/detect/volume"
	"github.com/bobmcallan/tapewatch/internal/fetcher"
	"github.com/bobmcallan/tapewatch/internal/interfaces"
	"github.com/bobmcallan/tapewatch/internal/ratelimit"
	"github.com/bobmcallan/tapewatch/internal/scanner"
	"github.com/bobmcallan/tapewatch/internal/storage/diskcache"
)

// App holds all initialized services and clients. It is the shared core
// used by cmd/tapewatch.
type App struct {
	Config       *common.Config
	Logger       *common.Logger
	RateLimiter  interfaces.RateLimiter
	Cache        interfaces.Cache
	Providers    []interfaces.ProviderClient
	Fetcher      interfaces.Fetcher
	Volume       interfaces.VolumeDetector
	Extended     interfaces.ExtendedHoursDetector
	Orchestrator *scanner.Orchestrator
	StartupTime  time.Time
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes all services and clients. configPath may be empty,
// in which case TAPEWATCH_CONFIG and then the binary directory are tried.
func NewApp(configPath string) (*App, error) {
	binDir := getBinaryDir()

	if configPath == "" {
		configPath = os.Getenv("TAPEWATCH_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "tapewatch.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/tapewatch.toml" // fallback for development
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Resolve relative cache path to binary directory
	if config.Cache.Path != "" && !filepath.IsAbs(config.Cache.Path) {
		config.Cache.Path = filepath.Join(binDir, config.Cache.Path)
	}

	logger := common.NewLogger(config.Logging.Level)

	limiter := ratelimit.NewLimiter()
	cache := diskcache.NewCache(logger, config.Cache.Path)

	providers := buildProviders(config, limiter, logger)

	fetchSvc := fetcher.NewService(providers, cache,
		fetcher.WithLogger(logger),
		fetcher.WithQuoteTTL(config.Cache.GetQuoteTTL()),
		fetcher.WithHistoricalTTL(config.Cache.GetHistoricalTTL()),
	)

	volumeDetector := volume.NewAnalyzer(fetchSvc, config.Detection,
		volume.WithLogger(logger),
	)

	exchangeLoc, err := time.LoadLocation(config.Scanner.Exchange)
	if err != nil {
		return nil, fmt.Errorf("invalid exchange timezone: %w", err)
	}

	extendedMonitor := extended.NewMonitor(fetchSvc, config.Detection,
		extended.WithLogger(logger),
		extended.WithLocation(exchangeLoc),
	)

	orchestrator := scanner.NewOrchestrator(volumeDetector, extendedMonitor,
		scanner.WithLogger(logger),
		scanner.WithMaxWorkers(config.Scanner.MaxWorkers),
		scanner.WithDispatchGap(config.Scanner.GetDispatchGap()),
	)

	logger.Info().
		Int("providers", len(providers)).
		Int("watchlist", len(config.Watchlist)).
		Str("environment", config.Environment).
		Msg("Tapewatch initialized")

	return &App{
		Config:       config,
		Logger:       logger,
		RateLimiter:  limiter,
		Cache:        cache,
		Providers:    providers,
		Fetcher:      fetchSvc,
		Volume:       volumeDetector,
		Extended:     extendedMonitor,
		Orchestrator: orchestrator,
		StartupTime:  time.Now(),
	}, nil
}

// buildProviders constructs clients for every provider carrying an API key,
// in configured priority order.
func buildProviders(config *common.Config, limiter interfaces.RateLimiter, logger *common.Logger) []interfaces.ProviderClient {
	var providers []interfaces.ProviderClient

	for _, name := range config.ConfiguredProviders() {
		switch name {
		case finnhub.ProviderName:
			pc := config.Providers.Finnhub
			providers = append(providers, finnhub.NewClient(pc.APIKey, limiter,
				finnhub.WithBaseURL(pc.BaseURL),
				finnhub.WithLogger(logger),
				finnhub.WithTimeout(pc.GetTimeout()),
				finnhub.WithQuota(pc.RateLimit, pc.GetRateWindow()),
			))
		case alphavantage.ProviderName:
			pc := config.Providers.AlphaVantage
			providers = append(providers, alphavantage.NewClient(pc.APIKey, limiter,
				alphavantage.WithBaseURL(pc.BaseURL),
				alphavantage.WithLogger(logger),
				alphavantage.WithTimeout(pc.GetTimeout()),
				alphavantage.WithQuota(pc.RateLimit, pc.GetRateWindow()),
			))
		case twelvedata.ProviderName:
			pc := config.Providers.TwelveData
			providers = append(providers, twelvedata.NewClient(pc.APIKey, limiter,
				twelvedata.WithBaseURL(pc.BaseURL),
				twelvedata.WithLogger(logger),
				twelvedata.WithTimeout(pc.GetTimeout()),
				twelvedata.WithQuota(pc.RateLimit, pc.GetRateWindow()),
			))
		case polygon.ProviderName:
			pc := config.Providers.Polygon
			providers = append(providers, polygon.NewClient(pc.APIKey, limiter,
				polygon.WithBaseURL(pc.BaseURL),
				polygon.WithLogger(logger),
				polygon.WithTimeout(pc.GetTimeout()),
				polygon.WithQuota(pc.RateLimit, pc.GetRateWindow()),
			))
		}
	}

	return providers
}

// Close flushes the cache and releases resources.
func (a *App) Close() error {
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to flush cache on shutdown")
			return err
		}
	}
	a.Logger.Info().Msg("Tapewatch shut down")
	return nil
}
