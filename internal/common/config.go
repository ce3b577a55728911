// Package common provides shared utilities for Tapewatch
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for Tapewatch
type Config struct {
	Environment string          `toml:"environment"`
	Watchlist   []string        `toml:"watchlist"`
	Providers   ProvidersConfig `toml:"providers"`
	Detection   DetectionConfig `toml:"detection"`
	Cache       CacheConfig     `toml:"cache"`
	Scanner     ScannerConfig   `toml:"scanner"`
	Logging     LoggingConfig   `toml:"logging"`
}

// ProvidersConfig holds market data provider configurations.
// Priority is the fixed fallback order used by the fetcher; providers
// without an API key are skipped at startup.
type ProvidersConfig struct {
	Priority     []string       `toml:"priority"`
	Finnhub      ProviderConfig `toml:"finnhub"`
	AlphaVantage ProviderConfig `toml:"alpha_vantage"`
	TwelveData   ProviderConfig `toml:"twelve_data"`
	Polygon      ProviderConfig `toml:"polygon"`
}

// ProviderConfig holds a single provider's API configuration
type ProviderConfig struct {
	BaseURL    string `toml:"base_url"`
	APIKey     string `toml:"api_key"`
	RateLimit  int    `toml:"rate_limit"`  // max calls per window
	RateWindow string `toml:"rate_window"` // sliding window, duration string
	Timeout    string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *ProviderConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// GetRateWindow parses and returns the rate limit window duration
func (c *ProviderConfig) GetRateWindow() time.Duration {
	d, err := time.ParseDuration(c.RateWindow)
	if err != nil {
		return time.Minute
	}
	return d
}

// DetectionConfig holds anomaly detection thresholds
type DetectionConfig struct {
	UnusualVolumeThreshold  float64 `toml:"unusual_volume_threshold"`  // ratio over average, e.g. 2.0
	ExtremeVolumeThreshold  float64 `toml:"extreme_volume_threshold"`  // ratio for CRITICAL, e.g. 5.0
	MinVolumeForAlert       int64   `toml:"min_volume_for_alert"`      // absolute volume floor
	VolumeLookbackDays      int     `toml:"volume_lookback_days"`      // average volume window
	ExtendedPriceThreshold  float64 `toml:"extended_price_threshold"`  // pct change to alert, e.g. 2.0
	ExtendedVolumeFloor     int64   `toml:"extended_volume_floor"`     // significant extended-hours volume
	IncludeTechnicalContext bool    `toml:"include_technical_context"` // RSI and levels in alert context
}

// CacheConfig holds cache TTLs and the on-disk path
type CacheConfig struct {
	Path          string `toml:"path"`
	QuoteTTL      string `toml:"quote_ttl"`
	HistoricalTTL string `toml:"historical_ttl"`
}

// GetQuoteTTL parses and returns the quote cache TTL
func (c *CacheConfig) GetQuoteTTL() time.Duration {
	d, err := time.ParseDuration(c.QuoteTTL)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// GetHistoricalTTL parses and returns the historical cache TTL
func (c *CacheConfig) GetHistoricalTTL() time.Duration {
	d, err := time.ParseDuration(c.HistoricalTTL)
	if err != nil {
		return time.Hour
	}
	return d
}

// ScannerConfig holds scan orchestration settings
type ScannerConfig struct {
	MaxWorkers  int    `toml:"max_workers"`
	DispatchGap string `toml:"dispatch_gap"` // pacing between symbol dispatches
	MaxAlerts   int    `toml:"max_alerts"`   // batch truncation hint for the messaging collaborator
	Exchange    string `toml:"exchange"`     // exchange timezone name for session windows
}

// GetDispatchGap parses and returns the dispatch pacing interval
func (c *ScannerConfig) GetDispatchGap() time.Duration {
	d, err := time.ParseDuration(c.DispatchGap)
	if err != nil {
		return 100 * time.Millisecond
	}
	return d
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DefaultWatchlist is the symbol set scanned when the config lists none.
var DefaultWatchlist = []string{
	"AAPL", "MSFT", "GOOGL", "AMZN", "META", "NVDA", "TSLA",
	"SPY", "QQQ", "AMD", "INTC", "NFLX", "DIS", "BA",
	"JPM", "BAC", "GS", "V", "MA",
	"JNJ", "PFE", "UNH", "MRNA",
	"XOM", "CVX", "OXY",
	"WMT", "TGT", "COST", "HD",
	"GME", "AMC", "PLTR", "SOFI",
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Watchlist:   append([]string(nil), DefaultWatchlist...),
		Providers: ProvidersConfig{
			Priority: []string{"finnhub", "alpha_vantage", "twelve_data", "polygon"},
			Finnhub: ProviderConfig{
				BaseURL:    "https://finnhub.io/api/v1",
				RateLimit:  60,
				RateWindow: "1m",
				Timeout:    "10s",
			},
			AlphaVantage: ProviderConfig{
				BaseURL:    "https://www.alphavantage.co",
				RateLimit:  5,
				RateWindow: "1m",
				Timeout:    "15s",
			},
			TwelveData: ProviderConfig{
				BaseURL:    "https://api.twelvedata.com",
				RateLimit:  8,
				RateWindow: "1m",
				Timeout:    "10s",
			},
			Polygon: ProviderConfig{
				BaseURL:    "https://api.polygon.io",
				RateLimit:  5,
				RateWindow: "1m",
				Timeout:    "10s",
			},
		},
		Detection: DetectionConfig{
			UnusualVolumeThreshold:  2.0,
			ExtremeVolumeThreshold:  5.0,
			MinVolumeForAlert:       100000,
			VolumeLookbackDays:      20,
			ExtendedPriceThreshold:  2.0,
			ExtendedVolumeFloor:     50000,
			IncludeTechnicalContext: true,
		},
		Cache: CacheConfig{
			Path:          "data/cache/stock_data.json",
			QuoteTTL:      "60s",
			HistoricalTTL: "1h",
		},
		Scanner: ScannerConfig{
			MaxWorkers:  5,
			DispatchGap: "100ms",
			MaxAlerts:   10,
			Exchange:    "America/New_York",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)
	normalizeWatchlist(config)

	return config, nil
}

// ConfiguredProviders returns the priority-ordered provider names that carry
// an API key. An empty result means the deployment cannot fetch anything.
func (c *Config) ConfiguredProviders() []string {
	byName := map[string]ProviderConfig{
		"finnhub":       c.Providers.Finnhub,
		"alpha_vantage": c.Providers.AlphaVantage,
		"twelve_data":   c.Providers.TwelveData,
		"polygon":       c.Providers.Polygon,
	}

	var configured []string
	for _, name := range c.Providers.Priority {
		pc, ok := byName[name]
		if !ok {
			continue
		}
		if strings.TrimSpace(pc.APIKey) != "" {
			configured = append(configured, name)
		}
	}
	return configured
}

// Validate fails fast on misconfiguration that would make every scan a no-op.
func (c *Config) Validate() error {
	if len(c.ConfiguredProviders()) == 0 {
		return fmt.Errorf("no data providers configured: set an API key for at least one of %v", c.Providers.Priority)
	}
	if c.Scanner.MaxWorkers <= 0 {
		return fmt.Errorf("scanner max_workers must be positive, got %d", c.Scanner.MaxWorkers)
	}
	if _, err := time.LoadLocation(c.Scanner.Exchange); err != nil {
		return fmt.Errorf("invalid exchange timezone %q: %w", c.Scanner.Exchange, err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("TAPEWATCH_ENV"); env != "" {
		config.Environment = env
	}

	if level := os.Getenv("TAPEWATCH_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if path := os.Getenv("TAPEWATCH_CACHE_PATH"); path != "" {
		config.Cache.Path = path
	}

	if wl := os.Getenv("TAPEWATCH_WATCHLIST"); wl != "" {
		config.Watchlist = strings.Split(wl, ",")
	}

	if workers := os.Getenv("TAPEWATCH_MAX_WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil {
			config.Scanner.MaxWorkers = n
		}
	}

	if key := os.Getenv("TAPEWATCH_FINNHUB_API_KEY"); key != "" {
		config.Providers.Finnhub.APIKey = key
	}
	if key := os.Getenv("TAPEWATCH_ALPHA_VANTAGE_API_KEY"); key != "" {
		config.Providers.AlphaVantage.APIKey = key
	}
	if key := os.Getenv("TAPEWATCH_TWELVE_DATA_API_KEY"); key != "" {
		config.Providers.TwelveData.APIKey = key
	}
	if key := os.Getenv("TAPEWATCH_POLYGON_API_KEY"); key != "" {
		config.Providers.Polygon.APIKey = key
	}
}

// normalizeWatchlist upper-cases and trims symbols, dropping empties.
func normalizeWatchlist(config *Config) {
	var symbols []string
	for _, s := range config.Watchlist {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			symbols = append(symbols, s)
		}
	}
	config.Watchlist = symbols
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
