// Package volume detects unusual trading volume patterns
package volume

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/bobmcallan/tapewatch/internal/common"
	"github.com/bobmcallan/tapewatch/internal/interfaces"
	"github.com/bobmcallan/tapewatch/internal/models"
)

const sourceName = "volume_analyzer"

// Analyzer flags symbols whose current volume is a multiple of their
// historical average, grading severity by the size of the spike and the
// accompanying price action.
type Analyzer struct {
	fetcher          interfaces.Fetcher
	logger           *common.Logger
	unusualThreshold float64
	extremeThreshold float64
	minVolume        int64
	includeContext   bool
	now              func() time.Time
}

// AnalyzerOption configures the analyzer
type AnalyzerOption func(*Analyzer)

// WithLogger sets the logger
func WithLogger(logger *common.Logger) AnalyzerOption {
	return func(a *Analyzer) {
		a.logger = logger
	}
}

// WithClock overrides the time source for tests
func WithClock(now func() time.Time) AnalyzerOption {
	return func(a *Analyzer) {
		a.now = now
	}
}

// NewAnalyzer creates a volume analyzer with thresholds from config
func NewAnalyzer(fetcher interfaces.Fetcher, cfg common.DetectionConfig, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		fetcher:          fetcher,
		logger:           common.NewSilentLogger(),
		unusualThreshold: cfg.UnusualVolumeThreshold,
		extremeThreshold: cfg.ExtremeVolumeThreshold,
		minVolume:        cfg.MinVolumeForAlert,
		includeContext:   cfg.IncludeTechnicalContext,
		now:              time.Now,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Analyze returns a VolumeAlert when the symbol shows unusual volume,
// (nil, nil) when it does not qualify.
func (a *Analyzer) Analyze(ctx context.Context, symbol string) (*models.VolumeAlert, error) {
	data, err := a.fetcher.GetStockData(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("volume analysis %s: %w", symbol, err)
	}
	if data.Quote == nil {
		return nil, nil
	}

	currentVolume := data.Quote.Volume
	if currentVolume < a.minVolume {
		a.logger.Debug().
			Str("symbol", symbol).
			Int64("volume", currentVolume).
			Msg("Volume below alert floor")
		return nil, nil
	}

	avgVolume, ok := data.AvgVolume()
	if !ok {
		a.logger.Debug().Str("symbol", symbol).Msg("No average volume available")
		return nil, nil
	}

	ratio := float64(currentVolume) / avgVolume
	if ratio < a.unusualThreshold {
		return nil, nil
	}

	severity := a.gradeSeverity(ratio, data)

	var context string
	if a.includeContext {
		context = a.describeContext(data, ratio)
	}

	alert := &models.VolumeAlert{
		Symbol:         symbol,
		Type:           "UNUSUAL_VOLUME",
		Severity:       severity,
		CurrentVolume:  currentVolume,
		AvgVolume:      avgVolume,
		VolumeRatio:    math.Round(ratio*100) / 100,
		Price:          data.Quote.Price,
		PriceChange:    data.Quote.Change,
		PriceChangePct: data.Quote.ChangePct,
		Session:        data.Quote.Session,
		RSI:            data.Metrics.RSI14,
		Support:        data.Metrics.Support,
		Resistance:     data.Metrics.Resistance,
		Context:        context,
		Timestamp:      a.now(),
		Source:         sourceName,
	}

	a.logger.Info().
		Str("symbol", symbol).
		Float64("ratio", alert.VolumeRatio).
		Str("severity", string(severity)).
		Msg("Volume alert")

	return alert, nil
}

// gradeSeverity maps the volume ratio onto the severity ladder, then
// escalates for outsized price moves and RSI extremes.
func (a *Analyzer) gradeSeverity(ratio float64, data *models.StockData) models.Severity {
	var severity models.Severity
	switch {
	case ratio >= a.extremeThreshold:
		severity = models.SeverityCritical
	case ratio >= a.unusualThreshold*2:
		severity = models.SeverityHigh
	case ratio >= a.unusualThreshold*1.5:
		severity = models.SeverityMedium
	default:
		severity = models.SeverityLow
	}

	if math.Abs(data.Quote.ChangePct) > 5 {
		severity = severity.Escalate()
	}

	if rsi := data.Metrics.RSI14; rsi != nil && (*rsi < 30 || *rsi > 70) {
		if severity == models.SeverityLow {
			severity = models.SeverityMedium
		}
	}

	return severity
}

// describeContext builds the human-readable explanation attached to alerts.
func (a *Analyzer) describeContext(data *models.StockData, ratio float64) string {
	var parts []string

	switch {
	case ratio >= a.extremeThreshold:
		parts = append(parts, "EXTREME volume spike")
	case ratio >= a.unusualThreshold*2:
		parts = append(parts, "Very high volume")
	default:
		parts = append(parts, "Elevated volume")
	}

	changePct := data.Quote.ChangePct
	switch {
	case changePct > 3:
		parts = append(parts, "strong upward price movement")
	case changePct > 1:
		parts = append(parts, "positive price action")
	case changePct < -3:
		parts = append(parts, "strong downward price movement")
	case changePct < -1:
		parts = append(parts, "negative price action")
	default:
		parts = append(parts, "relatively flat price")
	}

	if rsi := data.Metrics.RSI14; rsi != nil {
		if *rsi > 70 {
			parts = append(parts, "RSI overbought")
		} else if *rsi < 30 {
			parts = append(parts, "RSI oversold")
		}
	}

	price := data.Quote.Price
	if r := data.Metrics.Resistance; r != nil && price >= *r*0.98 {
		parts = append(parts, "near resistance")
	} else if s := data.Metrics.Support; s != nil && price <= *s*1.02 {
		parts = append(parts, "near support")
	}

	return strings.Join(parts, ", ")
}

// Breakout describes a volume-confirmed break of support or resistance.
type Breakout struct {
	Symbol         string    `json:"symbol"`
	Type           string    `json:"breakout_type"`
	Level          float64   `json:"breakout_level"`
	CurrentPrice   float64   `json:"current_price"`
	PriceChangePct float64   `json:"price_change_percent"`
	VolumeRatio    float64   `json:"volume_ratio"`
	RSI            *float64  `json:"rsi,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// AnalyzeBreakout reports a resistance breakout or support breakdown when
// price has crossed the level in the direction of an unusual volume spike.
// Returns (nil, nil) when no breakout pattern is present.
func (a *Analyzer) AnalyzeBreakout(ctx context.Context, symbol string) (*Breakout, error) {
	data, err := a.fetcher.GetStockData(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("breakout analysis %s: %w", symbol, err)
	}
	if data.Quote == nil || len(data.Bars) < 20 {
		return nil, nil
	}

	avgVolume, ok := data.AvgVolume()
	if !ok {
		return nil, nil
	}

	ratio := float64(data.Quote.Volume) / avgVolume
	price := data.Quote.Price
	changePct := data.Quote.ChangePct

	var kind string
	var level float64
	if r := data.Metrics.Resistance; r != nil && price > *r && changePct > 0 && ratio >= a.unusualThreshold {
		kind, level = "RESISTANCE_BREAKOUT", *r
	} else if s := data.Metrics.Support; s != nil && price < *s && changePct < 0 && ratio >= a.unusualThreshold {
		kind, level = "SUPPORT_BREAKDOWN", *s
	}

	if kind == "" {
		return nil, nil
	}

	return &Breakout{
		Symbol:         symbol,
		Type:           kind,
		Level:          level,
		CurrentPrice:   price,
		PriceChangePct: changePct,
		VolumeRatio:    math.Round(ratio*100) / 100,
		RSI:            data.Metrics.RSI14,
		Timestamp:      a.now(),
	}, nil
}

// Leader is one entry in a volume-ratio ranking.
type Leader struct {
	Symbol      string  `json:"symbol"`
	Volume      int64   `json:"volume"`
	AvgVolume   float64 `json:"avg_volume"`
	VolumeRatio float64 `json:"volume_ratio"`
	Price       float64 `json:"price"`
	ChangePct   float64 `json:"change_percent"`
	Source      string  `json:"source"`
}

// VolumeLeaders ranks symbols by volume ratio, highest first, returning at
// most topN entries. Symbols without usable volume data are skipped.
func (a *Analyzer) VolumeLeaders(ctx context.Context, symbols []string, topN int) []Leader {
	var leaders []Leader

	for _, symbol := range symbols {
		quote, err := a.fetcher.GetQuote(ctx, symbol)
		if err != nil {
			a.logger.Warn().Err(err).Str("symbol", symbol).Msg("Skipping symbol in leader ranking")
			continue
		}
		if quote.Volume == 0 {
			continue
		}

		avgVolume := float64(quote.AvgVolume)
		if avgVolume == 0 {
			bars, err := a.fetcher.GetHistorical(ctx, symbol, 20)
			if err != nil {
				continue
			}
			var sum float64
			var count int
			for _, bar := range bars {
				if bar.Volume > 0 {
					sum += float64(bar.Volume)
					count++
				}
			}
			if count == 0 {
				continue
			}
			avgVolume = sum / float64(count)
		}

		leaders = append(leaders, Leader{
			Symbol:      symbol,
			Volume:      quote.Volume,
			AvgVolume:   avgVolume,
			VolumeRatio: math.Round(float64(quote.Volume)/avgVolume*100) / 100,
			Price:       quote.Price,
			ChangePct:   quote.ChangePct,
			Source:      quote.Source,
		})
	}

	sort.Slice(leaders, func(i, j int) bool {
		return leaders[i].VolumeRatio > leaders[j].VolumeRatio
	})
	if len(leaders) > topN {
		leaders = leaders[:topN]
	}
	return leaders
}

// FlowPattern describes where volume is concentrating relative to price
// direction over recent sessions.
type FlowPattern struct {
	Symbol        string    `json:"symbol"`
	Pattern       string    `json:"pattern"`
	ADRatio       float64   `json:"ad_ratio"`
	AvgUpVolume   int64     `json:"avg_up_volume"`
	AvgDownVolume int64     `json:"avg_down_volume"`
	UpDays        int       `json:"up_days"`
	DownDays      int       `json:"down_days"`
	CurrentPrice  float64   `json:"current_price"`
	Timestamp     time.Time `json:"timestamp"`
}

// DetectAccumulation classifies the last ten sessions as ACCUMULATION
// (volume concentrated on up days), DISTRIBUTION (on down days), or
// NEUTRAL. Returns (nil, nil) without mixed up and down days.
func (a *Analyzer) DetectAccumulation(ctx context.Context, symbol string) (*FlowPattern, error) {
	data, err := a.fetcher.GetStockData(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("accumulation analysis %s: %w", symbol, err)
	}
	if len(data.Bars) < 10 {
		return nil, nil
	}

	recent := data.Bars[len(data.Bars)-10:]

	var upVolume, downVolume int64
	var upDays, downDays int
	for i := 1; i < len(recent); i++ {
		switch {
		case recent[i].Close > recent[i-1].Close:
			upVolume += recent[i].Volume
			upDays++
		case recent[i].Close < recent[i-1].Close:
			downVolume += recent[i].Volume
			downDays++
		}
	}

	if upDays == 0 || downDays == 0 {
		return nil, nil
	}

	avgUp := float64(upVolume) / float64(upDays)
	avgDown := float64(downVolume) / float64(downDays)

	var adRatio float64
	if avgDown > 0 {
		adRatio = avgUp / avgDown
	} else {
		adRatio = math.Inf(1)
	}

	pattern := "NEUTRAL"
	if adRatio > 1.5 {
		pattern = "ACCUMULATION"
	} else if adRatio < 0.67 {
		pattern = "DISTRIBUTION"
	}

	var price float64
	if data.Quote != nil {
		price = data.Quote.Price
	}

	return &FlowPattern{
		Symbol:        symbol,
		Pattern:       pattern,
		ADRatio:       math.Round(adRatio*100) / 100,
		AvgUpVolume:   int64(avgUp),
		AvgDownVolume: int64(avgDown),
		UpDays:        upDays,
		DownDays:      downDays,
		CurrentPrice:  price,
		Timestamp:     a.now(),
	}, nil
}

// Ensure Analyzer implements VolumeDetector
var _ interfaces.VolumeDetector = (*Analyzer)(nil)
