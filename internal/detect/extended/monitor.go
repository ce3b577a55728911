// Package extended monitors pre-market and after-hours trading activity
package extended

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/bobmcallan/tapewatch/internal/common"
	"github.com/bobmcallan/tapewatch/internal/interfaces"
	"github.com/bobmcallan/tapewatch/internal/models"
)

const sourceName = "extended_hours_monitor"

// Session boundaries in exchange-local minutes from midnight.
// Pre-market 04:00-09:30, regular 09:30-16:00, after-hours 16:00-20:00.
const (
	premarketStart  = 4 * 60
	regularStart    = 9*60 + 30
	regularEnd      = 16 * 60
	afterhoursEnd   = 20 * 60
	defaultExchange = "America/New_York"
)

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		// Fall back to fixed EST when tzdata is unavailable
		return time.FixedZone("EST", -5*60*60)
	}
	return loc
}

// Monitor detects significant price moves outside regular trading hours.
type Monitor struct {
	fetcher        interfaces.Fetcher
	logger         *common.Logger
	priceThreshold float64
	volumeFloor    int64
	location       *time.Location
	now            func() time.Time
}

// MonitorOption configures the monitor
type MonitorOption func(*Monitor)

// WithLogger sets the logger
func WithLogger(logger *common.Logger) MonitorOption {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// WithClock overrides the time source for tests
func WithClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) {
		m.now = now
	}
}

// WithLocation overrides the exchange timezone
func WithLocation(loc *time.Location) MonitorOption {
	return func(m *Monitor) {
		m.location = loc
	}
}

// NewMonitor creates an extended-hours monitor with thresholds from config
func NewMonitor(fetcher interfaces.Fetcher, cfg common.DetectionConfig, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		fetcher:        fetcher,
		logger:         common.NewSilentLogger(),
		priceThreshold: cfg.ExtendedPriceThreshold,
		volumeFloor:    cfg.ExtendedVolumeFloor,
		location:       mustLoadLocation(defaultExchange),
		now:            time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// CurrentSession classifies exchange-local wall-clock time into a market
// session. Weekends are CLOSED regardless of time of day.
func (m *Monitor) CurrentSession() models.Session {
	now := m.now().In(m.location)

	if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return models.SessionClosed
	}

	minutes := now.Hour()*60 + now.Minute()
	switch {
	case minutes >= premarketStart && minutes < regularStart:
		return models.SessionPremarket
	case minutes >= regularStart && minutes < regularEnd:
		return models.SessionRegular
	case minutes >= regularEnd && minutes < afterhoursEnd:
		return models.SessionAfterhours
	default:
		return models.SessionClosed
	}
}

// IsExtendedHours reports whether trading is currently in pre-market or
// after-hours.
func (m *Monitor) IsExtendedHours() bool {
	return m.CurrentSession().IsExtended()
}

// Analyze returns an ExtendedHoursAlert for a significant move during
// PREMARKET or AFTERHOURS, (nil, nil) otherwise. Outside extended sessions
// no alert is produced.
func (m *Monitor) Analyze(ctx context.Context, symbol string) (*models.ExtendedHoursAlert, error) {
	session := m.CurrentSession()
	if session == models.SessionRegular || session == models.SessionClosed {
		m.logger.Debug().
			Str("symbol", symbol).
			Str("session", string(session)).
			Msg("Not in extended hours")
		return nil, nil
	}

	quote, err := m.fetcher.GetExtendedHoursQuote(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("extended hours analysis %s: %w", symbol, err)
	}

	prevClose := quote.PreviousClose
	if prevClose == 0 {
		bars, err := m.fetcher.GetHistorical(ctx, symbol, 2)
		if err == nil && len(bars) >= 2 {
			prevClose = bars[len(bars)-2].Close
		}
	}
	if prevClose == 0 {
		m.logger.Debug().Str("symbol", symbol).Msg("No previous close available")
		return nil, nil
	}

	priceChange := quote.Price - prevClose
	priceChangePct := priceChange / prevClose * 100

	if math.Abs(priceChangePct) < m.priceThreshold {
		return nil, nil
	}

	severity := m.gradeSeverity(priceChangePct, quote.Volume)

	var spreadPct *float64
	if quote.Bid > 0 && quote.Ask > 0 {
		s := math.Round((quote.Ask-quote.Bid)/quote.Bid*100*100) / 100
		spreadPct = &s
	}

	alert := &models.ExtendedHoursAlert{
		Symbol:         symbol,
		Type:           "EXTENDED_HOURS",
		Severity:       severity,
		Session:        session,
		CurrentPrice:   quote.Price,
		RegularClose:   prevClose,
		PriceChange:    priceChange,
		PriceChangePct: math.Round(priceChangePct*100) / 100,
		ExtendedVolume: quote.Volume,
		Bid:            quote.Bid,
		Ask:            quote.Ask,
		SpreadPct:      spreadPct,
		Catalyst:       guessCatalyst(priceChangePct),
		Timestamp:      m.now(),
		Source:         sourceName,
	}

	m.logger.Info().
		Str("symbol", symbol).
		Float64("change_pct", alert.PriceChangePct).
		Str("session", string(session)).
		Str("severity", string(severity)).
		Msg("Extended hours alert")

	return alert, nil
}

// gradeSeverity maps the move size onto the severity ladder, escalating
// when extended-session volume is heavy.
func (m *Monitor) gradeSeverity(priceChangePct float64, volume int64) models.Severity {
	absChange := math.Abs(priceChangePct)

	var severity models.Severity
	switch {
	case absChange >= 10:
		severity = models.SeverityCritical
	case absChange >= 5:
		severity = models.SeverityHigh
	case absChange >= m.priceThreshold*1.5:
		severity = models.SeverityMedium
	default:
		severity = models.SeverityLow
	}

	if volume >= m.volumeFloor*3 {
		if severity == models.SeverityLow {
			severity = models.SeverityMedium
		} else if severity == models.SeverityMedium {
			severity = models.SeverityHigh
		}
	} else if volume >= m.volumeFloor*2 {
		if severity == models.SeverityLow {
			severity = models.SeverityMedium
		}
	}

	return severity
}

// guessCatalyst suggests a likely driver from the size of the move.
// A news-feed integration would replace this.
func guessCatalyst(priceChangePct float64) string {
	absChange := math.Abs(priceChangePct)
	switch {
	case absChange >= 10:
		return "Major news event (check news feeds)"
	case absChange >= 5:
		return "Possible earnings/guidance or significant news"
	case absChange >= 3:
		return "News or sector movement"
	default:
		return ""
	}
}

// Mover is one entry in an extended-session movement ranking.
type Mover struct {
	Symbol        string         `json:"symbol"`
	Price         float64        `json:"price"`
	PreviousClose float64        `json:"previous_close"`
	Change        float64        `json:"change"`
	ChangePct     float64        `json:"change_percent"`
	Volume        int64          `json:"volume"`
	Session       models.Session `json:"session"`
	Source        string         `json:"source"`
}

// Movers ranks symbols by extended-session move. Direction filters to
// "up" or "down"; anything else ranks both by absolute change.
func (m *Monitor) Movers(ctx context.Context, symbols []string, direction string, topN int) []Mover {
	session := m.CurrentSession()
	var movers []Mover

	for _, symbol := range symbols {
		quote, err := m.fetcher.GetExtendedHoursQuote(ctx, symbol)
		if err != nil {
			m.logger.Warn().Err(err).Str("symbol", symbol).Msg("Skipping symbol in mover ranking")
			continue
		}
		if quote.PreviousClose == 0 {
			continue
		}

		change := quote.Price - quote.PreviousClose
		changePct := change / quote.PreviousClose * 100

		if direction == "up" && changePct <= 0 {
			continue
		}
		if direction == "down" && changePct >= 0 {
			continue
		}

		movers = append(movers, Mover{
			Symbol:        symbol,
			Price:         quote.Price,
			PreviousClose: quote.PreviousClose,
			Change:        change,
			ChangePct:     math.Round(changePct*100) / 100,
			Volume:        quote.Volume,
			Session:       session,
			Source:        quote.Source,
		})
	}

	switch direction {
	case "up":
		sort.Slice(movers, func(i, j int) bool { return movers[i].ChangePct > movers[j].ChangePct })
	case "down":
		sort.Slice(movers, func(i, j int) bool { return movers[i].ChangePct < movers[j].ChangePct })
	default:
		sort.Slice(movers, func(i, j int) bool {
			return math.Abs(movers[i].ChangePct) > math.Abs(movers[j].ChangePct)
		})
	}

	if len(movers) > topN {
		movers = movers[:topN]
	}
	return movers
}

// Gap describes an extended-hours move likely to carry into the open.
type Gap struct {
	Symbol         string         `json:"symbol"`
	PreviousClose  float64        `json:"previous_close"`
	CurrentPrice   float64        `json:"current_price"`
	ExpectedGapPct float64        `json:"expected_gap_percent"`
	Direction      string         `json:"gap_direction"`
	ExtendedVolume int64          `json:"extended_volume"`
	Session        models.Session `json:"session"`
	Confidence     string         `json:"confidence"`
}

// MonitorGaps finds symbols whose extended-session move exceeds
// minGapPct, ranked by absolute gap size. Outside extended sessions the
// result is empty.
func (m *Monitor) MonitorGaps(ctx context.Context, symbols []string, minGapPct float64) []Gap {
	session := m.CurrentSession()
	if !session.IsExtended() {
		return nil
	}

	var gaps []Gap
	for _, symbol := range symbols {
		quote, err := m.fetcher.GetExtendedHoursQuote(ctx, symbol)
		if err != nil {
			m.logger.Warn().Err(err).Str("symbol", symbol).Msg("Skipping symbol in gap scan")
			continue
		}
		if quote.PreviousClose == 0 {
			continue
		}

		gapPct := (quote.Price - quote.PreviousClose) / quote.PreviousClose * 100
		if math.Abs(gapPct) < minGapPct {
			continue
		}

		dir := "DOWN"
		if gapPct > 0 {
			dir = "UP"
		}

		gaps = append(gaps, Gap{
			Symbol:         symbol,
			PreviousClose:  quote.PreviousClose,
			CurrentPrice:   quote.Price,
			ExpectedGapPct: math.Round(gapPct*100) / 100,
			Direction:      dir,
			ExtendedVolume: quote.Volume,
			Session:        session,
			Confidence:     m.gapConfidence(gapPct, quote.Volume),
		})
	}

	sort.Slice(gaps, func(i, j int) bool {
		return math.Abs(gaps[i].ExpectedGapPct) > math.Abs(gaps[j].ExpectedGapPct)
	})

	return gaps
}

// gapConfidence grades how likely a gap is to hold into the open. Bigger
// moves on heavier volume hold more often.
func (m *Monitor) gapConfidence(gapPct float64, volume int64) string {
	absGap := math.Abs(gapPct)

	volumeFactor := "low"
	if volume >= m.volumeFloor*3 {
		volumeFactor = "high"
	} else if volume >= m.volumeFloor {
		volumeFactor = "medium"
	}

	if absGap >= 5 && volumeFactor == "high" {
		return "HIGH"
	}
	if absGap >= 3 && (volumeFactor == "high" || volumeFactor == "medium") {
		return "MEDIUM"
	}
	return "LOW"
}

// Ensure Monitor implements ExtendedHoursDetector
var _ interfaces.ExtendedHoursDetector = (*Monitor)(nil)
