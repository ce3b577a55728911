// Package models defines data structures for Tapewatch
package models

import (
	"time"
)

// Session identifies the trading session a quote belongs to.
type Session string

const (
	SessionPremarket  Session = "PREMARKET"
	SessionRegular    Session = "REGULAR"
	SessionAfterhours Session = "AFTERHOURS"
	SessionClosed     Session = "CLOSED"
)

// IsExtended returns true for pre-market and after-hours sessions.
func (s Session) IsExtended() bool {
	return s == SessionPremarket || s == SessionAfterhours
}

// Quote holds a point-in-time price/volume snapshot for a symbol.
// A new Quote supersedes rather than mutates an old one.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePct     float64   `json:"change_percent"`
	Volume        int64     `json:"volume"`
	AvgVolume     int64     `json:"avg_volume,omitempty"`
	High          float64   `json:"high,omitempty"`
	Low           float64   `json:"low,omitempty"`
	Open          float64   `json:"open,omitempty"`
	PreviousClose float64   `json:"previous_close,omitempty"`
	Bid           float64   `json:"bid,omitempty"`
	Ask           float64   `json:"ask,omitempty"`
	Session       Session   `json:"session"`
	Source        string    `json:"source"`
	FetchedAt     time.Time `json:"fetched_at"`
}

// VolumeRatio returns current volume over the quote's own average volume,
// or 0 when no average is known.
func (q *Quote) VolumeRatio() float64 {
	if q.AvgVolume <= 0 {
		return 0
	}
	return float64(q.Volume) / float64(q.AvgVolume)
}

// Bar represents one OHLCV record of a historical series.
// Series are ordered ascending by timestamp.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
	VWAP      float64   `json:"vwap,omitempty"`
}

// SymbolMetrics holds derived indicators recomputed from the current bar
// series on each fetch. Nil fields mean the metric could not be computed
// from the available history.
type SymbolMetrics struct {
	AvgVolume10d  *float64 `json:"avg_volume_10d,omitempty"`
	AvgVolume20d  *float64 `json:"avg_volume_20d,omitempty"`
	Volatility20d *float64 `json:"volatility_20d,omitempty"`
	RSI14         *float64 `json:"rsi_14,omitempty"`
	Support       *float64 `json:"support,omitempty"`
	Resistance    *float64 `json:"resistance,omitempty"`
}

// StockData aggregates a quote, its historical series, and derived metrics.
type StockData struct {
	Symbol    string        `json:"symbol"`
	Quote     *Quote        `json:"quote"`
	Bars      []Bar         `json:"bars,omitempty"`
	Metrics   SymbolMetrics `json:"metrics"`
	FetchedAt time.Time     `json:"fetched_at"`
}

// AvgVolume returns the 20-day average when computed, falling back to the
// quote's own average volume field. The bool reports availability.
func (d *StockData) AvgVolume() (float64, bool) {
	if d.Metrics.AvgVolume20d != nil && *d.Metrics.AvgVolume20d > 0 {
		return *d.Metrics.AvgVolume20d, true
	}
	if d.Quote != nil && d.Quote.AvgVolume > 0 {
		return float64(d.Quote.AvgVolume), true
	}
	return 0, false
}
