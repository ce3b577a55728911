package models

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Severity grades an alert. Ordering is LOW < MEDIUM < HIGH < CRITICAL.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Rank returns a sort key where CRITICAL is 0 and LOW is 3.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	default:
		return 4
	}
}

// Escalate raises the severity one level, capped at CRITICAL.
func (s Severity) Escalate() Severity {
	switch s {
	case SeverityLow:
		return SeverityMedium
	case SeverityMedium:
		return SeverityHigh
	case SeverityHigh:
		return SeverityCritical
	default:
		return s
	}
}

// Alert is the tagged variant produced by the detectors and consumed by the
// external messaging collaborator. Alerts are immutable value objects.
type Alert interface {
	// AlertType distinguishes the variant ("UNUSUAL_VOLUME" or "EXTENDED_HOURS").
	AlertType() string
	// AlertSymbol returns the ticker the alert refers to.
	AlertSymbol() string
	// AlertSeverity returns the severity grade.
	AlertSeverity() Severity
	// Magnitude is the sort tiebreaker within a severity level: volume ratio
	// for volume alerts, absolute percent change for extended-hours alerts.
	Magnitude() float64
}

// VolumeAlert flags unusual trading volume on a symbol.
type VolumeAlert struct {
	Symbol         string    `json:"symbol"`
	Type           string    `json:"alert_type"`
	Severity       Severity  `json:"severity"`
	CurrentVolume  int64     `json:"current_volume"`
	AvgVolume      float64   `json:"avg_volume"`
	VolumeRatio    float64   `json:"volume_ratio"`
	Price          float64   `json:"price"`
	PriceChange    float64   `json:"price_change"`
	PriceChangePct float64   `json:"price_change_percent"`
	Session        Session   `json:"session"`
	RSI            *float64  `json:"rsi,omitempty"`
	Support        *float64  `json:"support,omitempty"`
	Resistance     *float64  `json:"resistance,omitempty"`
	Context        string    `json:"context,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Source         string    `json:"source"`
}

func (a *VolumeAlert) AlertType() string       { return a.Type }
func (a *VolumeAlert) AlertSymbol() string     { return a.Symbol }
func (a *VolumeAlert) AlertSeverity() Severity { return a.Severity }
func (a *VolumeAlert) Magnitude() float64      { return a.VolumeRatio }

// Direction classifies the price move: UP, DOWN, or FLAT within ±0.5%.
func (a *VolumeAlert) Direction() string {
	return direction(a.PriceChangePct)
}

// ExtendedHoursAlert flags a significant pre-market or after-hours move.
type ExtendedHoursAlert struct {
	Symbol         string    `json:"symbol"`
	Type           string    `json:"alert_type"`
	Severity       Severity  `json:"severity"`
	Session        Session   `json:"session"`
	CurrentPrice   float64   `json:"current_price"`
	RegularClose   float64   `json:"regular_close"`
	PriceChange    float64   `json:"price_change"`
	PriceChangePct float64   `json:"price_change_percent"`
	ExtendedVolume int64     `json:"extended_volume"`
	Bid            float64   `json:"bid,omitempty"`
	Ask            float64   `json:"ask,omitempty"`
	SpreadPct      *float64  `json:"spread_percent,omitempty"`
	Catalyst       string    `json:"catalyst,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Source         string    `json:"source"`
}

func (a *ExtendedHoursAlert) AlertType() string       { return a.Type }
func (a *ExtendedHoursAlert) AlertSymbol() string     { return a.Symbol }
func (a *ExtendedHoursAlert) AlertSeverity() Severity { return a.Severity }
func (a *ExtendedHoursAlert) Magnitude() float64      { return math.Abs(a.PriceChangePct) }

// Direction classifies the price move: UP, DOWN, or FLAT within ±0.5%.
func (a *ExtendedHoursAlert) Direction() string {
	return direction(a.PriceChangePct)
}

func direction(changePct float64) string {
	if changePct > 0.5 {
		return "UP"
	}
	if changePct < -0.5 {
		return "DOWN"
	}
	return "FLAT"
}

// SortAlerts orders alerts by severity (CRITICAL first) then magnitude
// descending. The messaging collaborator depends on this order when
// truncating a batch.
func SortAlerts(alerts []Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		ri, rj := alerts[i].AlertSeverity().Rank(), alerts[j].AlertSeverity().Rank()
		if ri != rj {
			return ri < rj
		}
		return alerts[i].Magnitude() > alerts[j].Magnitude()
	})
}

// AlertBatch groups one scan pass's alerts for the messaging collaborator.
type AlertBatch struct {
	ID          string    `json:"batch_id"`
	Alerts      []Alert   `json:"alerts"`
	GeneratedAt time.Time `json:"generated_at"`
}

// NewAlertBatch builds a batch with a fresh ID, preserving alert order.
func NewAlertBatch(alerts []Alert) *AlertBatch {
	return &AlertBatch{
		ID:          uuid.NewString(),
		Alerts:      alerts,
		GeneratedAt: time.Now(),
	}
}

// VolumeAlerts returns only the volume alerts in the batch.
func (b *AlertBatch) VolumeAlerts() []*VolumeAlert {
	var out []*VolumeAlert
	for _, a := range b.Alerts {
		if va, ok := a.(*VolumeAlert); ok {
			out = append(out, va)
		}
	}
	return out
}

// ExtendedHoursAlerts returns only the extended-hours alerts in the batch.
func (b *AlertBatch) ExtendedHoursAlerts() []*ExtendedHoursAlert {
	var out []*ExtendedHoursAlert
	for _, a := range b.Alerts {
		if ea, ok := a.(*ExtendedHoursAlert); ok {
			out = append(out, ea)
		}
	}
	return out
}

// CriticalAlerts returns only CRITICAL severity alerts.
func (b *AlertBatch) CriticalAlerts() []Alert {
	var out []Alert
	for _, a := range b.Alerts {
		if a.AlertSeverity() == SeverityCritical {
			out = append(out, a)
		}
	}
	return out
}
