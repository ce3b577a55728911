package signals

import (
	"github.com/bobmcallan/tapewatch/internal/models"
)

const (
	rsiPeriod         = 14
	rangeLookback     = 20
	volatilityWindow  = 20
	shortVolumeWindow = 10
	longVolumeWindow  = 20
)

// Compute derives the full metric set from a bar series. Each metric is
// computed independently so thin history yields a partial result rather
// than none.
func Compute(bars []models.Bar) models.SymbolMetrics {
	var m models.SymbolMetrics

	if v, err := AvgVolume(bars, shortVolumeWindow); err == nil {
		m.AvgVolume10d = &v
	}
	if v, err := AvgVolume(bars, longVolumeWindow); err == nil {
		m.AvgVolume20d = &v
	}
	if v, err := Volatility(bars, volatilityWindow); err == nil {
		m.Volatility20d = &v
	}
	if v, err := RSI(bars, rsiPeriod); err == nil {
		m.RSI14 = &v
	}
	if support, resistance, err := SupportResistance(bars, rangeLookback); err == nil {
		m.Support = &support
		m.Resistance = &resistance
	}

	return m
}
