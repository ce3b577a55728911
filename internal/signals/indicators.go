// Package signals provides technical indicator calculations
package signals

import (
	"fmt"
	"math"

	"github.com/bobmcallan/tapewatch/internal/models"
)

// Bars are ascending by timestamp throughout, so trailing windows are the
// last elements of the slice.

// AvgVolume calculates the mean volume over the trailing days bars,
// skipping zero-volume bars (holidays, bad data). Fewer than days/2 usable
// bars is not enough history.
func AvgVolume(bars []models.Bar, days int) (float64, error) {
	if len(bars) == 0 || days <= 0 {
		return 0, fmt.Errorf("avg volume %dd: %w", days, models.ErrInsufficientHistory)
	}

	window := bars
	if len(window) > days {
		window = window[len(window)-days:]
	}

	var sum float64
	var count int
	for _, bar := range window {
		if bar.Volume > 0 {
			sum += float64(bar.Volume)
			count++
		}
	}

	if count < days/2 {
		return 0, fmt.Errorf("avg volume %dd: %w", days, models.ErrInsufficientHistory)
	}

	return sum / float64(count), nil
}

// RSI calculates the Relative Strength Index over the trailing period.
// Needs period+1 closes for period deltas. All-gain series returns 100.
func RSI(bars []models.Bar, period int) (float64, error) {
	if len(bars) < period+1 {
		return 0, fmt.Errorf("rsi %d: %w", period, models.ErrInsufficientHistory)
	}

	window := bars[len(bars)-(period+1):]

	var gains, losses float64
	for i := 1; i < len(window); i++ {
		change := window[i].Close - window[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	if avgLoss == 0 {
		return 100, nil
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs)), nil
}

// SupportResistance returns the lowest low and highest high over the
// trailing lookback bars.
func SupportResistance(bars []models.Bar, lookback int) (support, resistance float64, err error) {
	if len(bars) < lookback {
		return 0, 0, fmt.Errorf("support/resistance %dd: %w", lookback, models.ErrInsufficientHistory)
	}

	window := bars[len(bars)-lookback:]
	support = window[0].Low
	resistance = window[0].High
	for _, bar := range window[1:] {
		if bar.Low < support {
			support = bar.Low
		}
		if bar.High > resistance {
			resistance = bar.High
		}
	}

	return support, resistance, nil
}

// Volatility calculates the sample standard deviation of day-over-day
// percent returns over the trailing lookback bars, expressed in percent.
func Volatility(bars []models.Bar, lookback int) (float64, error) {
	if len(bars) < lookback+1 {
		return 0, fmt.Errorf("volatility %dd: %w", lookback, models.ErrInsufficientHistory)
	}

	window := bars[len(bars)-(lookback+1):]

	returns := make([]float64, 0, lookback)
	for i := 1; i < len(window); i++ {
		prev := window[i-1].Close
		if prev == 0 {
			continue
		}
		returns = append(returns, (window[i].Close-prev)/prev*100)
	}

	if len(returns) < 2 {
		return 0, fmt.Errorf("volatility %dd: %w", lookback, models.ErrInsufficientHistory)
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)

	return math.Sqrt(variance), nil
}

// SMA calculates the simple moving average of close over the trailing period.
func SMA(bars []models.Bar, period int) (float64, error) {
	if len(bars) < period || period <= 0 {
		return 0, fmt.Errorf("sma %d: %w", period, models.ErrInsufficientHistory)
	}

	window := bars[len(bars)-period:]
	var sum float64
	for _, bar := range window {
		sum += bar.Close
	}
	return sum / float64(period), nil
}
