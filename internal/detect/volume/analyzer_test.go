package volume

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/tapewatch/internal/common"
	"github.com/bobmcallan/tapewatch/internal/interfaces"
	"github.com/bobmcallan/tapewatch/internal/models"
)

// stubFetcher serves canned per-symbol data.
type stubFetcher struct {
	data map[string]*models.StockData
}

func (f *stubFetcher) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	d, ok := f.data[symbol]
	if !ok || d.Quote == nil {
		return nil, &models.NoSourceAvailableError{Symbol: symbol, Kind: "quote"}
	}
	return d.Quote, nil
}

func (f *stubFetcher) GetExtendedHoursQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	return f.GetQuote(ctx, symbol)
}

func (f *stubFetcher) GetHistorical(ctx context.Context, symbol string, days int) ([]models.Bar, error) {
	d, ok := f.data[symbol]
	if !ok || len(d.Bars) == 0 {
		return nil, &models.NoSourceAvailableError{Symbol: symbol, Kind: "historical"}
	}
	return d.Bars, nil
}

func (f *stubFetcher) GetStockData(ctx context.Context, symbol string) (*models.StockData, error) {
	d, ok := f.data[symbol]
	if !ok {
		return nil, &models.NoSourceAvailableError{Symbol: symbol, Kind: "quote"}
	}
	return d, nil
}

var _ interfaces.Fetcher = (*stubFetcher)(nil)

func testConfig() common.DetectionConfig {
	return common.DetectionConfig{
		UnusualVolumeThreshold:  2.0,
		ExtremeVolumeThreshold:  5.0,
		MinVolumeForAlert:       100_000,
		VolumeLookbackDays:      20,
		IncludeTechnicalContext: true,
	}
}

func stockData(symbol string, volume int64, avg float64, changePct float64) *models.StockData {
	return &models.StockData{
		Symbol: symbol,
		Quote: &models.Quote{
			Symbol:    symbol,
			Price:     50.0,
			Volume:    volume,
			ChangePct: changePct,
			Session:   models.SessionRegular,
		},
		Metrics: models.SymbolMetrics{AvgVolume20d: &avg},
	}
}

func newAnalyzer(data map[string]*models.StockData) *Analyzer {
	fixed := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	return NewAnalyzer(&stubFetcher{data: data}, testConfig(),
		WithClock(func() time.Time { return fixed }),
	)
}

func TestAnalyzeHighSeverity(t *testing.T) {
	a := newAnalyzer(map[string]*models.StockData{
		"XYZ": stockData("XYZ", 4_200_000, 1_000_000, 1.5),
	})

	alert, err := a.Analyze(context.Background(), "XYZ")
	require.NoError(t, err)
	require.NotNil(t, alert)

	assert.Equal(t, "UNUSUAL_VOLUME", alert.Type)
	assert.Equal(t, models.SeverityHigh, alert.Severity, "4.2x is past twice the unusual threshold")
	assert.Equal(t, 4.2, alert.VolumeRatio)
	assert.Equal(t, int64(4_200_000), alert.CurrentVolume)
}

func TestAnalyzeCriticalAtExtremeThreshold(t *testing.T) {
	a := newAnalyzer(map[string]*models.StockData{
		"GME": stockData("GME", 6_000_000, 1_000_000, 0.2),
	})

	alert, err := a.Analyze(context.Background(), "GME")
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, models.SeverityCritical, alert.Severity)
}

func TestAnalyzeSeverityLadder(t *testing.T) {
	tests := []struct {
		ratio float64
		want  models.Severity
	}{
		{5.1, models.SeverityCritical},
		{4.0, models.SeverityHigh},
		{3.0, models.SeverityMedium},
		{2.2, models.SeverityLow},
	}

	for _, tt := range tests {
		a := newAnalyzer(map[string]*models.StockData{
			"T": stockData("T", int64(tt.ratio*1_000_000), 1_000_000, 0.1),
		})
		alert, err := a.Analyze(context.Background(), "T")
		require.NoError(t, err)
		require.NotNil(t, alert, "ratio %.1f", tt.ratio)
		assert.Equal(t, tt.want, alert.Severity, "ratio %.1f", tt.ratio)
	}
}

func TestAnalyzeEscalatesOnBigPriceMove(t *testing.T) {
	// 2.2x volume is LOW, but a 6% move raises it one level
	a := newAnalyzer(map[string]*models.StockData{
		"MOVE": stockData("MOVE", 2_200_000, 1_000_000, -6.0),
	})

	alert, err := a.Analyze(context.Background(), "MOVE")
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, models.SeverityMedium, alert.Severity)
}

func TestAnalyzeRSIExtremeRaisesLow(t *testing.T) {
	data := stockData("RSI", 2_200_000, 1_000_000, 0.1)
	oversold := 24.0
	data.Metrics.RSI14 = &oversold

	a := newAnalyzer(map[string]*models.StockData{"RSI": data})

	alert, err := a.Analyze(context.Background(), "RSI")
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, models.SeverityMedium, alert.Severity)
	assert.Contains(t, alert.Context, "RSI oversold")
}

func TestAnalyzeBelowVolumeFloor(t *testing.T) {
	a := newAnalyzer(map[string]*models.StockData{
		"ABC": stockData("ABC", 50_000, 10_000, 0.1), // 5x ratio but tiny float
	})

	alert, err := a.Analyze(context.Background(), "ABC")
	require.NoError(t, err)
	assert.Nil(t, alert, "thin symbols never alert regardless of ratio")
}

func TestAnalyzeBelowThreshold(t *testing.T) {
	a := newAnalyzer(map[string]*models.StockData{
		"DULL": stockData("DULL", 1_500_000, 1_000_000, 0.1),
	})

	alert, err := a.Analyze(context.Background(), "DULL")
	require.NoError(t, err)
	assert.Nil(t, alert)
}

func TestAnalyzeNoAverageVolume(t *testing.T) {
	data := stockData("NOAVG", 2_000_000, 0, 0.1)
	data.Metrics.AvgVolume20d = nil

	a := newAnalyzer(map[string]*models.StockData{"NOAVG": data})

	alert, err := a.Analyze(context.Background(), "NOAVG")
	require.NoError(t, err)
	assert.Nil(t, alert)
}

func TestAnalyzeFetcherErrorPropagates(t *testing.T) {
	a := newAnalyzer(map[string]*models.StockData{})

	_, err := a.Analyze(context.Background(), "GONE")
	require.Error(t, err)

	var noSource *models.NoSourceAvailableError
	assert.ErrorAs(t, err, &noSource)
}

func TestContextDescribesVolumeAndPrice(t *testing.T) {
	data := stockData("CTX", 6_000_000, 1_000_000, 4.0)
	support, resistance := 40.0, 50.5
	data.Metrics.Support = &support
	data.Metrics.Resistance = &resistance // price 50 >= 0.98 * 50.5

	a := newAnalyzer(map[string]*models.StockData{"CTX": data})

	alert, err := a.Analyze(context.Background(), "CTX")
	require.NoError(t, err)
	require.NotNil(t, alert)

	assert.Contains(t, alert.Context, "EXTREME volume spike")
	assert.Contains(t, alert.Context, "strong upward price movement")
	assert.Contains(t, alert.Context, "near resistance")
}

func TestAnalyzeBreakout(t *testing.T) {
	data := stockData("BRK", 3_000_000, 1_000_000, 2.5)
	data.Bars = make([]models.Bar, 25)
	resistance := 48.0 // price 50 is above
	data.Metrics.Resistance = &resistance

	a := newAnalyzer(map[string]*models.StockData{"BRK": data})

	b, err := a.AnalyzeBreakout(context.Background(), "BRK")
	require.NoError(t, err)
	require.NotNil(t, b)

	assert.Equal(t, "RESISTANCE_BREAKOUT", b.Type)
	assert.Equal(t, 48.0, b.Level)
	assert.Equal(t, 3.0, b.VolumeRatio)
}

func TestVolumeLeadersRanked(t *testing.T) {
	hot := stockData("HOT", 5_000_000, 1_000_000, 1.0)
	hot.Quote.AvgVolume = 1_000_000
	mild := stockData("MILD", 1_500_000, 1_000_000, 0.5)
	mild.Quote.AvgVolume = 1_000_000

	a := newAnalyzer(map[string]*models.StockData{"HOT": hot, "MILD": mild})

	leaders := a.VolumeLeaders(context.Background(), []string{"MILD", "HOT", "GONE"}, 10)
	require.Len(t, leaders, 2, "unfetchable symbols are skipped")

	assert.Equal(t, "HOT", leaders[0].Symbol)
	assert.Equal(t, 5.0, leaders[0].VolumeRatio)
}

func TestDetectAccumulation(t *testing.T) {
	data := stockData("ACC", 2_000_000, 1_000_000, 1.0)
	start := time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC)
	// Up days on 3m volume, down days on 1m: accumulation
	closes := []float64{100, 102, 101, 103, 102, 104, 103, 105, 104, 106}
	data.Bars = make([]models.Bar, len(closes))
	for i, c := range closes {
		vol := int64(3_000_000)
		if i > 0 && c < closes[i-1] {
			vol = 1_000_000
		}
		data.Bars[i] = models.Bar{Timestamp: start.AddDate(0, 0, i), Close: c, Volume: vol}
	}

	a := newAnalyzer(map[string]*models.StockData{"ACC": data})

	p, err := a.DetectAccumulation(context.Background(), "ACC")
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.Equal(t, "ACCUMULATION", p.Pattern)
	assert.Equal(t, 5, p.UpDays)
	assert.Equal(t, 4, p.DownDays)
}
