package fetcher

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/tapewatch/internal/common"
	"github.com/bobmcallan/tapewatch/internal/interfaces"
	"github.com/bobmcallan/tapewatch/internal/models"
	"github.com/bobmcallan/tapewatch/internal/storage/diskcache"
)

// stubProvider is a scriptable ProviderClient with call counters.
type stubProvider struct {
	name          string
	quote         *models.Quote
	quoteErr      error
	bars          []models.Bar
	barsErr       error
	extended      bool
	quoteCalls    int
	barCalls      int
	extendedCalls int
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) FetchQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	p.quoteCalls++
	if p.quoteErr != nil {
		return nil, p.quoteErr
	}
	q := *p.quote
	q.Symbol = symbol
	q.Source = p.name
	return &q, nil
}

func (p *stubProvider) FetchHistorical(ctx context.Context, symbol string, days int, interval string) ([]models.Bar, error) {
	p.barCalls++
	if p.barsErr != nil {
		return nil, p.barsErr
	}
	return p.bars, nil
}

func (p *stubProvider) SupportsExtendedHours() bool { return p.extended }

func (p *stubProvider) FetchExtendedHoursQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	p.extendedCalls++
	if p.quoteErr != nil {
		return nil, p.quoteErr
	}
	q := *p.quote
	q.Symbol = symbol
	q.Source = p.name
	return &q, nil
}

var _ interfaces.ProviderClient = (*stubProvider)(nil)

func newTestCache(t *testing.T) interfaces.Cache {
	t.Helper()
	return diskcache.NewCache(common.NewSilentLogger(), filepath.Join(t.TempDir(), "cache.json"))
}

func dailyBars(n int) []models.Bar {
	bars := make([]models.Bar, n)
	start := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		price := 100 + float64(i)
		bars[i] = models.Bar{
			Timestamp: start.AddDate(0, 0, i),
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    1_000_000,
		}
	}
	return bars
}

func TestGetQuoteCachesResult(t *testing.T) {
	p := &stubProvider{name: "finnhub", quote: &models.Quote{Price: 187.5}}
	svc := NewService([]interfaces.ProviderClient{p}, newTestCache(t))

	q1, err := svc.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	q2, err := svc.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, q1.Price, q2.Price)
	assert.Equal(t, 1, p.quoteCalls, "second call must hit the cache")
}

func TestGetQuoteFallsThroughProviderChain(t *testing.T) {
	limited := &stubProvider{name: "finnhub", quoteErr: models.ErrRateLimited}
	nodata := &stubProvider{name: "alpha_vantage", quoteErr: models.ErrNoData}
	good := &stubProvider{name: "twelve_data", quote: &models.Quote{Price: 42.0}}

	svc := NewService([]interfaces.ProviderClient{limited, nodata, good}, newTestCache(t))

	q, err := svc.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, 42.0, q.Price)
	assert.Equal(t, "twelve_data", q.Source)
	assert.Equal(t, 1, limited.quoteCalls)
	assert.Equal(t, 1, nodata.quoteCalls)
}

func TestGetQuoteExhaustedChain(t *testing.T) {
	p1 := &stubProvider{name: "finnhub", quoteErr: models.ErrRateLimited}
	p2 := &stubProvider{name: "polygon", quoteErr: models.ErrNoData}

	svc := NewService([]interfaces.ProviderClient{p1, p2}, newTestCache(t))

	_, err := svc.GetQuote(context.Background(), "AAPL")

	var noSource *models.NoSourceAvailableError
	require.ErrorAs(t, err, &noSource)
	assert.Equal(t, "AAPL", noSource.Symbol)
	assert.Equal(t, "quote", noSource.Kind)
}

func TestGetExtendedHoursQuotePrefersCapableProvider(t *testing.T) {
	regular := &stubProvider{name: "finnhub", quote: &models.Quote{Price: 100}}
	capable := &stubProvider{name: "polygon", quote: &models.Quote{Price: 110}, extended: true}

	// Regular provider is ahead in priority but cannot serve extended hours
	svc := NewService([]interfaces.ProviderClient{regular, capable}, newTestCache(t))

	q, err := svc.GetExtendedHoursQuote(context.Background(), "XYZ")
	require.NoError(t, err)

	assert.Equal(t, 110.0, q.Price)
	assert.Equal(t, 1, capable.extendedCalls)
	assert.Equal(t, 0, regular.quoteCalls, "regular chain untouched when a capable provider answers")
}

func TestGetExtendedHoursQuoteFallsBackToRegular(t *testing.T) {
	regular := &stubProvider{name: "finnhub", quote: &models.Quote{Price: 100}}

	svc := NewService([]interfaces.ProviderClient{regular}, newTestCache(t))

	q, err := svc.GetExtendedHoursQuote(context.Background(), "XYZ")
	require.NoError(t, err)
	assert.Equal(t, 100.0, q.Price)
}

func TestGetHistoricalCachesDurably(t *testing.T) {
	p := &stubProvider{name: "finnhub", bars: dailyBars(30)}
	cachePath := filepath.Join(t.TempDir(), "cache.json")
	cache := diskcache.NewCache(common.NewSilentLogger(), cachePath)

	svc := NewService([]interfaces.ProviderClient{p}, cache)

	bars, err := svc.GetHistorical(context.Background(), "AAPL", 30)
	require.NoError(t, err)
	require.Len(t, bars, 30)
	assert.Equal(t, 1, p.barCalls)

	// A fresh cache instance reads the same file: entry survived the restart
	reopened := diskcache.NewCache(common.NewSilentLogger(), cachePath)
	svc2 := NewService([]interfaces.ProviderClient{p}, reopened)

	bars2, err := svc2.GetHistorical(context.Background(), "AAPL", 30)
	require.NoError(t, err)
	assert.Len(t, bars2, 30)
	assert.Equal(t, 1, p.barCalls, "restart must not refetch inside the TTL")
}

func TestGetStockDataComputesMetrics(t *testing.T) {
	p := &stubProvider{
		name:  "finnhub",
		quote: &models.Quote{Price: 129.0, Volume: 5_000_000},
		bars:  dailyBars(30),
	}

	svc := NewService([]interfaces.ProviderClient{p}, newTestCache(t))

	data, err := svc.GetStockData(context.Background(), "aapl")
	require.NoError(t, err)

	assert.Equal(t, "AAPL", data.Symbol)
	require.NotNil(t, data.Quote)
	assert.Len(t, data.Bars, 30)
	require.NotNil(t, data.Metrics.RSI14)
	assert.Equal(t, 100.0, *data.Metrics.RSI14, "strictly rising closes")
	require.NotNil(t, data.Metrics.AvgVolume20d)
	assert.Equal(t, 1_000_000.0, *data.Metrics.AvgVolume20d)
}

func TestGetStockDataDegradesWithoutHistory(t *testing.T) {
	p := &stubProvider{
		name:    "finnhub",
		quote:   &models.Quote{Price: 10.0},
		barsErr: models.ErrNoData,
	}

	svc := NewService([]interfaces.ProviderClient{p}, newTestCache(t))

	data, err := svc.GetStockData(context.Background(), "XYZ")
	require.NoError(t, err, "missing history is not fatal")

	assert.NotNil(t, data.Quote)
	assert.Empty(t, data.Bars)
	assert.Nil(t, data.Metrics.RSI14)
}
