package twelvedata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/tapewatch/internal/models"
	"github.com/bobmcallan/tapewatch/internal/ratelimit"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-key", ratelimit.NewLimiter(),
		WithBaseURL(srv.URL),
		WithRateLimit(1000),
	)
}

func TestFetchQuote(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))
		w.Write([]byte(`{
			"close": "187.50",
			"change": "2.30",
			"percent_change": "1.24",
			"high": "189.00",
			"low": "185.20",
			"open": "186.00",
			"previous_close": "185.20",
			"volume": "3000000",
			"average_volume": "1500000"
		}`))
	})

	quote, err := client.FetchQuote(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, 187.5, quote.Price)
	assert.Equal(t, 1.24, quote.ChangePct)
	assert.Equal(t, int64(3000000), quote.Volume)
	assert.Equal(t, int64(1500000), quote.AvgVolume, "Twelve Data supplies its own average volume")
	assert.Equal(t, ProviderName, quote.Source)
}

func TestFetchQuoteErrorStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error","message":"symbol not found"}`))
	})

	_, err := client.FetchQuote(context.Background(), "NOPE")
	assert.ErrorIs(t, err, models.ErrNoData)
}

func TestFetchQuoteMissingClose(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"volume":"100"}`))
	})

	_, err := client.FetchQuote(context.Background(), "NOPE")
	assert.ErrorIs(t, err, models.ErrNoData)
}

func TestFetchHistorical(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/time_series", r.URL.Path)
		assert.Equal(t, "1day", r.URL.Query().Get("interval"))
		w.Write([]byte(`{
			"status": "ok",
			"values": [
				{"datetime": "2026-02-26", "open": "100.0", "high": "103.0", "low": "99.0", "close": "102.0", "volume": "1000000"},
				{"datetime": "2026-02-27", "open": "102.0", "high": "105.0", "low": "101.0", "close": "104.0", "volume": "1200000"}
			]
		}`))
	})

	bars, err := client.FetchHistorical(context.Background(), "AAPL", 2, "daily")
	require.NoError(t, err)
	require.Len(t, bars, 2)

	assert.Equal(t, 102.0, bars[0].Close)
	assert.Equal(t, 104.0, bars[1].Close)
	assert.True(t, bars[0].Timestamp.Before(bars[1].Timestamp))
}

func TestFetchHistoricalErrorStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error","values":[]}`))
	})

	_, err := client.FetchHistorical(context.Background(), "NOPE", 30, "daily")
	assert.ErrorIs(t, err, models.ErrNoData)
}

func TestExtendedHoursUnsupported(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	assert.False(t, client.SupportsExtendedHours())
	_, err := client.FetchExtendedHoursQuote(context.Background(), "AAPL")
	assert.ErrorIs(t, err, models.ErrNoData)
}
