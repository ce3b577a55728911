package polygon

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

func TestFetchQuoteRegularDay(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/snapshot/locale/us/markets/stocks/tickers/AAPL", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("apiKey"))
		w.Write([]byte(`{
			"status": "OK",
			"ticker": {
				"day": {"o": 186.0, "h": 189.0, "l": 185.2, "c": 187.5, "v": 3000000},
				"prevDay": {"c": 185.2, "v": 2000000},
				"lastTrade": {"p": 187.6},
				"lastQuote": {"p": 187.4, "P": 187.7},
				"todaysChange": 2.3,
				"todaysChangePerc": 1.24
			}
		}`))
	})

	quote, err := client.FetchQuote(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, 187.5, quote.Price, "day close wins during regular hours")
	assert.Equal(t, 2.3, quote.Change)
	assert.Equal(t, int64(3000000), quote.Volume)
	assert.Equal(t, 187.4, quote.Bid)
	assert.Equal(t, 187.7, quote.Ask)
	assert.Equal(t, ProviderName, quote.Source)
}

func TestFetchQuoteExtendedSessionFallsBackToLastTrade(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		// After hours the day aggregate is zeroed and the last trade
		// carries the extended price.
		w.Write([]byte(`{
			"status": "OK",
			"ticker": {
				"day": {"o": 0, "h": 0, "l": 0, "c": 0, "v": 0},
				"prevDay": {"c": 100.0, "v": 2000000},
				"lastTrade": {"p": 110.0},
				"todaysChange": 0,
				"todaysChangePerc": 0
			}
		}`))
	})

	quote, err := client.FetchExtendedHoursQuote(context.Background(), "XYZ")
	require.NoError(t, err)

	assert.Equal(t, 110.0, quote.Price)
	assert.Equal(t, 10.0, quote.Change, "change computed from previous close")
	assert.Equal(t, 10.0, quote.ChangePct)
	assert.Equal(t, 100.0, quote.PreviousClose)
}

func TestFetchQuoteNoPrice(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"OK","ticker":{"day":{},"prevDay":{},"lastTrade":{}}}`))
	})

	_, err := client.FetchQuote(context.Background(), "NOPE")
	assert.ErrorIs(t, err, models.ErrNoData)
}

func TestFetchHistorical(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/v2/aggs/ticker/AAPL/range/1/day/")
		assert.Equal(t, "asc", r.URL.Query().Get("sort"))
		w.Write([]byte(`{
			"status": "OK",
			"results": [
				{"t": 1772080200000, "o": 100.0, "h": 103.0, "l": 99.0, "c": 102.0, "v": 1000000, "vw": 101.2},
				{"t": 1772166600000, "o": 102.0, "h": 105.0, "l": 101.0, "c": 104.0, "v": 1200000, "vw": 103.1}
			]
		}`))
	})

	bars, err := client.FetchHistorical(context.Background(), "AAPL", 2, "daily")
	require.NoError(t, err)
	require.Len(t, bars, 2)

	assert.Equal(t, 102.0, bars[0].Close)
	assert.Equal(t, 101.2, bars[0].VWAP)
	assert.True(t, bars[0].Timestamp.Before(bars[1].Timestamp))
}

func TestFetchHistoricalEmpty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"OK","results":[]}`))
	})

	_, err := client.FetchHistorical(context.Background(), "NOPE", 30, "daily")
	assert.ErrorIs(t, err, models.ErrNoData)
}

func TestSupportsExtendedHours(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	assert.True(t, client.SupportsExtendedHours())
}

func TestHTTPErrorWrapsAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"status":"NOT_AUTHORIZED"}`))
	})

	_, err := client.FetchQuote(context.Background(), "AAPL")

	var apiErr *models.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
}
