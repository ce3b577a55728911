// Package polygon provides a client for the Polygon.io API
package polygon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/bobmcallan/tapewatch/internal/common"
	"github.com/bobmcallan/tapewatch/internal/interfaces"
	"github.com/bobmcallan/tapewatch/internal/models"
)

const (
	ProviderName     = "polygon"
	DefaultBaseURL   = "https://api.polygon.io"
	DefaultTimeout   = 10 * time.Second
	DefaultQuota     = 5 // calls per window
	DefaultWindow    = time.Minute
	DefaultRateLimit = 5
)

// Client implements the ProviderClient interface for Polygon.io.
// Polygon snapshots carry pre- and post-market trades, so this is the
// one adapter that can serve extended-hours quotes.
type Client struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	logger      *common.Logger
	quota       interfaces.RateLimiter
	quotaLimit  int
	quotaWindow time.Duration
	pacer       *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithQuota sets the sliding-window admission quota
func WithQuota(limit int, window time.Duration) ClientOption {
	return func(c *Client) {
		c.quotaLimit = limit
		c.quotaWindow = window
	}
}

// WithRateLimit sets the request pacing rate
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.pacer = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// NewClient creates a new Polygon client sharing the given rate limiter
func NewClient(apiKey string, quota interfaces.RateLimiter, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger:      common.NewSilentLogger(),
		quota:       quota,
		quotaLimit:  DefaultQuota,
		quotaWindow: DefaultWindow,
		pacer:       rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Name returns the provider identifier
func (c *Client) Name() string {
	return ProviderName
}

// get performs a quota-checked, paced GET request
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if !c.quota.CanCall(ProviderName, c.quotaLimit, c.quotaWindow) {
		return fmt.Errorf("%s: %w", ProviderName, models.ErrRateLimited)
	}

	if err := c.pacer.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("apiKey", c.apiKey)

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().Str("url", c.baseURL+path).Msg("Polygon API request")
	c.quota.RecordCall(ProviderName)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &models.APIError{
			Provider:   ProviderName,
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   path,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// snapshotResponse represents the single-ticker snapshot payload
type snapshotResponse struct {
	Status string `json:"status"`
	Ticker struct {
		Day struct {
			Open   float64 `json:"o"`
			High   float64 `json:"h"`
			Low    float64 `json:"l"`
			Close  float64 `json:"c"`
			Volume float64 `json:"v"`
		} `json:"day"`
		PrevDay struct {
			Close  float64 `json:"c"`
			Volume float64 `json:"v"`
		} `json:"prevDay"`
		LastTrade struct {
			Price float64 `json:"p"`
		} `json:"lastTrade"`
		LastQuote struct {
			Bid float64 `json:"p"`
			Ask float64 `json:"P"`
		} `json:"lastQuote"`
		TodaysChange    float64 `json:"todaysChange"`
		TodaysChangePct float64 `json:"todaysChangePerc"`
	} `json:"ticker"`
}

func (c *Client) fetchSnapshot(ctx context.Context, symbol string) (*models.Quote, error) {
	path := fmt.Sprintf("/v2/snapshot/locale/us/markets/stocks/tickers/%s", symbol)

	var resp snapshotResponse
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return nil, err
	}

	t := resp.Ticker

	// Outside regular hours day.c is zero and the last trade carries the
	// extended-session price.
	price := t.Day.Close
	if price == 0 {
		price = t.LastTrade.Price
	}
	if price == 0 {
		return nil, fmt.Errorf("%s %s: %w", ProviderName, symbol, models.ErrNoData)
	}

	change := t.TodaysChange
	changePct := t.TodaysChangePct
	if change == 0 && t.PrevDay.Close > 0 {
		change = price - t.PrevDay.Close
		changePct = change / t.PrevDay.Close * 100
	}

	volume := int64(t.Day.Volume)
	if volume == 0 {
		volume = int64(t.PrevDay.Volume)
	}

	return &models.Quote{
		Symbol:        symbol,
		Price:         price,
		Change:        change,
		ChangePct:     changePct,
		Volume:        volume,
		High:          t.Day.High,
		Low:           t.Day.Low,
		Open:          t.Day.Open,
		PreviousClose: t.PrevDay.Close,
		Bid:           t.LastQuote.Bid,
		Ask:           t.LastQuote.Ask,
		Session:       models.SessionRegular,
		Source:        ProviderName,
		FetchedAt:     time.Now(),
	}, nil
}

// FetchQuote retrieves a snapshot quote.
func (c *Client) FetchQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	return c.fetchSnapshot(ctx, symbol)
}

// aggsResponse represents the aggregates (bars) payload
type aggsResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Timestamp int64   `json:"t"`
		Open      float64 `json:"o"`
		High      float64 `json:"h"`
		Low       float64 `json:"l"`
		Close     float64 `json:"c"`
		Volume    float64 `json:"v"`
		VWAP      float64 `json:"vw"`
	} `json:"results"`
}

// FetchHistorical retrieves aggregate bars in ascending order.
func (c *Client) FetchHistorical(ctx context.Context, symbol string, days int, interval string) ([]models.Bar, error) {
	multiplier, timespan := 1, "day"
	switch interval {
	case "1hour":
		multiplier, timespan = 1, "hour"
	case "15min":
		multiplier, timespan = 15, "minute"
	case "5min":
		multiplier, timespan = 5, "minute"
	}

	to := time.Now()
	from := to.AddDate(0, 0, -days)

	path := fmt.Sprintf("/v2/aggs/ticker/%s/range/%d/%s/%s/%s",
		symbol, multiplier, timespan,
		from.Format("2006-01-02"), to.Format("2006-01-02"))

	params := url.Values{}
	params.Set("adjusted", "true")
	params.Set("sort", "asc")
	params.Set("limit", "5000")

	var resp aggsResponse
	if err := c.get(ctx, path, params, &resp); err != nil {
		return nil, err
	}

	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("%s %s: %w", ProviderName, symbol, models.ErrNoData)
	}

	bars := make([]models.Bar, 0, len(resp.Results))
	for _, r := range resp.Results {
		bars = append(bars, models.Bar{
			Timestamp: time.UnixMilli(r.Timestamp).UTC(),
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    int64(r.Volume),
			VWAP:      r.VWAP,
		})
	}

	return bars, nil
}

// SupportsExtendedHours reports that Polygon snapshots cover pre- and
// post-market trading.
func (c *Client) SupportsExtendedHours() bool {
	return true
}

// FetchExtendedHoursQuote retrieves a snapshot including extended-session
// trades. The caller stamps the session.
func (c *Client) FetchExtendedHoursQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	return c.fetchSnapshot(ctx, symbol)
}

// Ensure Client implements ProviderClient
var _ interfaces.ProviderClient = (*Client)(nil)
