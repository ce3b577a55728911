// Package finnhub provides a client for the Finnhub quote API
package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/bobmcallan/tapewatch/internal/common"
	"github.com/bobmcallan/tapewatch/internal/interfaces"
	"github.com/bobmcallan/tapewatch/internal/models"
)

const (
	ProviderName     = "finnhub"
	DefaultBaseURL   = "https://finnhub.io/api/v1"
	DefaultTimeout   = 10 * time.Second
	DefaultQuota     = 60          // calls per window
	DefaultWindow    = time.Minute // sliding window
	DefaultRateLimit = 10          // request pacing per second
)

// Client implements the ProviderClient interface for Finnhub
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

// NewClient creates a new Finnhub client sharing the given rate limiter
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

// get performs a quota-checked, paced GET request. The call is recorded
// against quota at dispatch, so a hanging request still counts.
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
	params.Set("token", c.apiKey)

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().Str("url", c.baseURL+path).Msg("Finnhub API request")
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

// quoteResponse represents the Finnhub quote payload
type quoteResponse struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	ChangePct     float64 `json:"dp"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PreviousClose float64 `json:"pc"`
}

// FetchQuote retrieves a real-time quote. A zero current price means
// Finnhub has nothing for the symbol.
func (c *Client) FetchQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var resp quoteResponse
	if err := c.get(ctx, "/quote", params, &resp); err != nil {
		return nil, err
	}

	if resp.Current == 0 {
		return nil, fmt.Errorf("%s %s: %w", ProviderName, symbol, models.ErrNoData)
	}

	return &models.Quote{
		Symbol:        symbol,
		Price:         resp.Current,
		Change:        resp.Change,
		ChangePct:     resp.ChangePct,
		High:          resp.High,
		Low:           resp.Low,
		Open:          resp.Open,
		PreviousClose: resp.PreviousClose,
		Session:       models.SessionRegular,
		Source:        ProviderName,
		FetchedAt:     time.Now(),
	}, nil
}

// candleResponse represents the Finnhub candle payload
type candleResponse struct {
	Status  string    `json:"s"`
	Opens   []float64 `json:"o"`
	Highs   []float64 `json:"h"`
	Lows    []float64 `json:"l"`
	Closes  []float64 `json:"c"`
	Volumes []float64 `json:"v"`
	Times   []int64   `json:"t"`
}

// FetchHistorical retrieves daily candles covering the requested range.
func (c *Client) FetchHistorical(ctx context.Context, symbol string, days int, interval string) ([]models.Bar, error) {
	resolution := "D"
	switch interval {
	case "1hour":
		resolution = "60"
	case "15min":
		resolution = "15"
	case "5min":
		resolution = "5"
	}

	to := time.Now()
	from := to.AddDate(0, 0, -days)

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("resolution", resolution)
	params.Set("from", strconv.FormatInt(from.Unix(), 10))
	params.Set("to", strconv.FormatInt(to.Unix(), 10))

	var resp candleResponse
	if err := c.get(ctx, "/stock/candle", params, &resp); err != nil {
		return nil, err
	}

	if resp.Status != "ok" || len(resp.Times) == 0 {
		return nil, fmt.Errorf("%s %s: %w", ProviderName, symbol, models.ErrNoData)
	}

	// The candle payload is columnar; a column shorter than the timestamp
	// axis means a truncated payload.
	n := len(resp.Times)
	if len(resp.Opens) < n || len(resp.Highs) < n || len(resp.Lows) < n ||
		len(resp.Closes) < n || len(resp.Volumes) < n {
		return nil, fmt.Errorf("%s %s: %w", ProviderName, symbol, models.ErrNoData)
	}

	bars := make([]models.Bar, 0, len(resp.Times))
	for i := range resp.Times {
		bars = append(bars, models.Bar{
			Timestamp: time.Unix(resp.Times[i], 0),
			Open:      resp.Opens[i],
			High:      resp.Highs[i],
			Low:       resp.Lows[i],
			Close:     resp.Closes[i],
			Volume:    int64(resp.Volumes[i]),
		})
	}

	return bars, nil
}

// SupportsExtendedHours reports that Finnhub's basic quote does not
// distinguish extended-hours trading.
func (c *Client) SupportsExtendedHours() bool {
	return false
}

// FetchExtendedHoursQuote is unsupported for Finnhub.
func (c *Client) FetchExtendedHoursQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	return nil, fmt.Errorf("%s extended hours: %w", ProviderName, models.ErrNoData)
}

// Ensure Client implements ProviderClient
var _ interfaces.ProviderClient = (*Client)(nil)
