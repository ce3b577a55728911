// Package alphavantage provides a client for the Alpha Vantage API
package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/bobmcallan/tapewatch/internal/common"
	"github.com/bobmcallan/tapewatch/internal/interfaces"
	"github.com/bobmcallan/tapewatch/internal/models"
)

const (
	ProviderName     = "alpha_vantage"
	DefaultBaseURL   = "https://www.alphavantage.co"
	DefaultTimeout   = 15 * time.Second
	DefaultQuota     = 5 // calls per window
	DefaultWindow    = time.Minute
	DefaultRateLimit = 5
)

// flexFloat64 handles JSON values that may be either a number or a string.
// Alpha Vantage serializes every numeric field as a string.
type flexFloat64 float64

func (f *flexFloat64) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*f = flexFloat64(num)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		s = strings.TrimSuffix(strings.TrimSpace(s), "%")
		if s == "" || s == "N/A" {
			*f = 0
			return nil
		}
		num, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*f = 0
			return nil
		}
		*f = flexFloat64(num)
		return nil
	}
	return fmt.Errorf("cannot unmarshal %s into float64", string(data))
}

// Client implements the ProviderClient interface for Alpha Vantage
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

// NewClient creates a new Alpha Vantage client sharing the given rate limiter
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

// get performs a quota-checked, paced GET request against /query.
func (c *Client) get(ctx context.Context, params url.Values, result interface{}) error {
	if !c.quota.CanCall(ProviderName, c.quotaLimit, c.quotaWindow) {
		return fmt.Errorf("%s: %w", ProviderName, models.ErrRateLimited)
	}

	if err := c.pacer.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	params.Set("apikey", c.apiKey)
	reqURL := fmt.Sprintf("%s/query?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().Str("function", params.Get("function")).Msg("Alpha Vantage API request")
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
			Endpoint:   "/query?function=" + params.Get("function"),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// globalQuoteResponse represents the GLOBAL_QUOTE payload
type globalQuoteResponse struct {
	GlobalQuote struct {
		Open          flexFloat64 `json:"02. open"`
		High          flexFloat64 `json:"03. high"`
		Low           flexFloat64 `json:"04. low"`
		Price         flexFloat64 `json:"05. price"`
		Volume        flexFloat64 `json:"06. volume"`
		PreviousClose flexFloat64 `json:"08. previous close"`
		Change        flexFloat64 `json:"09. change"`
		ChangePct     flexFloat64 `json:"10. change percent"`
	} `json:"Global Quote"`
}

// FetchQuote retrieves a real-time quote via GLOBAL_QUOTE. A zero price
// means Alpha Vantage has nothing for the symbol.
func (c *Client) FetchQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	params := url.Values{}
	params.Set("function", "GLOBAL_QUOTE")
	params.Set("symbol", symbol)

	var resp globalQuoteResponse
	if err := c.get(ctx, params, &resp); err != nil {
		return nil, err
	}

	q := resp.GlobalQuote
	if q.Price == 0 {
		return nil, fmt.Errorf("%s %s: %w", ProviderName, symbol, models.ErrNoData)
	}

	return &models.Quote{
		Symbol:        symbol,
		Price:         float64(q.Price),
		Change:        float64(q.Change),
		ChangePct:     float64(q.ChangePct),
		Volume:        int64(q.Volume),
		High:          float64(q.High),
		Low:           float64(q.Low),
		Open:          float64(q.Open),
		PreviousClose: float64(q.PreviousClose),
		Session:       models.SessionRegular,
		Source:        ProviderName,
		FetchedAt:     time.Now(),
	}, nil
}

// dailyBar represents one entry in a TIME_SERIES payload
type dailyBar struct {
	Open   flexFloat64 `json:"1. open"`
	High   flexFloat64 `json:"2. high"`
	Low    flexFloat64 `json:"3. low"`
	Close  flexFloat64 `json:"4. close"`
	Volume flexFloat64 `json:"5. volume"`
}

// FetchHistorical retrieves a TIME_SERIES_DAILY or intraday series.
func (c *Client) FetchHistorical(ctx context.Context, symbol string, days int, interval string) ([]models.Bar, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("outputsize", "compact")

	if interval == "daily" || interval == "" {
		params.Set("function", "TIME_SERIES_DAILY")
	} else {
		avInterval := map[string]string{"1hour": "60min", "15min": "15min", "5min": "5min"}[interval]
		if avInterval == "" {
			avInterval = "60min"
		}
		params.Set("function", "TIME_SERIES_INTRADAY")
		params.Set("interval", avInterval)
	}

	var raw map[string]json.RawMessage
	if err := c.get(ctx, params, &raw); err != nil {
		return nil, err
	}

	// The series key varies by function ("Time Series (Daily)", etc.)
	var series map[string]dailyBar
	for key, val := range raw {
		if strings.Contains(key, "Time Series") {
			if err := json.Unmarshal(val, &series); err != nil {
				return nil, fmt.Errorf("failed to decode time series: %w", err)
			}
			break
		}
	}

	if len(series) == 0 {
		return nil, fmt.Errorf("%s %s: %w", ProviderName, symbol, models.ErrNoData)
	}

	bars := make([]models.Bar, 0, len(series))
	for dateStr, v := range series {
		ts, err := parseSeriesTime(dateStr)
		if err != nil {
			continue
		}
		bars = append(bars, models.Bar{
			Timestamp: ts,
			Open:      float64(v.Open),
			High:      float64(v.High),
			Low:       float64(v.Low),
			Close:     float64(v.Close),
			Volume:    int64(v.Volume),
		})
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })

	if len(bars) > days {
		bars = bars[len(bars)-days:]
	}

	return bars, nil
}

func parseSeriesTime(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// SupportsExtendedHours reports that Alpha Vantage quotes cover the regular
// session only.
func (c *Client) SupportsExtendedHours() bool {
	return false
}

// FetchExtendedHoursQuote is unsupported for Alpha Vantage.
func (c *Client) FetchExtendedHoursQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	return nil, fmt.Errorf("%s extended hours: %w", ProviderName, models.ErrNoData)
}

// Ensure Client implements ProviderClient
var _ interfaces.ProviderClient = (*Client)(nil)
