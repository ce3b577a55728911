// Package twelvedata provides a client for the Twelve Data API
package twelvedata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/bobmcallan/tapewatch/internal/common"
	"github.com/bobmcallan/tapewatch/internal/interfaces"
	"github.com/bobmcallan/tapewatch/internal/models"
)

const (
	ProviderName     = "twelve_data"
	DefaultBaseURL   = "https://api.twelvedata.com"
	DefaultTimeout   = 10 * time.Second
	DefaultQuota     = 8 // calls per window
	DefaultWindow    = time.Minute
	DefaultRateLimit = 5
)

// flexFloat64 handles JSON values that may be either a number or a string.
type flexFloat64 float64

func (f *flexFloat64) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*f = flexFloat64(num)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		s = strings.TrimSpace(s)
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

// Client implements the ProviderClient interface for Twelve Data
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

// NewClient creates a new Twelve Data client sharing the given rate limiter
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
	params.Set("apikey", c.apiKey)

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().Str("url", c.baseURL+path).Msg("Twelve Data API request")
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

// quoteResponse represents the Twelve Data quote payload
type quoteResponse struct {
	Status        string      `json:"status"`
	Close         flexFloat64 `json:"close"`
	Change        flexFloat64 `json:"change"`
	PercentChange flexFloat64 `json:"percent_change"`
	High          flexFloat64 `json:"high"`
	Low           flexFloat64 `json:"low"`
	Open          flexFloat64 `json:"open"`
	PreviousClose flexFloat64 `json:"previous_close"`
	Volume        flexFloat64 `json:"volume"`
	AverageVolume flexFloat64 `json:"average_volume"`
}

// FetchQuote retrieves a real-time quote. An error status or zero close
// means Twelve Data has nothing for the symbol.
func (c *Client) FetchQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var resp quoteResponse
	if err := c.get(ctx, "/quote", params, &resp); err != nil {
		return nil, err
	}

	if resp.Status == "error" || resp.Close == 0 {
		return nil, fmt.Errorf("%s %s: %w", ProviderName, symbol, models.ErrNoData)
	}

	return &models.Quote{
		Symbol:        symbol,
		Price:         float64(resp.Close),
		Change:        float64(resp.Change),
		ChangePct:     float64(resp.PercentChange),
		Volume:        int64(resp.Volume),
		AvgVolume:     int64(resp.AverageVolume),
		High:          float64(resp.High),
		Low:           float64(resp.Low),
		Open:          float64(resp.Open),
		PreviousClose: float64(resp.PreviousClose),
		Session:       models.SessionRegular,
		Source:        ProviderName,
		FetchedAt:     time.Now(),
	}, nil
}

// seriesResponse represents the time_series payload
type seriesResponse struct {
	Status string `json:"status"`
	Values []struct {
		Datetime string      `json:"datetime"`
		Open     flexFloat64 `json:"open"`
		High     flexFloat64 `json:"high"`
		Low      flexFloat64 `json:"low"`
		Close    flexFloat64 `json:"close"`
		Volume   flexFloat64 `json:"volume"`
	} `json:"values"`
}

// FetchHistorical retrieves a time_series in ascending order.
func (c *Client) FetchHistorical(ctx context.Context, symbol string, days int, interval string) ([]models.Bar, error) {
	tdInterval := "1day"
	switch interval {
	case "1hour":
		tdInterval = "1h"
	case "15min":
		tdInterval = "15min"
	case "5min":
		tdInterval = "5min"
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", tdInterval)
	params.Set("outputsize", strconv.Itoa(days))
	params.Set("order", "ASC")

	var resp seriesResponse
	if err := c.get(ctx, "/time_series", params, &resp); err != nil {
		return nil, err
	}

	if resp.Status == "error" || len(resp.Values) == 0 {
		return nil, fmt.Errorf("%s %s: %w", ProviderName, symbol, models.ErrNoData)
	}

	bars := make([]models.Bar, 0, len(resp.Values))
	for _, v := range resp.Values {
		ts, err := parseSeriesTime(v.Datetime)
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

	return bars, nil
}

func parseSeriesTime(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// SupportsExtendedHours reports that Twelve Data quotes cover the regular
// session only.
func (c *Client) SupportsExtendedHours() bool {
	return false
}

// FetchExtendedHoursQuote is unsupported for Twelve Data.
func (c *Client) FetchExtendedHoursQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	return nil, fmt.Errorf("%s extended hours: %w", ProviderName, models.ErrNoData)
}

// Ensure Client implements ProviderClient
var _ interfaces.ProviderClient = (*Client)(nil)
