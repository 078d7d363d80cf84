package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// AlphaVantageOptions parameterise the Alpha Vantage client.
type AlphaVantageOptions struct {
	APIKey    string
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// AlphaVantage fetches quotes through the GLOBAL_QUOTE function.
type AlphaVantage struct {
	opts    AlphaVantageOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewAlphaVantage constructs an Alpha Vantage provider.
func NewAlphaVantage(opts AlphaVantageOptions, logger zerolog.Logger) *AlphaVantage {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://www.alphavantage.co"
	}

	return &AlphaVantage{
		opts:    opts,
		logger:  logger.With().Str("component", "provider_alphavantage").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Name identifies this provider in samples and logs.
func (a *AlphaVantage) Name() string { return "alphavantage" }

// GetQuote retrieves the current price for symbol.
func (a *AlphaVantage) GetQuote(ctx context.Context, symbol string) (Quote, error) {
	if a.opts.APIKey == "" {
		return Quote{}, errors.New("alphavantage: api key not configured")
	}

	query := url.Values{
		"function": {"GLOBAL_QUOTE"},
		"symbol":   {symbol},
		"apikey":   {a.opts.APIKey},
	}
	endpoint := a.baseURL + "/query?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Quote{}, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(a.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return Quote{}, classifyTransport(a.Name(), err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Quote{}, classifyTransport(a.Name(), err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return Quote{}, fmt.Errorf("alphavantage: %w: status %d", ErrRateLimited, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("alphavantage: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var body alphaVantageResponse
	if err := json.Unmarshal(payload, &body); err != nil {
		return Quote{}, fmt.Errorf("alphavantage: %w: %v", ErrMalformed, err)
	}

	// Quota exhaustion arrives as HTTP 200 with a Note or Information
	// field instead of quote data.
	if body.Note != "" || body.Information != "" {
		return Quote{}, fmt.Errorf("alphavantage: %w: %s", ErrRateLimited, firstNonEmpty(body.Note, body.Information))
	}

	raw := strings.TrimSpace(body.GlobalQuote.Price)
	if raw == "" {
		return Quote{}, fmt.Errorf("alphavantage: %w: missing price for %s", ErrMalformed, symbol)
	}

	price, err := decimal.NewFromString(raw)
	if err != nil {
		return Quote{}, fmt.Errorf("alphavantage: %w: parse price %q: %v", ErrMalformed, raw, err)
	}

	return Quote{Price: price, Timestamp: time.Now().UTC()}, nil
}

type alphaVantageResponse struct {
	GlobalQuote struct {
		Symbol string `json:"01. symbol"`
		Price  string `json:"05. price"`
	} `json:"Global Quote"`
	Note        string `json:"Note"`
	Information string `json:"Information"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

var _ Provider = (*AlphaVantage)(nil)
