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

const twelveDataPricePath = "/price"

// TwelveDataOptions parameterise the Twelve Data client.
type TwelveDataOptions struct {
	APIKey    string
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// TwelveData fetches quotes from the Twelve Data price endpoint.
type TwelveData struct {
	opts    TwelveDataOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewTwelveData constructs a Twelve Data provider.
func NewTwelveData(opts TwelveDataOptions, logger zerolog.Logger) *TwelveData {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.twelvedata.com"
	}

	return &TwelveData{
		opts:    opts,
		logger:  logger.With().Str("component", "provider_twelvedata").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Name identifies this provider in samples and logs.
func (t *TwelveData) Name() string { return "twelvedata" }

// GetQuote retrieves the current price for symbol.
func (t *TwelveData) GetQuote(ctx context.Context, symbol string) (Quote, error) {
	if t.opts.APIKey == "" {
		return Quote{}, errors.New("twelvedata: api key not configured")
	}

	endpoint := t.baseURL + twelveDataPricePath + "?" + url.Values{
		"symbol": {symbol},
		"apikey": {t.opts.APIKey},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Quote{}, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(t.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return Quote{}, classifyTransport(t.Name(), err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Quote{}, classifyTransport(t.Name(), err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return Quote{}, fmt.Errorf("twelvedata: %w: status %d", ErrRateLimited, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("twelvedata: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var body twelveDataResponse
	if err := json.Unmarshal(payload, &body); err != nil {
		return Quote{}, fmt.Errorf("twelvedata: %w: %v", ErrMalformed, err)
	}

	// The API reports quota exhaustion as a JSON error with HTTP 200.
	if body.Status == "error" {
		if body.Code == http.StatusTooManyRequests {
			return Quote{}, fmt.Errorf("twelvedata: %w: %s", ErrRateLimited, body.Message)
		}
		return Quote{}, fmt.Errorf("twelvedata: api error (%d): %s", body.Code, body.Message)
	}

	if body.Price == "" {
		return Quote{}, fmt.Errorf("twelvedata: %w: price missing", ErrMalformed)
	}
	price, err := decimal.NewFromString(body.Price)
	if err != nil {
		return Quote{}, fmt.Errorf("twelvedata: %w: parse price: %v", ErrMalformed, err)
	}

	return Quote{Price: price, Timestamp: time.Now().UTC()}, nil
}

type twelveDataResponse struct {
	Price   string `json:"price"`
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

var _ Provider = (*TwelveData)(nil)
