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

const fmpQuotePath = "/api/v3/quote/"

// FMPOptions parameterise the Financial Modeling Prep client.
type FMPOptions struct {
	APIKey    string
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// FMP fetches quotes from the Financial Modeling Prep quote endpoint.
type FMP struct {
	opts    FMPOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewFMP constructs a Financial Modeling Prep provider.
func NewFMP(opts FMPOptions, logger zerolog.Logger) *FMP {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://financialmodelingprep.com"
	}

	return &FMP{
		opts:    opts,
		logger:  logger.With().Str("component", "provider_fmp").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Name identifies this provider in samples and logs.
func (f *FMP) Name() string { return "fmp" }

// GetQuote retrieves the current price for symbol.
func (f *FMP) GetQuote(ctx context.Context, symbol string) (Quote, error) {
	if f.opts.APIKey == "" {
		return Quote{}, errors.New("fmp: api key not configured")
	}

	endpoint := f.baseURL + fmpQuotePath + url.PathEscape(symbol) + "?" + url.Values{
		"apikey": {f.opts.APIKey},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Quote{}, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(f.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Quote{}, classifyTransport(f.Name(), err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Quote{}, classifyTransport(f.Name(), err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return Quote{}, fmt.Errorf("fmp: %w: status %d", ErrRateLimited, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("fmp: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var quotes []fmpQuote
	if err := json.Unmarshal(payload, &quotes); err != nil {
		return Quote{}, fmt.Errorf("fmp: %w: %v", ErrMalformed, err)
	}
	if len(quotes) == 0 {
		return Quote{}, fmt.Errorf("fmp: %w: empty quote list for %s", ErrMalformed, symbol)
	}

	price := decimal.NewFromFloat(quotes[0].Price)
	if price.IsZero() && quotes[0].Price == 0 {
		return Quote{}, fmt.Errorf("fmp: %w: zero price for %s", ErrMalformed, symbol)
	}

	observed := time.Now().UTC()
	if quotes[0].Timestamp > 0 {
		observed = time.Unix(quotes[0].Timestamp, 0).UTC()
	}

	return Quote{Price: price, Timestamp: observed}, nil
}

type fmpQuote struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"`
}

var _ Provider = (*FMP)(nil)
