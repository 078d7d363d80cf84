package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestFMPSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/api/v3/quote/MSFT") {
			t.Fatalf("路径不正确: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("apikey"); got != "secret" {
			t.Fatalf("apikey 参数不正确: %s", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]any{{
			"symbol":    "MSFT",
			"price":     415.5,
			"timestamp": 1755850000,
		}})
	}))
	defer srv.Close()

	p := NewFMP(FMPOptions{APIKey: "secret", BaseURL: srv.URL, Timeout: time.Second}, testLogger())
	quote, err := p.GetQuote(context.Background(), "MSFT")
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	if quote.Price.Cmp(decimal.RequireFromString("415.5")) != 0 {
		t.Fatalf("期望价格 415.5, 实际 %s", quote.Price.String())
	}
	if want := time.Unix(1755850000, 0).UTC(); !quote.Timestamp.Equal(want) {
		t.Fatalf("应采用响应中的时间戳, 期望 %s 实际 %s", want, quote.Timestamp)
	}
}

func TestFMPEmptyList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[]"))
	}))
	defer srv.Close()

	p := NewFMP(FMPOptions{APIKey: "secret", BaseURL: srv.URL, Timeout: time.Second}, testLogger())
	_, err := p.GetQuote(context.Background(), "NOPE")
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("空列表应归类为坏数据: %v", err)
	}
}

func TestFMPRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewFMP(FMPOptions{APIKey: "secret", BaseURL: srv.URL, Timeout: time.Second}, testLogger())
	_, err := p.GetQuote(context.Background(), "MSFT")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("HTTP 429 应归类为限流: %v", err)
	}
}

func TestFMPMissingKey(t *testing.T) {
	p := NewFMP(FMPOptions{}, testLogger())
	if _, err := p.GetQuote(context.Background(), "MSFT"); err == nil {
		t.Fatal("缺少 api key 时应返回错误")
	}
}
