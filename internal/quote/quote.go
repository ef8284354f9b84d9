// Package quote is the external price oracle: a best-effort, time-bounded
// lookup of live prices. Failures here never abort a caller: portfolio
// valuation proceeds without the live price and reports it as unavailable.
package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rjsfud9894/paper-trade/internal/metrics"
	"github.com/rjsfud9894/paper-trade/internal/model"
)

// ErrUnavailable is returned whenever a live price cannot be produced,
// whatever the underlying cause.
var ErrUnavailable = errors.New("quote unavailable")

// Provider returns the latest quote for a symbol.
type Provider interface {
	Quote(ctx context.Context, symbol string) (*model.Quote, error)
}

const defaultBaseURL = "https://query2.finance.yahoo.com"

type cachedQuote struct {
	quote   model.Quote
	fetched time.Time
}

// YahooProvider fetches quotes from the Yahoo Finance v8 chart endpoint,
// with a per-symbol TTL cache so portfolio views do not hammer the API.
type YahooProvider struct {
	cli     *http.Client
	baseURL string
	ttl     time.Duration

	mu    sync.RWMutex
	cache map[string]cachedQuote
}

// NewYahooProvider creates a provider with an 8-second request bound and a
// 60-second quote cache.
func NewYahooProvider() *YahooProvider {
	return &YahooProvider{
		cli:     &http.Client{Timeout: 8 * time.Second},
		baseURL: defaultBaseURL,
		ttl:     60 * time.Second,
		cache:   make(map[string]cachedQuote),
	}
}

// NewYahooProviderWithBase creates a provider against a custom base URL.
// Used by tests to point at an httptest server.
func NewYahooProviderWithBase(baseURL string, ttl time.Duration) *YahooProvider {
	return &YahooProvider{
		cli:     &http.Client{Timeout: 8 * time.Second},
		baseURL: baseURL,
		ttl:     ttl,
		cache:   make(map[string]cachedQuote),
	}
}

// Quote returns the latest price for symbol. Any failure (network, HTTP
// status, malformed payload, missing price) collapses to ErrUnavailable.
func (p *YahooProvider) Quote(ctx context.Context, symbol string) (*model.Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, ErrUnavailable
	}

	p.mu.RLock()
	if c, ok := p.cache[symbol]; ok && time.Since(c.fetched) < p.ttl {
		p.mu.RUnlock()
		q := c.quote
		return &q, nil
	}
	p.mu.RUnlock()

	q, err := p.fetch(ctx, symbol)
	if err != nil {
		metrics.QuoteFailures.Inc()
		return nil, ErrUnavailable
	}

	p.mu.Lock()
	p.cache[symbol] = cachedQuote{quote: *q, fetched: time.Now()}
	p.mu.Unlock()

	return q, nil
}

func (p *YahooProvider) fetch(ctx context.Context, symbol string) (*model.Quote, error) {
	url := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1m&range=1d", p.baseURL, symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "paper-trade/1.0")

	resp, err := p.cli.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo http %d", resp.StatusCode)
	}

	var raw struct {
		Chart struct {
			Result []struct {
				Meta struct {
					RegularMarketPrice float64 `json:"regularMarketPrice"`
					ChartPreviousClose float64 `json:"chartPreviousClose"`
					Currency           string  `json:"currency"`
				} `json:"meta"`
			} `json:"result"`
			Error any `json:"error"`
		} `json:"chart"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	if len(raw.Chart.Result) == 0 {
		return nil, errors.New("yahoo: no result")
	}

	meta := raw.Chart.Result[0].Meta
	if meta.RegularMarketPrice <= 0 {
		return nil, errors.New("yahoo: no price")
	}

	price := decimal.NewFromFloat(meta.RegularMarketPrice)
	currency := meta.Currency
	if currency == "" {
		currency = "USD"
	}

	change := decimal.Zero
	changePct := decimal.Zero
	if meta.ChartPreviousClose > 0 {
		prev := decimal.NewFromFloat(meta.ChartPreviousClose)
		change = price.Sub(prev)
		changePct = change.Div(prev).Mul(decimal.NewFromInt(100)).Round(4)
	}

	return &model.Quote{
		Symbol:        symbol,
		Price:         price,
		Currency:      currency,
		Change:        change,
		ChangePercent: changePct,
	}, nil
}
