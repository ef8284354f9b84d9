package quote_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rjsfud9894/paper-trade/internal/quote"
)

func chartBody(price, prevClose float64) string {
	return fmt.Sprintf(`{"chart":{"result":[{"meta":{
		"regularMarketPrice": %f,
		"chartPreviousClose": %f,
		"currency": "USD"
	}}],"error":null}}`, price, prevClose)
}

func TestQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/AAPL", r.URL.Path)
		fmt.Fprint(w, chartBody(150.25, 148.00))
	}))
	defer srv.Close()

	p := quote.NewYahooProviderWithBase(srv.URL, time.Minute)
	q, err := p.Quote(context.Background(), "aapl")
	require.NoError(t, err)

	assert.Equal(t, "AAPL", q.Symbol)
	assert.Equal(t, "150.25", q.Price.String())
	assert.Equal(t, "USD", q.Currency)
	assert.Equal(t, "2.25", q.Change.String())
}

func TestQuote_CachesWithinTTL(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, chartBody(150, 150))
	}))
	defer srv.Close()

	p := quote.NewYahooProviderWithBase(srv.URL, time.Minute)
	_, err := p.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	_, err = p.Quote(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load(), "second lookup should hit the cache")
}

func TestQuote_HTTPErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := quote.NewYahooProviderWithBase(srv.URL, time.Minute)
	_, err := p.Quote(context.Background(), "AAPL")

	assert.ErrorIs(t, err, quote.ErrUnavailable)
}

func TestQuote_EmptyResultIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":[],"error":"Not Found"}}`)
	}))
	defer srv.Close()

	p := quote.NewYahooProviderWithBase(srv.URL, time.Minute)
	_, err := p.Quote(context.Background(), "NOPE")

	assert.ErrorIs(t, err, quote.ErrUnavailable)
}

func TestQuote_UnreachableHostIsUnavailable(t *testing.T) {
	p := quote.NewYahooProviderWithBase("http://127.0.0.1:1", time.Minute)
	_, err := p.Quote(context.Background(), "AAPL")

	assert.ErrorIs(t, err, quote.ErrUnavailable)
}

func TestQuote_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	p := quote.NewYahooProviderWithBase(srv.URL, time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.Quote(ctx, "AAPL")
	assert.ErrorIs(t, err, quote.ErrUnavailable)
}

func TestQuote_EmptySymbol(t *testing.T) {
	p := quote.NewYahooProviderWithBase("http://unused", time.Minute)
	_, err := p.Quote(context.Background(), "  ")

	assert.ErrorIs(t, err, quote.ErrUnavailable)
}
