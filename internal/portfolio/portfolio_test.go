package portfolio_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rjsfud9894/paper-trade/internal/model"
	"github.com/rjsfud9894/paper-trade/internal/portfolio"
	"github.com/rjsfud9894/paper-trade/internal/quote"
	"github.com/rjsfud9894/paper-trade/internal/store"
	"github.com/rjsfud9894/paper-trade/internal/trade"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// fixedProvider returns a constant price for every symbol, or an error.
type fixedProvider struct {
	price decimal.Decimal
	err   error
}

func (p *fixedProvider) Quote(_ context.Context, symbol string) (*model.Quote, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &model.Quote{Symbol: symbol, Price: p.price, Currency: "USD"}, nil
}

type env struct {
	ms      *store.MemoryStore
	svc     *trade.Service
	account string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ms := store.NewMemoryStore()

	for _, seed := range [][2]string{{"AAPL", "Apple"}, {"TSLA", "Tesla"}, {"MSFT", "Microsoft"}} {
		inst := &model.Instrument{ID: uuid.New().String(), Symbol: seed[0], Name: seed[1]}
		if err := ms.CreateInstrument(context.Background(), inst); err != nil {
			t.Fatalf("seed instrument: %v", err)
		}
	}

	account := &model.Account{
		ID:        uuid.New().String(),
		Username:  "trader",
		Email:     "trader@example.com",
		Balance:   decimal.NewFromInt(1_000_000),
		CreatedAt: time.Now().UTC(),
	}
	if err := ms.CreateAccount(context.Background(), account); err != nil {
		t.Fatalf("seed account: %v", err)
	}

	return &env{ms: ms, svc: trade.NewService(ms, nil), account: account.ID}
}

func (e *env) buy(t *testing.T, symbol string, qty int64, price float64) {
	t.Helper()
	if _, err := e.svc.Buy(context.Background(), e.account, symbol, qty, d(price)); err != nil {
		t.Fatalf("buy %s: %v", symbol, err)
	}
}

func (e *env) sell(t *testing.T, symbol string, qty int64, price float64) {
	t.Helper()
	if _, err := e.svc.Sell(context.Background(), e.account, symbol, qty, d(price)); err != nil {
		t.Fatalf("sell %s: %v", symbol, err)
	}
}

func TestHoldings_ExcludesUnheldInstruments(t *testing.T) {
	e := newEnv(t)
	agg := portfolio.NewAggregator(e.ms, nil)

	e.buy(t, "AAPL", 10, 150)
	e.buy(t, "TSLA", 3, 200)
	e.sell(t, "TSLA", 3, 210) // fully sold
	// MSFT never traded.

	holdings, err := agg.Holdings(context.Background(), e.account)
	if err != nil {
		t.Fatalf("holdings: %v", err)
	}

	if len(holdings) != 1 {
		t.Fatalf("expected 1 holding, got %d", len(holdings))
	}
	h := holdings[0]
	if h.Symbol != "AAPL" || h.Name != "Apple" {
		t.Errorf("unexpected holding %s/%s", h.Symbol, h.Name)
	}
	if h.Quantity != 10 {
		t.Errorf("expected quantity 10, got %d", h.Quantity)
	}
	if !h.AvgPrice.Equal(d(150)) {
		t.Errorf("expected avg price 150, got %s", h.AvgPrice)
	}
	if !h.Value.Equal(d(1500)) {
		t.Errorf("expected value 1500, got %s", h.Value)
	}
}

func TestSummarize_Totals(t *testing.T) {
	e := newEnv(t)
	agg := portfolio.NewAggregator(e.ms, nil)

	e.buy(t, "AAPL", 10, 150) // invested 1500
	e.buy(t, "TSLA", 2, 300)  // invested 600

	summary, err := agg.Summarize(context.Background(), e.account)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}

	// balance = 1,000,000 − 1500 − 600
	if !summary.Balance.Equal(d(997900)) {
		t.Errorf("expected balance 997900, got %s", summary.Balance)
	}
	if !summary.TotalInvested.Equal(d(2100)) {
		t.Errorf("expected total invested 2100, got %s", summary.TotalInvested)
	}
	if !summary.TotalAssets.Equal(d(1000000)) {
		t.Errorf("expected total assets 1000000, got %s", summary.TotalAssets)
	}
	if len(summary.Holdings) != 2 {
		t.Errorf("expected 2 holdings, got %d", len(summary.Holdings))
	}
}

func TestSummarize_ValuesAtAverageCostNotLivePrice(t *testing.T) {
	e := newEnv(t)
	// Oracle reports a wildly different live price; valuation must ignore it.
	agg := portfolio.NewAggregator(e.ms, &fixedProvider{price: d(9999)})

	e.buy(t, "AAPL", 10, 150)

	summary, err := agg.Summarize(context.Background(), e.account)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}

	if !summary.TotalInvested.Equal(d(1500)) {
		t.Errorf("live price leaked into valuation: total invested %s", summary.TotalInvested)
	}
	h := summary.Holdings[0]
	if h.LastPrice == nil || !h.LastPrice.Equal(d(9999)) {
		t.Error("expected last_price enrichment from oracle")
	}
	if !h.Value.Equal(d(1500)) {
		t.Errorf("holding value should use average cost, got %s", h.Value)
	}
}

func TestSummarize_OracleFailureDegradesGracefully(t *testing.T) {
	e := newEnv(t)
	agg := portfolio.NewAggregator(e.ms, &fixedProvider{err: quote.ErrUnavailable})

	e.buy(t, "AAPL", 10, 150)

	summary, err := agg.Summarize(context.Background(), e.account)
	if err != nil {
		t.Fatalf("oracle failure must not fail the query: %v", err)
	}

	h := summary.Holdings[0]
	if h.LastPrice != nil {
		t.Error("expected no last_price on oracle failure")
	}
	if !h.PriceUnavailable {
		t.Error("expected price_unavailable annotation")
	}
	if !summary.TotalAssets.Equal(d(1000000)) {
		t.Errorf("valuation changed on oracle failure: %s", summary.TotalAssets)
	}
}

func TestSummarize_IdempotentRead(t *testing.T) {
	e := newEnv(t)
	agg := portfolio.NewAggregator(e.ms, nil)

	e.buy(t, "AAPL", 10, 150)
	e.buy(t, "AAPL", 5, 160)
	e.sell(t, "AAPL", 8, 170)

	first, err := agg.Summarize(context.Background(), e.account)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	second, err := agg.Summarize(context.Background(), e.account)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}

	if !first.Balance.Equal(second.Balance) ||
		!first.TotalInvested.Equal(second.TotalInvested) ||
		!first.TotalAssets.Equal(second.TotalAssets) {
		t.Errorf("summaries differ with no intervening trade: %+v vs %+v", first, second)
	}
	if len(first.Holdings) != len(second.Holdings) {
		t.Fatalf("holding counts differ: %d vs %d", len(first.Holdings), len(second.Holdings))
	}
	for i := range first.Holdings {
		a, b := first.Holdings[i], second.Holdings[i]
		if a.Symbol != b.Symbol || a.Quantity != b.Quantity || !a.AvgPrice.Equal(b.AvgPrice) {
			t.Errorf("holding %d differs: %+v vs %+v", i, a, b)
		}
	}
}

func TestSummarize_UnknownAccount(t *testing.T) {
	e := newEnv(t)
	agg := portfolio.NewAggregator(e.ms, nil)

	_, err := agg.Summarize(context.Background(), "no-such-account")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
