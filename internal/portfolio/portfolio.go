// Package portfolio composes ledger-derived positions across all
// instruments into holdings and valuation summaries.
//
// Valuation always uses historical average cost. The quote oracle only
// decorates responses with a last price for display; its failure degrades
// to a per-holding annotation and never fails a query.
package portfolio

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rjsfud9894/paper-trade/internal/auth"
	"github.com/rjsfud9894/paper-trade/internal/model"
	"github.com/rjsfud9894/paper-trade/internal/position"
	"github.com/rjsfud9894/paper-trade/internal/quote"
	"github.com/rjsfud9894/paper-trade/internal/store"
)

// quoteTimeout bounds each oracle lookup during enrichment.
const quoteTimeout = 3 * time.Second

// Aggregator builds portfolio views from the ledger.
type Aggregator struct {
	store  store.Store
	quotes quote.Provider // optional; nil disables enrichment
}

// NewAggregator creates an aggregator. Pass nil for quotes to disable live
// price enrichment.
func NewAggregator(st store.Store, quotes quote.Provider) *Aggregator {
	return &Aggregator{store: st, quotes: quotes}
}

// Holdings returns every held position of the account, valued at average
// cost. Instruments the account has never traded or has fully sold are
// excluded.
func (a *Aggregator) Holdings(ctx context.Context, accountID string) ([]model.Holding, error) {
	if _, err := a.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}

	instruments, err := a.store.ListInstruments(ctx)
	if err != nil {
		return nil, err
	}

	holdings := []model.Holding{}
	for _, inst := range instruments {
		trades, err := a.store.TradesByInstrument(ctx, accountID, inst.ID)
		if err != nil {
			return nil, err
		}

		pos := position.Compute(trades)
		if !pos.Held() {
			continue
		}

		h := model.Holding{
			Symbol:   inst.Symbol,
			Name:     inst.Name,
			Quantity: pos.NetQuantity,
			AvgPrice: pos.AverageCost,
			Value:    pos.AverageCost.Mul(decimal.NewFromInt(pos.NetQuantity)),
		}
		a.enrich(ctx, &h)
		holdings = append(holdings, h)
	}
	return holdings, nil
}

// Summarize returns the account's cash balance, the total invested across
// holdings, and their sum. Calling it twice with no intervening trade
// returns identical results.
func (a *Aggregator) Summarize(ctx context.Context, accountID string) (*model.PortfolioSummary, error) {
	account, err := a.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	holdings, err := a.Holdings(ctx, accountID)
	if err != nil {
		return nil, err
	}

	totalInvested := decimal.Zero
	for _, h := range holdings {
		totalInvested = totalInvested.Add(h.Value)
	}

	return &model.PortfolioSummary{
		Balance:       account.Balance,
		TotalInvested: totalInvested,
		TotalAssets:   account.Balance.Add(totalInvested),
		Holdings:      holdings,
	}, nil
}

// enrich attaches a best-effort live price. Oracle failure is recorded on
// the holding and otherwise ignored.
func (a *Aggregator) enrich(ctx context.Context, h *model.Holding) {
	if a.quotes == nil {
		return
	}

	qctx, cancel := context.WithTimeout(ctx, quoteTimeout)
	defer cancel()

	q, err := a.quotes.Quote(qctx, h.Symbol)
	if err != nil {
		h.PriceUnavailable = true
		slog.Debug("quote enrichment failed", "symbol", h.Symbol, "err", err)
		return
	}
	h.LastPrice = &q.Price
}

// --- HTTP handlers ---

// HandleHoldings handles GET /trades/holdings.
func (a *Aggregator) HandleHoldings(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountID(r.Context())
	if !ok {
		writeError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	holdings, err := a.Holdings(r.Context(), accountID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "account not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "failed to load holdings", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(holdings)
}

// HandleSummary handles GET /portfolio/summary.
func (a *Aggregator) HandleSummary(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountID(r.Context())
	if !ok {
		writeError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	summary, err := a.Summarize(r.Context(), accountID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "account not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "failed to build summary", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
