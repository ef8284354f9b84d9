// Package trade implements the settlement engine: validating buy and sell
// requests against the ledger-derived position and the cash balance, then
// applying the balance change and the ledger append as one atomic unit.
//
// All monetary values use shopspring/decimal, never float64.
package trade

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rjsfud9894/paper-trade/internal/auth"
	"github.com/rjsfud9894/paper-trade/internal/metrics"
	"github.com/rjsfud9894/paper-trade/internal/model"
	"github.com/rjsfud9894/paper-trade/internal/position"
	"github.com/rjsfud9894/paper-trade/internal/store"
)

// settleRetries bounds internal retries on store serialization conflicts.
const settleRetries = 3

// Service is the settlement engine. Settlements against the same account
// are serialized by a per-account mutex held across validate and apply;
// different accounts settle fully in parallel. Single-instance scope: for
// horizontal scaling, replace the mutexes with distributed locking or rely
// solely on the store's serializable transactions.
type Service struct {
	store store.Store
	hub   *WSHub // optional hub for trade-execution broadcasts

	mu    sync.Mutex
	locks map[string]*sync.Mutex // accountID → settlement lock
}

// NewService creates a new settlement service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, hub *WSHub) *Service {
	return &Service{
		store: st,
		hub:   hub,
		locks: make(map[string]*sync.Mutex),
	}
}

// accountLock returns the settlement mutex for one account, creating it on
// first use. Locks are never removed; the map is bounded by account count.
func (s *Service) accountLock(accountID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[accountID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[accountID] = l
	}
	return l
}

// --- Core operations ---

// Buy settles a purchase: the account is debited quantity×price and a buy
// trade is appended to the ledger. Fails with *InsufficientFundsError when
// the balance does not cover the cost; no partial effect on any failure.
func (s *Service) Buy(ctx context.Context, accountID, symbol string, quantity int64, price decimal.Decimal) (*model.Trade, error) {
	if err := validateOrder(quantity, price); err != nil {
		return nil, err
	}

	lock := s.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	inst, err := s.store.GetInstrumentBySymbol(ctx, symbol)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	cost := price.Mul(decimal.NewFromInt(quantity))
	if account.Balance.LessThan(cost) {
		metrics.SettlementRejections.WithLabelValues("insufficient_funds").Inc()
		return nil, &InsufficientFundsError{Balance: account.Balance, Cost: cost}
	}

	trade := s.newTrade(accountID, inst, model.SideBuy, quantity, price)
	if err := s.settle(ctx, trade, cost.Neg()); err != nil {
		// The store guards the balance again inside the transaction.
		if errors.Is(err, store.ErrBalanceNegative) {
			metrics.SettlementRejections.WithLabelValues("insufficient_funds").Inc()
			return nil, &InsufficientFundsError{Balance: account.Balance, Cost: cost}
		}
		return nil, err
	}

	s.finish(trade, cost)
	return trade, nil
}

// Sell settles a sale: the account is credited quantity×price and a sell
// trade is appended to the ledger. Fails with *InsufficientHoldingsError
// when the net position is smaller than the requested quantity.
func (s *Service) Sell(ctx context.Context, accountID, symbol string, quantity int64, price decimal.Decimal) (*model.Trade, error) {
	if err := validateOrder(quantity, price); err != nil {
		return nil, err
	}

	lock := s.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	inst, err := s.store.GetInstrumentBySymbol(ctx, symbol)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return nil, mapStoreErr(err)
	}

	// Position is recomputed from the ledger under the account lock, so a
	// concurrent sell cannot pass this check against a stale quantity.
	trades, err := s.store.TradesByInstrument(ctx, accountID, inst.ID)
	if err != nil {
		return nil, err
	}
	pos := position.Compute(trades)
	if pos.NetQuantity < quantity {
		metrics.SettlementRejections.WithLabelValues("insufficient_holdings").Inc()
		return nil, &InsufficientHoldingsError{Held: pos.NetQuantity, Requested: quantity}
	}

	proceeds := price.Mul(decimal.NewFromInt(quantity))
	trade := s.newTrade(accountID, inst, model.SideSell, quantity, price)
	if err := s.settle(ctx, trade, proceeds); err != nil {
		return nil, err
	}

	s.finish(trade, proceeds)
	return trade, nil
}

// History returns the account's full trade log in insertion order.
func (s *Service) History(ctx context.Context, accountID string) ([]model.Trade, error) {
	trades, err := s.store.TradesByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	return trades, nil
}

func (s *Service) newTrade(accountID string, inst *model.Instrument, side string, quantity int64, price decimal.Decimal) *model.Trade {
	return &model.Trade{
		ID:           uuid.New().String(),
		AccountID:    accountID,
		InstrumentID: inst.ID,
		Symbol:       inst.Symbol,
		Side:         side,
		Quantity:     quantity,
		Price:        price,
		CreatedAt:    time.Now().UTC(),
	}
}

// settle applies the trade through the store, retrying serialization
// conflicts a bounded number of times before giving up.
func (s *Service) settle(ctx context.Context, t *model.Trade, balanceDelta decimal.Decimal) error {
	start := time.Now()
	var err error
	for attempt := 0; attempt < settleRetries; attempt++ {
		err = s.store.Settle(ctx, t, balanceDelta)
		if !errors.Is(err, store.ErrConflict) {
			break
		}
		slog.Warn("settlement conflict, retrying",
			"trade_id", t.ID, "attempt", attempt+1)
	}
	metrics.SettleLatency.WithLabelValues(t.Side).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrConflict):
		return ErrTransient
	case errors.Is(err, store.ErrConstraint):
		return ErrConstraint
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	default:
		return err
	}
}

// finish records metrics, logs, and broadcasts a committed settlement.
func (s *Service) finish(t *model.Trade, amount decimal.Decimal) {
	metrics.TradesTotal.WithLabelValues(t.Side).Inc()

	slog.Info("trade settled",
		"trade_id", t.ID,
		"account", t.AccountID,
		"symbol", t.Symbol,
		"side", t.Side,
		"qty", t.Quantity,
		"price", t.Price.String(),
		"amount", amount.String(),
	)

	if s.hub != nil {
		s.hub.Broadcast(WSMessage{
			Type:     "trade_settled",
			TradeID:  t.ID,
			Symbol:   t.Symbol,
			Side:     t.Side,
			Quantity: t.Quantity,
			Price:    t.Price.String(),
		})
	}
}

func validateOrder(quantity int64, price decimal.Decimal) error {
	if quantity <= 0 {
		return errInvalid("quantity must be positive")
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return errInvalid("price must be positive")
	}
	return nil
}

func errInvalid(msg string) error {
	return &invalidInputError{msg: msg}
}

type invalidInputError struct{ msg string }

func (e *invalidInputError) Error() string { return e.msg }
func (e *invalidInputError) Unwrap() error { return ErrInvalidInput }

func mapStoreErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// --- HTTP layer ---

// OrderRequest is the JSON body for POST /trades/buy and /trades/sell.
type OrderRequest struct {
	Symbol   string          `json:"symbol"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// HandleBuy handles POST /trades/buy.
func (s *Service) HandleBuy(w http.ResponseWriter, r *http.Request) {
	s.handleOrder(w, r, s.Buy)
}

// HandleSell handles POST /trades/sell.
func (s *Service) HandleSell(w http.ResponseWriter, r *http.Request) {
	s.handleOrder(w, r, s.Sell)
}

func (s *Service) handleOrder(w http.ResponseWriter, r *http.Request,
	op func(context.Context, string, string, int64, decimal.Decimal) (*model.Trade, error)) {

	accountID, ok := auth.AccountID(r.Context())
	if !ok {
		writeError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	trade, err := op(r.Context(), accountID, req.Symbol, req.Quantity, req.Price)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(trade)
}

// HandleHistory handles GET /trades/history.
func (s *Service) HandleHistory(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountID(r.Context())
	if !ok {
		writeError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	trades, err := s.History(r.Context(), accountID)
	if err != nil {
		writeError(w, "failed to load trade history", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(trades)
}

// statusFor maps settlement errors to HTTP statuses.
func statusFor(err error) int {
	var funds *InsufficientFundsError
	var holdings *InsufficientHoldingsError

	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.As(err, &funds), errors.As(err, &holdings):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConstraint):
		return http.StatusConflict
	case errors.Is(err, ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
