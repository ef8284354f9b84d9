// Package store defines the persistence interface for the paper-trade
// service. Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/rjsfud9894/paper-trade/internal/model"
)

// Sentinel errors returned by all Store implementations. Callers map these
// to their own error taxonomy at the boundary.
var (
	// ErrNotFound indicates a missing account or instrument.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate indicates a unique-key clash (email, username, symbol).
	ErrDuplicate = errors.New("already exists")

	// ErrConstraint indicates a referential-integrity violation: a trade
	// referencing a nonexistent account or instrument.
	ErrConstraint = errors.New("constraint violation")

	// ErrConflict indicates a transient serialization conflict between
	// concurrent settlements. Safe to retry.
	ErrConflict = errors.New("serialization conflict")

	// ErrBalanceNegative indicates a settlement whose balance delta would
	// take the account below zero. The store enforces this as a final guard
	// even though the settlement engine validates first.
	ErrBalanceNegative = errors.New("balance would go negative")
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer. The trades table is append-only:
// Settle is the only write and there is no update or delete.
type Store interface {
	// --- Accounts ---

	// CreateAccount persists a new account.
	CreateAccount(ctx context.Context, account *model.Account) error

	// GetAccount retrieves an account by its ID.
	GetAccount(ctx context.Context, id string) (*model.Account, error)

	// GetAccountByEmail retrieves an account by its email address.
	GetAccountByEmail(ctx context.Context, email string) (*model.Account, error)

	// GetAccountByUsername retrieves an account by its username.
	GetAccountByUsername(ctx context.Context, username string) (*model.Account, error)

	// --- Instruments ---

	// CreateInstrument persists a new instrument.
	CreateInstrument(ctx context.Context, inst *model.Instrument) error

	// GetInstrumentBySymbol retrieves an instrument by its unique symbol.
	GetInstrumentBySymbol(ctx context.Context, symbol string) (*model.Instrument, error)

	// ListInstruments returns all instruments.
	ListInstruments(ctx context.Context) ([]model.Instrument, error)

	// --- Ledger ---

	// Settle atomically applies balanceDelta to the trade's account and
	// appends the trade to the ledger. Either both effects are durable or
	// neither is observable.
	Settle(ctx context.Context, trade *model.Trade, balanceDelta decimal.Decimal) error

	// TradesByAccount returns all trades for an account in insertion order.
	TradesByAccount(ctx context.Context, accountID string) ([]model.Trade, error)

	// TradesByInstrument returns an account's trades for one instrument in
	// insertion order.
	TradesByInstrument(ctx context.Context, accountID, instrumentID string) ([]model.Trade, error)
}
