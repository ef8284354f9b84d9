// Package model defines the core domain types shared across the paper-trade
// service. All monetary values use shopspring/decimal, never float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade sides.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Account is a registered user with a virtual cash balance. The balance is
// mutated only by trade settlement and never goes negative.
type Account struct {
	ID           string          `json:"id" db:"id"`
	Username     string          `json:"username" db:"username"`
	Email        string          `json:"email" db:"email"`
	PasswordHash string          `json:"-" db:"password_hash"`
	Balance      decimal.Decimal `json:"balance" db:"balance"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// Instrument is a tradable symbol. Immutable once created except for
// administrative addition of new entries.
type Instrument struct {
	ID     string `json:"id" db:"id"`
	Symbol string `json:"symbol" db:"symbol"`
	Name   string `json:"name" db:"name"`
}

// Trade is an immutable ledger record of one settled buy or sell.
// Once written these are never modified or deleted.
type Trade struct {
	ID           string          `json:"id" db:"id"`
	AccountID    string          `json:"account_id" db:"account_id"`
	InstrumentID string          `json:"instrument_id" db:"instrument_id"`
	Symbol       string          `json:"symbol" db:"symbol"`
	Side         string          `json:"side" db:"side"` // "buy" or "sell"
	Quantity     int64           `json:"quantity" db:"quantity"`
	Price        decimal.Decimal `json:"price" db:"price"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// Position is the derived net holding for one account/instrument pair.
// Never persisted; recomputed from the ledger on every query.
type Position struct {
	AccountID    string          `json:"account_id"`
	InstrumentID string          `json:"instrument_id"`
	NetQuantity  int64           `json:"net_quantity"`
	AverageCost  decimal.Decimal `json:"average_cost"` // lifetime average over all buys
}

// Held reports whether the position counts as a holding. Positions at or
// below zero are excluded from portfolio summaries.
func (p Position) Held() bool { return p.NetQuantity > 0 }

// Holding is one row of a portfolio view: a held position valued at its
// average cost, optionally enriched with a best-effort live price.
type Holding struct {
	Symbol   string          `json:"symbol"`
	Name     string          `json:"name"`
	Quantity int64           `json:"quantity"`
	AvgPrice decimal.Decimal `json:"avg_price"`
	Value    decimal.Decimal `json:"value"` // quantity × avg_price

	// Display-only enrichment from the quote oracle. Never used in
	// settlement or valuation arithmetic.
	LastPrice        *decimal.Decimal `json:"last_price,omitempty"`
	PriceUnavailable bool             `json:"price_unavailable,omitempty"`
}

// PortfolioSummary aggregates all holdings of an account.
type PortfolioSummary struct {
	Balance       decimal.Decimal `json:"balance"`
	TotalInvested decimal.Decimal `json:"total_invested"`
	TotalAssets   decimal.Decimal `json:"total_assets"` // balance + total_invested
	Holdings      []Holding       `json:"holdings"`
}

// Quote is a best-effort live price snapshot from the external oracle.
type Quote struct {
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	Currency      string          `json:"currency"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"change_percent"`
}
