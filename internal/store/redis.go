package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rjsfud9894/paper-trade/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for account and instrument lookups. Writes go to the primary store
// and invalidate the cache; reads check Redis first then fall back.
// The ledger itself is never cached: positions must always be recomputed
// from the trades actually on record.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Accounts ---

func (s *CachedStore) CreateAccount(ctx context.Context, a *model.Account) error {
	if err := s.primary.CreateAccount(ctx, a); err != nil {
		return err
	}
	s.cacheAccount(ctx, a)
	return nil
}

func (s *CachedStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	data, err := s.rdb.Get(ctx, accountKey(id)).Bytes()
	if err == nil {
		var a model.Account
		if json.Unmarshal(data, &a) == nil {
			return &a, nil
		}
	}

	a, err := s.primary.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheAccount(ctx, a)
	return a, nil
}

// GetAccountByEmail is not cached: it is only hit on login.
func (s *CachedStore) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	return s.primary.GetAccountByEmail(ctx, email)
}

func (s *CachedStore) GetAccountByUsername(ctx context.Context, username string) (*model.Account, error) {
	return s.primary.GetAccountByUsername(ctx, username)
}

// --- Instruments ---

func (s *CachedStore) CreateInstrument(ctx context.Context, inst *model.Instrument) error {
	if err := s.primary.CreateInstrument(ctx, inst); err != nil {
		return err
	}
	s.cacheInstrument(ctx, inst)
	return nil
}

func (s *CachedStore) GetInstrumentBySymbol(ctx context.Context, symbol string) (*model.Instrument, error) {
	data, err := s.rdb.Get(ctx, instrumentKey(symbol)).Bytes()
	if err == nil {
		var inst model.Instrument
		if json.Unmarshal(data, &inst) == nil {
			return &inst, nil
		}
	}

	inst, err := s.primary.GetInstrumentBySymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}

	s.cacheInstrument(ctx, inst)
	return inst, nil
}

func (s *CachedStore) ListInstruments(ctx context.Context) ([]model.Instrument, error) {
	return s.primary.ListInstruments(ctx)
}

// --- Ledger ---

func (s *CachedStore) Settle(ctx context.Context, t *model.Trade, balanceDelta decimal.Decimal) error {
	if err := s.primary.Settle(ctx, t, balanceDelta); err != nil {
		return err
	}
	// Invalidate the cached account; its balance changed.
	s.rdb.Del(ctx, accountKey(t.AccountID))
	return nil
}

func (s *CachedStore) TradesByAccount(ctx context.Context, accountID string) ([]model.Trade, error) {
	return s.primary.TradesByAccount(ctx, accountID)
}

func (s *CachedStore) TradesByInstrument(ctx context.Context, accountID, instrumentID string) ([]model.Trade, error) {
	return s.primary.TradesByInstrument(ctx, accountID, instrumentID)
}

// --- Cache helpers ---

// cacheAccount stores the JSON form, which omits the password hash.
// Credential checks go through GetAccountByEmail, which bypasses the cache.
func (s *CachedStore) cacheAccount(ctx context.Context, a *model.Account) {
	if data, err := json.Marshal(a); err == nil {
		s.rdb.Set(ctx, accountKey(a.ID), data, s.ttl)
	}
}

func (s *CachedStore) cacheInstrument(ctx context.Context, inst *model.Instrument) {
	if data, err := json.Marshal(inst); err == nil {
		s.rdb.Set(ctx, instrumentKey(inst.Symbol), data, s.ttl)
	}
}

func accountKey(id string) string        { return fmt.Sprintf("account:%s", id) }
func instrumentKey(symbol string) string { return fmt.Sprintf("instrument:%s", symbol) }
