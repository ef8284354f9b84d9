package store

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/rjsfud9894/paper-trade/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu          sync.RWMutex
	accounts    map[string]*model.Account
	instruments map[string]*model.Instrument // keyed by ID
	ledger      []model.Trade
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:    make(map[string]*model.Account),
		instruments: make(map[string]*model.Instrument),
	}
}

// --- Accounts ---

func (s *MemoryStore) CreateAccount(_ context.Context, a *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.accounts {
		if existing.Email == a.Email || existing.Username == a.Username {
			return ErrDuplicate
		}
	}

	// Store a copy to avoid external mutation.
	cp := *a
	s.accounts[a.ID] = &cp
	return nil
}

func (s *MemoryStore) GetAccount(_ context.Context, id string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) GetAccountByEmail(_ context.Context, email string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.accounts {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetAccountByUsername(_ context.Context, username string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.accounts {
		if a.Username == username {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// --- Instruments ---

func (s *MemoryStore) CreateInstrument(_ context.Context, inst *model.Instrument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.instruments {
		if existing.Symbol == inst.Symbol {
			return ErrDuplicate
		}
	}

	cp := *inst
	s.instruments[inst.ID] = &cp
	return nil
}

func (s *MemoryStore) GetInstrumentBySymbol(_ context.Context, symbol string) (*model.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, inst := range s.instruments {
		if inst.Symbol == symbol {
			cp := *inst
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListInstruments(_ context.Context) ([]model.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	instruments := make([]model.Instrument, 0, len(s.instruments))
	for _, inst := range s.instruments {
		instruments = append(instruments, *inst)
	}
	sort.Slice(instruments, func(i, j int) bool {
		return instruments[i].Symbol < instruments[j].Symbol
	})
	return instruments, nil
}

// --- Ledger ---

// Settle applies the balance delta and appends the trade under one lock so
// the two effects are indivisible to every other store call.
func (s *MemoryStore) Settle(_ context.Context, t *model.Trade, balanceDelta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[t.AccountID]
	if !ok {
		return ErrNotFound
	}
	inst, ok := s.instruments[t.InstrumentID]
	if !ok {
		return ErrConstraint
	}

	newBalance := account.Balance.Add(balanceDelta)
	if newBalance.IsNegative() {
		return ErrBalanceNegative
	}

	account.Balance = newBalance

	cp := *t
	cp.Symbol = inst.Symbol
	s.ledger = append(s.ledger, cp)
	return nil
}

func (s *MemoryStore) TradesByAccount(_ context.Context, accountID string) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Trade
	for _, t := range s.ledger {
		if t.AccountID == accountID {
			result = append(result, t)
		}
	}
	return result, nil
}

func (s *MemoryStore) TradesByInstrument(_ context.Context, accountID, instrumentID string) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Trade
	for _, t := range s.ledger {
		if t.AccountID == accountID && t.InstrumentID == instrumentID {
			result = append(result, t)
		}
	}
	return result, nil
}
