package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/rjsfud9894/paper-trade/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// --- Accounts ---

func (s *PostgresStore) CreateAccount(ctx context.Context, a *model.Account) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (id, username, email, password_hash, balance, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6)`,
		a.ID, a.Username, a.Email, a.PasswordHash, a.Balance.String(), a.CreatedAt,
	)
	return mapPgError(err)
}

func (s *PostgresStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	return s.getAccount(ctx, `WHERE id = $1`, id)
}

func (s *PostgresStore) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	return s.getAccount(ctx, `WHERE email = $1`, email)
}

func (s *PostgresStore) GetAccountByUsername(ctx context.Context, username string) (*model.Account, error) {
	return s.getAccount(ctx, `WHERE username = $1`, username)
}

func (s *PostgresStore) getAccount(ctx context.Context, where string, arg any) (*model.Account, error) {
	var a model.Account
	var balance string

	err := s.pool.QueryRow(ctx,
		`SELECT id, username, email, password_hash, balance::TEXT, created_at
		 FROM accounts `+where, arg).
		Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &balance, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}

	a.Balance, _ = decimal.NewFromString(balance)
	return &a, nil
}

// --- Instruments ---

func (s *PostgresStore) CreateInstrument(ctx context.Context, inst *model.Instrument) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO instruments (id, symbol, name) VALUES ($1, $2, $3)`,
		inst.ID, inst.Symbol, inst.Name,
	)
	return mapPgError(err)
}

func (s *PostgresStore) GetInstrumentBySymbol(ctx context.Context, symbol string) (*model.Instrument, error) {
	var inst model.Instrument
	err := s.pool.QueryRow(ctx,
		`SELECT id, symbol, name FROM instruments WHERE symbol = $1`, symbol).
		Scan(&inst.ID, &inst.Symbol, &inst.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get instrument %s: %w", symbol, err)
	}
	return &inst, nil
}

func (s *PostgresStore) ListInstruments(ctx context.Context) ([]model.Instrument, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, symbol, name FROM instruments ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instruments []model.Instrument
	for rows.Next() {
		var inst model.Instrument
		if err := rows.Scan(&inst.ID, &inst.Symbol, &inst.Name); err != nil {
			return nil, err
		}
		instruments = append(instruments, inst)
	}
	return instruments, rows.Err()
}

// --- Ledger ---

// Settle applies the balance delta and appends the trade in one transaction.
// The UPDATE carries the non-negative balance guard so the invariant holds
// even if a concurrent settlement slipped past the engine's validation.
func (s *PostgresStore) Settle(ctx context.Context, t *model.Trade, balanceDelta decimal.Decimal) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin settle: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE accounts
		 SET balance = balance + $2::NUMERIC
		 WHERE id = $1 AND balance + $2::NUMERIC >= 0`,
		t.AccountID, balanceDelta.String(),
	)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing account from an overdraft.
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, t.AccountID).
			Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrBalanceNegative
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO trades (id, account_id, instrument_id, side, quantity, price, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7)`,
		t.ID, t.AccountID, t.InstrumentID, t.Side, t.Quantity, t.Price.String(), t.CreatedAt,
	)
	if err != nil {
		return mapPgError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return mapPgError(err)
	}
	return nil
}

func (s *PostgresStore) TradesByAccount(ctx context.Context, accountID string) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT t.id, t.account_id, t.instrument_id, i.symbol, t.side,
		        t.quantity, t.price::TEXT, t.created_at
		 FROM trades t
		 JOIN instruments i ON i.id = t.instrument_id
		 WHERE t.account_id = $1
		 ORDER BY t.created_at, t.id`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrades(rows)
}

func (s *PostgresStore) TradesByInstrument(ctx context.Context, accountID, instrumentID string) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT t.id, t.account_id, t.instrument_id, i.symbol, t.side,
		        t.quantity, t.price::TEXT, t.created_at
		 FROM trades t
		 JOIN instruments i ON i.id = t.instrument_id
		 WHERE t.account_id = $1 AND t.instrument_id = $2
		 ORDER BY t.created_at, t.id`, accountID, instrumentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrades(rows)
}

func scanTrades(rows pgx.Rows) ([]model.Trade, error) {
	var trades []model.Trade
	for rows.Next() {
		var t model.Trade
		var price string

		if err := rows.Scan(&t.ID, &t.AccountID, &t.InstrumentID, &t.Symbol,
			&t.Side, &t.Quantity, &price, &t.CreatedAt); err != nil {
			return nil, err
		}

		t.Price, _ = decimal.NewFromString(price)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// mapPgError translates PostgreSQL error codes to store sentinels.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return ErrDuplicate
		case "23503": // foreign_key_violation
			return ErrConstraint
		case "40001": // serialization_failure
			return ErrConflict
		}
	}
	return err
}
