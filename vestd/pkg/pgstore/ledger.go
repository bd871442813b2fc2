package pgstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// custodyAccount holds committed-but-unclaimed tokens.
const custodyAccount = "vesting:custody"

type LedgerConfig struct {
	Logger *slog.Logger
	Pool   *pgxpool.Pool
}

func (cfg *LedgerConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Pool == nil {
		return errors.New("postgres pool is required")
	}
	return nil
}

// Ledger implements vesting.TokenLedger on a token_accounts balance table.
// Each transfer is one debit-and-credit transaction; a debit past zero fails
// the transfer.
type Ledger struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewLedger(cfg LedgerConfig) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Ledger{log: cfg.Logger, pool: cfg.Pool}, nil
}

func (l *Ledger) TransferInto(ctx context.Context, from string, amount uint64) error {
	return l.transfer(ctx, from, custodyAccount, amount)
}

func (l *Ledger) TransferOut(ctx context.Context, to string, amount uint64) error {
	return l.transfer(ctx, custodyAccount, to, amount)
}

func (l *Ledger) transfer(ctx context.Context, from, to string, amount uint64) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transfer: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx, `
		UPDATE token_accounts SET balance = balance - $2
		WHERE id = $1 AND balance >= $2
	`, from, int64(amount))
	if err != nil {
		return fmt.Errorf("failed to debit %s: %w", from, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("insufficient balance on %s for transfer of %d", from, amount)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO token_accounts (id, balance) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET balance = token_accounts.balance + EXCLUDED.balance
	`, to, int64(amount)); err != nil {
		return fmt.Errorf("failed to credit %s: %w", to, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transfer: %w", err)
	}

	l.log.Debug("pgstore: transfer", "from", from, "to", to, "amount", amount)
	return nil
}

// Credit adds amount to an account outside any transfer, for seeding the
// funding account from the admin CLI.
func (l *Ledger) Credit(ctx context.Context, account string, amount uint64) error {
	if _, err := l.pool.Exec(ctx, `
		INSERT INTO token_accounts (id, balance) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET balance = token_accounts.balance + EXCLUDED.balance
	`, account, int64(amount)); err != nil {
		return fmt.Errorf("failed to credit %s: %w", account, err)
	}
	return nil
}

// Balance returns the current balance of an account, zero if unknown.
func (l *Ledger) Balance(ctx context.Context, account string) (uint64, error) {
	var balance int64
	err := l.pool.QueryRow(ctx, `
		SELECT COALESCE((SELECT balance FROM token_accounts WHERE id = $1), 0)
	`, account).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("failed to read balance of %s: %w", account, err)
	}
	return uint64(balance), nil
}
