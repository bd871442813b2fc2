// Package pgstore provides the PostgreSQL-backed ScheduleStore and
// TokenLedger used in deployments, plus the embedded goose migrations that
// define their schema.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vestlabs/vest/vestd/pkg/vesting"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type StoreConfig struct {
	Logger *slog.Logger
	Pool   *pgxpool.Pool
}

func (cfg *StoreConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Pool == nil {
		return errors.New("postgres pool is required")
	}
	return nil
}

// Store implements vesting.ScheduleStore on PostgreSQL. WithinTx maps onto a
// database transaction, so a failed operation leaves no partial state.
type Store struct {
	log  *slog.Logger
	pool *pgxpool.Pool
	db   querier
}

func NewStore(cfg StoreConfig) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Store{
		log:  cfg.Logger,
		pool: cfg.Pool,
		db:   cfg.Pool,
	}, nil
}

func (s *Store) Schedules(ctx context.Context, beneficiary string) ([]vesting.Schedule, error) {
	rows, err := s.db.Query(ctx, `
		SELECT total, claimed, upfront, claimable_cache, cliff_time, ramp_start, ramp_end
		FROM vesting_schedules
		WHERE beneficiary = $1
		ORDER BY position ASC
	`, beneficiary)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}
	defer rows.Close()

	var schedules []vesting.Schedule
	for rows.Next() {
		var total, claimed, upfront, cache, cliff, rampStart, rampEnd int64
		if err := rows.Scan(&total, &claimed, &upfront, &cache, &cliff, &rampStart, &rampEnd); err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, vesting.Schedule{
			Total:          uint64(total),
			Claimed:        uint64(claimed),
			Upfront:        uint64(upfront),
			ClaimableCache: uint64(cache),
			CliffTime:      uint64(cliff),
			RampStart:      uint64(rampStart),
			RampEnd:        uint64(rampEnd),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate schedules: %w", err)
	}
	return schedules, nil
}

func (s *Store) Append(ctx context.Context, beneficiary string, sched vesting.Schedule) (int, error) {
	var position int
	err := s.db.QueryRow(ctx, `
		INSERT INTO vesting_schedules
			(beneficiary, position, total, claimed, upfront, claimable_cache, cliff_time, ramp_start, ramp_end)
		SELECT $1, COALESCE(MAX(position) + 1, 0), $2, $3, $4, $5, $6, $7, $8
		FROM vesting_schedules WHERE beneficiary = $1
		RETURNING position
	`, beneficiary,
		int64(sched.Total), int64(sched.Claimed), int64(sched.Upfront), int64(sched.ClaimableCache),
		int64(sched.CliffTime), int64(sched.RampStart), int64(sched.RampEnd),
	).Scan(&position)
	if err != nil {
		return 0, fmt.Errorf("failed to append schedule: %w", err)
	}
	return position, nil
}

func (s *Store) Update(ctx context.Context, beneficiary string, index int, sched vesting.Schedule) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE vesting_schedules
		SET claimed = $3, claimable_cache = $4
		WHERE beneficiary = $1 AND position = $2
	`, beneficiary, index, int64(sched.Claimed), int64(sched.ClaimableCache))
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("schedule %d for beneficiary %s does not exist", index, beneficiary)
	}
	return nil
}

func (s *Store) DeleteAll(ctx context.Context, beneficiary string) error {
	if _, err := s.db.Exec(ctx, `
		DELETE FROM vesting_schedules WHERE beneficiary = $1
	`, beneficiary); err != nil {
		return fmt.Errorf("failed to delete schedules: %w", err)
	}
	return nil
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx vesting.ScheduleStore) error) error {
	pgTx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// No-op after a successful commit.
		_ = pgTx.Rollback(ctx)
	}()

	txStore := &Store{log: s.log, pool: s.pool, db: pgTx}
	if err := fn(txStore); err != nil {
		return err
	}

	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
