package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct{ Pool *pgxpool.Pool }

// TxRunner runs fn inside one database transaction, committing when fn
// returns nil and rolling back otherwise.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

func New(ctx context.Context, dsn string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 25
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := p.Ping(pingCtx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{Pool: p}, nil
}

func (db *DB) Close() { db.Pool.Close() }

func (db *DB) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGSERIAL PRIMARY KEY,
		first_name    TEXT NOT NULL DEFAULT '',
		last_name     TEXT NOT NULL DEFAULT '',
		email         TEXT NOT NULL,
		is_staff      BOOLEAN NOT NULL DEFAULT false,
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_email_key ON users (lower(email))`,

	`CREATE TABLE IF NOT EXISTS books (
		id        BIGSERIAL PRIMARY KEY,
		title     TEXT NOT NULL,
		author    TEXT NOT NULL DEFAULT '',
		cover     TEXT NOT NULL DEFAULT 'HARD' CHECK (cover IN ('HARD', 'SOFT')),
		inventory BIGINT NOT NULL CHECK (inventory >= 0),
		daily_fee NUMERIC(5, 2) NOT NULL CHECK (daily_fee >= 0)
	)`,

	`CREATE TABLE IF NOT EXISTS borrowings (
		id                   BIGSERIAL PRIMARY KEY,
		borrow_date          DATE NOT NULL,
		expected_return_date DATE NOT NULL,
		actual_return_date   DATE,
		book_id              BIGINT NOT NULL REFERENCES books(id) ON DELETE RESTRICT,
		borrower_id          BIGINT NOT NULL REFERENCES users(id) ON DELETE RESTRICT,
		CHECK (expected_return_date > borrow_date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_borrowings_borrower_id ON borrowings(borrower_id)`,
	`CREATE INDEX IF NOT EXISTS idx_borrowings_open_due ON borrowings(expected_return_date) WHERE actual_return_date IS NULL`,

	`CREATE TABLE IF NOT EXISTS payments (
		id           BIGSERIAL PRIMARY KEY,
		borrowing_id BIGINT NOT NULL REFERENCES borrowings(id) ON DELETE RESTRICT,
		status       TEXT NOT NULL DEFAULT 'PENDING' CHECK (status IN ('PENDING', 'PAID', 'CANCELLED', 'EXPIRED')),
		type         TEXT NOT NULL DEFAULT 'PAYMENT' CHECK (type IN ('PAYMENT', 'FINE')),
		session_id   TEXT UNIQUE,
		session_url  TEXT,
		money_to_pay NUMERIC(10, 2) NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_borrowing_id ON payments(borrowing_id)`,

	// schemas created before deletes were restricted still cascade
	`ALTER TABLE borrowings
		DROP CONSTRAINT IF EXISTS borrowings_book_id_fkey,
		ADD CONSTRAINT borrowings_book_id_fkey FOREIGN KEY (book_id) REFERENCES books(id) ON DELETE RESTRICT,
		DROP CONSTRAINT IF EXISTS borrowings_borrower_id_fkey,
		ADD CONSTRAINT borrowings_borrower_id_fkey FOREIGN KEY (borrower_id) REFERENCES users(id) ON DELETE RESTRICT`,
	`ALTER TABLE payments
		DROP CONSTRAINT IF EXISTS payments_borrowing_id_fkey,
		ADD CONSTRAINT payments_borrowing_id_fkey FOREIGN KEY (borrowing_id) REFERENCES borrowings(id) ON DELETE RESTRICT`,
}

// Migrate creates the schema when it does not exist yet.
func (db *DB) Migrate(ctx context.Context) error {
	for _, m := range migrations {
		if _, err := db.Pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
