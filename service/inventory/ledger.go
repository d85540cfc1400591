// Package inventory guards Book.inventory, the only counter shared by
// concurrent borrow and return requests.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var (
	ErrOutOfStock   = errors.New("no copies available")
	ErrBookNotFound = errors.New("book not found")
)

// Store is the slice of the book repository the ledger needs.
type Store interface {
	DecrementInventory(ctx context.Context, tx pgx.Tx, id int64) (bool, error)
	IncrementInventory(ctx context.Context, tx pgx.Tx, id int64) error
	Exists(ctx context.Context, tx pgx.Tx, id int64) (bool, error)
}

type Ledger interface {
	// ReserveCopy takes one copy of bookID inside tx.
	ReserveCopy(ctx context.Context, tx pgx.Tx, bookID int64) error
	// ReleaseCopy puts one copy of bookID back inside tx.
	ReleaseCopy(ctx context.Context, tx pgx.Tx, bookID int64) error
}

type ledger struct{ s Store }

func New(s Store) Ledger { return &ledger{s: s} }

func (l *ledger) ReserveCopy(ctx context.Context, tx pgx.Tx, bookID int64) error {
	ok, err := l.s.DecrementInventory(ctx, tx, bookID)
	if err != nil {
		return fmt.Errorf("reserve copy of book %d: %w", bookID, err)
	}
	if ok {
		return nil
	}

	// Zero rows: either the shelf is empty or there is no such book.
	exists, err := l.s.Exists(ctx, tx, bookID)
	if err != nil {
		return fmt.Errorf("reserve copy of book %d: %w", bookID, err)
	}
	if !exists {
		return ErrBookNotFound
	}
	return ErrOutOfStock
}

func (l *ledger) ReleaseCopy(ctx context.Context, tx pgx.Tx, bookID int64) error {
	err := l.s.IncrementInventory(ctx, tx, bookID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrBookNotFound
	}
	if err != nil {
		return fmt.Errorf("release copy of book %d: %w", bookID, err)
	}
	return nil
}
