package booksvc

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/Viktor-Beniukh/library-service-api/model"
	bookrepo "github.com/Viktor-Beniukh/library-service-api/repository/book"
)

var (
	ErrInvalid         = errors.New("invalid payload")
	ErrNotFound        = errors.New("book not found")
	ErrNotEnoughCopies = errors.New("not enough copies on the shelf")
	ErrInUse           = errors.New("book has borrowings on record")
)

type Repo interface {
	Create(ctx context.Context, b *model.Book) error
	UpdateStock(ctx context.Context, id int64, addCopies int64, dailyFee decimal.Decimal) (bool, error)
	Delete(ctx context.Context, id int64) (bool, error)
	List(ctx context.Context, f bookrepo.Filter) ([]model.Book, error)
	Detail(ctx context.Context, id int64) (*model.Book, error)
}

type Service interface {
	Create(ctx context.Context, b *model.Book) error
	// UpdateStock changes the shelf count by addCopies (negative withdraws)
	// and sets the daily fee.
	UpdateStock(ctx context.Context, id int64, addCopies int64, dailyFee decimal.Decimal) (*model.Book, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, title string) ([]model.Book, error)
	Detail(ctx context.Context, id int64) (*model.Book, error)
}

type service struct{ r Repo }

func New(r Repo) Service { return &service{r: r} }

func (s *service) Create(ctx context.Context, b *model.Book) error {
	b.Title = strings.TrimSpace(b.Title)
	if b.Cover == "" {
		b.Cover = model.CoverHard
	}
	if b.Title == "" || !b.Cover.Valid() || b.Inventory < 0 || b.DailyFee.IsNegative() {
		return ErrInvalid
	}
	return s.r.Create(ctx, b)
}

func (s *service) UpdateStock(ctx context.Context, id int64, addCopies int64, dailyFee decimal.Decimal) (*model.Book, error) {
	if dailyFee.IsNegative() {
		return nil, ErrInvalid
	}
	ok, err := s.r.UpdateStock(ctx, id, addCopies, dailyFee)
	if err != nil {
		return nil, err
	}
	if !ok {
		// zero rows: unknown book, or the withdrawal would go below zero
		if _, err := s.Detail(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrNotEnoughCopies
	}
	return s.Detail(ctx, id)
}

// Delete refuses books that still have borrowings; those rows are billing
// history.
func (s *service) Delete(ctx context.Context, id int64) error {
	ok, err := s.r.Delete(ctx, id)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
		return ErrInUse
	}
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *service) List(ctx context.Context, title string) ([]model.Book, error) {
	return s.r.List(ctx, bookrepo.Filter{Title: strings.TrimSpace(title)})
}

func (s *service) Detail(ctx context.Context, id int64) (*model.Book, error) {
	b, err := s.r.Detail(ctx, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrNotFound
	}
	return b, nil
}
