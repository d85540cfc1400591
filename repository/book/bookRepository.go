package bookrepo

import (
	"context"
	"errors"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/Viktor-Beniukh/library-service-api/model"
	"github.com/Viktor-Beniukh/library-service-api/util/database"
)

// Filter narrows List. Title matches case-insensitively anywhere in the title.
type Filter struct {
	Title string
}

type Repo interface {
	Create(ctx context.Context, b *model.Book) error
	UpdateStock(ctx context.Context, id int64, addCopies int64, dailyFee decimal.Decimal) (bool, error)
	Delete(ctx context.Context, id int64) (bool, error)
	List(ctx context.Context, f Filter) ([]model.Book, error)
	Detail(ctx context.Context, id int64) (*model.Book, error)

	// Inventory, always inside the caller's transaction.
	DecrementInventory(ctx context.Context, tx pgx.Tx, id int64) (bool, error)
	IncrementInventory(ctx context.Context, tx pgx.Tx, id int64) error
	Exists(ctx context.Context, tx pgx.Tx, id int64) (bool, error)
}

type repo struct{ db *database.DB }

func New(db *database.DB) Repo { return &repo{db} }

var dialect = goqu.Dialect("postgres")

func (r *repo) Create(ctx context.Context, b *model.Book) error {
	const q = `
INSERT INTO books (title, author, cover, inventory, daily_fee)
VALUES ($1,$2,$3,$4,$5)
RETURNING id`
	return r.db.Pool.QueryRow(ctx, q, b.Title, b.Author, b.Cover, b.Inventory, b.DailyFee).Scan(&b.ID)
}

// UpdateStock adds (or, when negative, withdraws) copies relative to the
// current shelf count and sets the daily fee. Copies taken by concurrent
// borrowings are never written back. false means no such book or not enough
// copies on the shelf to withdraw.
func (r *repo) UpdateStock(ctx context.Context, id int64, addCopies int64, dailyFee decimal.Decimal) (bool, error) {
	const q = `
UPDATE books
SET inventory = inventory + $2,
	daily_fee = $3
WHERE id = $1
AND inventory + $2 >= 0`
	tag, err := r.db.Pool.Exec(ctx, q, id, addCopies, dailyFee)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repo) Delete(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repo) List(ctx context.Context, f Filter) ([]model.Book, error) {
	ds := dialect.From("books").
		Select("id", "title", "author", "cover", "inventory", "daily_fee").
		Order(goqu.I("title").Asc(), goqu.I("id").Asc()).
		Prepared(true)
	if f.Title != "" {
		ds = ds.Where(goqu.I("title").ILike("%" + f.Title + "%"))
	}
	q, args, err := ds.ToSQL()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Book{}
	for rows.Next() {
		var b model.Book
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.Cover, &b.Inventory, &b.DailyFee); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Detail returns nil, nil when the book does not exist.
func (r *repo) Detail(ctx context.Context, id int64) (*model.Book, error) {
	const q = `
SELECT id, title, author, cover, inventory, daily_fee
FROM books
WHERE id = $1`
	var b model.Book
	err := r.db.Pool.QueryRow(ctx, q, id).Scan(&b.ID, &b.Title, &b.Author, &b.Cover, &b.Inventory, &b.DailyFee)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// DecrementInventory takes one copy off the shelf. The inventory > 0 guard is
// re-checked after a concurrent writer commits, so two transactions can never
// both take the last copy. false means no copy was taken.
func (r *repo) DecrementInventory(ctx context.Context, tx pgx.Tx, id int64) (bool, error) {
	const q = `
UPDATE books
SET inventory = inventory - 1
WHERE id = $1
AND inventory > 0`
	tag, err := tx.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repo) IncrementInventory(ctx context.Context, tx pgx.Tx, id int64) error {
	const q = `
UPDATE books
SET inventory = inventory + 1
WHERE id = $1`
	tag, err := tx.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *repo) Exists(ctx context.Context, tx pgx.Tx, id int64) (bool, error) {
	var ok bool
	err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM books WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}
