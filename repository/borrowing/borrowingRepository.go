// repository/borrowing/repo.go
package borrowing

import (
	"context"
	"errors"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jackc/pgx/v5"

	"github.com/Viktor-Beniukh/library-service-api/model"
	"github.com/Viktor-Beniukh/library-service-api/util/database"
)

type Filter struct {
	BorrowerID *int64
	ActiveOnly bool
}

type Repo interface {
	Insert(ctx context.Context, tx pgx.Tx, b *model.Borrowing) error
	GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*model.Borrowing, error)
	SetActualReturn(ctx context.Context, tx pgx.Tx, id int64, actual model.Date) (bool, error)

	Detail(ctx context.Context, id int64) (*model.BorrowingDetail, error)
	List(ctx context.Context, f Filter) ([]model.BorrowingDetail, error)
	ListOverdue(ctx context.Context, today model.Date) ([]model.BorrowingDetail, error)
}

type repo struct{ db *database.DB }

func New(db *database.DB) Repo { return &repo{db} }

var dialect = goqu.Dialect("postgres")

func (r *repo) Insert(ctx context.Context, tx pgx.Tx, b *model.Borrowing) error {
	const q = `
INSERT INTO borrowings (borrow_date, expected_return_date, book_id, borrower_id)
VALUES ($1,$2,$3,$4)
RETURNING id`
	return tx.QueryRow(ctx, q, b.BorrowDate, b.ExpectedReturnDate, b.BookID, b.BorrowerID).Scan(&b.ID)
}

// GetForUpdate locks the borrowing row until the transaction ends. It
// returns nil, nil when the borrowing does not exist.
func (r *repo) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*model.Borrowing, error) {
	const q = `
SELECT id, borrow_date, expected_return_date, actual_return_date, book_id, borrower_id
FROM borrowings
WHERE id = $1
FOR UPDATE`
	var b model.Borrowing
	err := tx.QueryRow(ctx, q, id).Scan(
		&b.ID, &b.BorrowDate, &b.ExpectedReturnDate, &b.ActualReturnDate, &b.BookID, &b.BorrowerID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// SetActualReturn is one-shot: it reports false when the borrowing was
// already returned.
func (r *repo) SetActualReturn(ctx context.Context, tx pgx.Tx, id int64, actual model.Date) (bool, error) {
	const q = `
UPDATE borrowings
SET actual_return_date = $2
WHERE id = $1
AND actual_return_date IS NULL`
	tag, err := tx.Exec(ctx, q, id, actual)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

var detailColumns = []interface{}{
	"br.id", "br.borrow_date", "br.expected_return_date", "br.actual_return_date", "br.book_id", "br.borrower_id",
	"b.id", "b.title", "b.author", "b.cover", "b.inventory", "b.daily_fee",
	"u.id", "u.first_name", "u.last_name", "u.email", "u.is_staff", "u.created_at",
}

func detailQuery() *goqu.SelectDataset {
	return dialect.From(goqu.T("borrowings").As("br")).
		Join(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("br.book_id")))).
		Join(goqu.T("users").As("u"), goqu.On(goqu.I("u.id").Eq(goqu.I("br.borrower_id")))).
		Select(detailColumns...).
		Prepared(true)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDetail(row rowScanner) (model.BorrowingDetail, error) {
	var d model.BorrowingDetail
	err := row.Scan(
		&d.ID, &d.BorrowDate, &d.ExpectedReturnDate, &d.ActualReturnDate, &d.BookID, &d.BorrowerID,
		&d.Book.ID, &d.Book.Title, &d.Book.Author, &d.Book.Cover, &d.Book.Inventory, &d.Book.DailyFee,
		&d.Borrower.ID, &d.Borrower.FirstName, &d.Borrower.LastName, &d.Borrower.Email, &d.Borrower.IsStaff, &d.Borrower.CreatedAt,
	)
	return d, err
}

// Detail returns nil, nil when the borrowing does not exist.
func (r *repo) Detail(ctx context.Context, id int64) (*model.BorrowingDetail, error) {
	q, args, err := detailQuery().Where(goqu.I("br.id").Eq(id)).ToSQL()
	if err != nil {
		return nil, err
	}
	d, err := scanDetail(r.db.Pool.QueryRow(ctx, q, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *repo) List(ctx context.Context, f Filter) ([]model.BorrowingDetail, error) {
	ds := detailQuery().Order(goqu.I("br.borrow_date").Asc(), goqu.I("br.id").Asc())
	if f.BorrowerID != nil {
		ds = ds.Where(goqu.I("br.borrower_id").Eq(*f.BorrowerID))
	}
	if f.ActiveOnly {
		ds = ds.Where(goqu.I("br.actual_return_date").IsNull())
	}
	return r.query(ctx, ds)
}

// ListOverdue returns open borrowings whose expected return date is strictly
// before today.
func (r *repo) ListOverdue(ctx context.Context, today model.Date) ([]model.BorrowingDetail, error) {
	ds := detailQuery().
		Where(
			goqu.I("br.actual_return_date").IsNull(),
			goqu.I("br.expected_return_date").Lt(today.Time()),
		).
		Order(goqu.I("br.expected_return_date").Asc(), goqu.I("br.id").Asc())
	return r.query(ctx, ds)
}

func (r *repo) query(ctx context.Context, ds *goqu.SelectDataset) ([]model.BorrowingDetail, error) {
	q, args, err := ds.ToSQL()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.BorrowingDetail{}
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
