package paymentrepo

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
}

type Repo interface {
	Insert(ctx context.Context, tx pgx.Tx, p *model.Payment) error
	Detail(ctx context.Context, id int64) (*model.Payment, error)
	BySessionID(ctx context.Context, sessionID string) (*model.Payment, error)
	List(ctx context.Context, f Filter) ([]model.Payment, error)

	GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*model.Payment, error)
	GetBySessionForUpdate(ctx context.Context, tx pgx.Tx, sessionID string) (*model.Payment, error)
	AttachSession(ctx context.Context, tx pgx.Tx, id int64, sessionID, sessionURL string) (bool, error)
	Transition(ctx context.Context, tx pgx.Tx, id int64, to model.PaymentStatus, typ model.PaymentType) (bool, error)
}

type repo struct{ db *database.DB }

func New(db *database.DB) Repo { return &repo{db} }

var dialect = goqu.Dialect("postgres")

func (r *repo) Insert(ctx context.Context, tx pgx.Tx, p *model.Payment) error {
	const q = `
INSERT INTO payments (borrowing_id, status, type, money_to_pay)
VALUES ($1,$2,$3,$4)
RETURNING id`
	return tx.QueryRow(ctx, q, p.BorrowingID, p.Status, p.Type, p.MoneyToPay).Scan(&p.ID)
}

func selectQuery() *goqu.SelectDataset {
	return dialect.From(goqu.T("payments").As("p")).
		Join(goqu.T("borrowings").As("br"), goqu.On(goqu.I("br.id").Eq(goqu.I("p.borrowing_id")))).
		Select("p.id", "p.borrowing_id", "br.borrower_id", "p.status", "p.type", "p.session_id", "p.session_url", "p.money_to_pay").
		Prepared(true)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scan(row rowScanner) (*model.Payment, error) {
	var p model.Payment
	err := row.Scan(&p.ID, &p.BorrowingID, &p.BorrowerID, &p.Status, &p.Type, &p.SessionID, &p.SessionURL, &p.MoneyToPay)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repo) one(ctx context.Context, q database.Querier, ds *goqu.SelectDataset) (*model.Payment, error) {
	sql, args, err := ds.ToSQL()
	if err != nil {
		return nil, err
	}
	return scan(q.QueryRow(ctx, sql, args...))
}

// Detail returns nil, nil when the payment does not exist.
func (r *repo) Detail(ctx context.Context, id int64) (*model.Payment, error) {
	return r.one(ctx, r.db.Pool, selectQuery().Where(goqu.I("p.id").Eq(id)))
}

func (r *repo) BySessionID(ctx context.Context, sessionID string) (*model.Payment, error) {
	return r.one(ctx, r.db.Pool, selectQuery().Where(goqu.I("p.session_id").Eq(sessionID)))
}

func (r *repo) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*model.Payment, error) {
	return r.one(ctx, tx, selectQuery().Where(goqu.I("p.id").Eq(id)).ForUpdate(goqu.Wait, goqu.T("p")))
}

func (r *repo) GetBySessionForUpdate(ctx context.Context, tx pgx.Tx, sessionID string) (*model.Payment, error) {
	return r.one(ctx, tx, selectQuery().Where(goqu.I("p.session_id").Eq(sessionID)).ForUpdate(goqu.Wait, goqu.T("p")))
}

func (r *repo) List(ctx context.Context, f Filter) ([]model.Payment, error) {
	ds := selectQuery().Order(goqu.I("p.id").Desc())
	if f.BorrowerID != nil {
		ds = ds.Where(goqu.I("br.borrower_id").Eq(*f.BorrowerID))
	}
	sql, args, err := ds.ToSQL()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Payment{}
	for rows.Next() {
		p, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// AttachSession records the checkout session once; false means the payment
// left PENDING or already carries a session.
func (r *repo) AttachSession(ctx context.Context, tx pgx.Tx, id int64, sessionID, sessionURL string) (bool, error) {
	const q = `
UPDATE payments
SET session_id = $2,
	session_url = $3
WHERE id = $1
AND status = 'PENDING'
AND session_id IS NULL`
	tag, err := tx.Exec(ctx, q, id, sessionID, sessionURL)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Transition moves a PENDING payment to a terminal status. money_to_pay is
// never written here.
func (r *repo) Transition(ctx context.Context, tx pgx.Tx, id int64, to model.PaymentStatus, typ model.PaymentType) (bool, error) {
	const q = `
UPDATE payments
SET status = $2,
	type = $3
WHERE id = $1
AND status = 'PENDING'`
	tag, err := tx.Exec(ctx, q, id, to, typ)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
