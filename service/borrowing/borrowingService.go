package borrowing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Viktor-Beniukh/library-service-api/model"
	borrowingrepo "github.com/Viktor-Beniukh/library-service-api/repository/borrowing"
	"github.com/Viktor-Beniukh/library-service-api/service/fee"
	"github.com/Viktor-Beniukh/library-service-api/service/inventory"
	"github.com/Viktor-Beniukh/library-service-api/service/notify"
	"github.com/Viktor-Beniukh/library-service-api/util/database"
)

// errors used by controllers

type ErrCode string

const (
	ErrNoCopiesAvailable ErrCode = "NO_COPIES_AVAILABLE"
	ErrAlreadyReturned   ErrCode = "ALREADY_RETURNED"
	ErrBookNotFound      ErrCode = "BOOK_NOT_FOUND"
	ErrNotFound          ErrCode = "NOT_FOUND"
	ErrNotOwner          ErrCode = "NOT_OWNER"
	ErrBadInput          ErrCode = "BAD_INPUT"
)

type codedError struct {
	code ErrCode
	msg  string
}

func (e codedError) Error() string {
	if e.msg != "" {
		return string(e.code) + ": " + e.msg
	}
	return string(e.code)
}
func (e codedError) Code() ErrCode { return e.code }
func makeErr(c ErrCode) error      { return codedError{code: c} }

func badInput(msg string) error { return codedError{code: ErrBadInput, msg: msg} }

// Code extracts error code
func Code(err error) ErrCode {
	var ce interface{ Code() ErrCode }
	if errors.As(err, &ce) {
		return ce.Code()
	}
	return ""
}

type Repo interface {
	Insert(ctx context.Context, tx pgx.Tx, b *model.Borrowing) error
	GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*model.Borrowing, error)
	SetActualReturn(ctx context.Context, tx pgx.Tx, id int64, actual model.Date) (bool, error)

	Detail(ctx context.Context, id int64) (*model.BorrowingDetail, error)
	List(ctx context.Context, f borrowingrepo.Filter) ([]model.BorrowingDetail, error)
}

// CreateReq opens a borrowing. A zero BorrowDate means today and a nil
// ExpectedReturnDate means today plus the configured rental window.
type CreateReq struct {
	BorrowerID         int64
	BookID             int64
	BorrowDate         model.Date
	ExpectedReturnDate *model.Date
}

// ListReq filters borrowings. BorrowerID is only honoured for staff; other
// callers always see their own.
type ListReq struct {
	BorrowerID *int64
	ActiveOnly bool
}

type Service interface {
	// Create reserves a copy and records the borrowing in one transaction.
	Create(ctx context.Context, req CreateReq) (*model.Borrowing, error)

	// Return closes an open borrowing and puts the copy back on the shelf.
	Return(ctx context.Context, actor model.Actor, borrowingID int64, actual model.Date) (*model.Borrowing, error)

	List(ctx context.Context, actor model.Actor, req ListReq) ([]model.BorrowingDetail, error)
	Detail(ctx context.Context, actor model.Actor, borrowingID int64) (*model.BorrowingDetail, error)
}

type Config struct {
	RentalDays int
	// Now defaults to time.Now.
	Now func() time.Time
}

// ----- Service implementation -----

type service struct {
	tx     database.TxRunner
	r      Repo
	ledger inventory.Ledger
	sink   notify.Sink
	log    *slog.Logger
	cfg    Config
}

func New(tx database.TxRunner, r Repo, ledger inventory.Ledger, sink notify.Sink, log *slog.Logger, cfg Config) Service {
	if cfg.RentalDays <= 0 {
		cfg.RentalDays = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if sink == nil {
		sink = notify.Discard
	}
	return &service{tx: tx, r: r, ledger: ledger, sink: sink, log: log, cfg: cfg}
}

func (s *service) today() model.Date { return model.DateOf(s.cfg.Now()) }

func (s *service) Create(ctx context.Context, req CreateReq) (*model.Borrowing, error) {
	b := &model.Borrowing{
		BorrowDate: req.BorrowDate,
		BookID:     req.BookID,
		BorrowerID: req.BorrowerID,
	}
	if b.BorrowDate.IsZero() {
		b.BorrowDate = s.today()
	}
	if req.ExpectedReturnDate != nil {
		b.ExpectedReturnDate = *req.ExpectedReturnDate
	} else {
		b.ExpectedReturnDate = b.BorrowDate.AddDays(s.cfg.RentalDays)
	}
	if !b.ExpectedReturnDate.After(b.BorrowDate) {
		return nil, badInput("expected return date must be after borrow date")
	}

	err := s.tx.WithTx(ctx, func(tx pgx.Tx) error {
		if err := s.ledger.ReserveCopy(ctx, tx, b.BookID); err != nil {
			switch {
			case errors.Is(err, inventory.ErrOutOfStock):
				return makeErr(ErrNoCopiesAvailable)
			case errors.Is(err, inventory.ErrBookNotFound):
				return makeErr(ErrBookNotFound)
			}
			return err
		}
		return s.r.Insert(ctx, tx, b)
	})
	if err != nil {
		return nil, err
	}

	s.announce(ctx, b)
	return b, nil
}

// announce tells staff about a new borrowing. The borrowing is already
// committed, so failures here are only logged.
func (s *service) announce(ctx context.Context, b *model.Borrowing) {
	d, err := s.r.Detail(ctx, b.ID)
	if err != nil || d == nil {
		s.log.WarnContext(ctx, "new borrowing notification skipped", "borrowing_id", b.ID, "err", err)
		return
	}
	preview, err := fee.Planned(b.BorrowDate, b.ExpectedReturnDate, d.Book.DailyFee)
	if err != nil {
		s.log.WarnContext(ctx, "new borrowing notification skipped", "borrowing_id", b.ID, "err", err)
		return
	}
	ev := notify.NewBorrowing(d.Borrower.FullName(), d.Book.Title, preview, s.cfg.Now())
	if err := s.sink.Notify(ctx, ev); err != nil {
		s.log.WarnContext(ctx, "new borrowing notification failed", "borrowing_id", b.ID, "err", err)
	}
}

func (s *service) Return(ctx context.Context, actor model.Actor, borrowingID int64, actual model.Date) (*model.Borrowing, error) {
	if actual.IsZero() {
		actual = s.today()
	}

	var out *model.Borrowing
	err := s.tx.WithTx(ctx, func(tx pgx.Tx) error {
		b, err := s.r.GetForUpdate(ctx, tx, borrowingID)
		if err != nil {
			return err
		}
		if b == nil {
			return makeErr(ErrNotFound)
		}
		if !actor.CanSee(b.BorrowerID) {
			return makeErr(ErrNotOwner)
		}
		if b.State() == model.BorrowingReturned {
			return makeErr(ErrAlreadyReturned)
		}
		if actual.Before(b.BorrowDate) {
			return badInput("actual return date precedes borrow date")
		}

		ok, err := s.r.SetActualReturn(ctx, tx, b.ID, actual)
		if err != nil {
			return err
		}
		if !ok {
			return makeErr(ErrAlreadyReturned)
		}
		if err := s.ledger.ReleaseCopy(ctx, tx, b.BookID); err != nil {
			if errors.Is(err, inventory.ErrBookNotFound) {
				return makeErr(ErrBookNotFound)
			}
			return err
		}

		b.ActualReturnDate = &actual
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) List(ctx context.Context, actor model.Actor, req ListReq) ([]model.BorrowingDetail, error) {
	f := borrowingrepo.Filter{BorrowerID: req.BorrowerID, ActiveOnly: req.ActiveOnly}
	if !actor.IsStaff {
		uid := actor.UserID
		f.BorrowerID = &uid
	}
	return s.r.List(ctx, f)
}

// Detail hides other users' borrowings behind NOT_FOUND.
func (s *service) Detail(ctx context.Context, actor model.Actor, borrowingID int64) (*model.BorrowingDetail, error) {
	d, err := s.r.Detail(ctx, borrowingID)
	if err != nil {
		return nil, err
	}
	if d == nil || !actor.CanSee(d.BorrowerID) {
		return nil, makeErr(ErrNotFound)
	}
	return d, nil
}
