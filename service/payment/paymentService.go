package paymentsvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Viktor-Beniukh/library-service-api/model"
	checkoutrepo "github.com/Viktor-Beniukh/library-service-api/repository/checkout"
	paymentrepo "github.com/Viktor-Beniukh/library-service-api/repository/payment"
	"github.com/Viktor-Beniukh/library-service-api/service/fee"
	"github.com/Viktor-Beniukh/library-service-api/service/notify"
	"github.com/Viktor-Beniukh/library-service-api/util/database"
)

type ErrCode string

const (
	ErrPaymentNotFound      ErrCode = "PAYMENT_NOT_FOUND"
	ErrAlreadyFinalized     ErrCode = "ALREADY_FINALIZED"
	ErrBorrowingNotReturned ErrCode = "BORROWING_NOT_RETURNED"
	ErrBorrowingNotFound    ErrCode = "BORROWING_NOT_FOUND"
	ErrProviderFailure      ErrCode = "PROVIDER_FAILURE"
)

type codedError struct {
	code  ErrCode
	cause error
}

func (e codedError) Error() string {
	if e.cause != nil {
		return string(e.code) + ": " + e.cause.Error()
	}
	return string(e.code)
}
func (e codedError) Code() ErrCode { return e.code }
func (e codedError) Unwrap() error { return e.cause }
func makeErr(c ErrCode) error      { return codedError{code: c} }

// Code extracts error code
func Code(err error) ErrCode {
	var ce interface{ Code() ErrCode }
	if errors.As(err, &ce) {
		return ce.Code()
	}
	return ""
}

type Repo interface {
	Insert(ctx context.Context, tx pgx.Tx, p *model.Payment) error
	Detail(ctx context.Context, id int64) (*model.Payment, error)
	BySessionID(ctx context.Context, sessionID string) (*model.Payment, error)
	List(ctx context.Context, f paymentrepo.Filter) ([]model.Payment, error)

	GetBySessionForUpdate(ctx context.Context, tx pgx.Tx, sessionID string) (*model.Payment, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*model.Payment, error)
	AttachSession(ctx context.Context, tx pgx.Tx, id int64, sessionID, sessionURL string) (bool, error)
	Transition(ctx context.Context, tx pgx.Tx, id int64, to model.PaymentStatus, typ model.PaymentType) (bool, error)
}

// Borrowings reads the borrowing a payment settles.
type Borrowings interface {
	Detail(ctx context.Context, id int64) (*model.BorrowingDetail, error)
}

type Service interface {
	// Create prices a returned borrowing and records a PENDING payment.
	Create(ctx context.Context, borrowingID int64) (*model.Payment, error)

	// OpenCheckout returns the payment with a hosted checkout session,
	// opening one with the provider if it has none yet. A payment with
	// nothing owed is settled as PAID without a session.
	OpenCheckout(ctx context.Context, paymentID int64) (*model.Payment, error)

	MarkPaid(ctx context.Context, sessionID string) (*model.Payment, error)
	MarkCancelled(ctx context.Context, sessionID string) (*model.Payment, error)
	CheckExpired(ctx context.Context, sessionID string, now time.Time) (*model.Payment, error)

	List(ctx context.Context, actor model.Actor) ([]model.Payment, error)
	Detail(ctx context.Context, actor model.Actor, paymentID int64) (*model.Payment, error)
}

type Config struct {
	Policy   fee.Policy
	Currency string
	// BaseURL is where the provider redirects the browser after checkout.
	BaseURL string
	Now     func() time.Time
}

// sessionKeys namespaces the idempotency keys sent with OpenSession so that
// retries for the same payment land on the same provider session.
var sessionKeys = uuid.MustParse("6f1c7a52-2b7e-4d0b-9a43-5b9f0f3f8e21")

type service struct {
	tx       database.TxRunner
	r        Repo
	br       Borrowings
	provider checkoutrepo.Provider
	sink     notify.Sink
	log      *slog.Logger
	cfg      Config
}

func New(tx database.TxRunner, r Repo, br Borrowings, provider checkoutrepo.Provider, sink notify.Sink, log *slog.Logger, cfg Config) Service {
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if sink == nil {
		sink = notify.Discard
	}
	return &service{tx: tx, r: r, br: br, provider: provider, sink: sink, log: log, cfg: cfg}
}

func (s *service) Create(ctx context.Context, borrowingID int64) (*model.Payment, error) {
	d, err := s.br.Detail(ctx, borrowingID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, makeErr(ErrBorrowingNotFound)
	}
	if d.State() != model.BorrowingReturned {
		return nil, makeErr(ErrBorrowingNotReturned)
	}

	amount, err := s.cfg.Policy.Compute(d.BorrowDate, d.ExpectedReturnDate, *d.ActualReturnDate, d.Book.DailyFee)
	if err != nil {
		return nil, fmt.Errorf("price borrowing %d: %w", d.ID, err)
	}

	p := &model.Payment{
		BorrowingID: d.ID,
		BorrowerID:  d.BorrowerID,
		Status:      model.PaymentPending,
		Type:        typeFor(&d.Borrowing),
		MoneyToPay:  amount,
	}
	if err := s.tx.WithTx(ctx, func(tx pgx.Tx) error {
		return s.r.Insert(ctx, tx, p)
	}); err != nil {
		return nil, err
	}
	return p, nil
}

func typeFor(b *model.Borrowing) model.PaymentType {
	if b.ReturnedLate() {
		return model.PaymentTypeFine
	}
	return model.PaymentTypePayment
}

func (s *service) OpenCheckout(ctx context.Context, paymentID int64) (*model.Payment, error) {
	p, err := s.r.Detail(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, makeErr(ErrPaymentNotFound)
	}
	if p.Status.Terminal() {
		return nil, makeErr(ErrAlreadyFinalized)
	}
	if p.SessionID != nil {
		return p, nil
	}
	if !p.MoneyToPay.IsPositive() {
		return s.settleFree(ctx, p.ID)
	}

	// The provider call stays outside the transaction; nothing is written
	// unless it succeeds.
	sess, err := s.provider.OpenSession(ctx, s.sessionReq(p))
	if err != nil {
		return nil, codedError{code: ErrProviderFailure, cause: err}
	}

	var out *model.Payment
	err = s.tx.WithTx(ctx, func(tx pgx.Tx) error {
		ok, err := s.r.AttachSession(ctx, tx, p.ID, sess.ID, sess.URL)
		if err != nil {
			return err
		}
		cur, err := s.r.GetForUpdate(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		if cur == nil {
			return makeErr(ErrPaymentNotFound)
		}
		if !ok && cur.Status.Terminal() {
			return makeErr(ErrAlreadyFinalized)
		}
		out = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// settleFree marks a payment with nothing owed as PAID without a checkout
// session; providers refuse zero amounts.
func (s *service) settleFree(ctx context.Context, id int64) (*model.Payment, error) {
	var out *model.Payment
	err := s.tx.WithTx(ctx, func(tx pgx.Tx) error {
		cur, err := s.r.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur == nil {
			return makeErr(ErrPaymentNotFound)
		}
		ok, err := s.r.Transition(ctx, tx, cur.ID, model.PaymentPaid, cur.Type)
		if err != nil {
			return err
		}
		if !ok {
			return makeErr(ErrAlreadyFinalized)
		}
		cur.Status = model.PaymentPaid
		out = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "zero amount payment settled", "payment_id", id)
	return out, nil
}

func (s *service) sessionReq(p *model.Payment) checkoutrepo.OpenSessionReq {
	name := "Book borrowing #" + strconv.FormatInt(p.BorrowingID, 10)
	if p.Type == model.PaymentTypeFine {
		name = "Overdue fine for borrowing #" + strconv.FormatInt(p.BorrowingID, 10)
	}
	return checkoutrepo.OpenSessionReq{
		Amount:         p.MoneyToPay,
		Currency:       s.cfg.Currency,
		Name:           name,
		Description:    fmt.Sprintf("Payment #%d", p.ID),
		SuccessURL:     s.cfg.BaseURL + "/v1/payments/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:      s.cfg.BaseURL + "/v1/payments/cancelled?session_id={CHECKOUT_SESSION_ID}",
		IdempotencyKey: uuid.NewSHA1(sessionKeys, []byte("payment:"+strconv.FormatInt(p.ID, 10))).String(),
	}
}

// transition moves the payment behind sessionID from PENDING to to. It
// reports changed=false when the payment already sat in to.
func (s *service) transition(ctx context.Context, sessionID string, to model.PaymentStatus) (p *model.Payment, changed bool, err error) {
	err = s.tx.WithTx(ctx, func(tx pgx.Tx) error {
		cur, err := s.r.GetBySessionForUpdate(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if cur == nil {
			return makeErr(ErrPaymentNotFound)
		}
		if cur.Status == to {
			p = cur
			return nil
		}
		if cur.Status.Terminal() {
			return makeErr(ErrAlreadyFinalized)
		}

		typ := cur.Type
		if to == model.PaymentPaid {
			d, err := s.br.Detail(ctx, cur.BorrowingID)
			if err != nil {
				return err
			}
			if d != nil {
				typ = typeFor(&d.Borrowing)
			}
		}

		ok, err := s.r.Transition(ctx, tx, cur.ID, to, typ)
		if err != nil {
			return err
		}
		if !ok {
			return makeErr(ErrAlreadyFinalized)
		}
		cur.Status, cur.Type = to, typ
		p, changed = cur, true
		return nil
	})
	return p, changed, err
}

func (s *service) MarkPaid(ctx context.Context, sessionID string) (*model.Payment, error) {
	p, changed, err := s.transition(ctx, sessionID, model.PaymentPaid)
	if err != nil {
		return nil, err
	}
	if changed {
		s.announcePaid(ctx, p)
	}
	return p, nil
}

func (s *service) announcePaid(ctx context.Context, p *model.Payment) {
	var borrower string
	if d, err := s.br.Detail(ctx, p.BorrowingID); err == nil && d != nil {
		borrower = d.Borrower.FullName()
	}
	if err := s.sink.Notify(ctx, notify.PaymentSuccess(borrower, p.MoneyToPay, s.cfg.Now())); err != nil {
		s.log.WarnContext(ctx, "payment notification failed", "payment_id", p.ID, "err", err)
	}
}

func (s *service) MarkCancelled(ctx context.Context, sessionID string) (*model.Payment, error) {
	p, _, err := s.transition(ctx, sessionID, model.PaymentCancelled)
	return p, err
}

// CheckExpired asks the provider whether the session ran out and, if so,
// moves a still pending payment to EXPIRED. A live session leaves the
// payment untouched.
func (s *service) CheckExpired(ctx context.Context, sessionID string, now time.Time) (*model.Payment, error) {
	p, err := s.r.BySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, makeErr(ErrPaymentNotFound)
	}
	if p.Status == model.PaymentExpired {
		return p, nil
	}
	if p.Status.Terminal() {
		return nil, makeErr(ErrAlreadyFinalized)
	}

	st, err := s.provider.GetSession(ctx, sessionID)
	if err != nil {
		return nil, codedError{code: ErrProviderFailure, cause: err}
	}
	// a zero ExpiresAt means the provider did not say
	expired := st.Status == "expired" || (!st.ExpiresAt.IsZero() && st.ExpiresAt.Before(now))
	if !expired {
		return p, nil
	}

	p, _, err = s.transition(ctx, sessionID, model.PaymentExpired)
	return p, err
}

func (s *service) List(ctx context.Context, actor model.Actor) ([]model.Payment, error) {
	var f paymentrepo.Filter
	if !actor.IsStaff {
		uid := actor.UserID
		f.BorrowerID = &uid
	}
	return s.r.List(ctx, f)
}

func (s *service) Detail(ctx context.Context, actor model.Actor, paymentID int64) (*model.Payment, error) {
	p, err := s.r.Detail(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p == nil || !actor.CanSee(p.BorrowerID) {
		return nil, makeErr(ErrPaymentNotFound)
	}
	return p, nil
}
