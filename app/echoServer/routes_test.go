package echoServer

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Viktor-Beniukh/library-service-api/app/echoServer/controller/admin"
	"github.com/Viktor-Beniukh/library-service-api/app/echoServer/controller/auth"
	"github.com/Viktor-Beniukh/library-service-api/app/echoServer/controller/book"
	"github.com/Viktor-Beniukh/library-service-api/app/echoServer/controller/borrowing"
	"github.com/Viktor-Beniukh/library-service-api/app/echoServer/controller/payment"
	"github.com/Viktor-Beniukh/library-service-api/app/echoServer/validation"
	"github.com/Viktor-Beniukh/library-service-api/model"
	checkoutrepo "github.com/Viktor-Beniukh/library-service-api/repository/checkout"
	booksvc "github.com/Viktor-Beniukh/library-service-api/service/book"
	bs "github.com/Viktor-Beniukh/library-service-api/service/borrowing"
	"github.com/Viktor-Beniukh/library-service-api/service/notify"
	paymentsvc "github.com/Viktor-Beniukh/library-service-api/service/payment"
	jwtutil "github.com/Viktor-Beniukh/library-service-api/util/jwt"
)

const secret = "test-secret"

/* ===== mocks ===== */

type borrowCode bs.ErrCode

func (e borrowCode) Error() string    { return string(e) }
func (e borrowCode) Code() bs.ErrCode { return bs.ErrCode(e) }

type payCode paymentsvc.ErrCode

func (e payCode) Error() string            { return string(e) }
func (e payCode) Code() paymentsvc.ErrCode { return paymentsvc.ErrCode(e) }

type mockBorrowings struct {
	create func(ctx context.Context, req bs.CreateReq) (*model.Borrowing, error)
	ret    func(ctx context.Context, actor model.Actor, id int64, actual model.Date) (*model.Borrowing, error)
	list   func(ctx context.Context, actor model.Actor, req bs.ListReq) ([]model.BorrowingDetail, error)
	detail func(ctx context.Context, actor model.Actor, id int64) (*model.BorrowingDetail, error)
}

func (m *mockBorrowings) Create(ctx context.Context, req bs.CreateReq) (*model.Borrowing, error) {
	return m.create(ctx, req)
}
func (m *mockBorrowings) Return(ctx context.Context, actor model.Actor, id int64, actual model.Date) (*model.Borrowing, error) {
	return m.ret(ctx, actor, id, actual)
}
func (m *mockBorrowings) List(ctx context.Context, actor model.Actor, req bs.ListReq) ([]model.BorrowingDetail, error) {
	return m.list(ctx, actor, req)
}
func (m *mockBorrowings) Detail(ctx context.Context, actor model.Actor, id int64) (*model.BorrowingDetail, error) {
	return m.detail(ctx, actor, id)
}

type mockPayments struct {
	create    func(ctx context.Context, borrowingID int64) (*model.Payment, error)
	open      func(ctx context.Context, id int64) (*model.Payment, error)
	paid      func(ctx context.Context, sid string) (*model.Payment, error)
	cancelled func(ctx context.Context, sid string) (*model.Payment, error)
	expired   func(ctx context.Context, sid string, now time.Time) (*model.Payment, error)
	list      func(ctx context.Context, actor model.Actor) ([]model.Payment, error)
	detail    func(ctx context.Context, actor model.Actor, id int64) (*model.Payment, error)
}

func (m *mockPayments) Create(ctx context.Context, borrowingID int64) (*model.Payment, error) {
	return m.create(ctx, borrowingID)
}
func (m *mockPayments) OpenCheckout(ctx context.Context, id int64) (*model.Payment, error) {
	return m.open(ctx, id)
}
func (m *mockPayments) MarkPaid(ctx context.Context, sid string) (*model.Payment, error) {
	return m.paid(ctx, sid)
}
func (m *mockPayments) MarkCancelled(ctx context.Context, sid string) (*model.Payment, error) {
	return m.cancelled(ctx, sid)
}
func (m *mockPayments) CheckExpired(ctx context.Context, sid string, now time.Time) (*model.Payment, error) {
	return m.expired(ctx, sid, now)
}
func (m *mockPayments) List(ctx context.Context, actor model.Actor) ([]model.Payment, error) {
	return m.list(ctx, actor)
}
func (m *mockPayments) Detail(ctx context.Context, actor model.Actor, id int64) (*model.Payment, error) {
	return m.detail(ctx, actor, id)
}

type mockScanner struct {
	scan func(ctx context.Context, now time.Time) (*notify.Event, error)
}

func (m *mockScanner) ListOverdue(context.Context, time.Time) ([]model.BorrowingDetail, error) {
	return nil, nil
}
func (m *mockScanner) Scan(ctx context.Context, now time.Time) (*notify.Event, error) {
	return m.scan(ctx, now)
}
func (m *mockScanner) Run(context.Context, time.Duration) {}

type mockBooks struct {
	booksvc.Service
	update func(ctx context.Context, id, addCopies int64, fee decimal.Decimal) (*model.Book, error)
	del    func(ctx context.Context, id int64) error
}

func (m *mockBooks) UpdateStock(ctx context.Context, id, addCopies int64, fee decimal.Decimal) (*model.Book, error) {
	return m.update(ctx, id, addCopies, fee)
}
func (m *mockBooks) Delete(ctx context.Context, id int64) error { return m.del(ctx, id) }

// sessionRepo serves the single payment OpenCheckout reads and updates.
type sessionRepo struct {
	paymentsvc.Repo
	p model.Payment
}

func (r *sessionRepo) Detail(context.Context, int64) (*model.Payment, error) {
	cp := r.p
	return &cp, nil
}
func (r *sessionRepo) GetForUpdate(ctx context.Context, _ pgx.Tx, id int64) (*model.Payment, error) {
	return r.Detail(ctx, id)
}
func (r *sessionRepo) AttachSession(_ context.Context, _ pgx.Tx, _ int64, sid, u string) (bool, error) {
	r.p.SessionID, r.p.SessionURL = &sid, &u
	return true, nil
}

type recordingProvider struct {
	checkoutrepo.Provider
	seen checkoutrepo.OpenSessionReq
}

func (p *recordingProvider) OpenSession(_ context.Context, req checkoutrepo.OpenSessionReq) (*checkoutrepo.Session, error) {
	p.seen = req
	return &checkoutrepo.Session{ID: "cs_1", URL: "https://pay.test/cs_1"}, nil
}

type noTx struct{}

func (noTx) WithTx(_ context.Context, fn func(tx pgx.Tx) error) error { return fn(nil) }

/* ===== helpers ===== */

func newServer(t *testing.T, b *mockBorrowings, p *mockPayments, s *mockScanner) *echo.Echo {
	t.Helper()
	return newServerWithBooks(t, nil, b, p, s)
}

func newServerWithBooks(t *testing.T, books booksvc.Service, b *mockBorrowings, p *mockPayments, s *mockScanner) *echo.Echo {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	v := validation.NewValidate()

	e := echo.New()
	e.JSONSerializer = JSONSerializer{}
	RegisterMiddlewares(e, log)
	Register(e, C{
		Auth:      &auth.Controller{V: v, Log: log},
		Book:      &book.Controller{Svc: books, V: v, Log: log},
		Borrowing: &borrowing.Controller{Svc: b, V: v, Log: log},
		Payment:   &payment.Controller{Svc: p, V: v, Log: log},
		Admin:     &admin.Controller{Scanner: s, Log: log},
		JWTSecret: secret,
		Log:       log,
	})
	return e
}

func token(t *testing.T, userID int64, role string) string {
	t.Helper()
	tok, err := jwtutil.Issue(secret, userID, "reader@example.com", role, time.Hour)
	require.NoError(t, err)
	return tok
}

func do(e *echo.Echo, method, path, tok, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if tok != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

/* ===== tests ===== */

func TestRoutes_RequireToken(t *testing.T) {
	e := newServer(t, &mockBorrowings{}, &mockPayments{}, &mockScanner{})

	rec := do(e, http.MethodGet, "/v1/borrowings", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(e, http.MethodGet, "/v1/borrowings", "not-a-jwt", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	other, err := jwtutil.Issue("other-secret", 1, "x@example.com", model.RoleUser, time.Hour)
	require.NoError(t, err)
	rec = do(e, http.MethodGet, "/v1/borrowings", other, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRoutes_StaffOnly(t *testing.T) {
	created := false
	p := &mockPayments{create: func(ctx context.Context, borrowingID int64) (*model.Payment, error) {
		created = true
		return &model.Payment{ID: 1, BorrowingID: borrowingID, Status: model.PaymentPending}, nil
	}}
	e := newServer(t, &mockBorrowings{}, p, &mockScanner{})

	rec := do(e, http.MethodPost, "/v1/payments", token(t, 5, model.RoleUser), `{"borrowing_id":3}`)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.False(t, created)

	rec = do(e, http.MethodPost, "/v1/payments", token(t, 1, model.RoleAdmin), `{"borrowing_id":3}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.True(t, created)
}

func TestBorrowingCreate_UsesCaller(t *testing.T) {
	var got bs.CreateReq
	b := &mockBorrowings{create: func(ctx context.Context, req bs.CreateReq) (*model.Borrowing, error) {
		got = req
		return &model.Borrowing{
			ID:                 9,
			BookID:             req.BookID,
			BorrowerID:         req.BorrowerID,
			BorrowDate:         model.NewDate(2024, time.January, 10),
			ExpectedReturnDate: *req.ExpectedReturnDate,
		}, nil
	}}
	e := newServer(t, b, &mockPayments{}, &mockScanner{})

	rec := do(e, http.MethodPost, "/v1/borrowings", token(t, 42, model.RoleUser),
		`{"book_id":7,"expected_return_date":"2024-01-15"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, int64(42), got.BorrowerID)
	require.Equal(t, int64(7), got.BookID)
	require.True(t, got.ExpectedReturnDate.Equal(model.NewDate(2024, time.January, 15)))

	out := decode(t, rec)
	require.Equal(t, "2024-01-15", out["expected_return_date"])
	require.Nil(t, out["actual_return_date"])
}

func TestBorrowingCreate_Errors(t *testing.T) {
	cases := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"no copies", `{"book_id":7}`, borrowCode(bs.ErrNoCopiesAvailable), http.StatusConflict},
		{"unknown book", `{"book_id":7}`, borrowCode(bs.ErrBookNotFound), http.StatusNotFound},
		{"bad dates", `{"book_id":7,"expected_return_date":"2020-01-01"}`, borrowCode(bs.ErrBadInput), http.StatusBadRequest},
		{"missing book", `{}`, nil, http.StatusBadRequest},
		{"bad date format", `{"book_id":7,"expected_return_date":"15/01/2024"}`, nil, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := &mockBorrowings{create: func(ctx context.Context, req bs.CreateReq) (*model.Borrowing, error) {
				if tc.err == nil {
					t.Fatalf("service must not be called")
				}
				return nil, tc.err
			}}
			e := newServer(t, b, &mockPayments{}, &mockScanner{})
			rec := do(e, http.MethodPost, "/v1/borrowings", token(t, 42, model.RoleUser), tc.body)
			require.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

func TestBorrowingReturn(t *testing.T) {
	var gotActor model.Actor
	var gotDate model.Date
	b := &mockBorrowings{ret: func(ctx context.Context, actor model.Actor, id int64, actual model.Date) (*model.Borrowing, error) {
		gotActor, gotDate = actor, actual
		switch id {
		case 1:
			d := model.NewDate(2024, time.January, 12)
			return &model.Borrowing{ID: 1, ActualReturnDate: &d}, nil
		case 2:
			return nil, borrowCode(bs.ErrAlreadyReturned)
		case 3:
			return nil, borrowCode(bs.ErrNotOwner)
		default:
			return nil, borrowCode(bs.ErrNotFound)
		}
	}}
	e := newServer(t, b, &mockPayments{}, &mockScanner{})
	tok := token(t, 42, model.RoleUser)

	// empty body means today
	rec := do(e, http.MethodPost, "/v1/borrowings/1/return", tok, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.True(t, gotDate.IsZero())
	require.Equal(t, model.Actor{UserID: 42}, gotActor)

	rec = do(e, http.MethodPost, "/v1/borrowings/1/return", tok, `{"actual_return_date":"2024-01-12"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, gotDate.Equal(model.NewDate(2024, time.January, 12)))

	require.Equal(t, http.StatusConflict, do(e, http.MethodPost, "/v1/borrowings/2/return", tok, "").Code)
	require.Equal(t, http.StatusForbidden, do(e, http.MethodPost, "/v1/borrowings/3/return", tok, "").Code)
	require.Equal(t, http.StatusNotFound, do(e, http.MethodPost, "/v1/borrowings/4/return", tok, "").Code)
	require.Equal(t, http.StatusBadRequest, do(e, http.MethodPost, "/v1/borrowings/abc/return", tok, "").Code)
}

func TestBorrowingList_Filters(t *testing.T) {
	var got bs.ListReq
	var gotActor model.Actor
	b := &mockBorrowings{list: func(ctx context.Context, actor model.Actor, req bs.ListReq) ([]model.BorrowingDetail, error) {
		gotActor, got = actor, req
		return []model.BorrowingDetail{}, nil
	}}
	e := newServer(t, b, &mockPayments{}, &mockScanner{})

	rec := do(e, http.MethodGet, "/v1/borrowings?user_id=8&is_active=true", token(t, 1, model.RoleAdmin), "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, gotActor.IsStaff)
	require.NotNil(t, got.BorrowerID)
	require.Equal(t, int64(8), *got.BorrowerID)
	require.True(t, got.ActiveOnly)

	rec = do(e, http.MethodGet, "/v1/borrowings?is_active=maybe", token(t, 1, model.RoleAdmin), "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentSession(t *testing.T) {
	opened := false
	p := &mockPayments{
		detail: func(ctx context.Context, actor model.Actor, id int64) (*model.Payment, error) {
			if id == 2 {
				return nil, payCode(paymentsvc.ErrPaymentNotFound)
			}
			return &model.Payment{ID: id, BorrowerID: actor.UserID}, nil
		},
		open: func(ctx context.Context, id int64) (*model.Payment, error) {
			opened = true
			if id == 3 {
				return nil, payCode(paymentsvc.ErrProviderFailure)
			}
			if id == 4 {
				return nil, payCode(paymentsvc.ErrAlreadyFinalized)
			}
			sid, url := "cs_1", "https://checkout.example.com/cs_1"
			return &model.Payment{ID: id, Status: model.PaymentPending, SessionID: &sid, SessionURL: &url}, nil
		},
	}
	e := newServer(t, &mockBorrowings{}, p, &mockScanner{})
	tok := token(t, 42, model.RoleUser)

	rec := do(e, http.MethodPost, "/v1/payments/1/session", tok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	require.Equal(t, "cs_1", out["session_id"])
	require.Equal(t, "https://checkout.example.com/cs_1", out["session_url"])

	// someone else's payment never reaches the provider
	opened = false
	rec = do(e, http.MethodPost, "/v1/payments/2/session", tok, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.False(t, opened)

	require.Equal(t, http.StatusBadGateway, do(e, http.MethodPost, "/v1/payments/3/session", tok, "").Code)
	require.Equal(t, http.StatusConflict, do(e, http.MethodPost, "/v1/payments/4/session", tok, "").Code)
}

func TestPaymentCallbacks(t *testing.T) {
	now := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	var gotNow time.Time
	p := &mockPayments{
		paid: func(ctx context.Context, sid string) (*model.Payment, error) {
			if sid == "cs_done" {
				return nil, payCode(paymentsvc.ErrAlreadyFinalized)
			}
			if sid != "cs_1" {
				return nil, payCode(paymentsvc.ErrPaymentNotFound)
			}
			return &model.Payment{ID: 1, Status: model.PaymentPaid, MoneyToPay: decimal.RequireFromString("7.50")}, nil
		},
		cancelled: func(ctx context.Context, sid string) (*model.Payment, error) {
			return &model.Payment{ID: 1, Status: model.PaymentCancelled}, nil
		},
		expired: func(ctx context.Context, sid string, at time.Time) (*model.Payment, error) {
			gotNow = at
			return &model.Payment{ID: 1, Status: model.PaymentExpired}, nil
		},
	}
	e := newServer(t, &mockBorrowings{}, p, &mockScanner{})
	pc := &payment.Controller{Svc: p, Log: slog.New(slog.NewTextHandler(io.Discard, nil)), Now: func() time.Time { return now }}

	// callbacks are public
	rec := do(e, http.MethodGet, "/v1/payments/success?session_id=cs_1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	require.Equal(t, "Payment successful", out["message"])
	require.Equal(t, "PAID", out["payment"].(map[string]any)["status"])
	require.Equal(t, "7.5", out["payment"].(map[string]any)["money_to_pay"])

	require.Equal(t, http.StatusConflict, do(e, http.MethodGet, "/v1/payments/success?session_id=cs_done", "", "").Code)
	require.Equal(t, http.StatusNotFound, do(e, http.MethodGet, "/v1/payments/success?session_id=cs_x", "", "").Code)
	require.Equal(t, http.StatusBadRequest, do(e, http.MethodGet, "/v1/payments/success", "", "").Code)

	rec = do(e, http.MethodGet, "/v1/payments/cancelled?session_id=cs_1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, decode(t, rec)["message"], "24 hours")

	// expiry check uses the controller clock
	req := httptest.NewRequest(http.MethodGet, "/v1/payments/expired?session_id=cs_1", nil)
	rec = httptest.NewRecorder()
	require.NoError(t, pc.Expired(e.NewContext(req, rec)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, gotNow.Equal(now))
}

func TestPaymentRedirectURLs_ReachCallbacks(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	prov := &recordingProvider{}
	repo := &sessionRepo{p: model.Payment{ID: 9, BorrowingID: 1, Status: model.PaymentPending, Type: model.PaymentTypePayment, MoneyToPay: decimal.NewFromInt(10)}}
	svc := paymentsvc.New(noTx{}, repo, nil, prov, nil, log, paymentsvc.Config{BaseURL: "http://library.test/"})
	_, err := svc.OpenCheckout(context.Background(), 9)
	require.NoError(t, err)

	var paid, cancelled []string
	p := &mockPayments{
		paid: func(ctx context.Context, sid string) (*model.Payment, error) {
			paid = append(paid, sid)
			return &model.Payment{ID: 9, Status: model.PaymentPaid}, nil
		},
		cancelled: func(ctx context.Context, sid string) (*model.Payment, error) {
			cancelled = append(cancelled, sid)
			return &model.Payment{ID: 9, Status: model.PaymentCancelled}, nil
		},
	}
	e := newServer(t, &mockBorrowings{}, p, &mockScanner{})

	// the provider substitutes the session id before redirecting
	for _, raw := range []string{prov.seen.SuccessURL, prov.seen.CancelURL} {
		u, err := url.Parse(strings.ReplaceAll(raw, "{CHECKOUT_SESSION_ID}", "cs_1"))
		require.NoError(t, err)
		require.Equal(t, "library.test", u.Host)
		rec := do(e, http.MethodGet, u.RequestURI(), "", "")
		require.Equal(t, http.StatusOK, rec.Code, raw)
	}
	require.Equal(t, []string{"cs_1"}, paid)
	require.Equal(t, []string{"cs_1"}, cancelled)
}

func TestBookStock_Conflicts(t *testing.T) {
	var gotDelta int64
	books := &mockBooks{
		update: func(ctx context.Context, id, addCopies int64, fee decimal.Decimal) (*model.Book, error) {
			gotDelta = addCopies
			if id == 2 {
				return nil, booksvc.ErrNotEnoughCopies
			}
			return &model.Book{ID: id, Inventory: 3 + addCopies, DailyFee: fee}, nil
		},
		del: func(ctx context.Context, id int64) error {
			if id == 2 {
				return booksvc.ErrInUse
			}
			return nil
		},
	}
	e := newServerWithBooks(t, books, &mockBorrowings{}, &mockPayments{}, &mockScanner{})
	tok := token(t, 1, model.RoleAdmin)

	rec := do(e, http.MethodPut, "/v1/books/1", tok, `{"add_copies":-2,"daily_fee":"1.25"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int64(-2), gotDelta)

	require.Equal(t, http.StatusConflict, do(e, http.MethodPut, "/v1/books/2", tok, `{"add_copies":-9,"daily_fee":"1.25"}`).Code)

	rec = do(e, http.MethodDelete, "/v1/books/2", tok, "")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "book has borrowings on record", decode(t, rec)["message"])
}

func TestAdminScan(t *testing.T) {
	s := &mockScanner{scan: func(ctx context.Context, now time.Time) (*notify.Event, error) {
		ev := notify.OverdueDigest(nil, now)
		return &ev, nil
	}}
	e := newServer(t, &mockBorrowings{}, &mockPayments{}, s)

	require.Equal(t, http.StatusForbidden, do(e, http.MethodPost, "/v1/admin/overdue/scan", token(t, 5, model.RoleUser), "").Code)

	rec := do(e, http.MethodPost, "/v1/admin/overdue/scan", token(t, 1, model.RoleAdmin), "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, string(notify.KindNoOverdue), decode(t, rec)["kind"])
}
