package authsvc

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/Viktor-Beniukh/library-service-api/model"
	authrepo "github.com/Viktor-Beniukh/library-service-api/repository/auth"
	"github.com/Viktor-Beniukh/library-service-api/util/hash"
	jwtutil "github.com/Viktor-Beniukh/library-service-api/util/jwt"
)

const secret = "test-secret"

type mockRepo struct {
	byEmailFn func(ctx context.Context, email string) (*model.User, error)
	createFn  func(ctx context.Context, u *model.User) error
}

var _ authrepo.Repo = (*mockRepo)(nil)

func (m *mockRepo) ByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.byEmailFn == nil {
		return nil, nil
	}
	return m.byEmailFn(ctx, email)
}

func (m *mockRepo) Create(ctx context.Context, u *model.User) error {
	if m.createFn == nil {
		return nil
	}
	return m.createFn(ctx, u)
}

// accountRepo holds one stored reader and records every lookup.
func accountRepo(t *testing.T, u model.User, password string, lookups *[]string) *mockRepo {
	t.Helper()
	h, err := hash.HashPassword(password)
	require.NoError(t, err)
	u.PasswordHash = h
	return &mockRepo{byEmailFn: func(_ context.Context, email string) (*model.User, error) {
		*lookups = append(*lookups, email)
		if email != u.Email {
			return nil, nil
		}
		cp := u
		return &cp, nil
	}}
}

func TestRegister_Success(t *testing.T) {
	var stored *model.User
	m := &mockRepo{createFn: func(_ context.Context, u *model.User) error {
		u.ID = 42
		stored = u
		return nil
	}}

	u, tok, err := New(m, secret).Register(context.Background(), model.RegisterReq{
		FirstName: " Ada ",
		LastName:  "Lovelace",
		Email:     "ada@example.com",
		Password:  "supersecret",
	})
	require.NoError(t, err)
	require.Same(t, stored, u)
	require.Equal(t, "Ada Lovelace", u.FullName())
	require.True(t, hash.Check(u.PasswordHash, "supersecret"))
	require.NotEqual(t, "supersecret", u.PasswordHash)

	claims, err := jwtutil.Parse(secret, tok)
	require.NoError(t, err)
	require.Equal(t, float64(42), claims["sub"])
	require.Equal(t, model.RoleUser, claims["role"])
}

func TestEmailNormalisation(t *testing.T) {
	const raw = "  Ada.Lovelace@Example.COM \t"
	const norm = "ada.lovelace@example.com"

	t.Run("register stores and checks the normalised address", func(t *testing.T) {
		var lookups []string
		var created string
		m := &mockRepo{
			byEmailFn: func(_ context.Context, email string) (*model.User, error) {
				lookups = append(lookups, email)
				return nil, nil
			},
			createFn: func(_ context.Context, u *model.User) error {
				created = u.Email
				return nil
			},
		}
		_, tok, err := New(m, secret).Register(context.Background(), model.RegisterReq{Email: raw, Password: "123456"})
		require.NoError(t, err)
		require.Equal(t, []string{norm}, lookups)
		require.Equal(t, norm, created)

		claims, err := jwtutil.Parse(secret, tok)
		require.NoError(t, err)
		require.Equal(t, norm, claims["email"])
	})

	t.Run("a differently cased duplicate is taken", func(t *testing.T) {
		var lookups []string
		m := accountRepo(t, model.User{ID: 3, Email: norm}, "123456", &lookups)
		m.createFn = func(context.Context, *model.User) error {
			t.Fatal("create must not be called")
			return nil
		}
		_, _, err := New(m, secret).Register(context.Background(), model.RegisterReq{Email: "ADA.LOVELACE@example.com", Password: "abcdef"})
		require.Equal(t, ErrEmailTaken, Code(err))
	})

	t.Run("login matches regardless of case and padding", func(t *testing.T) {
		var lookups []string
		m := accountRepo(t, model.User{ID: 3, Email: norm}, "123456", &lookups)
		u, _, err := New(m, secret).Login(context.Background(), model.LoginReq{Email: raw, Password: "123456"})
		require.NoError(t, err)
		require.Equal(t, int64(3), u.ID)
		require.Equal(t, []string{norm}, lookups)
	})
}

func TestLogin_RoleClaim(t *testing.T) {
	tests := []struct {
		name    string
		isStaff bool
		want    string
	}{
		{"reader", false, model.RoleUser},
		{"staff", true, model.RoleAdmin},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var lookups []string
			m := accountRepo(t, model.User{ID: 7, Email: "user@example.com", IsStaff: tc.isStaff}, "supersecret", &lookups)

			u, tok, err := New(m, secret).Login(context.Background(), model.LoginReq{Email: "user@example.com", Password: "supersecret"})
			require.NoError(t, err)
			require.Equal(t, tc.want, u.Role())

			claims, err := jwtutil.Parse(secret, tok)
			require.NoError(t, err)
			require.Equal(t, tc.want, claims["role"])
			require.Equal(t, float64(7), claims["sub"])

			_, err = jwtutil.Parse("other-secret", tok)
			require.Error(t, err)
		})
	}
}

func TestRegister_Rejected(t *testing.T) {
	tests := []struct {
		name     string
		req      model.RegisterReq
		existing *model.User
		createFn func(context.Context, *model.User) error
		want     ErrCode
	}{
		{name: "blank email", req: model.RegisterReq{Email: " ", Password: "123456"}, want: ErrBadInput},
		{name: "no at sign", req: model.RegisterReq{Email: "ada.example.com", Password: "123456"}, want: ErrBadInput},
		{name: "short password", req: model.RegisterReq{Email: "ada@example.com", Password: "12345"}, want: ErrBadInput},
		{name: "taken", req: model.RegisterReq{Email: "ada@example.com", Password: "123456"}, existing: &model.User{ID: 9}, want: ErrEmailTaken},
		{
			name: "lost race on email index",
			req:  model.RegisterReq{Email: "ada@example.com", Password: "123456"},
			createFn: func(context.Context, *model.User) error {
				return &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "users_email_key"}
			},
			want: ErrEmailTaken,
		},
		{
			name: "other unique index",
			req:  model.RegisterReq{Email: "ada@example.com", Password: "123456"},
			createFn: func(context.Context, *model.User) error {
				return &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "users_nickname_key", Message: "duplicate key"}
			},
			want: ErrBadInput,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := &mockRepo{
				byEmailFn: func(context.Context, string) (*model.User, error) { return tc.existing, nil },
				createFn:  tc.createFn,
			}
			_, tok, err := New(m, secret).Register(context.Background(), tc.req)
			require.Equal(t, tc.want, Code(err))
			require.Empty(t, tok)
		})
	}
}

func TestRegister_StorageErrorsPassThrough(t *testing.T) {
	boom := errors.New("db down")

	_, _, err := New(&mockRepo{createFn: func(context.Context, *model.User) error { return boom }}, secret).
		Register(context.Background(), model.RegisterReq{Email: "ok@example.com", Password: "123456"})
	require.ErrorIs(t, err, boom)
	require.Equal(t, ErrCode(""), Code(err))

	_, _, err = New(&mockRepo{byEmailFn: func(context.Context, string) (*model.User, error) { return nil, boom }}, secret).
		Login(context.Background(), model.LoginReq{Email: "ok@example.com", Password: "123456"})
	require.ErrorIs(t, err, boom)
}

func TestLogin_Rejected(t *testing.T) {
	var lookups []string
	m := accountRepo(t, model.User{ID: 101, Email: "user@example.com"}, "correct-password", &lookups)
	svc := New(m, secret)

	tests := []struct {
		name string
		req  model.LoginReq
		want ErrCode
	}{
		{"blank", model.LoginReq{Email: " "}, ErrBadInput},
		{"no password", model.LoginReq{Email: "user@example.com"}, ErrBadInput},
		{"unknown user", model.LoginReq{Email: "missing@example.com", Password: "whatever"}, ErrInvalidCreds},
		{"wrong password", model.LoginReq{Email: "user@example.com", Password: "wrong-password"}, ErrInvalidCreds},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, tok, err := svc.Login(context.Background(), tc.req)
			require.Equal(t, tc.want, Code(err))
			require.Empty(t, tok)
		})
	}
}

func TestCodeExtractor(t *testing.T) {
	require.Equal(t, ErrEmailTaken, Code(wrap(ErrEmailTaken, "x")))
	require.Equal(t, ErrCode(""), Code(errors.New("plain")))
}
