package authsvc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Viktor-Beniukh/library-service-api/model"
	authrepo "github.com/Viktor-Beniukh/library-service-api/repository/auth"
	"github.com/Viktor-Beniukh/library-service-api/util/hash"
	jwtutil "github.com/Viktor-Beniukh/library-service-api/util/jwt"
)

type ErrCode string

const (
	ErrEmailTaken   ErrCode = "EMAIL_TAKEN"
	ErrBadInput     ErrCode = "BAD_INPUT"
	ErrInvalidCreds ErrCode = "INVALID_CREDENTIALS"
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

func wrap(c ErrCode, msg string) error { return codedError{code: c, msg: msg} }

// Code extracts error code
func Code(err error) ErrCode {
	var ce interface{ Code() ErrCode }
	if errors.As(err, &ce) {
		return ce.Code()
	}
	return ""
}

type Service interface {
	Register(ctx context.Context, req model.RegisterReq) (*model.User, string, error)
	Login(ctx context.Context, req model.LoginReq) (*model.User, string, error)
}

type service struct {
	ur     authrepo.Repo
	secret string
}

func New(ur authrepo.Repo, secret string) Service { return &service{ur: ur, secret: secret} }

func normEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func (s *service) Register(ctx context.Context, req model.RegisterReq) (*model.User, string, error) {
	email := normEmail(req.Email)
	if email == "" || !strings.Contains(email, "@") || len(req.Password) < 6 {
		return nil, "", wrap(ErrBadInput, "email and a password of at least 6 characters are required")
	}

	existing, err := s.ur.ByEmail(ctx, email)
	if err != nil {
		return nil, "", err
	}
	if existing != nil {
		return nil, "", wrap(ErrEmailTaken, email)
	}

	hashed, err := hash.HashPassword(req.Password)
	if err != nil {
		return nil, "", err
	}
	u := &model.User{
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Email:        email,
		PasswordHash: hashed,
	}
	if err := s.ur.Create(ctx, u); err != nil {
		if derr := mapDuplicateErr(err); derr != nil {
			return nil, "", derr
		}
		return nil, "", fmt.Errorf("create user: %w", err)
	}

	token, err := jwtutil.Issue(s.secret, u.ID, u.Email, u.Role(), jwtutil.DefaultTTL)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// mapDuplicateErr turns a unique violation on users into EMAIL_TAKEN; two
// registrations can race past the ByEmail check.
func mapDuplicateErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		cn := strings.ToLower(pgErr.ConstraintName)
		if strings.Contains(cn, "users_email") || strings.Contains(strings.ToLower(pgErr.Message), "email") {
			return wrap(ErrEmailTaken, "")
		}
		return wrap(ErrBadInput, pgErr.ConstraintName)
	}
	return nil
}

func (s *service) Login(ctx context.Context, req model.LoginReq) (*model.User, string, error) {
	email := normEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, "", wrap(ErrBadInput, "email and password are required")
	}

	u, err := s.ur.ByEmail(ctx, email)
	if err != nil {
		return nil, "", err
	}
	if u == nil || !hash.Check(u.PasswordHash, req.Password) {
		return nil, "", wrap(ErrInvalidCreds, "")
	}
	token, err := jwtutil.Issue(s.secret, u.ID, u.Email, u.Role(), jwtutil.DefaultTTL)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}
