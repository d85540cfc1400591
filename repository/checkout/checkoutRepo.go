package checkoutrepo

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type OpenSessionReq struct {
	Amount         decimal.Decimal
	Currency       string
	Name           string
	Description    string
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

type Session struct {
	ID        string
	URL       string
	ExpiresAt time.Time
}

type SessionStatus struct {
	ID        string
	Status    string
	ExpiresAt time.Time
}

// Provider is the hosted checkout service. It never mutates local state.
type Provider interface {
	OpenSession(ctx context.Context, req OpenSessionReq) (*Session, error)
	GetSession(ctx context.Context, sessionID string) (*SessionStatus, error)
}

// ProviderError is any failure talking to the provider: transport errors,
// non-2xx answers and malformed bodies.
type ProviderError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("checkout %s failed: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("checkout %s failed: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
