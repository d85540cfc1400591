// model/payment.go
package model

import "github.com/shopspring/decimal"

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentPaid      PaymentStatus = "PAID"
	PaymentCancelled PaymentStatus = "CANCELLED"
	PaymentExpired   PaymentStatus = "EXPIRED"
)

// Terminal statuses accept no further transitions.
func (s PaymentStatus) Terminal() bool { return s != PaymentPending }

type PaymentType string

const (
	PaymentTypePayment PaymentType = "PAYMENT"
	PaymentTypeFine    PaymentType = "FINE"
)

type Payment struct {
	ID          int64           `json:"id"`
	BorrowingID int64           `json:"borrowing_id"`
	BorrowerID  int64           `json:"borrower_id"`
	Status      PaymentStatus   `json:"status"`
	Type        PaymentType     `json:"type"`
	SessionID   *string         `json:"session_id,omitempty"`
	SessionURL  *string         `json:"session_url,omitempty"`
	MoneyToPay  decimal.Decimal `json:"money_to_pay"`
}
