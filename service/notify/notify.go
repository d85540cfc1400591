// Package notify carries business events to staff channels. Delivery is
// best effort: a failed notification never fails the operation that raised it.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Viktor-Beniukh/library-service-api/model"
)

type Kind string

const (
	KindNewBorrowing   Kind = "NEW_BORROWING"
	KindOverdueDigest  Kind = "OVERDUE_DIGEST"
	KindNoOverdue      Kind = "NO_OVERDUE"
	KindPaymentSuccess Kind = "PAYMENT_SUCCESS"
)

type Event struct {
	Kind       Kind            `json:"kind"`
	Borrower   string          `json:"borrower,omitempty"`
	BookTitle  string          `json:"book_title,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Entries    []OverdueEntry  `json:"entries,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type OverdueEntry struct {
	BorrowingID   int64           `json:"borrowing_id"`
	Borrower      string          `json:"borrower"`
	BookTitle     string          `json:"book_title"`
	DueDate       model.Date      `json:"due_date"`
	OverdueDays   int             `json:"overdue_days"`
	PlannedAmount decimal.Decimal `json:"planned_amount"`
	AccruedAmount decimal.Decimal `json:"accrued_amount"`
	// Unpriced is set when the amounts could not be computed.
	Unpriced bool `json:"unpriced,omitempty"`
}

func NewBorrowing(borrower, bookTitle string, amountPreview decimal.Decimal, at time.Time) Event {
	return Event{Kind: KindNewBorrowing, Borrower: borrower, BookTitle: bookTitle, Amount: amountPreview, OccurredAt: at}
}

func PaymentSuccess(borrower string, amount decimal.Decimal, at time.Time) Event {
	return Event{Kind: KindPaymentSuccess, Borrower: borrower, Amount: amount, OccurredAt: at}
}

// OverdueDigest collapses to a NoOverdue event when there is nothing to report.
func OverdueDigest(entries []OverdueEntry, at time.Time) Event {
	if len(entries) == 0 {
		return Event{Kind: KindNoOverdue, OccurredAt: at}
	}
	return Event{Kind: KindOverdueDigest, Entries: entries, OccurredAt: at}
}

// Text renders the event for human channels.
func (e Event) Text() string {
	switch e.Kind {
	case KindNewBorrowing:
		return fmt.Sprintf("A new borrowing has been created!\n\nBorrower Name: %s\nBook: %s\nAmount: $%s",
			e.Borrower, e.BookTitle, e.Amount.StringFixed(2))
	case KindPaymentSuccess:
		return fmt.Sprintf("Payment successful!\n\nBorrower Name: %s\nAmount: $%s",
			e.Borrower, e.Amount.StringFixed(2))
	case KindNoOverdue:
		return "No borrowings overdue today!"
	case KindOverdueDigest:
		var b strings.Builder
		b.WriteString("The following borrowings are overdue:\n\n")
		for _, en := range e.Entries {
			if en.Unpriced {
				fmt.Fprintf(&b, "Borrower Name: %s\nBook: %s\nDue Date: %s (%d days overdue)\nAmount: unavailable\n\n",
					en.Borrower, en.BookTitle, en.DueDate, en.OverdueDays)
				continue
			}
			fmt.Fprintf(&b, "Borrower Name: %s\nBook: %s\nAmount: $%s\nDue Date: %s (%d days overdue)\nOwed if returned today: $%s\n\n",
				en.Borrower, en.BookTitle, en.PlannedAmount.StringFixed(2), en.DueDate, en.OverdueDays, en.AccruedAmount.StringFixed(2))
		}
		return strings.TrimRight(b.String(), "\n")
	default:
		return string(e.Kind)
	}
}

type Sink interface {
	Notify(ctx context.Context, e Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event) error

func (f SinkFunc) Notify(ctx context.Context, e Event) error { return f(ctx, e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) error { return nil })

type multi []Sink

// Multi fans an event out to every sink and joins their errors.
func Multi(sinks ...Sink) Sink { return multi(sinks) }

func (m multi) Notify(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
