// Package fee computes what a borrower owes for a borrowing.
package fee

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Viktor-Beniukh/library-service-api/model"
)

var (
	// ErrConfiguration marks a misconfigured policy: a non-positive rental
	// window or a fine multiplier that is not greater than one.
	ErrConfiguration = errors.New("fee policy misconfigured")
	// ErrInvalidDates is returned when the book comes back before it was borrowed.
	ErrInvalidDates = errors.New("actual return date precedes borrow date")
)

var one = decimal.NewFromInt(1)

// Policy holds the externally configured fine multiplier.
type Policy struct {
	FineMultiplier decimal.Decimal
}

func NewPolicy(fineMultiplier decimal.Decimal) (Policy, error) {
	p := Policy{FineMultiplier: fineMultiplier}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

func (p Policy) Validate() error {
	if !p.FineMultiplier.GreaterThan(one) {
		return fmt.Errorf("%w: fine multiplier must be > 1, got %s", ErrConfiguration, p.FineMultiplier)
	}
	return nil
}

func (p Policy) Compute(borrow, expected, actual model.Date, dailyFee decimal.Decimal) (decimal.Decimal, error) {
	return Compute(borrow, expected, actual, dailyFee, p.FineMultiplier)
}

// Compute returns the amount owed once the actual return date is known.
//
//   - late:    planned days at the daily fee, plus every overdue day at
//     daily fee times the fine multiplier
//   - on time: planned days at the daily fee
//   - early:   only the days actually held
func Compute(borrow, expected, actual model.Date, dailyFee, fineMultiplier decimal.Decimal) (decimal.Decimal, error) {
	planned, err := plannedDays(borrow, expected)
	if err != nil {
		return decimal.Zero, err
	}
	if actual.Before(borrow) {
		return decimal.Zero, ErrInvalidDates
	}

	switch {
	case actual.After(expected):
		overdue := expected.DaysUntil(actual)
		amount := days(planned).Mul(dailyFee).
			Add(days(overdue).Mul(dailyFee).Mul(fineMultiplier))
		return amount.Round(2), nil
	case actual.Equal(expected):
		return days(planned).Mul(dailyFee).Round(2), nil
	default:
		held := borrow.DaysUntil(actual)
		return days(held).Mul(dailyFee).Round(2), nil
	}
}

// Planned is the amount for the planned rental window alone. It is the
// preview shown when a borrowing is opened.
func Planned(borrow, expected model.Date, dailyFee decimal.Decimal) (decimal.Decimal, error) {
	planned, err := plannedDays(borrow, expected)
	if err != nil {
		return decimal.Zero, err
	}
	return days(planned).Mul(dailyFee).Round(2), nil
}

// IsLate reports whether a return on actual is past the expected date.
func IsLate(expected, actual model.Date) bool { return actual.After(expected) }

func plannedDays(borrow, expected model.Date) (int, error) {
	n := borrow.DaysUntil(expected)
	if n <= 0 {
		return 0, fmt.Errorf("%w: planned rental window is %d days", ErrConfiguration, n)
	}
	return n, nil
}

func days(n int) decimal.Decimal { return decimal.NewFromInt(int64(n)) }
