// model/borrowing.go
package model

type BorrowingState string

const (
	BorrowingOpen     BorrowingState = "OPEN"
	BorrowingReturned BorrowingState = "RETURNED"
)

type Borrowing struct {
	ID                 int64 `json:"id"`
	BorrowDate         Date  `json:"borrow_date"`
	ExpectedReturnDate Date  `json:"expected_return_date"`
	ActualReturnDate   *Date `json:"actual_return_date"`
	BookID             int64 `json:"book_id"`
	BorrowerID         int64 `json:"borrower_id"`
}

// State is derived from the actual return date: set means RETURNED.
func (b *Borrowing) State() BorrowingState {
	if b.ActualReturnDate != nil {
		return BorrowingReturned
	}
	return BorrowingOpen
}

// ReturnedLate reports whether the book came back after its expected return date.
func (b *Borrowing) ReturnedLate() bool {
	return b.ActualReturnDate != nil && b.ActualReturnDate.After(b.ExpectedReturnDate)
}

// BorrowingDetail is a borrowing joined with its book and borrower.
type BorrowingDetail struct {
	Borrowing
	Book     Book `json:"book"`
	Borrower User `json:"borrower"`
}
