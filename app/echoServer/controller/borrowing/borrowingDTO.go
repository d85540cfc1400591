package borrowing

import "github.com/Viktor-Beniukh/library-service-api/model"

type CreateBorrowingReq struct {
	BookID             int64       `json:"book_id" validate:"required,gt=0"`
	ExpectedReturnDate *model.Date `json:"expected_return_date"`
}

type ReturnBorrowingReq struct {
	// Empty means today.
	ActualReturnDate *model.Date `json:"actual_return_date"`
}
