package book

import (
	"github.com/shopspring/decimal"

	"github.com/Viktor-Beniukh/library-service-api/model"
)

type CreateBookReq struct {
	Title     string          `json:"title" validate:"required,max=255"`
	Author    string          `json:"author" validate:"max=255"`
	Cover     model.CoverType `json:"cover" validate:"omitempty,oneof=HARD SOFT"`
	Inventory int64           `json:"inventory" validate:"gte=0"`
	DailyFee  decimal.Decimal `json:"daily_fee" validate:"gte=0"`
}

// UpdateStockReq adjusts the shelf relative to its current count, so copies
// out on loan are never overwritten. A negative add_copies withdraws copies.
type UpdateStockReq struct {
	AddCopies int64           `json:"add_copies"`
	DailyFee  decimal.Decimal `json:"daily_fee" validate:"gte=0"`
}
