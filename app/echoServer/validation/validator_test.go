package validation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Title    string          `json:"title" validate:"required"`
	DailyFee decimal.Decimal `json:"daily_fee" validate:"gte=0"`
	Count    int             `json:"count" validate:"gte=0"`
}

func TestErrors_UseJSONNames(t *testing.T) {
	err := New().Validate(sample{DailyFee: decimal.NewFromInt(-1), Count: -2})
	require.Error(t, err)
	require.Equal(t, map[string]string{
		"title":     "required",
		"daily_fee": "gte=0",
		"count":     "gte=0",
	}, Errors(err))

	require.NoError(t, New().Validate(sample{Title: "Dune", DailyFee: decimal.Zero}))
}
