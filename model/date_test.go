package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDaysUntil(t *testing.T) {
	jan1 := NewDate(2024, time.January, 1)

	tests := []struct {
		name string
		to   Date
		want int
	}{
		{"same day", jan1, 0},
		{"leap february", NewDate(2024, time.March, 1), 60},
		{"backwards", NewDate(2023, time.December, 25), -7},
		// a time.Duration overflows past ~292 years
		{"four centuries", NewDate(2424, time.January, 1), 146097},
		{"four centuries back", NewDate(1624, time.January, 1), -146097},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, jan1.DaysUntil(tc.to))
		})
	}
}

func TestDateOf_DropsTimeOfDay(t *testing.T) {
	d := DateOf(time.Date(2024, time.May, 3, 23, 59, 0, 0, time.UTC))
	require.True(t, d.Equal(NewDate(2024, time.May, 3)))
	require.Equal(t, 1, d.DaysUntil(NewDate(2024, time.May, 4)))
}
