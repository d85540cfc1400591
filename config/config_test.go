package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Viktor-Beniukh/library-service-api/service/fee"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/library")
	t.Setenv("RENTAL_DAYS", "")
	t.Setenv("FINE_MULTIPLIER", "")
	t.Setenv("OVERDUE_SCAN_INTERVAL", "")

	cfg := Load()
	require.Equal(t, 1, cfg.RentalDays)
	require.True(t, cfg.FineMultiplier.Equal(decimal.NewFromInt(2)))
	require.Equal(t, 24*time.Hour, cfg.OverdueScanInterval)
	require.Equal(t, "usd", cfg.CheckoutCurrency)
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	require.Panics(t, func() { Load() })
}

func TestValidate(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/library")

	tests := []struct {
		name string
		env  map[string]string
	}{
		{"zero rental days", map[string]string{"RENTAL_DAYS": "0"}},
		{"garbage rental days", map[string]string{"RENTAL_DAYS": "two"}},
		{"multiplier of one", map[string]string{"FINE_MULTIPLIER": "1"}},
		{"garbage multiplier", map[string]string{"FINE_MULTIPLIER": "x2"}},
		{"bad interval", map[string]string{"OVERDUE_SCAN_INTERVAL": "daily"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			require.ErrorIs(t, Load().Validate(), fee.ErrConfiguration)
		})
	}
}

func TestTelegramEnabled(t *testing.T) {
	require.False(t, App{TelegramBotToken: "t"}.TelegramEnabled())
	require.True(t, App{TelegramBotToken: "t", TelegramChatID: "1"}.TelegramEnabled())
}
