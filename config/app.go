package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Viktor-Beniukh/library-service-api/service/fee"
)

type App struct {
	Port        string `env:"APP_PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	JWTSecret   string `env:"JWT_SECRET" default:"local_dev_secret"`
	Env         string `env:"APP_ENV" default:"dev"`

	RentalDays     int             `env:"RENTAL_DAYS" default:"1"`
	FineMultiplier decimal.Decimal `env:"FINE_MULTIPLIER" default:"2"`

	CheckoutSecretKey string `env:"CHECKOUT_SECRET_KEY"`
	CheckoutAPIURL    string `env:"CHECKOUT_API_URL"`
	CheckoutBaseURL   string `env:"CHECKOUT_BASE_URL" default:"http://127.0.0.1:8080"`
	CheckoutCurrency  string `env:"CHECKOUT_CURRENCY" default:"usd"`

	RedisURL         string `env:"REDIS_URL"`
	RedisChannel     string `env:"REDIS_CHANNEL" default:"library:notifications"`
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   string `env:"TELEGRAM_CHAT_ID"`

	OverdueScanInterval time.Duration `env:"OVERDUE_SCAN_INTERVAL" default:"24h"`
}

// Validate rejects settings the fee policy cannot work with. main refuses
// to start on error.
func (a App) Validate() error {
	if a.RentalDays <= 0 {
		return fmt.Errorf("%w: RENTAL_DAYS must be positive, got %d", fee.ErrConfiguration, a.RentalDays)
	}
	if _, err := fee.NewPolicy(a.FineMultiplier); err != nil {
		return err
	}
	if a.OverdueScanInterval <= 0 {
		return fmt.Errorf("%w: OVERDUE_SCAN_INTERVAL must be positive", fee.ErrConfiguration)
	}
	return nil
}

func (a App) FeePolicy() fee.Policy { return fee.Policy{FineMultiplier: a.FineMultiplier} }

func (a App) TelegramEnabled() bool { return a.TelegramBotToken != "" && a.TelegramChatID != "" }
