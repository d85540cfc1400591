package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Load reads the environment. Unparsable numbers are logged and left at
// their zero value so that Validate reports them.
func Load() App {
	cfg := App{
		Port:        getenv("APP_PORT", "8080"),
		DatabaseURL: must("DATABASE_URL"),
		JWTSecret:   getenv("JWT_SECRET", "local_dev_secret"),
		Env:         getenv("APP_ENV", "dev"),

		RentalDays:     getint("RENTAL_DAYS", 1),
		FineMultiplier: getdecimal("FINE_MULTIPLIER", decimal.NewFromInt(2)),

		CheckoutSecretKey: os.Getenv("CHECKOUT_SECRET_KEY"),
		CheckoutAPIURL:    os.Getenv("CHECKOUT_API_URL"),
		CheckoutBaseURL:   getenv("CHECKOUT_BASE_URL", "http://127.0.0.1:8080"),
		CheckoutCurrency:  getenv("CHECKOUT_CURRENCY", "usd"),

		RedisURL:         os.Getenv("REDIS_URL"),
		RedisChannel:     getenv("REDIS_CHANNEL", "library:notifications"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   os.Getenv("TELEGRAM_CHAT_ID"),

		OverdueScanInterval: getduration("OVERDUE_SCAN_INTERVAL", 24*time.Hour),
	}
	return cfg
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func must(k string) string {
	v := os.Getenv(k)
	if v == "" {
		slog.Error("required env missing", "key", k)
		panic("missing env " + k)
	}
	return v
}

func getint(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Error("invalid integer env", "key", k, "value", v)
		return 0
	}
	return n
}

func getdecimal(k string, def decimal.Decimal) decimal.Decimal {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		slog.Error("invalid decimal env", "key", k, "value", v)
		return decimal.Zero
	}
	return d
}

func getduration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Error("invalid duration env", "key", k, "value", v)
		return 0
	}
	return d
}
