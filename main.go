// Package main library service API.
//
// @title           Library Service API
// @version         1.0
// @description     Library borrowing service: books, borrowings, fines and checkout payments.
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description  Use:  Bearer <JWT>
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"
	"golang.org/x/sync/errgroup"

	"github.com/Viktor-Beniukh/library-service-api/app/echoServer"
	adminctrl "github.com/Viktor-Beniukh/library-service-api/app/echoServer/controller/admin"
	authctrl "github.com/Viktor-Beniukh/library-service-api/app/echoServer/controller/auth"
	bookctrl "github.com/Viktor-Beniukh/library-service-api/app/echoServer/controller/book"
	borrowingctrl "github.com/Viktor-Beniukh/library-service-api/app/echoServer/controller/borrowing"
	paymentctrl "github.com/Viktor-Beniukh/library-service-api/app/echoServer/controller/payment"
	"github.com/Viktor-Beniukh/library-service-api/app/echoServer/validation"
	"github.com/Viktor-Beniukh/library-service-api/config"
	_ "github.com/Viktor-Beniukh/library-service-api/docs"
	authrepo "github.com/Viktor-Beniukh/library-service-api/repository/auth"
	bookrepo "github.com/Viktor-Beniukh/library-service-api/repository/book"
	borrowingrepo "github.com/Viktor-Beniukh/library-service-api/repository/borrowing"
	checkoutrepo "github.com/Viktor-Beniukh/library-service-api/repository/checkout"
	paymentrepo "github.com/Viktor-Beniukh/library-service-api/repository/payment"
	authsvc "github.com/Viktor-Beniukh/library-service-api/service/auth"
	booksvc "github.com/Viktor-Beniukh/library-service-api/service/book"
	borrowingsvc "github.com/Viktor-Beniukh/library-service-api/service/borrowing"
	"github.com/Viktor-Beniukh/library-service-api/service/inventory"
	"github.com/Viktor-Beniukh/library-service-api/service/notify"
	"github.com/Viktor-Beniukh/library-service-api/service/overdue"
	paymentsvc "github.com/Viktor-Beniukh/library-service-api/service/payment"
	"github.com/Viktor-Beniukh/library-service-api/util/database"
)

func main() {

	cfg := config.Load()

	// logger
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// DB: pgx pool
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		log.Error("db migrate failed", "err", err)
		os.Exit(1)
	}

	// notifications: always logged, optionally fanned out to redis and telegram
	sinks := []notify.Sink{notify.LogSink{Log: log}}
	if cfg.RedisURL != "" {
		rs, err := notify.NewRedisSink(cfg.RedisURL, cfg.RedisChannel)
		if err != nil {
			log.Error("redis notifications disabled", "err", err)
		} else {
			defer rs.Close()
			sinks = append(sinks, rs)
		}
	}
	if cfg.TelegramEnabled() {
		sinks = append(sinks, notify.NewTelegramSink(cfg.TelegramBotToken, cfg.TelegramChatID, ""))
	}
	dispatcher := notify.NewDispatcher(notify.Multi(sinks...), log, 128, 10*time.Second)
	defer dispatcher.Close()

	// repos
	ar := authrepo.New(db)
	bkr := bookrepo.New(db)
	brr := borrowingrepo.New(db)
	pr := paymentrepo.New(db)
	checkout := checkoutrepo.NewHTTP(cfg.CheckoutSecretKey, cfg.CheckoutAPIURL)
	if cfg.CheckoutSecretKey == "" {
		log.Warn("CHECKOUT_SECRET_KEY is empty; checkout sessions will be rejected by the provider")
	}

	// services
	policy := cfg.FeePolicy()
	as := authsvc.New(ar, cfg.JWTSecret)
	bs := booksvc.New(bkr)
	brs := borrowingsvc.New(db, brr, inventory.New(bkr), dispatcher, log, borrowingsvc.Config{
		RentalDays: cfg.RentalDays,
	})
	ps := paymentsvc.New(db, pr, brr, checkout, dispatcher, log, paymentsvc.Config{
		Policy:   policy,
		Currency: cfg.CheckoutCurrency,
		BaseURL:  cfg.CheckoutBaseURL,
	})
	scanner := overdue.New(brr, policy, dispatcher, log)

	// controllers
	v := validation.NewValidate()
	authC := &authctrl.Controller{Svc: as, V: v, Log: log}
	bookC := &bookctrl.Controller{Svc: bs, V: v, Log: log}
	borrowingC := &borrowingctrl.Controller{Svc: brs, V: v, Log: log}
	paymentC := &paymentctrl.Controller{Svc: ps, V: v, Log: log}
	adminC := &adminctrl.Controller{Scanner: scanner, Log: log}

	// echo
	e := echo.New()
	e.HideBanner = true
	e.JSONSerializer = echoServer.JSONSerializer{}
	echoServer.RegisterMiddlewares(e, log)
	e.Validator = validation.New()

	e.GET("/health", func(c echo.Context) error {
		if err := db.Pool.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{"status": "degraded", "message": "database unreachable"})
		}
		return c.JSON(http.StatusOK, map[string]any{
			"status":  "ok",
			"message": "Service is healthy and connected",
		})
	})

	e.GET("/swagger/*", echoSwagger.WrapHandler)

	echoServer.Register(e, echoServer.C{
		Auth:      authC,
		Book:      bookC,
		Borrowing: borrowingC,
		Payment:   paymentC,
		Admin:     adminC,

		JWTSecret: cfg.JWTSecret,
		Log:       log,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Port
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting server", "port", port, "env", cfg.Env)
		if err := e.Start(":" + port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		scanner.Run(gctx, cfg.OverdueScanInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped", "err", err)
		return
	}
	log.Info("server stopped")
}
