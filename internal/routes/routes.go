package routes

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/congo-pay/walletledger/internal/auth"
	"github.com/congo-pay/walletledger/internal/config"
	"github.com/congo-pay/walletledger/internal/conversion"
	"github.com/congo-pay/walletledger/internal/fraud"
	"github.com/congo-pay/walletledger/internal/identity"
	"github.com/congo-pay/walletledger/internal/ledger"
	"github.com/congo-pay/walletledger/internal/middleware"
	"github.com/congo-pay/walletledger/internal/notification"
	"github.com/congo-pay/walletledger/internal/payments"
	"github.com/congo-pay/walletledger/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *zap.Logger
}

// Setup configures middlewares and all application routes. The returned
// function drains background notification workers and must be called on
// shutdown.
func Setup(app *fiber.App, d Deps) (func(), error) {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	ctx := context.Background()

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	var store ledger.Store
	var identityRepo identity.Repository
	if d.DB != nil {
		store = ledger.NewPostgresStore(d.DB)
		identityRepo = identity.NewPostgresRepository(d.DB)
	} else {
		store = ledger.NewInMemory()
		identityRepo = identity.NewMemoryRepository()
	}

	walletSvc := wallet.NewService(store, d.Logger.Named("wallet"))
	if err := walletSvc.InstallCurrencies(ctx, wallet.DefaultCurrencies); err != nil {
		return nil, fmt.Errorf("install currencies: %w", err)
	}
	identitySvc := identity.NewService(identityRepo, d.Logger.Named("identity"))
	if d.Cfg.ManagerEmail != "" && d.Cfg.ManagerPIN != "" {
		if _, err := identitySvc.EnsureManager(ctx, identity.Credentials{Email: d.Cfg.ManagerEmail, PIN: d.Cfg.ManagerPIN}); err != nil {
			return nil, fmt.Errorf("bootstrap manager: %w", err)
		}
	}
	authSvc := auth.NewService(d.Cfg, identityRepo)

	sinks, closeSinks := buildNotifiers(d)
	dispatcher := notification.NewDispatcher(sinks, d.Logger.Named("notify"), notification.DispatcherConfig{
		QueueSize: d.Cfg.NotifyQueueSize,
		Workers:   d.Cfg.NotifyWorkers,
	})
	dispatcher.Start()
	stop := func() {
		dispatcher.Stop()
		closeSinks()
	}

	monitor := fraud.NewMonitor(store, identitySvc, dispatcher, fraud.Config{
		AmountLimit:  d.Cfg.FraudAmountLimit,
		TxnCount:     d.Cfg.FraudTxnCount,
		Window:       d.Cfg.FraudWindow,
		AdminAddress: d.Cfg.AdminEmail,
	}, d.Logger.Named("fraud"))
	paymentSvc := payments.NewService(payments.Deps{
		Store:     store,
		Converter: conversion.NewTable(d.Cfg.FXRates, d.Cfg.FXStrict),
		Monitor:   monitor,
		Notifier:  dispatcher,
		Contacts:  identitySvc,
		Logger:    d.Logger.Named("payments"),
	}, payments.Config{LargeTransactionThreshold: d.Cfg.LargeTransactionThreshold})

	authHandler := auth.NewHandler(identitySvc, authSvc)
	walletHandler := wallet.NewHandler(walletSvc)
	paymentHandler := payments.NewHandler(paymentSvc)

	api := app.Group("/api/v1")

	// Public routes
	api.Get("/currencies", walletHandler.Currencies)
	RegisterIdentityRoutes(api, identitySvc, walletSvc, d.Logger)
	RegisterAuthRoutes(api, authHandler)

	// Protected routes
	protected := api.Group("", middleware.JWTAuth(authSvc))
	if d.Cache != nil {
		protected.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	protected.Post("/auth/logout", authHandler.Logout)
	RegisterWalletMeRoute(protected, walletSvc, identitySvc)
	RegisterWalletRoutes(protected, walletHandler)
	RegisterPaymentRoutes(protected, paymentHandler)

	manager := protected.Group("/manager", middleware.RequireManager())
	RegisterManagerRoutes(manager, paymentHandler, walletHandler)

	d.Logger.Info("routes configured",
		zap.Bool("postgres", d.DB != nil),
		zap.Bool("redis", d.Cache != nil),
		zap.String("threshold", d.Cfg.LargeTransactionThreshold.String()),
	)
	return stop, nil
}

// buildNotifiers fans every message out to the log plus whichever external
// sinks are configured.
func buildNotifiers(d Deps) (notification.Notifier, func()) {
	sinks := notification.Multi{notification.NewLoggerNotifier(d.Logger.Named("notification"))}
	closers := []func() error{}
	if d.Cache != nil && d.Cfg.NotifyRedisChannel != "" {
		sinks = append(sinks, notification.NewRedisNotifier(d.Cache, d.Cfg.NotifyRedisChannel))
	}
	if d.Cfg.SMTPAddr != "" {
		sinks = append(sinks, notification.NewSMTPNotifier(notification.SMTPConfig{
			Addr:     d.Cfg.SMTPAddr,
			From:     d.Cfg.SMTPFrom,
			Username: d.Cfg.SMTPUsername,
			Password: d.Cfg.SMTPPassword,
		}))
	}
	if len(d.Cfg.KafkaBrokers) > 0 {
		k := notification.NewKafkaNotifier(d.Cfg.KafkaBrokers, d.Cfg.KafkaTopic)
		sinks = append(sinks, k)
		closers = append(closers, k.Close)
	}
	return sinks, func() {
		for _, c := range closers {
			if err := c(); err != nil {
				d.Logger.Warn("close notifier", zap.Error(err))
			}
		}
	}
}
