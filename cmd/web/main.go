package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/CNRP/ecommerce-storefront-sub001/internal/config"
	apphttp "github.com/CNRP/ecommerce-storefront-sub001/internal/http"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/http/handlers"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/http/handlers/admin"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/http/middleware"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/mailer"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/cart"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/checkout"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/customers"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/notify"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/orders"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/payments"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/users"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/platform/idempotency"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/platform/outbox"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/platform/tracing"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/storage"
	"github.com/CNRP/ecommerce-storefront-sub001/migrations"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(log)
	tracing.Init()
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.AutoMigrateUp {
		if err := migrateUp(cfg.DBDSN); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Info("migrations applied")
	}

	db, err := gorm.Open(mysql.Open(cfg.DBDSN), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpen)
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdle)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	defer sqlDB.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer rdb.Close()

	var producer outbox.Producer = outbox.LogProducer{Log: log}
	if len(cfg.KafkaBrokers) > 0 {
		w := outbox.NewKafkaWriter(cfg.KafkaBrokers)
		defer w.Close()
		producer = w
	} else {
		log.Warn("KAFKA_BROKERS not set; outbox events are logged only")
	}

	archive, err := storage.FromConfig(ctx, cfg.Storage())
	if err != nil {
		return fmt.Errorf("webhook archive: %w", err)
	}
	log.Info("webhook archive", "driver", archive.Driver, "target", fmt.Sprint(archive.Storage))

	taxRate, err := cfg.Tax()
	if err != nil {
		return err
	}

	// modules
	provider := payments.NewStripeProvider(cfg.StripeSecretKey, cfg.StripeTimeout)
	paymentStore := payments.NewGormStore(db)
	reconciler := payments.NewReconciler(paymentStore, log)
	webhookSvc := payments.NewWebhookService(
		payments.WebhookConfig{Provider: payments.ProviderStripe, Secret: cfg.StripeWebhookSecret},
		payments.NewVerifier(cfg.WebhookTolerance),
		reconciler,
		payments.NewGormEventLog(db),
		archive.Storage,
		log,
	)
	completer := payments.NewCompleter(provider, reconciler, cfg.CompleteTimeout, log)

	userSvc := users.NewService(db)
	customerRepo := customers.NewRepo(db)
	orderRepo := orders.NewRepo(db)

	var mail mailer.Service = mailer.Log{Logger: log}
	if cfg.SMTPHost != "" {
		mail = mailer.NewSMTPMailer(cfg.SMTP())
	} else {
		log.Warn("SMTP_HOST not set; customer email is logged only")
	}
	notifier := notify.NewService(notify.Config{
		From:     cfg.MailFrom,
		FromName: cfg.MailFromName,
		BaseURL:  cfg.BaseURL,
	}, mail, orderRepo, customerRepo, log)
	reconciler.SetNotifier(notifier)

	orchestrator := checkout.New(checkout.Deps{
		Catalog:   cart.NewCatalog(db),
		Customers: customerRepo,
		Accounts:  userSvc,
		Orders:    checkout.NewGormOrderWriter(db),
		Provider:  provider,
		Logger:    log,
		Pricing: checkout.Pricing{
			Currency: cfg.Currency,
			Shipping: cfg.ShippingRates(),
			TaxRate:  taxRate,
		},
		ProviderTimeout: cfg.StripeTimeout,
	})

	sessions := middleware.NewSessions(middleware.SessionCfg{
		DB:         db,
		CookieName: cfg.SessionCookie,
		Secure:     cfg.IsProduction(),
		TTL:        cfg.SessionTTL,
	})

	router := apphttp.NewRouter(apphttp.Deps{
		Logger:   log,
		Sessions: sessions,
		Limiter:  middleware.NewIPRateLimiter(cfg.CheckoutRPS, cfg.CheckoutBurst),
		Checkout: handlers.NewCheckoutHandler(
			orchestrator, completer, orderRepo,
			idempotency.NewStore(rdb, "checkout", cfg.IdempotencyTTL),
			sessions, cfg.StripePublishableKey, log,
		),
		Retry:    handlers.NewRetryHandler(orchestrator, orderRepo, customerRepo, cfg.StripePublishableKey, log),
		Webhooks: handlers.NewWebhookHandler(log, webhookSvc),
		Orders:   handlers.NewOrdersHandler(orderRepo, paymentStore, customerRepo, log),
		Auth:     handlers.NewAuthHandler(userSvc, sessions),
		Health: handlers.NewHealthHandler(map[string]handlers.HealthCheck{
			"db":    sqlDB.PingContext,
			"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		}),
		AdminOrders: admin.NewOrdersHandler(orderRepo, orders.NewService(db, log), paymentStore),
	})

	hostname, _ := os.Hostname()
	relay := outbox.NewRelay(
		outbox.NewGormStore(db, cfg.OutboxMaxRetries),
		outbox.NewDispatcher(log, producer, cfg.KafkaTopic),
		outbox.RelayConfig{ID: "web-" + hostname, Interval: cfg.OutboxInterval},
		log)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", "addr", cfg.HTTPAddr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return relay.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	notifier.Wait()
	return err
}

func migrateUp(dsn string) error {
	db, err := migrations.Open(dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return migrations.Up(db)
}
