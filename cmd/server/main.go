package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"estate-access-backend/internal/auth"
	"estate-access-backend/internal/cache"
	"estate-access-backend/internal/config"
	"estate-access-backend/internal/events"
	"estate-access-backend/internal/middleware"
	"estate-access-backend/internal/repository"
	"estate-access-backend/internal/routes"
	"estate-access-backend/internal/services/billing"
	"estate-access-backend/internal/services/directory"
	"estate-access-backend/internal/services/verification"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on system env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := config.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	db, err := config.InitDB(cfg)
	if err != nil {
		return err
	}
	if err := config.Migrate(db); err != nil {
		return err
	}

	payments := repository.NewPaymentRepository(db)
	tenants := repository.NewTenantRepository(db)

	lookup, err := repository.NewReceiptLookupFromGorm(db)
	if err != nil {
		return err
	}
	verifyOpts := []verification.Option{verification.WithTimeout(cfg.LookupTimeout)}
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedis(cache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.CacheTTL,
		}, logger)
		if err != nil {
			return err
		}
		defer rc.Close()
		if err := rc.Ping(ctx); err != nil {
			logger.Warn("redis unreachable, verification will fall through to the database", "error", err)
		}
		verifyOpts = append(verifyOpts, verification.WithCache(rc))
	} else {
		verifyOpts = append(verifyOpts, verification.WithCache(cache.NewMemory(cfg.CacheTTL)))
	}
	verifier := verification.NewService(lookup, logger, verifyOpts...)

	var publisher billing.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := events.NewProducer(ctx, cfg.KafkaBrokers, cfg.ReceiptTopic, logger)
		if err != nil {
			return err
		}
		defer producer.Close()
		publisher = producer
	}

	billingSvc := billing.NewService(payments, tenants, publisher, billing.Config{
		ReceiptPrefix: cfg.ReceiptPrefix,
		Currency:      cfg.Currency,
	}, logger)

	dir := directory.NewService(directory.Deps{
		Tenants:   tenants,
		Accounts:  repository.NewAccountRepository(db),
		Household: repository.NewHouseholdRepository(db),
		Payments:  payments,
		Billing:   billingSvc,
		Verifier:  verifier,
	}, logger)

	if cfg.AdminEmail != "" {
		if _, err := dir.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			return err
		}
	}

	if len(cfg.KafkaBrokers) > 0 {
		consumer, err := events.NewConsumer(ctx, cfg.KafkaBrokers, cfg.ConsumerGroup, logger)
		if err != nil {
			return err
		}
		defer consumer.Close()
		handler := events.NewPaymentHandler(billingSvc, logger)
		go func() {
			if err := consumer.Run(ctx, cfg.PaymentTopic, handler.Handle); err != nil {
				logger.Error("payment consumer stopped", "error", err)
			}
		}()
	} else {
		logger.Info("KAFKA_BROKERS not set, payment events disabled")
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	// CORS config
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(ctx, r, routes.Services{
		Verification:  verifier,
		Billing:       billingSvc,
		Directory:     dir,
		Issuer:        auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL),
		VerifyLimiter: middleware.NewIPRateLimiter(cfg.VerifyRatePerMinute, cfg.VerifyBurst),
		Logger:        logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
