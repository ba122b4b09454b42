package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/BruksfildServices01/marketplace-exchange/internal/config"
	dbpkg "github.com/BruksfildServices01/marketplace-exchange/internal/db"
	"github.com/BruksfildServices01/marketplace-exchange/internal/domain/process"
	"github.com/BruksfildServices01/marketplace-exchange/internal/events"
	"github.com/BruksfildServices01/marketplace-exchange/internal/infra/memory"
	infraRepo "github.com/BruksfildServices01/marketplace-exchange/internal/infra/repository"
	"github.com/BruksfildServices01/marketplace-exchange/internal/lock"
	"github.com/BruksfildServices01/marketplace-exchange/internal/logger"
	"github.com/BruksfildServices01/marketplace-exchange/internal/middleware"
	"github.com/BruksfildServices01/marketplace-exchange/internal/payment"
	"github.com/BruksfildServices01/marketplace-exchange/internal/payment/mercadopago"
	"github.com/BruksfildServices01/marketplace-exchange/internal/payment/omise"
	"github.com/BruksfildServices01/marketplace-exchange/internal/routes"
	"github.com/BruksfildServices01/marketplace-exchange/internal/timezone"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zl, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var closers []func(context.Context)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i](shutdownCtx)
		}
	}()

	infra := &routes.Infra{Logger: zl, Now: timezone.Now}

	// ------------------------------
	// storage
	// ------------------------------
	var publishers []events.Publisher
	switch cfg.Storage {
	case config.StoragePostgres:
		db, err := dbpkg.NewDB(cfg)
		if err != nil {
			return err
		}
		infra.DB = db
		closers = append(closers, func(context.Context) {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		})
		infra.Transactions = infraRepo.NewTransactionGormRepository(db)
		infra.Bookings = infraRepo.NewBookingGormRepository(db)
		infra.Catalog = infraRepo.NewCatalogGormRepository(db)
		publishers = append(publishers, events.NewAuditPublisher(db))
	default:
		store := memory.NewStore()
		if cfg.SeedFile != "" {
			if err := store.LoadSeed(cfg.SeedFile); err != nil {
				return err
			}
		}
		infra.Transactions, infra.Bookings, infra.Catalog = store, store, store
		zl.Warn("using memory storage, state is lost on restart")
	}

	// ------------------------------
	// locks
	// ------------------------------
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opt)
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		closers = append(closers, func(context.Context) { _ = client.Close() })
		infra.Locks = lock.NewRedisLocker(client, lock.RedisOptions{TTL: cfg.LockTTL}, zl)
	} else {
		infra.Locks = lock.NewKeyedMutex()
	}

	// ------------------------------
	// events
	// ------------------------------
	if cfg.RabbitURL != "" {
		pub, err := events.NewAMQPPublisher(cfg.RabbitURL, cfg.EventsExchange)
		if err != nil {
			return err
		}
		closers = append(closers, func(context.Context) { _ = pub.Close() })
		publishers = append(publishers, pub)
	}
	dispatcher := events.NewDispatcher(zl, cfg.EventBuffer, publishers...)
	closers = append(closers, func(ctx context.Context) {
		if err := dispatcher.Close(ctx); err != nil {
			zl.Warn("events not flushed", zap.Error(err))
		}
	})
	infra.Events = dispatcher

	// ------------------------------
	// payments
	// ------------------------------
	coordinator := payment.NewCoordinator(payment.Options{
		SettlementCurrency: cfg.SettlementCurrency,
		Timeout:            cfg.PaymentTimeout,
		Retry: payment.RetryPolicy{
			MaxRetries:      cfg.PaymentMaxRetries,
			InitialInterval: cfg.PaymentRetryInitial,
			MaxInterval:     cfg.PaymentRetryMax,
		},
		Breaker: payment.BreakerPolicy{
			ConsecutiveFailures: cfg.BreakerFailures,
			Timeout:             cfg.BreakerOpenTimeout,
		},
	}, zl)
	if cfg.OmiseSecretKey != "" {
		gw, err := omise.New(cfg.OmisePublicKey, cfg.OmiseSecretKey)
		if err != nil {
			return fmt.Errorf("omise: %w", err)
		}
		coordinator.Register(process.GatewayOmise, gw)
	}
	if cfg.MercadoPagoAccessToken != "" {
		gw, err := mercadopago.New(cfg.MercadoPagoAccessToken)
		if err != nil {
			return err
		}
		coordinator.Register(process.GatewayMercadoPago, gw)
	}
	infra.Payments = coordinator

	// ------------------------------
	// http
	// ------------------------------
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(zl))
	r.Use(middleware.CORSMiddleware(cfg.CORSOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	routes.RegisterRoutes(r, infra, cfg)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zl.Info("server running", zap.String("addr", cfg.Addr()), zap.String("storage", cfg.Storage))
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

	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
