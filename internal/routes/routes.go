package routes

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BruksfildServices01/marketplace-exchange/internal/config"
	domain "github.com/BruksfildServices01/marketplace-exchange/internal/domain/transaction"
	"github.com/BruksfildServices01/marketplace-exchange/internal/events"
	"github.com/BruksfildServices01/marketplace-exchange/internal/handlers"
	"github.com/BruksfildServices01/marketplace-exchange/internal/lock"
	"github.com/BruksfildServices01/marketplace-exchange/internal/middleware"
	"github.com/BruksfildServices01/marketplace-exchange/internal/usecase/booking"
	ucTransaction "github.com/BruksfildServices01/marketplace-exchange/internal/usecase/transaction"
)

// Infra is everything main builds once and the routes share.
type Infra struct {
	// DB is nil with memory storage.
	DB *gorm.DB

	Transactions domain.TransactionRepository
	Bookings     domain.BookingRepository
	Catalog      domain.Catalog
	Payments     ucTransaction.Payments
	Locks        lock.Locker
	Events       events.Sink
	Logger       *zap.Logger
	Now          func() time.Time
}

func RegisterRoutes(r *gin.Engine, infra *Infra, cfg *config.Config) {

	// ======================================================
	// INFRA (SINGLETONS)
	// ======================================================
	resolver := booking.NewResolver(infra.Bookings, infra.Catalog, cfg.PublicBaseURL)

	deps := &ucTransaction.Deps{
		Transactions: infra.Transactions,
		Bookings:     infra.Bookings,
		Catalog:      infra.Catalog,
		Resolver:     resolver,
		Payments:     infra.Payments,
		Locks:        infra.Locks,
		Events:       infra.Events,
		Logger:       infra.Logger,
		Now:          infra.Now,
	}

	// ======================================================
	// USE CASES
	// ======================================================
	createUC := ucTransaction.NewCreateTransaction(deps)
	getUC := ucTransaction.NewGetTransaction(deps)
	decideUC := ucTransaction.NewDecideTransaction(deps)
	payUC := ucTransaction.NewPayTransaction(deps)
	retryUC := ucTransaction.NewRetryCapture(deps)
	messageUC := ucTransaction.NewAppendMessage(deps)
	seenUC := ucTransaction.NewMarkSeen(deps)

	// ======================================================
	// HANDLERS
	// ======================================================
	transactionHandler := handlers.NewTransactionHandler(
		createUC,
		getUC,
		decideUC,
		payUC,
		retryUC,
		messageUC,
		seenUC,
	)
	providerHandler := handlers.NewProviderHandler(resolver)
	availabilityHandler := handlers.NewAvailabilityHandler(resolver)
	meHandler := handlers.NewMeHandler(infra.Catalog)

	// ======================================================
	// API (JSON)
	// ======================================================
	api := r.Group("/api")
	{
		// ------------------------------
		// PUBLIC
		// ------------------------------
		providers := api.Group("/providers/:id")
		{
			providers.GET("/availability", providerHandler.Availability)
			providers.GET("/calendar", providerHandler.Calendar)
			providers.GET("/weekly-mask", providerHandler.WeeklyMask)
			providers.GET("/disabled-windows", providerHandler.DisabledWindows)
		}

		// ------------------------------
		// AUTHENTICATED
		// ------------------------------
		secured := api.Group("/")
		secured.Use(middleware.AuthMiddleware(cfg))
		{
			secured.GET("/me", meHandler.GetMe)
			secured.GET("/me/availability", availabilityHandler.Get)
			secured.PUT("/me/availability", availabilityHandler.Update)

			secured.POST("/transactions", transactionHandler.Create)
			secured.GET("/transactions/:id", transactionHandler.Get)
			secured.POST("/transactions/:id/decision", transactionHandler.Decide)
			secured.POST("/transactions/:id/pay", transactionHandler.Pay)
			secured.POST("/transactions/:id/capture/retry", transactionHandler.RetryCapture)
			secured.POST("/transactions/:id/messages", transactionHandler.AppendMessage)
			secured.POST("/transactions/:id/seen", transactionHandler.MarkSeen)

			if infra.DB != nil {
				auditLogsHandler := handlers.NewAuditLogsHandler(infra.DB, getUC)
				secured.GET("/transactions/:id/events", auditLogsHandler.List)
			}
		}
	}
}
