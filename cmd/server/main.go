package main

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"storefront-adyen/internal/adyen"
	"storefront-adyen/internal/config"
	"storefront-adyen/internal/db"
	"storefront-adyen/internal/logger"
	"storefront-adyen/internal/middleware"
	"storefront-adyen/internal/payment"
	"storefront-adyen/internal/payment/webhook"
	"storefront-adyen/internal/storefront"
	"storefront-adyen/internal/utils"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	notificationPath = "/adyen/notifications"
	payPath          = "/checkout/adyen/pay"
)

var (
	initDBFunc      = db.InitDB
	startServerFunc = func(addr string, handler http.Handler) error {
		srv := &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		return srv.ListenAndServe()
	}
)

func main() {
	if err := run(); err != nil {
		logger.L().Fatal("server stopped", zap.Error(err))
	}
}

func run() error {
	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	database := initDBFunc(cfg)
	defer database.Close()

	router := newServer(cfg, database)

	addr := ":" + cfg.AppPort
	logger.L().Info("server running",
		zap.String("addr", addr),
		zap.String("adyen_environment", cfg.AdyenEnvironment),
	)
	return startServerFunc(addr, router)
}

// newServer wires repositories, the Adyen client and the reconciler into
// the HTTP handler.
func newServer(cfg *config.Config, database *sql.DB) http.Handler {
	payments := adyen.NewPaymentRepository(database)
	notifications := adyen.NewNotificationRepository(database)

	// merchantSig signing is configured per deployment
	var signer adyen.Signer
	warnUnsigned(cfg, signer)

	client := adyen.NewClient(adyen.Options{
		MerchantAccount: cfg.AdyenMerchantAccount,
		SkinCode:        cfg.AdyenSkinCode,
		Environment:     cfg.AdyenEnvironment,
		SessionValidity: cfg.SessionValidity,
		ShipBeforeDays:  cfg.ShipBeforeDays,
		Signer:          signer,
	}, payments, notifications)

	reconciler := payment.NewReconciler(
		client,
		storefront.NewOrderRepository(database),
		storefront.NewEventTypeRepository(database),
		storefront.NewEventHandler(database),
		notifications,
		cfg.NotificationClaimTTL,
	)

	h := &webhook.Handler{
		Payments:   payment.NewService(client, payments),
		Receiver:   client,
		Reconciler: reconciler,
		BaseURL:    cfg.PublicBaseURL,
		AllowMock:  !cfg.IsProduction(),
	}

	limiter := middleware.NewRateLimiter(context.Background(), notificationPath, payPath)
	return setupRouter(h, cfg, limiter.Middleware)
}

// warnUnsigned reports whether production is about to accept result
// redirects without merchantSig verification.
func warnUnsigned(cfg *config.Config, signer adyen.Signer) bool {
	if signer != nil || !cfg.IsProduction() {
		return false
	}
	logger.L().Warn("no merchantSig signer configured, payment results are not verified",
		zap.String("adyen_environment", cfg.AdyenEnvironment),
	)
	return true
}

func setupRouter(h *webhook.Handler, cfg *config.Config, rateLimit mux.MiddlewareFunc) *mux.Router {
	r := mux.NewRouter()
	r.Use(logger.RequestIDMiddleware, logger.LoggingMiddleware)
	if rateLimit != nil {
		r.Use(rateLimit)
	}

	r.HandleFunc("/health", webhook.Health).Methods(http.MethodGet)

	r.Handle(notificationPath,
		middleware.BasicAuth(cfg.NotificationUser, cfg.NotificationPassHash)(http.HandlerFunc(h.Notification)),
	).Methods(http.MethodPost)

	checkout := r.PathPrefix("/checkout/adyen").Subrouter()
	checkout.HandleFunc("/pay", h.Pay).Methods(http.MethodPost)
	checkout.HandleFunc("/result/{basketID}", h.PaymentResult).Methods(http.MethodGet)
	if h.AllowMock {
		checkout.HandleFunc("/mock/{merchantReference}", h.MockResult).Methods(http.MethodGet)
	}

	admin := r.PathPrefix("/admin/adyen").Subrouter()
	admin.Use(middleware.RequireRole(cfg.JWTSecret, utils.RoleAdmin))
	admin.HandleFunc("/notifications/reconcile", h.Reconcile).Methods(http.MethodPost)

	return r
}
