package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-adyen/internal/adyen"
	"storefront-adyen/internal/config"
	"storefront-adyen/internal/db"
	"storefront-adyen/internal/logger"
	"storefront-adyen/internal/payment"
	"storefront-adyen/internal/storefront"

	"go.uber.org/zap"
)

const defaultInterval = time.Minute

type notificationReconciler interface {
	HandleNotifications(ctx context.Context) (int, error)
	Stats() map[string]uint64
}

var initDBFunc = db.InitDB

func main() {
	once := flag.Bool("once", false, "run a single reconciliation pass and exit")
	flag.Parse()

	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database := initDBFunc(cfg)
	defer database.Close()

	r := newReconciler(cfg, database)

	if *once {
		if _, err := r.HandleNotifications(ctx); err != nil {
			logger.L().Error("reconciliation finished with errors", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	loop(ctx, r, cfg.ReconcileInterval)
}

func newReconciler(cfg *config.Config, database *sql.DB) *payment.Reconciler {
	notifications := adyen.NewNotificationRepository(database)
	client := adyen.NewClient(adyen.Options{
		MerchantAccount: cfg.AdyenMerchantAccount,
		SkinCode:        cfg.AdyenSkinCode,
		Environment:     cfg.AdyenEnvironment,
	}, adyen.NewPaymentRepository(database), notifications)

	return payment.NewReconciler(
		client,
		storefront.NewOrderRepository(database),
		storefront.NewEventTypeRepository(database),
		storefront.NewEventHandler(database),
		notifications,
		cfg.NotificationClaimTTL,
	)
}

// loop reconciles immediately and then every interval until ctx is done.
// Failed passes are logged and retried on the next tick.
func loop(ctx context.Context, r notificationReconciler, interval time.Duration) {
	if interval <= 0 {
		interval = defaultInterval
	}
	log := logger.L().With(zap.Duration("interval", interval))
	log.Info("reconciler started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for ctx.Err() == nil {
		if _, err := r.HandleNotifications(ctx); err != nil && ctx.Err() == nil {
			log.Error("reconciliation finished with errors", zap.Error(err))
		}

		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}

	log.Info("reconciler stopped", zap.Any("stats", r.Stats()))
}
