package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-adyen/internal/adyen"
	"storefront-adyen/internal/logger"
	"storefront-adyen/internal/metrics"
	"storefront-adyen/internal/storefront"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Counter names reported by Reconciler.Stats.
const (
	StatRuns                 = "runs"
	StatApplied              = "applied"
	StatFailedAuthorisations = "failed_authorisations"
	StatWaitingForOrder      = "waiting_for_order"
	StatClaimedElsewhere     = "claimed_elsewhere"
	StatErrors               = "errors"
)

type OrderStore interface {
	GetByNumber(ctx context.Context, number string) (*storefront.Order, error)
}

type EventTypeStore interface {
	GetOrCreate(ctx context.Context, name string) (*storefront.PaymentEventType, error)
}

// NotificationSource lists the notifications still waiting to be applied.
// adyen.Client satisfies it.
type NotificationSource interface {
	GetUnhandledNotifications(ctx context.Context) ([]*adyen.Notification, error)
}

// NotificationStore is the persistence the reconciler needs. Claim must be
// atomic: at most one caller wins an unhandled, unclaimed notification.
type NotificationStore interface {
	Claim(ctx context.Context, id int64, ttl time.Duration) (bool, error)
	Release(ctx context.Context, id int64) error
	MarkHandled(ctx context.Context, id int64) error
}

type Reconciler struct {
	source        NotificationSource
	orders        OrderStore
	eventTypes    EventTypeStore
	events        storefront.EventHandler
	notifications NotificationStore
	claimTTL      time.Duration
	stats         *metrics.Registry
}

func NewReconciler(
	source NotificationSource,
	orders OrderStore,
	eventTypes EventTypeStore,
	events storefront.EventHandler,
	notifications NotificationStore,
	claimTTL time.Duration,
) *Reconciler {
	if claimTTL <= 0 {
		claimTTL = 5 * time.Minute
	}
	return &Reconciler{
		source:        source,
		orders:        orders,
		eventTypes:    eventTypes,
		events:        events,
		notifications: notifications,
		claimTTL:      claimTTL,
		stats:         metrics.NewRegistry(),
	}
}

// Stats returns the counters accumulated since the reconciler was built.
func (r *Reconciler) Stats() map[string]uint64 {
	return r.stats.Snapshot()
}

// HandleNotifications processes every unhandled notification in arrival
// order and returns how many were marked handled. A failing notification
// does not stop the run; all failures are returned together.
func (r *Reconciler) HandleNotifications(ctx context.Context) (int, error) {
	log := logger.FromCtx(ctx).With(zap.String("layer", "reconciler"))
	timer := metrics.StartTimer()
	r.stats.Counter(StatRuns).Inc()

	pending, err := r.source.GetUnhandledNotifications(ctx)
	if err != nil {
		log.Error("failed to load unhandled notifications", zap.Error(err))
		return 0, err
	}

	var (
		processed int
		errs      error
	)
	for _, n := range pending {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, err)
			break
		}

		handled, err := r.HandleNotification(ctx, n)
		if err != nil {
			r.stats.Counter(StatErrors).Inc()
			errs = multierr.Append(errs, fmt.Errorf("notification %d: %w", n.ID, err))
			continue
		}
		if handled != nil {
			processed++
		}
	}

	log.Info("reconciliation finished",
		zap.Int("unhandled", len(pending)),
		zap.Int("processed", processed),
		zap.Int("errors", len(multierr.Errors(errs))),
		zap.Duration("took", timer.Duration()),
	)
	return processed, errs
}

// HandleNotification applies one notification to its order. It returns the
// notification once it has been marked handled, or nil when it was left for
// a later run.
func (r *Reconciler) HandleNotification(ctx context.Context, n *adyen.Notification) (*adyen.Notification, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "reconciler"),
		zap.Int64("notification_id", n.ID),
		zap.String("event_code", n.EventCode),
		zap.String("psp_reference", n.PSPReference),
		zap.String("order_number", n.OrderNumber),
	)

	if n.Handled {
		return nil, nil
	}

	claimed, err := r.notifications.Claim(ctx, n.ID, r.claimTTL)
	if err != nil {
		log.Error("failed to claim notification", zap.Error(err))
		return nil, err
	}
	if !claimed {
		r.stats.Counter(StatClaimedElsewhere).Inc()
		log.Debug("notification already claimed")
		return nil, nil
	}

	handled, recorded, err := r.apply(ctx, log, n)
	// once the event is recorded the claim is left to expire instead
	if (err != nil || handled == nil) && !recorded {
		if relErr := r.notifications.Release(ctx, n.ID); relErr != nil {
			log.Error("failed to release notification", zap.Error(relErr))
			err = multierr.Append(err, relErr)
		}
	}
	if err != nil {
		return nil, err
	}
	return handled, nil
}

// apply reports recorded once the payment event has been committed, so the
// caller knows a later failure must not hand the notification back.
func (r *Reconciler) apply(ctx context.Context, log *zap.Logger, n *adyen.Notification) (*adyen.Notification, bool, error) {
	order, err := r.orders.GetByNumber(ctx, n.OrderNumber)
	if errors.Is(err, storefront.ErrOrderNotFound) {
		if n.IsFailedAuthorisation() {
			// the order is never created for a refused payment
			log.Info("authorisation failed, no order to update", zap.String("reason", n.Reason))
			if err := r.markHandled(ctx, n); err != nil {
				log.Error("failed to mark notification handled", zap.Error(err))
				return nil, false, err
			}
			r.stats.Counter(StatFailedAuthorisations).Inc()
			return n, false, nil
		}

		log.Error("couldn't find order for notification")
		r.stats.Counter(StatWaitingForOrder).Inc()
		return nil, false, nil
	}
	if err != nil {
		log.Error("failed to load order", zap.Error(err))
		return nil, false, err
	}

	eventType, err := r.eventTypes.GetOrCreate(ctx, EventTypeName(n.EventCode))
	if err != nil {
		log.Error("failed to resolve payment event type", zap.Error(err))
		return nil, false, err
	}

	err = r.events.HandlePaymentEvent(ctx, storefront.PaymentEventRequest{
		Order:          order,
		EventType:      eventType,
		Amount:         MinorToMajor(n.Value),
		Lines:          order.Lines,
		Quantities:     order.Quantities(),
		Reference:      n.PSPReference,
		NotificationID: n.ID,
		Notification:   n,
	})
	if err != nil {
		log.Error("failed to apply payment event", zap.Error(err))
		return nil, false, err
	}

	if err := r.markHandled(ctx, n); err != nil {
		log.Error("payment event recorded but notification not marked handled", zap.Error(err))
		return nil, true, err
	}

	r.stats.Counter(StatApplied).Inc()
	log.Info("notification applied", zap.Int64("order_id", order.ID))
	return n, true, nil
}

func (r *Reconciler) markHandled(ctx context.Context, n *adyen.Notification) error {
	if err := r.notifications.MarkHandled(ctx, n.ID); err != nil {
		return err
	}
	n.Handled = true
	return nil
}
