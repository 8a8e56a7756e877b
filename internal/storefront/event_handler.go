package storefront

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront-adyen/internal/logger"

	"go.uber.org/zap"
)

// EventHandler applies payment events to orders.
type EventHandler interface {
	HandlePaymentEvent(ctx context.Context, req PaymentEventRequest) error
}

type eventHandler struct {
	db *sql.DB
}

func NewEventHandler(db *sql.DB) EventHandler {
	return &eventHandler{db: db}
}

// HandlePaymentEvent records one payment event and the quantity of each
// line it covers, atomically.
func (h *eventHandler) HandlePaymentEvent(ctx context.Context, req PaymentEventRequest) error {
	if req.Order == nil || req.EventType == nil {
		return fmt.Errorf("%w: order and event type are required", ErrInvalidEventType)
	}
	if len(req.Lines) != len(req.Quantities) {
		return ErrLineQuantityMismatch
	}
	for i, l := range req.Lines {
		if req.Quantities[i] > l.Quantity {
			return fmt.Errorf("%w: line %d", ErrQuantityExceedsLine, l.ID)
		}
	}

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "storefront"),
		zap.String("order_number", req.Order.Number),
		zap.String("event_type", req.EventType.Name),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.String("reference", req.Reference),
	)

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// 1. Event
	var eventID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO payment_events (order_id, event_type_id, amount, reference, notification_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (notification_id) DO NOTHING
		RETURNING id
	`,
		req.Order.ID,
		req.EventType.ID,
		req.Amount,
		req.Reference,
		sql.NullInt64{Int64: req.NotificationID, Valid: req.NotificationID != 0},
	).Scan(&eventID)
	if errors.Is(err, sql.ErrNoRows) {
		log.Info("payment event already recorded", zap.Int64("notification_id", req.NotificationID))
		return nil
	}
	if err != nil {
		log.Error("failed to insert payment event", zap.Error(err))
		return err
	}

	// 2. Line quantities
	for i, l := range req.Lines {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO payment_event_quantities (event_id, line_id, quantity)
			VALUES ($1, $2, $3)
		`, eventID, l.ID, req.Quantities[i])
		if err != nil {
			log.Error("failed to insert payment event quantity",
				zap.Int64("line_id", l.ID),
				zap.Error(err),
			)
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	log.Info("payment event recorded", zap.Int64("event_id", eventID))
	return nil
}
