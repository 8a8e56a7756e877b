package storefront

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"storefront-adyen/internal/logger"

	"go.uber.org/zap"
)

type OrderRepository interface {
	GetByNumber(ctx context.Context, number string) (*Order, error)
}

type EventTypeRepository interface {
	GetOrCreate(ctx context.Context, name string) (*PaymentEventType, error)
}

type orderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) OrderRepository {
	return &orderRepository{db: db}
}

// GetByNumber loads the order and all of its lines.
func (r *orderRepository) GetByNumber(ctx context.Context, number string) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "GetByNumber"),
		zap.String("order_number", number),
	)

	if number == "" {
		return nil, ErrOrderNotFound
	}

	var o Order
	err := r.db.QueryRowContext(ctx, `
		SELECT id, number, currency, total_incl_tax, status, created_at
		FROM orders
		WHERE number = $1
	`, number).Scan(&o.ID, &o.Number, &o.Currency, &o.TotalInclTax, &o.Status, &o.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		log.Error("failed to load order", zap.Error(err))
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, title, quantity, line_price_incl_tax
		FROM order_lines
		WHERE order_id = $1
		ORDER BY id
	`, o.ID)
	if err != nil {
		log.Error("failed to load order lines", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.OrderID, &l.Title, &l.Quantity, &l.LinePriceInclTax); err != nil {
			log.Error("failed to scan order line", zap.Error(err))
			return nil, err
		}
		o.Lines = append(o.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &o, nil
}

type eventTypeRepository struct {
	db *sql.DB
}

func NewEventTypeRepository(db *sql.DB) EventTypeRepository {
	return &eventTypeRepository{db: db}
}

// GetOrCreate returns the event type with the given name, creating it on
// first use. Concurrent callers converge on the same row.
func (r *eventTypeRepository) GetOrCreate(ctx context.Context, name string) (*PaymentEventType, error) {
	name = strings.TrimSpace(name)
	code := Slugify(name)
	if code == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEventType, name)
	}

	const q = `
	INSERT INTO payment_event_types (name, code)
	VALUES ($1, $2)
	ON CONFLICT (name)
	DO UPDATE SET name = EXCLUDED.name
	RETURNING id, name, code;
	`

	var et PaymentEventType
	if err := r.db.QueryRowContext(ctx, q, name, code).Scan(&et.ID, &et.Name, &et.Code); err != nil {
		return nil, err
	}
	return &et, nil
}

var nonAlnumRegex = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify turns an event type name into its code, e.g.
// "Adyen - AUTHORISATION" → "adyen-authorisation".
func Slugify(input string) string {
	slug := strings.ToLower(strings.TrimSpace(input))
	slug = nonAlnumRegex.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}
