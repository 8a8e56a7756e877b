package adyen

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

type PaymentRepository interface {
	Create(ctx context.Context, p *Payment) error
	GetByMerchantReference(ctx context.Context, merchantReference string) (*Payment, error)
	UpdateResURL(ctx context.Context, merchantReference, resURL string) error
}

type NotificationRepository interface {
	// Save stores n unless the same (psp_reference, event_code, success)
	// triple was already received, in which case duplicate is true.
	Save(ctx context.Context, n *Notification) (duplicate bool, err error)
	GetUnhandled(ctx context.Context) ([]*Notification, error)

	// Claim takes a lease on an unhandled notification. It returns false when
	// the notification is handled or another run holds an unexpired lease.
	Claim(ctx context.Context, id int64, ttl time.Duration) (bool, error)
	Release(ctx context.Context, id int64) error
	MarkHandled(ctx context.Context, id int64) error
}

type paymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, p *Payment) error {
	const q = `
	INSERT INTO adyen_payments (
		merchant_reference,
		order_number,
		payment_amount,
		currency_code,
		res_url,
		shopper_email,
		shopper_locale
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING id, created_at;
	`

	err := r.db.QueryRowContext(ctx, q,
		p.MerchantReference,
		p.OrderNumber,
		p.PaymentAmount,
		p.CurrencyCode,
		p.ResURL,
		p.ShopperEmail,
		p.ShopperLocale,
	).Scan(&p.ID, &p.CreatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation {
		return ErrDuplicateReference
	}
	return err
}

func (r *paymentRepository) GetByMerchantReference(ctx context.Context, merchantReference string) (*Payment, error) {
	const q = `
	SELECT id, merchant_reference, order_number, payment_amount, currency_code,
		res_url, shopper_email, shopper_locale, created_at
	FROM adyen_payments
	WHERE merchant_reference = $1;
	`

	var p Payment
	err := r.db.QueryRowContext(ctx, q, merchantReference).Scan(
		&p.ID, &p.MerchantReference, &p.OrderNumber, &p.PaymentAmount, &p.CurrencyCode,
		&p.ResURL, &p.ShopperEmail, &p.ShopperLocale, &p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrPaymentNotFound, merchantReference)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepository) UpdateResURL(ctx context.Context, merchantReference, resURL string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE adyen_payments SET res_url = $1 WHERE merchant_reference = $2`,
		resURL, merchantReference,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrPaymentNotFound, merchantReference)
	}
	return nil
}

type notificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

const notificationColumns = `
	id, live, event_code, psp_reference, original_reference, merchant_reference,
	merchant_account_code, event_date, success, payment_method, operations,
	reason, value, currency, order_number, handled, created_at`

func (r *notificationRepository) Save(ctx context.Context, n *Notification) (bool, error) {
	const q = `
	INSERT INTO adyen_notifications (
		live,
		event_code,
		psp_reference,
		original_reference,
		merchant_reference,
		merchant_account_code,
		event_date,
		success,
		payment_method,
		operations,
		reason,
		value,
		currency,
		order_number
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	ON CONFLICT (psp_reference, event_code, success)
	DO NOTHING
	RETURNING id, created_at;
	`

	var eventDate sql.NullTime
	if n.EventDate != nil {
		eventDate = sql.NullTime{Time: *n.EventDate, Valid: true}
	}

	err := r.db.QueryRowContext(ctx, q,
		n.Live,
		n.EventCode,
		n.PSPReference,
		n.OriginalReference,
		n.MerchantReference,
		n.MerchantAccountCode,
		eventDate,
		n.Success,
		n.PaymentMethod,
		n.Operations,
		n.Reason,
		n.Value,
		n.Currency,
		n.OrderNumber,
	).Scan(&n.ID, &n.CreatedAt)

	if err != nil {
		// Conflict → nothing returned, already stored
		if errors.Is(err, sql.ErrNoRows) {
			return true, nil
		}
		return false, err
	}
	return false, nil
}

func (r *notificationRepository) GetUnhandled(ctx context.Context) ([]*Notification, error) {
	q := `SELECT ` + notificationColumns + `
	FROM adyen_notifications
	WHERE handled = false
		AND (claimed_until IS NULL OR claimed_until < now())
	ORDER BY created_at, id;
	`

	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		var (
			n         Notification
			eventDate sql.NullTime
		)
		if err := rows.Scan(
			&n.ID, &n.Live, &n.EventCode, &n.PSPReference, &n.OriginalReference, &n.MerchantReference,
			&n.MerchantAccountCode, &eventDate, &n.Success, &n.PaymentMethod, &n.Operations,
			&n.Reason, &n.Value, &n.Currency, &n.OrderNumber, &n.Handled, &n.CreatedAt,
		); err != nil {
			return nil, err
		}
		if eventDate.Valid {
			t := eventDate.Time
			n.EventDate = &t
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

// minClaimTTL keeps a lease from expiring as it is taken.
const minClaimTTL = time.Second

func (r *notificationRepository) Claim(ctx context.Context, id int64, ttl time.Duration) (bool, error) {
	if ttl < minClaimTTL {
		ttl = minClaimTTL
	}

	const q = `
	UPDATE adyen_notifications
	SET claimed_until = now() + $2 * interval '1 millisecond'
	WHERE id = $1
		AND handled = false
		AND (claimed_until IS NULL OR claimed_until < now());
	`

	res, err := r.db.ExecContext(ctx, q, id, ttl.Milliseconds())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *notificationRepository) Release(ctx context.Context, id int64) error {
	const q = `
	UPDATE adyen_notifications
	SET claimed_until = NULL
	WHERE id = $1 AND handled = false;
	`

	_, err := r.db.ExecContext(ctx, q, id)
	return err
}

func (r *notificationRepository) MarkHandled(ctx context.Context, id int64) error {
	const q = `
	UPDATE adyen_notifications
	SET handled = true, claimed_until = NULL, handled_at = now()
	WHERE id = $1;
	`

	_, err := r.db.ExecContext(ctx, q, id)
	return err
}
