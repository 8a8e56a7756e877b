package storefront

import (
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID           int64
	Number       string
	Currency     string
	TotalInclTax decimal.Decimal
	Status       string
	CreatedAt    time.Time
	Lines        []Line
}

type Line struct {
	ID               int64
	OrderID          int64
	Title            string
	Quantity         int
	LinePriceInclTax decimal.Decimal
}

// Quantities returns the quantity of every line, in line order.
func (o *Order) Quantities() []int {
	out := make([]int, len(o.Lines))
	for i, l := range o.Lines {
		out[i] = l.Quantity
	}
	return out
}

type PaymentEventType struct {
	ID   int64
	Name string
	Code string
}

// PaymentSource describes where the money for an order comes from. It is
// handed to order placement, not stored by this service.
type PaymentSource struct {
	TypeCode        string          `json:"type_code"`
	TypeName        string          `json:"type_name"`
	Currency        string          `json:"currency"`
	AmountAllocated decimal.Decimal `json:"amount_allocated"`
	AmountDebited   decimal.Decimal `json:"amount_debited"`
	Reference       string          `json:"reference"`
}

type PaymentEvent struct {
	TypeName  string          `json:"type_name"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
}

// PaymentEventRequest is everything needed to record a payment event
// against an order. Notification carries the provider callback that caused
// the event; the default handler does not inspect it. A non-zero
// NotificationID makes the event idempotent: a second request for the same
// notification records nothing.
type PaymentEventRequest struct {
	Order          *Order
	EventType      *PaymentEventType
	Amount         decimal.Decimal
	Lines          []Line
	Quantities     []int
	Reference      string
	NotificationID int64
	Notification   any
}
