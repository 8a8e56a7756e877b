package adyen

import "time"

// Auth results reported on the result redirect.
const (
	AuthResultAuthorised = "AUTHORISED"
	AuthResultPending    = "PENDING"
	AuthResultRefused    = "REFUSED"
	AuthResultCancelled  = "CANCELLED"
	AuthResultError      = "ERROR"
)

// Notification event codes this service cares about. Others are stored and
// reconciled the same way.
const (
	EventAuthorisation = "AUTHORISATION"
	EventCancellation  = "CANCELLATION"
	EventRefund        = "REFUND"
	EventCapture       = "CAPTURE"
)

// Payment is a payment attempt handed to the hosted payment page.
// Amounts are minor currency units.
type Payment struct {
	ID                int64
	MerchantReference string
	OrderNumber       string
	PaymentAmount     int64
	CurrencyCode      string
	ResURL            string
	ShopperEmail      string
	ShopperLocale     string
	CreatedAt         time.Time
}

// PaymentResult is the outcome carried by the shopper's redirect back from
// the hosted payment page.
type PaymentResult struct {
	AuthResult         string
	MerchantReference  string
	PaymentMethod      string
	PSPReference       string
	SkinCode           string
	ShopperLocale      string
	MerchantReturnData string
}

// Notification is an asynchronous server-to-server callback. Handled flips
// to true once the storefront has recorded it.
type Notification struct {
	ID                  int64
	Live                bool
	EventCode           string
	PSPReference        string
	OriginalReference   string
	MerchantReference   string
	MerchantAccountCode string
	EventDate           *time.Time
	Success             bool
	PaymentMethod       string
	Operations          string
	Reason              string
	Value               int64
	Currency            string
	OrderNumber         string
	Handled             bool
	CreatedAt           time.Time
}

// IsFailedAuthorisation reports whether n is a refused AUTHORISATION.
func (n *Notification) IsFailedAuthorisation() bool {
	return n.EventCode == EventAuthorisation && !n.Success
}
