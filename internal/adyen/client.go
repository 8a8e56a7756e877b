package adyen

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"storefront-adyen/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	testHost = "https://test.adyen.com"
	liveHost = "https://live.adyen.com"

	onePagePath   = "/hpp/pay.shtml"
	multiPagePath = "/hpp/select.shtml"

	merchantSigParam = "merchantSig"
)

// Signer computes and checks merchantSig over redirect parameters. The
// signing scheme belongs to the deployment; a nil Signer sends unsigned
// requests and accepts unsigned results.
type Signer interface {
	Sign(params url.Values) (string, error)
	Verify(params url.Values) error
}

// Client is the payment-provider side of the integration: it creates
// payments, builds hosted payment page redirects and turns result redirects
// and notifications into domain values.
type Client interface {
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*Payment, error)
	Pay(ctx context.Context, p *Payment, forceMulti bool) (string, error)
	GetPaymentResult(ctx context.Context, params url.Values) (*PaymentResult, error)
	GetPaymentNotification(ctx context.Context, form url.Values) (*Notification, bool, error)
	GetUnhandledNotifications(ctx context.Context) ([]*Notification, error)

	MockPaymentResultURL(ctx context.Context, merchantReference, authResult string) (string, error)
}

type CreatePaymentRequest struct {
	OrderNumber   string
	Amount        int64
	CurrencyCode  string
	ShopperEmail  string
	ShopperLocale string
}

type Options struct {
	MerchantAccount string
	SkinCode        string
	Environment     string // "live" or test
	SessionValidity time.Duration
	ShipBeforeDays  int
	Signer          Signer
}

type client struct {
	opts          Options
	payments      PaymentRepository
	notifications NotificationRepository
	now           func() time.Time
}

func NewClient(opts Options, payments PaymentRepository, notifications NotificationRepository) Client {
	if opts.MerchantAccount == "" || opts.SkinCode == "" {
		logger.L().Warn("Adyen merchant account or skin code is empty")
	}
	if opts.SessionValidity <= 0 {
		opts.SessionValidity = time.Hour
	}
	if opts.ShipBeforeDays <= 0 {
		opts.ShipBeforeDays = 3
	}

	return &client{
		opts:          opts,
		payments:      payments,
		notifications: notifications,
		now:           time.Now,
	}
}

func (c *client) host() string {
	if c.opts.Environment == "live" {
		return liveHost
	}
	return testHost
}

// ----------------- Payments -----------------

func (c *client) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*Payment, error) {
	if req.OrderNumber == "" {
		return nil, fmt.Errorf("%w: order number is required", ErrInvalidPayment)
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidPayment)
	}
	if len(req.CurrencyCode) != 3 {
		return nil, fmt.Errorf("%w: currency %q", ErrInvalidPayment, req.CurrencyCode)
	}

	p := &Payment{
		MerchantReference: newMerchantReference(req.OrderNumber),
		OrderNumber:       req.OrderNumber,
		PaymentAmount:     req.Amount,
		CurrencyCode:      strings.ToUpper(req.CurrencyCode),
		ShopperEmail:      req.ShopperEmail,
		ShopperLocale:     req.ShopperLocale,
	}

	if err := c.payments.Create(ctx, p); err != nil {
		logger.FromCtx(ctx).Error("failed to store adyen payment",
			zap.String("order_number", req.OrderNumber),
			zap.Error(err),
		)
		return nil, err
	}

	logger.FromCtx(ctx).Info("adyen payment created",
		zap.String("merchant_reference", p.MerchantReference),
		zap.Int64("amount", p.PaymentAmount),
		zap.String("currency", p.CurrencyCode),
	)
	return p, nil
}

func newMerchantReference(orderNumber string) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return orderNumber + "-" + suffix
}

// Pay returns the hosted payment page URL the shopper is redirected to.
// forceMulti sends the shopper through method selection instead of the
// one-page flow.
func (c *client) Pay(ctx context.Context, p *Payment, forceMulti bool) (string, error) {
	if p.ResURL == "" {
		return "", ErrMissingResultURL
	}

	if err := c.payments.UpdateResURL(ctx, p.MerchantReference, p.ResURL); err != nil {
		return "", err
	}

	now := c.now().UTC()
	params := url.Values{}
	params.Set("merchantReference", p.MerchantReference)
	params.Set("paymentAmount", strconv.FormatInt(p.PaymentAmount, 10))
	params.Set("currencyCode", p.CurrencyCode)
	params.Set("shipBeforeDate", now.AddDate(0, 0, c.opts.ShipBeforeDays).Format("2006-01-02"))
	params.Set("skinCode", c.opts.SkinCode)
	params.Set("merchantAccount", c.opts.MerchantAccount)
	params.Set("sessionValidity", now.Add(c.opts.SessionValidity).Format(time.RFC3339))
	params.Set("resURL", p.ResURL)
	if p.ShopperLocale != "" {
		params.Set("shopperLocale", p.ShopperLocale)
	}
	if p.ShopperEmail != "" {
		params.Set("shopperEmail", p.ShopperEmail)
	}

	if err := c.sign(params); err != nil {
		return "", err
	}

	path := onePagePath
	if forceMulti {
		path = multiPagePath
	}

	logger.FromCtx(ctx).Info("redirecting to adyen",
		zap.String("merchant_reference", p.MerchantReference),
		zap.Bool("multi_page", forceMulti),
	)
	return c.host() + path + "?" + params.Encode(), nil
}

func (c *client) sign(params url.Values) error {
	if c.opts.Signer == nil {
		return nil
	}
	sig, err := c.opts.Signer.Sign(params)
	if err != nil {
		return fmt.Errorf("sign adyen params: %w", err)
	}
	params.Set(merchantSigParam, sig)
	return nil
}

// ----------------- Results -----------------

func (c *client) GetPaymentResult(ctx context.Context, params url.Values) (*PaymentResult, error) {
	if c.opts.Signer != nil {
		if err := c.opts.Signer.Verify(params); err != nil {
			logger.FromCtx(ctx).Warn("payment result signature rejected",
				zap.String("merchant_reference", params.Get("merchantReference")),
				zap.Error(err),
			)
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
	}

	res := &PaymentResult{
		AuthResult:         params.Get("authResult"),
		MerchantReference:  params.Get("merchantReference"),
		PaymentMethod:      params.Get("paymentMethod"),
		PSPReference:       params.Get("pspReference"),
		SkinCode:           params.Get("skinCode"),
		ShopperLocale:      params.Get("shopperLocale"),
		MerchantReturnData: params.Get("merchantReturnData"),
	}
	if res.AuthResult == "" || res.MerchantReference == "" {
		return nil, fmt.Errorf("%w: authResult and merchantReference are required", ErrInvalidResult)
	}
	return res, nil
}

// ----------------- Notifications -----------------

// GetPaymentNotification parses and stores a notification. The order number
// is taken from the stored payment; it stays empty for references this
// service never created.
func (c *client) GetPaymentNotification(ctx context.Context, form url.Values) (*Notification, bool, error) {
	n, err := ParseNotification(form)
	if err != nil {
		return nil, false, err
	}

	if n.MerchantReference != "" {
		p, err := c.payments.GetByMerchantReference(ctx, n.MerchantReference)
		switch {
		case err == nil:
			n.OrderNumber = p.OrderNumber
		case errors.Is(err, ErrPaymentNotFound):
			logger.FromCtx(ctx).Warn("notification for unknown merchant reference",
				zap.String("merchant_reference", n.MerchantReference),
				zap.String("event_code", n.EventCode),
			)
		default:
			return nil, false, err
		}
	}

	dup, err := c.notifications.Save(ctx, n)
	if err != nil {
		return nil, false, err
	}

	logger.FromCtx(ctx).Info("adyen notification received",
		zap.Int64("notification_id", n.ID),
		zap.String("event_code", n.EventCode),
		zap.String("psp_reference", n.PSPReference),
		zap.Bool("success", n.Success),
		zap.Bool("duplicate", dup),
	)
	return n, dup, nil
}

func (c *client) GetUnhandledNotifications(ctx context.Context) ([]*Notification, error) {
	return c.notifications.GetUnhandled(ctx)
}

// ----------------- Mocks -----------------

// MockPaymentResultURL builds the result redirect Adyen would send for the
// stored payment. For development only.
func (c *client) MockPaymentResultURL(ctx context.Context, merchantReference, authResult string) (string, error) {
	p, err := c.payments.GetByMerchantReference(ctx, merchantReference)
	if err != nil {
		return "", err
	}
	if p.ResURL == "" {
		return "", ErrMissingResultURL
	}

	params, err := c.mockParams(p, authResult)
	if err != nil {
		return "", err
	}

	sep := "?"
	if strings.Contains(p.ResURL, "?") {
		sep = "&"
	}
	return p.ResURL + sep + params.Encode(), nil
}

func (c *client) mockParams(p *Payment, authResult string) (url.Values, error) {
	params := url.Values{}
	params.Set("authResult", authResult)
	params.Set("merchantReference", p.MerchantReference)
	params.Set("skinCode", c.opts.SkinCode)
	if p.ShopperLocale != "" {
		params.Set("shopperLocale", p.ShopperLocale)
	}
	if authResult == AuthResultAuthorised || authResult == AuthResultPending {
		params.Set("paymentMethod", "visa")
		params.Set("pspReference", mockPSPReference())
	}

	if err := c.sign(params); err != nil {
		return nil, err
	}
	return params, nil
}

// mockPSPReference returns 16 digits, the shape of a real psp reference.
func mockPSPReference() string {
	id := uuid.New()
	var b strings.Builder
	for _, x := range id[:8] {
		fmt.Fprintf(&b, "%02d", int(x)%100)
	}
	return b.String()
}
