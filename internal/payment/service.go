package payment

import (
	"context"
	"net/url"
	"path"

	"storefront-adyen/internal/adyen"
	"storefront-adyen/internal/logger"
	"storefront-adyen/internal/storefront"

	"go.uber.org/zap"
)

// ResultPath is where Adyen sends the shopper back to, relative to the
// storefront origin.
const ResultPath = "/checkout/adyen/result"

// PaymentStore looks up stored Adyen payments.
type PaymentStore interface {
	GetByMerchantReference(ctx context.Context, merchantReference string) (*adyen.Payment, error)
}

type Service interface {
	CreatePayment(ctx context.Context, req adyen.CreatePaymentRequest) (*adyen.Payment, error)
	Pay(
		ctx context.Context,
		p *adyen.Payment,
		basketID string,
		buildAbsoluteURI func(path string) string,
		forceMulti bool,
	) (string, error)
	GetPaymentResult(ctx context.Context, params url.Values) (*adyen.PaymentResult, error)
	HandlePaymentResult(
		ctx context.Context,
		result *adyen.PaymentResult,
	) ([]storefront.PaymentSource, []storefront.PaymentEvent, error)
	MockPaymentResultURL(ctx context.Context, merchantReference, authResult string) (string, error)
}

type service struct {
	client   adyen.Client
	payments PaymentStore
}

func NewService(client adyen.Client, payments PaymentStore) Service {
	return &service{
		client:   client,
		payments: payments,
	}
}

func (s *service) CreatePayment(ctx context.Context, req adyen.CreatePaymentRequest) (*adyen.Payment, error) {
	return s.client.CreatePayment(ctx, req)
}

// Pay returns the hosted payment page URL for p. When p has no result URL
// one is derived from basketID through buildAbsoluteURI.
func (s *service) Pay(
	ctx context.Context,
	p *adyen.Payment,
	basketID string,
	buildAbsoluteURI func(path string) string,
	forceMulti bool,
) (string, error) {
	if p.ResURL == "" {
		if buildAbsoluteURI == nil {
			return "", ErrMissingResultURL
		}
		p.ResURL = buildAbsoluteURI(path.Join(ResultPath, basketID))
	}

	return s.client.Pay(ctx, p, forceMulti)
}

func (s *service) GetPaymentResult(ctx context.Context, params url.Values) (*adyen.PaymentResult, error) {
	return s.client.GetPaymentResult(ctx, params)
}

// HandlePaymentResult turns a successful or pending result into the single
// payment source and event the storefront records with the order.
func (s *service) HandlePaymentResult(
	ctx context.Context,
	result *adyen.PaymentResult,
) ([]storefront.PaymentSource, []storefront.PaymentEvent, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("merchant_reference", result.MerchantReference),
		zap.String("auth_result", result.AuthResult),
		zap.String("psp_reference", result.PSPReference),
	)

	if result.AuthResult != adyen.AuthResultAuthorised && result.AuthResult != adyen.AuthResultPending {
		log.Info("payment not authorised")
		return nil, nil, &FailedError{Result: result}
	}

	p, err := s.payments.GetByMerchantReference(ctx, result.MerchantReference)
	if err != nil {
		return nil, nil, err
	}

	amount := MinorToMajor(p.PaymentAmount)

	source := storefront.PaymentSource{
		TypeCode:        SourceTypeCode(result.PaymentMethod),
		TypeName:        MethodName(result.PaymentMethod),
		Currency:        p.CurrencyCode,
		AmountAllocated: amount,
		AmountDebited:   amount,
		Reference:       result.PSPReference,
	}

	// TODO: map the finer-grained Adyen payment statuses onto source
	// transactions instead of a single event.
	event := storefront.PaymentEvent{
		TypeName:  EventTypeName(result.AuthResult),
		Amount:    amount,
		Reference: result.PSPReference,
	}

	log.Info("payment result accepted",
		zap.String("amount", amount.StringFixed(2)),
		zap.String("currency", p.CurrencyCode),
		zap.String("method", result.PaymentMethod),
	)
	return []storefront.PaymentSource{source}, []storefront.PaymentEvent{event}, nil
}

func (s *service) MockPaymentResultURL(ctx context.Context, merchantReference, authResult string) (string, error) {
	return s.client.MockPaymentResultURL(ctx, merchantReference, authResult)
}
