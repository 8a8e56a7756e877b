package payment

import (
	"context"
	"net/url"
	"time"

	"storefront-adyen/internal/adyen"
	"storefront-adyen/internal/storefront"

	"github.com/stretchr/testify/mock"
)

type MockAdyenClient struct {
	mock.Mock
}

func (m *MockAdyenClient) CreatePayment(ctx context.Context, req adyen.CreatePaymentRequest) (*adyen.Payment, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*adyen.Payment), args.Error(1)
}

func (m *MockAdyenClient) Pay(ctx context.Context, p *adyen.Payment, forceMulti bool) (string, error) {
	args := m.Called(ctx, p, forceMulti)
	return args.String(0), args.Error(1)
}

func (m *MockAdyenClient) GetPaymentResult(ctx context.Context, params url.Values) (*adyen.PaymentResult, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*adyen.PaymentResult), args.Error(1)
}

func (m *MockAdyenClient) GetPaymentNotification(ctx context.Context, form url.Values) (*adyen.Notification, bool, error) {
	args := m.Called(ctx, form)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*adyen.Notification), args.Bool(1), args.Error(2)
}

func (m *MockAdyenClient) GetUnhandledNotifications(ctx context.Context) ([]*adyen.Notification, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*adyen.Notification), args.Error(1)
}

func (m *MockAdyenClient) MockPaymentResultURL(ctx context.Context, ref, authResult string) (string, error) {
	args := m.Called(ctx, ref, authResult)
	return args.String(0), args.Error(1)
}

type MockPaymentStore struct {
	mock.Mock
}

func (m *MockPaymentStore) GetByMerchantReference(ctx context.Context, ref string) (*adyen.Payment, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*adyen.Payment), args.Error(1)
}

type MockOrderStore struct {
	mock.Mock
}

func (m *MockOrderStore) GetByNumber(ctx context.Context, number string) (*storefront.Order, error) {
	args := m.Called(ctx, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storefront.Order), args.Error(1)
}

type MockEventTypeStore struct {
	mock.Mock
}

func (m *MockEventTypeStore) GetOrCreate(ctx context.Context, name string) (*storefront.PaymentEventType, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storefront.PaymentEventType), args.Error(1)
}

type MockEventHandler struct {
	mock.Mock
}

func (m *MockEventHandler) HandlePaymentEvent(ctx context.Context, req storefront.PaymentEventRequest) error {
	return m.Called(ctx, req).Error(0)
}

type MockNotificationStore struct {
	mock.Mock
}

func (m *MockNotificationStore) Claim(ctx context.Context, id int64, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, id, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockNotificationStore) Release(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockNotificationStore) MarkHandled(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}
