package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront-adyen/internal/adyen"
	"storefront-adyen/internal/storefront"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testClaimTTL = time.Minute

type reconcilerDeps struct {
	client        *MockAdyenClient
	orders        *MockOrderStore
	eventTypes    *MockEventTypeStore
	events        *MockEventHandler
	notifications *MockNotificationStore
}

func (d reconcilerDeps) assert(t *testing.T) {
	d.client.AssertExpectations(t)
	d.orders.AssertExpectations(t)
	d.eventTypes.AssertExpectations(t)
	d.events.AssertExpectations(t)
	d.notifications.AssertExpectations(t)
}

func newTestReconciler() (*Reconciler, reconcilerDeps) {
	d := reconcilerDeps{
		client:        new(MockAdyenClient),
		orders:        new(MockOrderStore),
		eventTypes:    new(MockEventTypeStore),
		events:        new(MockEventHandler),
		notifications: new(MockNotificationStore),
	}
	return NewReconciler(d.client, d.orders, d.eventTypes, d.events, d.notifications, testClaimTTL), d
}

func testOrder() *storefront.Order {
	return &storefront.Order{
		ID:           7,
		Number:       "100023",
		Currency:     "EUR",
		TotalInclTax: decimal.RequireFromString("19.99"),
		Lines: []storefront.Line{
			{ID: 1, OrderID: 7, Title: "Mug", Quantity: 2},
			{ID: 2, OrderID: 7, Title: "Tea", Quantity: 1},
		},
	}
}

func TestHandleNotification(t *testing.T) {
	ctx := context.Background()

	t.Run("AppliesToOrder", func(t *testing.T) {
		r, d := newTestReconciler()
		order := testOrder()
		n := &adyen.Notification{
			ID:           1,
			EventCode:    adyen.EventAuthorisation,
			PSPReference: "psp-1",
			Success:      true,
			Value:        1999,
			Currency:     "EUR",
			OrderNumber:  "100023",
		}
		eventType := &storefront.PaymentEventType{ID: 3, Name: "Adyen - AUTHORISATION", Code: "adyen-authorisation"}

		d.notifications.On("Claim", ctx, int64(1), testClaimTTL).Return(true, nil)
		d.orders.On("GetByNumber", ctx, "100023").Return(order, nil)
		d.eventTypes.On("GetOrCreate", ctx, "Adyen - AUTHORISATION").Return(eventType, nil)
		d.events.On("HandlePaymentEvent", ctx, mock.MatchedBy(func(req storefront.PaymentEventRequest) bool {
			return req.Order == order &&
				req.EventType == eventType &&
				req.Amount.StringFixed(2) == "19.99" &&
				assert.ObjectsAreEqual([]int{2, 1}, req.Quantities) &&
				len(req.Lines) == 2 &&
				req.Reference == "psp-1" &&
				req.NotificationID == 1 &&
				req.Notification == n
		})).Return(nil)
		d.notifications.On("MarkHandled", ctx, int64(1)).Return(nil)

		got, err := r.HandleNotification(ctx, n)
		require.NoError(t, err)
		assert.Same(t, n, got)
		assert.True(t, n.Handled)
		assert.Equal(t, uint64(1), r.Stats()[StatApplied])

		d.assert(t)
		d.notifications.AssertNotCalled(t, "Release", mock.Anything, mock.Anything)
	})

	t.Run("FailedAuthorisationWithoutOrder", func(t *testing.T) {
		r, d := newTestReconciler()
		n := &adyen.Notification{
			ID:          2,
			EventCode:   adyen.EventAuthorisation,
			Success:     false,
			Reason:      "Refused",
			OrderNumber: "100099",
		}

		d.notifications.On("Claim", ctx, int64(2), testClaimTTL).Return(true, nil)
		d.orders.On("GetByNumber", ctx, "100099").Return(nil, storefront.ErrOrderNotFound)
		d.notifications.On("MarkHandled", ctx, int64(2)).Return(nil)

		got, err := r.HandleNotification(ctx, n)
		require.NoError(t, err)
		assert.Same(t, n, got)
		assert.True(t, n.Handled)
		assert.Equal(t, uint64(1), r.Stats()[StatFailedAuthorisations])

		d.assert(t)
		d.eventTypes.AssertNotCalled(t, "GetOrCreate", mock.Anything, mock.Anything)
		d.events.AssertNotCalled(t, "HandlePaymentEvent", mock.Anything, mock.Anything)
	})

	t.Run("OrderNotYetCreated", func(t *testing.T) {
		r, d := newTestReconciler()
		n := &adyen.Notification{
			ID:          3,
			EventCode:   adyen.EventAuthorisation,
			Success:     true,
			OrderNumber: "100100",
		}

		d.notifications.On("Claim", ctx, int64(3), testClaimTTL).Return(true, nil)
		d.orders.On("GetByNumber", ctx, "100100").Return(nil, storefront.ErrOrderNotFound)
		d.notifications.On("Release", ctx, int64(3)).Return(nil)

		got, err := r.HandleNotification(ctx, n)
		require.NoError(t, err)
		assert.Nil(t, got)
		assert.False(t, n.Handled)
		assert.Equal(t, uint64(1), r.Stats()[StatWaitingForOrder])

		d.assert(t)
		d.notifications.AssertNotCalled(t, "MarkHandled", mock.Anything, mock.Anything)
	})

	t.Run("NonAuthorisationWithoutOrderStaysPending", func(t *testing.T) {
		r, d := newTestReconciler()
		n := &adyen.Notification{ID: 4, EventCode: adyen.EventRefund, Success: false}

		d.notifications.On("Claim", ctx, int64(4), testClaimTTL).Return(true, nil)
		d.orders.On("GetByNumber", ctx, "").Return(nil, storefront.ErrOrderNotFound)
		d.notifications.On("Release", ctx, int64(4)).Return(nil)

		got, err := r.HandleNotification(ctx, n)
		require.NoError(t, err)
		assert.Nil(t, got)
		assert.False(t, n.Handled)
		d.assert(t)
	})

	t.Run("ClaimedByAnotherRun", func(t *testing.T) {
		r, d := newTestReconciler()
		n := &adyen.Notification{ID: 5, EventCode: adyen.EventAuthorisation, OrderNumber: "100023"}

		d.notifications.On("Claim", ctx, int64(5), testClaimTTL).Return(false, nil)

		got, err := r.HandleNotification(ctx, n)
		require.NoError(t, err)
		assert.Nil(t, got)
		assert.Equal(t, uint64(1), r.Stats()[StatClaimedElsewhere])

		d.assert(t)
		d.orders.AssertNotCalled(t, "GetByNumber", mock.Anything, mock.Anything)
	})

	t.Run("AlreadyHandled", func(t *testing.T) {
		r, d := newTestReconciler()

		got, err := r.HandleNotification(ctx, &adyen.Notification{ID: 6, Handled: true})
		require.NoError(t, err)
		assert.Nil(t, got)
		d.notifications.AssertNotCalled(t, "Claim", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("EventHandlerFailureReleasesClaim", func(t *testing.T) {
		r, d := newTestReconciler()
		order := testOrder()
		n := &adyen.Notification{ID: 8, EventCode: adyen.EventCapture, Success: true, Value: 500, OrderNumber: "100023"}
		boom := errors.New("db down")

		d.notifications.On("Claim", ctx, int64(8), testClaimTTL).Return(true, nil)
		d.orders.On("GetByNumber", ctx, "100023").Return(order, nil)
		d.eventTypes.On("GetOrCreate", ctx, "Adyen - CAPTURE").
			Return(&storefront.PaymentEventType{ID: 4, Name: "Adyen - CAPTURE"}, nil)
		d.events.On("HandlePaymentEvent", ctx, mock.Anything).Return(boom)
		d.notifications.On("Release", ctx, int64(8)).Return(nil)

		got, err := r.HandleNotification(ctx, n)
		assert.ErrorIs(t, err, boom)
		assert.Nil(t, got)
		assert.False(t, n.Handled)

		d.assert(t)
		d.notifications.AssertNotCalled(t, "MarkHandled", mock.Anything, mock.Anything)
	})

	t.Run("MarkHandledFailureKeepsClaim", func(t *testing.T) {
		r, d := newTestReconciler()
		order := testOrder()
		n := &adyen.Notification{ID: 10, EventCode: adyen.EventCapture, Success: true, Value: 500, OrderNumber: "100023"}
		boom := errors.New("connection reset")

		d.notifications.On("Claim", ctx, int64(10), testClaimTTL).Return(true, nil).Twice()
		d.orders.On("GetByNumber", ctx, "100023").Return(order, nil)
		d.eventTypes.On("GetOrCreate", ctx, "Adyen - CAPTURE").
			Return(&storefront.PaymentEventType{ID: 4, Name: "Adyen - CAPTURE"}, nil)
		// every attempt is keyed on the notification so the store records it once
		d.events.On("HandlePaymentEvent", ctx, mock.MatchedBy(func(req storefront.PaymentEventRequest) bool {
			return req.NotificationID == 10
		})).Return(nil).Twice()
		d.notifications.On("MarkHandled", ctx, int64(10)).Return(boom).Once()
		d.notifications.On("MarkHandled", ctx, int64(10)).Return(nil).Once()

		got, err := r.HandleNotification(ctx, n)
		assert.ErrorIs(t, err, boom)
		assert.Nil(t, got)
		assert.False(t, n.Handled)
		d.notifications.AssertNotCalled(t, "Release", mock.Anything, mock.Anything)

		// the lease expired and the next run picks it up again
		got, err = r.HandleNotification(ctx, n)
		require.NoError(t, err)
		assert.Same(t, n, got)
		assert.True(t, n.Handled)
		assert.Equal(t, uint64(1), r.Stats()[StatApplied])

		d.assert(t)
		d.notifications.AssertNotCalled(t, "Release", mock.Anything, mock.Anything)
	})

	t.Run("OrderLookupFailure", func(t *testing.T) {
		r, d := newTestReconciler()
		n := &adyen.Notification{ID: 9, EventCode: adyen.EventAuthorisation, OrderNumber: "100023"}
		boom := errors.New("timeout")
		relErr := errors.New("release failed")

		d.notifications.On("Claim", ctx, int64(9), testClaimTTL).Return(true, nil)
		d.orders.On("GetByNumber", ctx, "100023").Return(nil, boom)
		d.notifications.On("Release", ctx, int64(9)).Return(relErr)

		_, err := r.HandleNotification(ctx, n)
		assert.ErrorIs(t, err, boom)
		assert.ErrorIs(t, err, relErr)
		d.assert(t)
	})

	t.Run("ClaimFailure", func(t *testing.T) {
		r, d := newTestReconciler()
		boom := errors.New("conn reset")

		d.notifications.On("Claim", ctx, int64(10), testClaimTTL).Return(false, boom)

		_, err := r.HandleNotification(ctx, &adyen.Notification{ID: 10})
		assert.ErrorIs(t, err, boom)
		d.notifications.AssertNotCalled(t, "Release", mock.Anything, mock.Anything)
	})
}

func TestHandleNotifications(t *testing.T) {
	ctx := context.Background()

	t.Run("MixedBatch", func(t *testing.T) {
		r, d := newTestReconciler()
		order := testOrder()

		applied := &adyen.Notification{ID: 1, EventCode: adyen.EventAuthorisation, Success: true, Value: 1999, OrderNumber: "100023"}
		refused := &adyen.Notification{ID: 2, EventCode: adyen.EventAuthorisation, Success: false, OrderNumber: "100099"}
		waiting := &adyen.Notification{ID: 3, EventCode: adyen.EventAuthorisation, Success: true, OrderNumber: "100100"}
		broken := &adyen.Notification{ID: 4, EventCode: adyen.EventRefund, Success: true, Value: 100, OrderNumber: "100023"}
		boom := errors.New("insert failed")

		d.client.On("GetUnhandledNotifications", ctx).
			Return([]*adyen.Notification{applied, refused, waiting, broken}, nil)
		for _, id := range []int64{1, 2, 3, 4} {
			d.notifications.On("Claim", ctx, id, testClaimTTL).Return(true, nil)
		}

		d.orders.On("GetByNumber", ctx, "100023").Return(order, nil)
		d.orders.On("GetByNumber", ctx, "100099").Return(nil, storefront.ErrOrderNotFound)
		d.orders.On("GetByNumber", ctx, "100100").Return(nil, storefront.ErrOrderNotFound)

		d.eventTypes.On("GetOrCreate", ctx, "Adyen - AUTHORISATION").
			Return(&storefront.PaymentEventType{ID: 1, Name: "Adyen - AUTHORISATION"}, nil)
		d.eventTypes.On("GetOrCreate", ctx, "Adyen - REFUND").
			Return(&storefront.PaymentEventType{ID: 2, Name: "Adyen - REFUND"}, nil)

		d.events.On("HandlePaymentEvent", ctx, mock.MatchedBy(func(req storefront.PaymentEventRequest) bool {
			return req.Notification == applied
		})).Return(nil)
		d.events.On("HandlePaymentEvent", ctx, mock.MatchedBy(func(req storefront.PaymentEventRequest) bool {
			return req.Notification == broken
		})).Return(boom)

		d.notifications.On("MarkHandled", ctx, int64(1)).Return(nil)
		d.notifications.On("MarkHandled", ctx, int64(2)).Return(nil)
		d.notifications.On("Release", ctx, int64(3)).Return(nil)
		d.notifications.On("Release", ctx, int64(4)).Return(nil)

		processed, err := r.HandleNotifications(ctx)
		assert.Equal(t, 2, processed)
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "notification 4")

		assert.True(t, applied.Handled)
		assert.True(t, refused.Handled)
		assert.False(t, waiting.Handled)
		assert.False(t, broken.Handled)

		stats := r.Stats()
		assert.Equal(t, uint64(1), stats[StatRuns])
		assert.Equal(t, uint64(1), stats[StatApplied])
		assert.Equal(t, uint64(1), stats[StatFailedAuthorisations])
		assert.Equal(t, uint64(1), stats[StatWaitingForOrder])
		assert.Equal(t, uint64(1), stats[StatErrors])

		d.assert(t)
	})

	t.Run("Empty", func(t *testing.T) {
		r, d := newTestReconciler()
		d.client.On("GetUnhandledNotifications", ctx).Return([]*adyen.Notification{}, nil)

		processed, err := r.HandleNotifications(ctx)
		require.NoError(t, err)
		assert.Zero(t, processed)
	})

	t.Run("LoadFailure", func(t *testing.T) {
		r, d := newTestReconciler()
		boom := errors.New("db down")
		d.client.On("GetUnhandledNotifications", ctx).Return(nil, boom)

		processed, err := r.HandleNotifications(ctx)
		assert.ErrorIs(t, err, boom)
		assert.Zero(t, processed)
	})

	t.Run("CancelledContext", func(t *testing.T) {
		r, d := newTestReconciler()
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		d.client.On("GetUnhandledNotifications", cctx).
			Return([]*adyen.Notification{{ID: 1}}, nil)

		processed, err := r.HandleNotifications(cctx)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, processed)
		d.notifications.AssertNotCalled(t, "Claim", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestNewReconcilerDefaultTTL(t *testing.T) {
	r := NewReconciler(nil, nil, nil, nil, nil, 0)
	assert.Equal(t, 5*time.Minute, r.claimTTL)
}
