package payment

import (
	"errors"
	"fmt"

	"storefront-adyen/internal/adyen"
)

var (
	ErrPaymentFailed    = errors.New("payment failed")
	ErrMissingResultURL = errors.New("pass buildAbsoluteURI if the payment has no result url")
)

// FailedError is returned when Adyen reports neither AUTHORISED nor PENDING.
// It matches ErrPaymentFailed with errors.Is.
type FailedError struct {
	Result *adyen.PaymentResult
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("payment failed: %s for %s", e.Result.AuthResult, e.Result.MerchantReference)
}

func (e *FailedError) Unwrap() error {
	return ErrPaymentFailed
}
