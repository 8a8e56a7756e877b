package adyen

import "errors"

var (
	ErrPaymentNotFound     = errors.New("adyen payment not found")
	ErrInvalidPayment      = errors.New("invalid payment request")
	ErrInvalidResult       = errors.New("invalid payment result")
	ErrInvalidNotification = errors.New("invalid notification")
	ErrInvalidSignature    = errors.New("invalid merchant signature")
	ErrMissingResultURL    = errors.New("payment has no result url")
	ErrDuplicateReference  = errors.New("merchant reference already exists")

	// Postgres SQLSTATE for unique_violation.
	pgUniqueViolation = "23505"
)
