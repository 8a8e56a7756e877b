package storefront

import "errors"

var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrInvalidEventType     = errors.New("invalid payment event type")
	ErrLineQuantityMismatch = errors.New("lines and quantities differ in length")
	ErrQuantityExceedsLine  = errors.New("event quantity exceeds line quantity")
)
