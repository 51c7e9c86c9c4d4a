package service

import "errors"

var (
	ErrInsufficientLoyaltyBalance = errors.New("insufficient loyalty balance")
	ErrPartnerNotFound            = errors.New("partner not found")
	ErrProductNotFound            = errors.New("product not found")
	ErrInvalidItems               = errors.New("order must contain at least one item with a positive quantity")
	ErrOutOfStock                 = errors.New("product out of stock")
	ErrInvalidPaymentMethod       = errors.New("unsupported payment method")
	ErrOrderNotFound              = errors.New("order not found")
	ErrInvalidOrderState          = errors.New("order cannot change to the requested state")
	ErrIdempotencyKeyReused       = errors.New("idempotency key belongs to another order request")
	ErrForbidden                  = errors.New("not allowed")
	ErrInvalidAmount              = errors.New("amount must be greater than zero")
	ErrPaymentMismatch            = errors.New("payment amount does not match the order")
	// ErrSettlementFailed is retryable: nothing was debited.
	ErrSettlementFailed = errors.New("payment settlement failed")
)
