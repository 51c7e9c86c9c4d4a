package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

// SettlementRequest asks the external payment service to charge the buyer for the part
// of a purchase not covered by loyalty coins.
type SettlementRequest struct {
	Reference   string // our idempotency key for the charge
	UserID      uint
	PartnerID   uint
	MerchantID  string
	Amount      decimal.Decimal
	Currency    string
	Description string
}

type SettlementResponse struct {
	Reference   string
	Status      string
	Accepted    bool
	ProviderRef string
}

// Settler settles charges synchronously. Only a response with Accepted set is an
// authoritative confirmation; errors and timeouts leave the charge unconfirmed.
type Settler interface {
	Settle(ctx context.Context, req SettlementRequest) (*SettlementResponse, error)
	Void(ctx context.Context, reference string) error
}
