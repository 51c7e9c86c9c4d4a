package payment

import (
	"context"
	"log"
	"strings"
)

// StubSettler accepts every charge. Development only.
type StubSettler struct{}

func (s *StubSettler) Settle(ctx context.Context, req SettlementRequest) (*SettlementResponse, error) {
	log.Printf("[payment] stub settle %s amount=%s %s", req.Reference, req.Amount.StringFixed(2), req.Currency)
	return &SettlementResponse{
		Reference:   req.Reference,
		Status:      StatusAccepted,
		Accepted:    true,
		ProviderRef: "stub_" + req.Reference,
	}, nil
}

func (s *StubSettler) Void(ctx context.Context, reference string) error {
	log.Printf("[payment] stub void %s", strings.TrimSpace(reference))
	return nil
}
