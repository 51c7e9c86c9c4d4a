// Package gateway adapts external payment protocols to the wallet ledger. Both the
// synchronous bank protocol and the asynchronous webhook credit through
// ledger.Ledger.Credit, which is idempotent per (gateway, gateway_ref).
package gateway

import "context"

// SynchronousSettlement is a request/reply protocol where the provider waits for our
// verdict on every command.
type SynchronousSettlement interface {
	Check(ctx context.Context, req CheckRequest) Response
	Pay(ctx context.Context, req PayRequest) Response
}

// AsynchronousSettlement receives pushed notifications. The returned Ack is the
// business outcome; the transport always acknowledges.
type AsynchronousSettlement interface {
	OnNotify(ctx context.Context, n Notification) Ack
}

var (
	_ SynchronousSettlement  = (*OSMP)(nil)
	_ AsynchronousSettlement = (*Webhook)(nil)
)
