package domain

const (
	RoleClient  = "CLIENT"
	RolePartner = "PARTNER"
	RoleAdmin   = "ADMIN"
)

// Ledger entry types. Direction is carried by the type, never by the sign of the amount.
const (
	EntryTopup          = "topup"
	EntryPayment        = "payment"
	EntryLoyaltyPayment = "loyalty-payment"
	EntryQRSpend        = "qr-spend"
	EntryRefund         = "refund"
	EntryCashback       = "cashback"
)

// Balance kinds select which side of the wallet an entry moves.
const (
	KindFiat    = "fiat"
	KindLoyalty = "loyalty"
)

const (
	EntryStatusPending    = "pending"
	EntryStatusProcessing = "processing"
	EntryStatusCompleted  = "completed"
	EntryStatusFailed     = "failed"
)

const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
)

const (
	PaymentMethodLoyalty = "loyalty"
	PaymentMethodCard    = "card"
	PaymentMethodCash    = "cash"
)

const (
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusRefunded = "refunded"
)

const (
	DeliveryPickup   = "pickup"
	DeliveryDelivery = "delivery"
)

// Internal gateways used as the (gateway, gateway_ref) namespace for credits that
// originate from order lifecycle events rather than external processors.
const (
	GatewayOrderRefund = "order-refund"
	GatewayCashback    = "cashback"
)

// DefaultCashbackRate is the partner cashback percent used when none is configured.
const DefaultCashbackRate = 5

// Runtime gateway settings stored in system_settings.
const (
	SettingGatewayEnabled = "gateway.osmp.enabled"
	SettingGatewayMinSum  = "gateway.osmp.min_sum"
	SettingGatewayMaxSum  = "gateway.osmp.max_sum"
)
