package models

import (
	"time"

	"loyalpay/internal/domain"

	"github.com/shopspring/decimal"
)

// LedgerEntry is one append-only balance movement. Amount is always positive; Type
// carries the direction. (gateway, gateway_ref) is unique so an external reference can
// be credited at most once.
type LedgerEntry struct {
	ID            uint             `gorm:"primaryKey" json:"id"`
	UserID        uint             `gorm:"not null;index" json:"user_id"`
	PartnerID     *uint            `gorm:"index" json:"partner_id,omitempty"`
	OrderID       *uint            `gorm:"index" json:"order_id,omitempty"`
	Type          string           `gorm:"size:30;not null;index" json:"type"`
	BalanceKind   string           `gorm:"size:10;not null" json:"balance_kind"`
	Amount        decimal.Decimal  `gorm:"type:numeric(20,2);not null;check:chk_ledger_entries_amount,amount > 0" json:"amount"`
	Status        string           `gorm:"size:20;not null;index" json:"status"`
	Gateway       *string          `gorm:"size:50;uniqueIndex:idx_ledger_gateway_ref,priority:1" json:"gateway,omitempty"`
	GatewayRef    *string          `gorm:"size:128;uniqueIndex:idx_ledger_gateway_ref,priority:2" json:"gateway_ref,omitempty"`
	PaymentMethod string           `gorm:"size:30" json:"payment_method,omitempty"`
	BalanceBefore *decimal.Decimal `gorm:"type:numeric(20,2)" json:"balance_before,omitempty"`
	BalanceAfter  *decimal.Decimal `gorm:"type:numeric(20,2)" json:"balance_after,omitempty"`
	LoyaltyUsed   decimal.Decimal  `gorm:"type:numeric(20,2);not null;default:0" json:"loyalty_used"`
	LoyaltyEarned decimal.Decimal  `gorm:"type:numeric(20,2);not null;default:0" json:"loyalty_earned"`
	Description   string           `gorm:"size:255" json:"description"`
	Metadata      string           `gorm:"type:text" json:"metadata,omitempty"`
	CreatedAt     time.Time        `gorm:"index" json:"created_at"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entries"
}

func (e *LedgerEntry) IsCompleted() bool { return e.Status == domain.EntryStatusCompleted }
