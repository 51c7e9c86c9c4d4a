package models

import (
	"time"

	"loyalpay/internal/domain"

	"github.com/shopspring/decimal"
)

// Wallet holds the fiat and loyalty balances of one user. Rows are only mutated by
// the ledger package and are never deleted.
type Wallet struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	UserID         uint            `gorm:"uniqueIndex;not null" json:"user_id"`
	Balance        decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0;check:chk_wallets_balance,balance >= 0" json:"balance"`
	LoyaltyBalance decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0;check:chk_wallets_loyalty_balance,loyalty_balance >= 0" json:"loyalty_balance"`
	TotalEarned    decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"total_earned"`
	TotalSpent     decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"total_spent"`
	LastUpdated    time.Time       `json:"last_updated"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (Wallet) TableName() string {
	return "wallets"
}

// BalanceOf returns the balance selected by kind (domain.KindFiat or domain.KindLoyalty).
func (w *Wallet) BalanceOf(kind string) decimal.Decimal {
	if kind == domain.KindLoyalty {
		return w.LoyaltyBalance
	}
	return w.Balance
}
