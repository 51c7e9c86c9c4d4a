package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Partner struct {
	ID                 uint             `gorm:"primaryKey" json:"id"`
	Name               string           `gorm:"size:128;not null" json:"name"`
	MerchantID         string           `gorm:"uniqueIndex;size:64;not null" json:"merchant_id"` // embedded in QR codes
	CashbackRate       *decimal.Decimal `gorm:"type:numeric(5,2)" json:"cashback_rate,omitempty"` // percent; nil means default
	MaxDiscountPercent decimal.Decimal  `gorm:"type:numeric(5,2);not null;default:0" json:"max_discount_percent"`
	IsActive           bool             `gorm:"not null;default:true" json:"is_active"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

func (Partner) TableName() string { return "partners" }

// EffectiveCashbackRate returns the partner rate or def when unset.
func (p *Partner) EffectiveCashbackRate(def decimal.Decimal) decimal.Decimal {
	if p.CashbackRate == nil {
		return def
	}
	return *p.CashbackRate
}

type Product struct {
	ID            uint             `gorm:"primaryKey" json:"id"`
	PartnerID     uint             `gorm:"not null;index" json:"partner_id"`
	Name          string           `gorm:"size:128;not null" json:"name"`
	Price         decimal.Decimal  `gorm:"type:numeric(20,2);not null" json:"price"`
	OriginalPrice *decimal.Decimal `gorm:"type:numeric(20,2)" json:"original_price,omitempty"`
	Stock         int              `gorm:"not null;default:0;check:chk_products_stock,stock >= 0" json:"stock"`
	IsActive      bool             `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

func (Product) TableName() string { return "products" }
