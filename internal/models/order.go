package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	UserID          uint            `gorm:"not null;index" json:"user_id"`
	PartnerID       uint            `gorm:"not null;index" json:"partner_id"`
	OrderTotal      decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"order_total"`
	Discount        decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0;check:chk_orders_discount,discount <= order_total" json:"discount"`
	CashbackAmount  decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"cashback_amount"`
	FinalAmount     decimal.Decimal `gorm:"type:numeric(20,2);not null;check:chk_orders_final_amount,final_amount >= 0" json:"final_amount"`
	Status          string          `gorm:"size:20;not null;index" json:"status"`
	PaymentMethod   string          `gorm:"size:20;not null" json:"payment_method"`
	PaymentStatus   string          `gorm:"size:20;not null" json:"payment_status"`
	IdempotencyKey  string          `gorm:"uniqueIndex;size:128;not null" json:"idempotency_key"`
	LedgerEntryID   *uint           `json:"ledger_entry_id,omitempty"`
	PaymentRef      string          `gorm:"size:128" json:"payment_ref,omitempty"`
	DeliveryType    string          `gorm:"size:20" json:"delivery_type"`
	DeliveryAddress string          `gorm:"size:255" json:"delivery_address,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items"`
}

func (Order) TableName() string { return "orders" }

// OrderItem is a price snapshot taken when the order is placed.
type OrderItem struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	OrderID       uint            `gorm:"not null;index" json:"order_id"`
	ProductID     uint            `gorm:"not null" json:"product_id"`
	Name          string          `gorm:"size:128;not null" json:"name"`
	UnitPrice     decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"unit_price"`
	OriginalPrice decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"original_price"`
	Quantity      int             `gorm:"not null" json:"quantity"`
	Subtotal      decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"subtotal"`
}

func (OrderItem) TableName() string { return "order_items" }
