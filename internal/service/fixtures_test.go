package service

import (
	"fmt"
	"testing"

	"loyalpay/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

var userSeq int

func seedUser(t *testing.T, db *gorm.DB, role string, loyalty string) *models.User {
	t.Helper()
	userSeq++
	u := &models.User{
		Email:    fmt.Sprintf("user%d@example.com", userSeq),
		Username: fmt.Sprintf("user%d", userSeq),
		Role:     role,
	}
	require.NoError(t, db.Create(u).Error)
	require.NoError(t, db.Create(&models.Wallet{UserID: u.ID, LoyaltyBalance: dec(loyalty)}).Error)
	return u
}

func seedPartner(t *testing.T, db *gorm.DB, merchantID string, maxDiscount string, cashback *decimal.Decimal) *models.Partner {
	t.Helper()
	p := &models.Partner{
		Name:               "Partner " + merchantID,
		MerchantID:         merchantID,
		MaxDiscountPercent: dec(maxDiscount),
		CashbackRate:       cashback,
		IsActive:           true,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func seedProduct(t *testing.T, db *gorm.DB, partnerID uint, name, price string, original *decimal.Decimal, stock int) *models.Product {
	t.Helper()
	p := &models.Product{
		PartnerID:     partnerID,
		Name:          name,
		Price:         dec(price),
		OriginalPrice: original,
		Stock:         stock,
		IsActive:      true,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func loyaltyOf(t *testing.T, db *gorm.DB, userID uint) decimal.Decimal {
	t.Helper()
	var w models.Wallet
	require.NoError(t, db.Where("user_id = ?", userID).First(&w).Error)
	return w.LoyaltyBalance
}

func stockOf(t *testing.T, db *gorm.DB, productID uint) int {
	t.Helper()
	var p models.Product
	require.NoError(t, db.First(&p, productID).Error)
	return p.Stock
}

func countEntries(t *testing.T, db *gorm.DB, entryType string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.LedgerEntry{}).Where("type = ?", entryType).Count(&n).Error)
	return n
}

