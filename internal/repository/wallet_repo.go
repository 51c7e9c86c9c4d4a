package repository

import (
	"context"
	"time"

	"loyalpay/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WalletRepository reads wallets and persists balances computed by the ledger.
// It never decides a balance itself.
type WalletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) WithTx(tx *gorm.DB) *WalletRepository {
	return &WalletRepository{db: tx}
}

func (r *WalletRepository) Create(ctx context.Context, w *models.Wallet) error {
	if w.LastUpdated.IsZero() {
		w.LastUpdated = time.Now()
	}
	return r.db.WithContext(ctx).Create(w).Error
}

func (r *WalletRepository) GetByUserID(ctx context.Context, userID uint) (*models.Wallet, error) {
	var w models.Wallet
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&w).Error
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// GetByUserIDForUpdate reads the wallet with SELECT ... FOR UPDATE. It must run inside
// a transaction; the lock is held until commit.
func (r *WalletRepository) GetByUserIDForUpdate(ctx context.Context, userID uint) (*models.Wallet, error) {
	var w models.Wallet
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&w).Error
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// SaveBalances writes the four balance columns of w.
func (r *WalletRepository) SaveBalances(ctx context.Context, w *models.Wallet) error {
	w.LastUpdated = time.Now()
	return r.db.WithContext(ctx).Model(&models.Wallet{}).
		Where("id = ?", w.ID).
		Updates(map[string]interface{}{
			"balance":         w.Balance,
			"loyalty_balance": w.LoyaltyBalance,
			"total_earned":    w.TotalEarned,
			"total_spent":     w.TotalSpent,
			"last_updated":    w.LastUpdated,
		}).Error
}
