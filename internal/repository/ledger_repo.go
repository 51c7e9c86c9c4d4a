package repository

import (
	"context"

	"loyalpay/internal/domain"
	"loyalpay/internal/models"

	"gorm.io/gorm"
)

type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) WithTx(tx *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: tx}
}

func (r *LedgerRepository) Create(ctx context.Context, e *models.LedgerEntry) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *LedgerRepository) GetByID(ctx context.Context, id uint) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	err := r.db.WithContext(ctx).First(&e, id).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *LedgerRepository) GetByGatewayRef(ctx context.Context, gateway, ref string) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("gateway = ? AND gateway_ref = ?", gateway, ref).
		First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// DeleteUncompleted removes an entry that never completed so its gateway reference can
// be reused. Completed entries are never touched.
func (r *LedgerRepository) DeleteUncompleted(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND status <> ?", id, domain.EntryStatusCompleted).
		Delete(&models.LedgerEntry{})
	return res.RowsAffected > 0, res.Error
}

func (r *LedgerRepository) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]models.LedgerEntry, int64, error) {
	var total int64
	q := r.db.WithContext(ctx).Model(&models.LedgerEntry{}).Where("user_id = ?", userID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.LedgerEntry
	err := q.Order("id DESC").Limit(limit).Offset(offset).Find(&list).Error
	return list, total, err
}
