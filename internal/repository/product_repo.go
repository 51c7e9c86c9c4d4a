package repository

import (
	"context"

	"loyalpay/internal/models"

	"gorm.io/gorm"
)

type ProductRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) WithTx(tx *gorm.DB) *ProductRepository {
	return &ProductRepository{db: tx}
}

func (r *ProductRepository) Create(ctx context.Context, p *models.Product) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *ProductRepository) GetByID(ctx context.Context, id uint) (*models.Product, error) {
	var p models.Product
	err := r.db.WithContext(ctx).First(&p, id).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByIDs returns the products of one partner keyed by id. Missing ids are simply absent.
func (r *ProductRepository) GetByIDs(ctx context.Context, partnerID uint, ids []uint) (map[uint]models.Product, error) {
	var list []models.Product
	err := r.db.WithContext(ctx).
		Where("partner_id = ? AND id IN ?", partnerID, ids).
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uint]models.Product, len(list))
	for _, p := range list {
		out[p.ID] = p
	}
	return out, nil
}

// DecrementStock takes qty units only if that many are left. It reports false when the
// stock was insufficient.
func (r *ProductRepository) DecrementStock(ctx context.Context, id uint, qty int) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ? AND stock >= ?", id, qty).
		UpdateColumn("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *ProductRepository) IncrementStock(ctx context.Context, id uint, qty int) error {
	return r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ?", id).
		UpdateColumn("stock", gorm.Expr("stock + ?", qty)).Error
}
