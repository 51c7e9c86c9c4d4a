package repository

import (
	"context"

	"loyalpay/internal/models"

	"gorm.io/gorm"
)

type PartnerRepository struct {
	db *gorm.DB
}

func NewPartnerRepository(db *gorm.DB) *PartnerRepository {
	return &PartnerRepository{db: db}
}

func (r *PartnerRepository) WithTx(tx *gorm.DB) *PartnerRepository {
	return &PartnerRepository{db: tx}
}

func (r *PartnerRepository) Create(ctx context.Context, p *models.Partner) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *PartnerRepository) GetByID(ctx context.Context, id uint) (*models.Partner, error) {
	var p models.Partner
	err := r.db.WithContext(ctx).First(&p, id).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PartnerRepository) GetByMerchantID(ctx context.Context, merchantID string) (*models.Partner, error) {
	var p models.Partner
	err := r.db.WithContext(ctx).Where("merchant_id = ?", merchantID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}
