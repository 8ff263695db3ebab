package repository

import (
	"context"

	"marathon-billing-engine/internal/model"

	"gorm.io/gorm"
)

// GrantRepository records applied entitlements keyed by order number. The
// primary key is what makes the grantor idempotent.
type GrantRepository interface {
	Exists(ctx context.Context, tx *gorm.DB, orderNumber string) (bool, error)
	Create(ctx context.Context, tx *gorm.DB, grant *model.EntitlementGrant) error
}

type grantRepoImpl struct {
	db *gorm.DB
}

func NewGrantRepository(db *gorm.DB) GrantRepository {
	return &grantRepoImpl{db: db}
}

func (r *grantRepoImpl) Exists(ctx context.Context, tx *gorm.DB, orderNumber string) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).Model(&model.EntitlementGrant{}).
		Where("order_number = ?", orderNumber).
		Count(&count).Error

	return count > 0, err
}

func (r *grantRepoImpl) Create(ctx context.Context, tx *gorm.DB, grant *model.EntitlementGrant) error {
	return tx.WithContext(ctx).Create(grant).Error
}
