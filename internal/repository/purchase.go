package repository

import (
	"context"
	"errors"
	"time"

	"marathon-billing-engine/internal/model"

	"gorm.io/gorm"
)

type PurchaseRepository interface {
	Exists(ctx context.Context, tx *gorm.DB, userID, exerciseID string) (bool, error)
	Create(ctx context.Context, tx *gorm.DB, purchase *model.Purchase) error
	// FindActive returns the purchase iff it has not expired at the given
	// instant.
	FindActive(ctx context.Context, userID, exerciseID string, now time.Time) (*model.Purchase, error)
}

type purchaseRepoImpl struct {
	db *gorm.DB
}

func NewPurchaseRepository(db *gorm.DB) PurchaseRepository {
	return &purchaseRepoImpl{
		db: db,
	}
}

func (r *purchaseRepoImpl) Exists(ctx context.Context, tx *gorm.DB, userID, exerciseID string) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).Model(&model.Purchase{}).
		Where("user_id = ? AND exercise_id = ?", userID, exerciseID).
		Count(&count).Error

	return count > 0, err
}

func (r *purchaseRepoImpl) Create(ctx context.Context, tx *gorm.DB, purchase *model.Purchase) error {
	return tx.WithContext(ctx).Create(purchase).Error
}

func (r *purchaseRepoImpl) FindActive(ctx context.Context, userID, exerciseID string, now time.Time) (*model.Purchase, error) {
	var purchase model.Purchase
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND exercise_id = ? AND expires_at > ?", userID, exerciseID, now).
		First(&purchase).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &purchase, nil
}
