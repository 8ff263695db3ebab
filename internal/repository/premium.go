package repository

import (
	"context"
	"errors"
	"time"

	"marathon-billing-engine/internal/model"

	"gorm.io/gorm"
)

// PremiumRepository tracks the per-user premium and photo-diary windows.
// Extensions are additive from max(now, current end) so stacked purchases
// extend rather than reset the window.
type PremiumRepository interface {
	Get(ctx context.Context, userID string) (*model.PremiumPass, error)
	ExtendPremium(ctx context.Context, tx *gorm.DB, userID string, days int, now time.Time) (time.Time, error)
	ExtendPhotoDiary(ctx context.Context, tx *gorm.DB, userID string, days int, now time.Time) (time.Time, error)
}

type premiumRepoImpl struct {
	db *gorm.DB
}

func NewPremiumRepository(db *gorm.DB) PremiumRepository {
	return &premiumRepoImpl{
		db: db,
	}
}

func (r *premiumRepoImpl) Get(ctx context.Context, userID string) (*model.PremiumPass, error) {
	var pass model.PremiumPass
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&pass).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pass, nil
}

func (r *premiumRepoImpl) ExtendPremium(ctx context.Context, tx *gorm.DB, userID string, days int, now time.Time) (time.Time, error) {
	pass, err := loadOrInitPass(ctx, tx, userID)
	if err != nil {
		return time.Time{}, err
	}

	base := now
	if pass.EndsAt.After(now) {
		base = pass.EndsAt
	}
	pass.EndsAt = base.AddDate(0, 0, days)

	if err := tx.WithContext(ctx).Save(pass).Error; err != nil {
		return time.Time{}, err
	}
	return pass.EndsAt, nil
}

func (r *premiumRepoImpl) ExtendPhotoDiary(ctx context.Context, tx *gorm.DB, userID string, days int, now time.Time) (time.Time, error) {
	pass, err := loadOrInitPass(ctx, tx, userID)
	if err != nil {
		return time.Time{}, err
	}

	base := now
	if pass.PhotoDiaryEndsAt.After(now) {
		base = pass.PhotoDiaryEndsAt
	}
	pass.PhotoDiaryEndsAt = base.AddDate(0, 0, days)

	if err := tx.WithContext(ctx).Save(pass).Error; err != nil {
		return time.Time{}, err
	}
	return pass.PhotoDiaryEndsAt, nil
}

func loadOrInitPass(ctx context.Context, tx *gorm.DB, userID string) (*model.PremiumPass, error) {
	var pass model.PremiumPass
	err := tx.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&pass).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.PremiumPass{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &pass, nil
}
