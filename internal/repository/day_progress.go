package repository

import (
	"context"
	"time"

	"marathon-billing-engine/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DayProgressRepository interface {
	Upsert(ctx context.Context, progress *model.DayProgress) error
	ListForDay(ctx context.Context, userID, marathonID string, day int) ([]*model.DayProgress, error)
}

type dayProgressRepoImpl struct {
	db *gorm.DB
}

func NewDayProgressRepository(db *gorm.DB) DayProgressRepository {
	return &dayProgressRepoImpl{
		db: db,
	}
}

func (r *dayProgressRepoImpl) Upsert(ctx context.Context, progress *model.DayProgress) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"}, {Name: "marathon_id"}, {Name: "day"}, {Name: "exercise_id"},
		},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"completed":  progress.Completed,
			"updated_at": time.Now(),
		}),
	}).Create(&progress).Error
}

func (r *dayProgressRepoImpl) ListForDay(ctx context.Context, userID, marathonID string, day int) ([]*model.DayProgress, error) {
	var rows []*model.DayProgress
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND marathon_id = ? AND day = ?", userID, marathonID, day).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
