package repository

import (
	"context"
	"errors"

	"marathon-billing-engine/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type EnrollmentRepository interface {
	FindByUserAndMarathon(ctx context.Context, userID, marathonID string) (*model.Enrollment, error)
	// FindForGrant reads the enrollment inside the grant transaction.
	FindForGrant(ctx context.Context, tx *gorm.DB, userID, marathonID string) (*model.Enrollment, error)
	Create(ctx context.Context, tx *gorm.DB, enrollment *model.Enrollment) error
	Save(ctx context.Context, tx *gorm.DB, enrollment *model.Enrollment) error
	// CompareAndSwapCompletedDays writes the completed-days column only if
	// it still holds the previously read value, so concurrent marks cannot
	// overwrite each other. Returns whether the swap was applied.
	CompareAndSwapCompletedDays(ctx context.Context, id uint, previous, next datatypes.JSON) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]*model.Enrollment, error)
}

type enrollmentRepoImpl struct {
	db *gorm.DB
}

func NewEnrollmentRepository(db *gorm.DB) EnrollmentRepository {
	return &enrollmentRepoImpl{
		db: db,
	}
}

func (r *enrollmentRepoImpl) FindByUserAndMarathon(ctx context.Context, userID, marathonID string) (*model.Enrollment, error) {
	return findEnrollment(ctx, r.db, userID, marathonID)
}

func (r *enrollmentRepoImpl) FindForGrant(ctx context.Context, tx *gorm.DB, userID, marathonID string) (*model.Enrollment, error) {
	return findEnrollment(ctx, tx, userID, marathonID)
}

func findEnrollment(ctx context.Context, db *gorm.DB, userID, marathonID string) (*model.Enrollment, error) {
	var enrollment model.Enrollment
	err := db.WithContext(ctx).
		Where("user_id = ? AND marathon_id = ?", userID, marathonID).
		First(&enrollment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &enrollment, nil
}

func (r *enrollmentRepoImpl) Create(ctx context.Context, tx *gorm.DB, enrollment *model.Enrollment) error {
	return tx.WithContext(ctx).Create(enrollment).Error
}

func (r *enrollmentRepoImpl) Save(ctx context.Context, tx *gorm.DB, enrollment *model.Enrollment) error {
	return tx.WithContext(ctx).Save(enrollment).Error
}

func (r *enrollmentRepoImpl) CompareAndSwapCompletedDays(ctx context.Context, id uint, previous, next datatypes.JSON) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.Enrollment{}).
		Where("id = ? AND completed_days = ?", id, previous).
		Update("completed_days", next)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *enrollmentRepoImpl) ListByUser(ctx context.Context, userID string) ([]*model.Enrollment, error) {
	var enrollments []*model.Enrollment
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&enrollments).Error
	if err != nil {
		return nil, err
	}
	return enrollments, nil
}
