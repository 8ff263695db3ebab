package service

import (
	"context"
	"fmt"
	"time"

	"marathon-billing-engine/internal/clock"
	"marathon-billing-engine/internal/model"
	"marathon-billing-engine/internal/repository"

	"gorm.io/gorm"
)

const daysPerWeek = 7

// ProgressionService governs which marathon days a user may access over
// time once enrolled. Unlocking is a pure function of the enrollment's
// start time; completion grows monotonically, so the only write hazard is
// the set union on completed days.
type ProgressionService interface {
	// Enroll creates a free-tier enrollment. Free marathons activate
	// immediately; paid ones pre-register as pending until the payment
	// entitlement activates them.
	Enroll(ctx context.Context, input EnrollInput) (*model.Enrollment, error)
	GetProgress(ctx context.Context, userID, marathonID string) (*Progress, error)
	UnlockedDays(enrollment *model.Enrollment, now time.Time) int
	MarkDayComplete(ctx context.Context, userID, marathonID string, day int) error
	MarkExerciseComplete(ctx context.Context, userID, marathonID string, day int, exerciseID string) error
	// ExerciseAccess reports whether a standalone exercise purchase is
	// currently valid, and until when.
	ExerciseAccess(ctx context.Context, userID, exerciseID string) (bool, time.Time, error)
}

type EnrollInput struct {
	UserID     string
	MarathonID string
	TotalDays  int
	Free       bool
}

type Progress struct {
	Status         model.EnrollmentStatus
	EnrolledAt     time.Time
	TotalDays      int
	UnlockedDays   int
	CompletedDays  []int
	CompletedCount int
	// CompletedWeeks lists the week numbers whose seven days are all
	// completed; derived, never stored.
	CompletedWeeks []int
	ExpiresAt      time.Time
}

type progressionServiceImpl struct {
	txManager       repository.TxManager
	enrollmentRepo  repository.EnrollmentRepository
	purchaseRepo    repository.PurchaseRepository
	dayProgressRepo repository.DayProgressRepository
	clock           clock.Clock
}

func NewProgressionService(
	txManager repository.TxManager,
	enrollmentRepo repository.EnrollmentRepository,
	purchaseRepo repository.PurchaseRepository,
	dayProgressRepo repository.DayProgressRepository,
	clk clock.Clock,
) ProgressionService {
	return &progressionServiceImpl{
		txManager:       txManager,
		enrollmentRepo:  enrollmentRepo,
		purchaseRepo:    purchaseRepo,
		dayProgressRepo: dayProgressRepo,
		clock:           clk,
	}
}

func (s *progressionServiceImpl) Enroll(ctx context.Context, input EnrollInput) (*model.Enrollment, error) {
	if input.TotalDays <= 0 {
		return nil, fmt.Errorf("total days must be positive")
	}

	existing, err := s.enrollmentRepo.FindByUserAndMarathon(ctx, input.UserID, input.MarathonID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, model.ErrAlreadyEnrolled
	}

	now := s.clock.Now()
	enrollment := &model.Enrollment{
		UserID:     input.UserID,
		MarathonID: input.MarathonID,
		Status:     model.EnrollmentPending,
		TotalDays:  input.TotalDays,
		IsPaid:     false,
	}
	if input.Free {
		enrollment.Status = model.EnrollmentActive
		enrollment.EnrolledAt = now
		enrollment.ExpiresAt = now.AddDate(0, 0, input.TotalDays)
	}
	if err := enrollment.SetCompletedDays(nil); err != nil {
		return nil, err
	}

	err = s.txManager.Do(ctx, func(tx *gorm.DB) error {
		return s.enrollmentRepo.Create(ctx, tx, enrollment)
	})
	if err != nil {
		return nil, fmt.Errorf("create enrollment: %w", err)
	}
	return enrollment, nil
}

// UnlockedDays computes the highest accessible day number. Day 1 is
// unlocked immediately at enrollment; the result is clamped to
// [1, totalDays] and non-decreasing as now advances.
func (s *progressionServiceImpl) UnlockedDays(enrollment *model.Enrollment, now time.Time) int {
	if enrollment.EnrolledAt.IsZero() || now.Before(enrollment.EnrolledAt) {
		return 1
	}
	unlocked := int(now.Sub(enrollment.EnrolledAt)/(24*time.Hour)) + 1
	if unlocked > enrollment.TotalDays {
		unlocked = enrollment.TotalDays
	}
	if unlocked < 1 {
		unlocked = 1
	}
	return unlocked
}

func (s *progressionServiceImpl) GetProgress(ctx context.Context, userID, marathonID string) (*Progress, error) {
	enrollment, err := s.usableEnrollment(ctx, userID, marathonID)
	if err != nil {
		return nil, err
	}

	set := enrollment.CompletedDaySet()
	days := make([]int, 0, len(set))
	for d := 1; d <= enrollment.TotalDays; d++ {
		if set[d] {
			days = append(days, d)
		}
	}

	var weeks []int
	for w := 1; w*daysPerWeek <= enrollment.TotalDays; w++ {
		if weekCompleted(set, w) {
			weeks = append(weeks, w)
		}
	}

	return &Progress{
		Status:         enrollment.Status,
		EnrolledAt:     enrollment.EnrolledAt,
		TotalDays:      enrollment.TotalDays,
		UnlockedDays:   s.UnlockedDays(enrollment, s.clock.Now()),
		CompletedDays:  days,
		CompletedCount: len(days),
		CompletedWeeks: weeks,
		ExpiresAt:      enrollment.ExpiresAt,
	}, nil
}

// weekCompleted reports whether days 7(w-1)+1 .. 7w are all completed.
func weekCompleted(set map[int]bool, week int) bool {
	for d := (week-1)*daysPerWeek + 1; d <= week*daysPerWeek; d++ {
		if !set[d] {
			return false
		}
	}
	return true
}

// Bound on compare-and-swap retries when concurrent marks contend for the
// same enrollment row.
const maxCompletedDaysRetries = 5

func (s *progressionServiceImpl) MarkDayComplete(ctx context.Context, userID, marathonID string, day int) error {
	for attempt := 0; attempt < maxCompletedDaysRetries; attempt++ {
		enrollment, err := s.usableEnrollment(ctx, userID, marathonID)
		if err != nil {
			return err
		}

		if day < 1 || day > enrollment.TotalDays {
			return model.ErrDayOutOfRange
		}
		if day > s.UnlockedDays(enrollment, s.clock.Now()) {
			return model.ErrDayLocked
		}

		set := enrollment.CompletedDaySet()
		if set[day] {
			// Set semantics: re-marking a completed day is a no-op.
			return nil
		}
		previous := enrollment.CompletedDays
		set[day] = true
		if err := enrollment.SetCompletedDays(set); err != nil {
			return err
		}

		swapped, err := s.enrollmentRepo.CompareAndSwapCompletedDays(ctx, enrollment.ID, previous, enrollment.CompletedDays)
		if err != nil {
			return err
		}
		if swapped {
			return nil
		}
		// A concurrent mark changed the set; re-read and union again.
	}
	return fmt.Errorf("mark day %d complete: too many concurrent updates", day)
}

func (s *progressionServiceImpl) MarkExerciseComplete(ctx context.Context, userID, marathonID string, day int, exerciseID string) error {
	enrollment, err := s.usableEnrollment(ctx, userID, marathonID)
	if err != nil {
		return err
	}
	if day < 1 || day > enrollment.TotalDays {
		return model.ErrDayOutOfRange
	}
	if day > s.UnlockedDays(enrollment, s.clock.Now()) {
		return model.ErrDayLocked
	}

	return s.dayProgressRepo.Upsert(ctx, &model.DayProgress{
		UserID:     userID,
		MarathonID: marathonID,
		Day:        day,
		ExerciseID: exerciseID,
		Completed:  true,
	})
}

func (s *progressionServiceImpl) ExerciseAccess(ctx context.Context, userID, exerciseID string) (bool, time.Time, error) {
	purchase, err := s.purchaseRepo.FindActive(ctx, userID, exerciseID, s.clock.Now())
	if err != nil {
		return false, time.Time{}, err
	}
	if purchase == nil {
		return false, time.Time{}, nil
	}
	return true, purchase.ExpiresAt, nil
}

func (s *progressionServiceImpl) usableEnrollment(ctx context.Context, userID, marathonID string) (*model.Enrollment, error) {
	enrollment, err := s.enrollmentRepo.FindByUserAndMarathon(ctx, userID, marathonID)
	if err != nil {
		return nil, err
	}
	if enrollment == nil {
		return nil, model.ErrNotEnrolled
	}
	switch enrollment.Status {
	case model.EnrollmentActive, model.EnrollmentCompleted:
		return enrollment, nil
	default:
		return nil, model.ErrNotEnrolled
	}
}
