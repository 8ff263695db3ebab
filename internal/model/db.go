package model

import (
	"encoding/json"
	"sort"
	"time"

	"gorm.io/datatypes"
)

// Order is one attempt to pay for a product through the gateway. Rows are
// never deleted; they are the audit record of every payment attempt.
type Order struct {
	OrderNumber    string      `gorm:"primaryKey;size:64;not null"` // caller-generated idempotency key
	UserID         string      `gorm:"size:64;index;not null"`
	GatewayOrderID string      `gorm:"size:64;index"` // assigned by the bank after registration
	Amount         int64       `gorm:"not null"`      // minor units (kopecks)
	Currency       string      `gorm:"size:8;not null"`
	Status         OrderStatus `gorm:"size:16;index;not null"`
	PaymentMethod  string      `gorm:"size:16"` // card, sbp, unknown
	Description    string      `gorm:"size:255;not null"`
	PaymentURL     string      `gorm:"size:512"`
	ErrorCode      string      `gorm:"size:16"`
	ErrorMessage   string      `gorm:"size:255"`
	Metadata       datatypes.JSON
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ProductRef decodes the order's metadata payload.
func (o *Order) ProductRef() (ProductRef, error) {
	return ParseProductRef(o.Metadata)
}

type EnrollmentStatus string

const (
	EnrollmentPending   EnrollmentStatus = "pending"
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentCancelled EnrollmentStatus = "cancelled"
)

// Enrollment is the durable marathon entitlement, one per (user, marathon).
type Enrollment struct {
	ID            uint             `gorm:"primaryKey"`
	UserID        string           `gorm:"size:64;uniqueIndex:idx_user_marathon;not null"`
	MarathonID    string           `gorm:"size:64;uniqueIndex:idx_user_marathon;not null"`
	Status        EnrollmentStatus `gorm:"size:16;index;not null"`
	EnrolledAt    time.Time        // day zero for unlocking; zero until activated
	TotalDays     int              `gorm:"not null"`
	CompletedDays datatypes.JSON   // sorted []int, set semantics
	OrderNumber   string           `gorm:"size:64;index"` // originating order, empty for free enrollments
	IsPaid        bool             `gorm:"not null"`
	ExpiresAt     time.Time        `gorm:"index"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CompletedDaySet decodes the completed-days column. A broken column is
// treated as empty rather than failing reads.
func (e *Enrollment) CompletedDaySet() map[int]bool {
	var days []int
	if len(e.CompletedDays) > 0 {
		_ = json.Unmarshal(e.CompletedDays, &days)
	}
	set := make(map[int]bool, len(days))
	for _, d := range days {
		set[d] = true
	}
	return set
}

// SetCompletedDays encodes the set back to the column in sorted order.
func (e *Enrollment) SetCompletedDays(set map[int]bool) error {
	days := make([]int, 0, len(set))
	for d := range set {
		days = append(days, d)
	}
	sort.Ints(days)
	raw, err := json.Marshal(days)
	if err != nil {
		return err
	}
	e.CompletedDays = raw
	return nil
}

// Purchase is a standalone exercise entitlement with a fixed validity
// window. Access is granted iff now is before ExpiresAt.
type Purchase struct {
	ID           uint   `gorm:"primaryKey"`
	UserID       string `gorm:"size:64;uniqueIndex:idx_user_exercise;not null"`
	ExerciseID   string `gorm:"size:64;uniqueIndex:idx_user_exercise;not null"`
	ExerciseName string `gorm:"size:255"`
	Price        int64  `gorm:"not null"` // minor units
	OrderNumber  string `gorm:"size:64;index"`
	PurchasedAt  time.Time
	ExpiresAt    time.Time `gorm:"index;not null"`
	CreatedAt    time.Time
}

// PremiumPass tracks the per-user premium and photo-diary windows. Grants
// extend from max(now, current end), so stacked purchases add up.
type PremiumPass struct {
	UserID           string `gorm:"primaryKey;size:64;not null"`
	EndsAt           time.Time
	PhotoDiaryEndsAt time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// EntitlementGrant records that an order's entitlement has been applied.
// Its primary key is the grantor's idempotency guard.
type EntitlementGrant struct {
	OrderNumber string `gorm:"primaryKey;size:64;not null"`
	GrantedAt   time.Time
	CreatedAt   time.Time
}

// DayProgress is the per-exercise completion flag inside a marathon day.
type DayProgress struct {
	UserID     string `gorm:"primaryKey;size:64;not null"`
	MarathonID string `gorm:"primaryKey;size:64;not null"`
	Day        int    `gorm:"primaryKey;not null"`
	ExerciseID string `gorm:"primaryKey;size:64;not null"`
	Completed  bool   `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
