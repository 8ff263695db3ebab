package model

import "errors"

var (
	// ErrOrderNotFound means no ledger row matches the given order number
	// or gateway order id.
	ErrOrderNotFound = errors.New("order not found")

	// ErrDayLocked means the requested marathon day has not been unlocked
	// yet for this enrollment. Recoverable: wait until the unlock time.
	ErrDayLocked = errors.New("day is not unlocked yet")

	// ErrDayOutOfRange means the day number is outside [1, totalDays].
	ErrDayOutOfRange = errors.New("day number out of range")

	// ErrNotEnrolled means the user has no usable enrollment for the marathon.
	ErrNotEnrolled = errors.New("not enrolled in this marathon")

	// ErrAlreadyEnrolled means an enrollment for the (user, marathon) pair
	// already exists.
	ErrAlreadyEnrolled = errors.New("already enrolled in this marathon")

	// ErrOrderNotRefundable means the order is not in a state that allows
	// a refund (only succeeded orders are).
	ErrOrderNotRefundable = errors.New("order is not refundable")
)
