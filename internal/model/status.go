package model

// OrderStatus is the canonical payment status stored in the order ledger.
// Gateway status codes are mapped onto it by the gateway client.
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusSucceeded  OrderStatus = "succeeded"
	StatusFailed     OrderStatus = "failed"
	StatusRefunded   OrderStatus = "refunded"
	StatusCancelled  OrderStatus = "cancelled"
)

// Terminal reports whether no further poll or callback may change the
// status. Refund is the single exception: succeeded may still move to
// refunded, guarded separately in the order repository.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal ledger
// transition.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusSucceeded ||
			next == StatusFailed || next == StatusCancelled
	case StatusProcessing:
		return next == StatusSucceeded || next == StatusFailed || next == StatusCancelled
	case StatusSucceeded:
		return next == StatusRefunded
	default:
		return false
	}
}
