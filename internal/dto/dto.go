package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

type CreateOrderRequest struct {
	Type        string          `json:"type"` // premium | exercise | marathon
	TargetID    string          `json:"target_id,omitempty"`
	Name        string          `json:"name,omitempty"`
	Duration    int             `json:"duration,omitempty"`
	Price       decimal.Decimal `json:"price"` // major units
	Description string          `json:"description,omitempty"`
}

type CreateOrderResponse struct {
	OrderNumber string          `json:"order_number"`
	PaymentURL  string          `json:"payment_url"`
	Amount      decimal.Decimal `json:"amount"`
}

type OrderStatusResponse struct {
	OrderNumber string          `json:"order_number"`
	Status      string          `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

// CallbackRequest is the gateway-pushed notification. Only the order
// reference is consumed; the authoritative status is re-queried.
type CallbackRequest struct {
	OrderID     string `json:"orderId" query:"orderId"`
	OrderNumber string `json:"orderNumber" query:"orderNumber"`
}

type RefundRequest struct {
	OrderNumber string `json:"order_number"`
}

type EnrollRequest struct {
	TotalDays int  `json:"total_days"`
	Free      bool `json:"free"`
}

type CompleteDayRequest struct {
	DayNumber int `json:"day_number"`
}

type ProgressResponse struct {
	Status         string    `json:"status"`
	EnrolledAt     time.Time `json:"enrolled_at"`
	TotalDays      int       `json:"total_days"`
	UnlockedDays   int       `json:"unlocked_days"`
	CompletedDays  []int     `json:"completed_days"`
	CompletedCount int       `json:"completed_count"`
	CompletedWeeks []int     `json:"completed_weeks"`
	ExpiresAt      time.Time `json:"expires_at"`
}

type ExerciseAccessResponse struct {
	HasAccess bool       `json:"has_access"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}

type OrderHistoryResponse struct {
	Orders     []*OrderStatusResponse `json:"orders"`
	Pagination Pagination             `json:"pagination"`
}
