package repository

import (
	"context"
	"errors"
	"time"

	"marathon-billing-engine/internal/model"

	"gorm.io/gorm"
)

// OrderRepository is the order ledger. Status is advanced only through the
// compare-and-set methods below; a transition is accepted only while the
// current status is still non-terminal, which is what makes duplicate
// callbacks and concurrent polls safe.
type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) error
	FindByOrderNumber(ctx context.Context, orderNumber string) (*model.Order, error)
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*model.Order, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*model.Order, int64, error)

	// SetRegistered records the gateway's order id and payment form URL
	// and moves pending -> processing.
	SetRegistered(ctx context.Context, orderNumber, gatewayOrderID, paymentURL string) error
	// MarkRegistrationFailed moves a pending order to failed with the
	// gateway's rejection details.
	MarkRegistrationFailed(ctx context.Context, orderNumber, errorCode, errorMessage string) error

	// TransitionTerminal applies a terminal status iff the order is still
	// pending or processing. Returns whether the transition was accepted.
	TransitionTerminal(ctx context.Context, tx *gorm.DB, orderNumber string, status model.OrderStatus, paymentMethod string) (bool, error)
	// MarkRefunded moves succeeded -> refunded, the only transition out of
	// a terminal state. Returns whether it was accepted.
	MarkRefunded(ctx context.Context, orderNumber string) (bool, error)

	// ListStaleUnpaid finds non-terminal orders older than the cutoff:
	// pending rows whose registration never completed, and processing rows
	// that registered but were never paid (abandoned checkouts).
	ListStaleUnpaid(ctx context.Context, olderThan time.Time) ([]*model.Order, error)
	// ListSucceededWithoutGrant finds succeeded orders with no matching
	// entitlement grant record: the crash window the sweep repairs.
	ListSucceededWithoutGrant(ctx context.Context, succeededBefore time.Time) ([]*model.Order, error)
}

type orderRepoImpl struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepoImpl{
		db: db,
	}
}

func (r *orderRepoImpl) Create(ctx context.Context, order *model.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *orderRepoImpl) FindByOrderNumber(ctx context.Context, orderNumber string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Where("order_number = ?", orderNumber).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepoImpl) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Where("gateway_order_id = ?", gatewayOrderID).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepoImpl) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*model.Order, int64, error) {
	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&orders).Error
	if err != nil {
		return nil, 0, err
	}

	var total int64
	err = r.db.WithContext(ctx).Model(&model.Order{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *orderRepoImpl) SetRegistered(ctx context.Context, orderNumber, gatewayOrderID, paymentURL string) error {
	return r.db.WithContext(ctx).Model(&model.Order{}).
		Where("order_number = ? AND status = ?", orderNumber, model.StatusPending).
		Updates(map[string]interface{}{
			"gateway_order_id": gatewayOrderID,
			"payment_url":      paymentURL,
			"status":           model.StatusProcessing,
			"updated_at":       time.Now(),
		}).Error
}

func (r *orderRepoImpl) MarkRegistrationFailed(ctx context.Context, orderNumber, errorCode, errorMessage string) error {
	return r.db.WithContext(ctx).Model(&model.Order{}).
		Where("order_number = ? AND status = ?", orderNumber, model.StatusPending).
		Updates(map[string]interface{}{
			"status":        model.StatusFailed,
			"error_code":    errorCode,
			"error_message": errorMessage,
			"updated_at":    time.Now(),
		}).Error
}

func (r *orderRepoImpl) TransitionTerminal(ctx context.Context, tx *gorm.DB, orderNumber string, status model.OrderStatus, paymentMethod string) (bool, error) {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}
	if paymentMethod != "" {
		updates["payment_method"] = paymentMethod
	}
	result := tx.WithContext(ctx).Model(&model.Order{}).
		Where(`
			order_number = ?
			AND status IN ?
		`,
			orderNumber,
			[]model.OrderStatus{model.StatusPending, model.StatusProcessing},
		).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *orderRepoImpl) MarkRefunded(ctx context.Context, orderNumber string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("order_number = ? AND status = ?", orderNumber, model.StatusSucceeded).
		Updates(map[string]interface{}{
			"status":     model.StatusRefunded,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *orderRepoImpl) ListStaleUnpaid(ctx context.Context, olderThan time.Time) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?",
			[]model.OrderStatus{model.StatusPending, model.StatusProcessing}, olderThan).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *orderRepoImpl) ListSucceededWithoutGrant(ctx context.Context, succeededBefore time.Time) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Joins("LEFT JOIN entitlement_grants g ON g.order_number = orders.order_number").
		Where("orders.status = ? AND orders.updated_at < ? AND g.order_number IS NULL",
			model.StatusSucceeded, succeededBefore).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}
