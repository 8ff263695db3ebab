package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"marathon-billing-engine/internal/client"
	"marathon-billing-engine/internal/clock"
	"marathon-billing-engine/internal/dto"
	"marathon-billing-engine/internal/model"
	"marathon-billing-engine/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RegistrationError is surfaced when the gateway rejects order creation.
// The order is already marked failed when the caller sees it.
type RegistrationError struct {
	OrderNumber string
	Cause       error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("order %s registration rejected: %v", e.OrderNumber, e.Cause)
}

func (e *RegistrationError) Unwrap() error {
	return e.Cause
}

// RetryPolicy bounds the caller-owned poll loop. The reconciliation
// functions themselves are single "apply once" operations.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    20,
		InitialBackoff: 3 * time.Second,
		MaxBackoff:     30 * time.Second,
	}
}

// PaymentService drives an order from creation to a terminal status. Both
// reconciliation triggers, the client poll and the gateway callback, funnel
// into one compare-and-set apply so the grant logic exists in one place.
type PaymentService interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*dto.CreateOrderResponse, error)
	// GetOrderStatus reconciles against the gateway as a side effect (poll
	// path). Safe to call repeatedly; transient gateway failures leave the
	// stored status untouched.
	GetOrderStatus(ctx context.Context, orderNumber string) (*model.Order, error)
	// HandleCallback resolves a gateway-pushed notification (callback
	// path). Returns nil for already-terminal orders: duplicate callbacks
	// are acked, not errored.
	HandleCallback(ctx context.Context, gatewayOrderID, orderNumber string) error
	// PollUntilTerminal re-polls with bounded backoff until the order
	// reaches a terminal status or the policy is exhausted.
	PollUntilTerminal(ctx context.Context, orderNumber string, policy RetryPolicy) (*model.Order, error)
	Refund(ctx context.Context, orderNumber string) error
	ListOrders(ctx context.Context, userID string, limit, offset int) ([]*model.Order, int64, error)
}

type CreateOrderInput struct {
	UserID      string
	Product     model.ProductRef
	Price       decimal.Decimal // major units
	Description string
}

type paymentServiceImpl struct {
	txManager   repository.TxManager
	gateway     client.AlfabankClient
	orderRepo   repository.OrderRepository
	entitlement EntitlementService
	clock       clock.Clock
	returnURL   string
	failURL     string
}

func NewPaymentService(
	txManager repository.TxManager,
	gateway client.AlfabankClient,
	orderRepo repository.OrderRepository,
	entitlement EntitlementService,
	clk clock.Clock,
	returnURL, failURL string,
) PaymentService {
	return &paymentServiceImpl{
		txManager:   txManager,
		gateway:     gateway,
		orderRepo:   orderRepo,
		entitlement: entitlement,
		clock:       clk,
		returnURL:   returnURL,
		failURL:     failURL,
	}
}

// newOrderNumber keeps the date component for support staff and a uuid
// fragment for uniqueness under concurrent creation.
func (s *paymentServiceImpl) newOrderNumber() string {
	return fmt.Sprintf("%s-%s", s.clock.Now().Format("20060102"), uuid.NewString()[:8])
}

func defaultDescription(ref model.ProductRef) string {
	switch ref.Type {
	case model.ProductPremium:
		return fmt.Sprintf("Premium subscription (%d days)", ref.Duration)
	case model.ProductExercise:
		return fmt.Sprintf("Photo and video materials for exercise %s", ref.Name)
	case model.ProductMarathon:
		return fmt.Sprintf("Access to marathon %s materials", ref.Name)
	}
	return ""
}

func (s *paymentServiceImpl) CreateOrder(ctx context.Context, input CreateOrderInput) (*dto.CreateOrderResponse, error) {
	if err := input.Product.Validate(); err != nil {
		return nil, err
	}
	if input.Price.IsNegative() || input.Price.IsZero() {
		return nil, fmt.Errorf("price must be positive")
	}

	amount := input.Price.Shift(2).Round(0).IntPart() // major units -> kopecks

	description := input.Description
	if description == "" {
		description = defaultDescription(input.Product)
	}

	metadata, err := input.Product.MarshalMetadata()
	if err != nil {
		return nil, err
	}

	order := &model.Order{
		OrderNumber: s.newOrderNumber(),
		UserID:      input.UserID,
		Amount:      amount,
		Currency:    "643",
		Status:      model.StatusPending,
		Description: description,
		Metadata:    metadata,
	}
	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("store order in db: %w", err)
	}

	// Registration must succeed before the order is shown to the user; a
	// rejected order is marked failed immediately, never left pending with
	// no gateway reference.
	result, err := s.gateway.RegisterOrder(ctx, client.RegisterOrderParams{
		OrderNumber: order.OrderNumber,
		Amount:      order.Amount,
		Currency:    order.Currency,
		Description: order.Description,
		ReturnURL:   s.returnURL,
		FailURL:     s.failURL,
	})
	if err != nil {
		code, message := "", err.Error()
		var gwErr *client.GatewayError
		if errors.As(err, &gwErr) {
			code, message = gwErr.Code, gwErr.Message
		}
		if markErr := s.orderRepo.MarkRegistrationFailed(ctx, order.OrderNumber, code, message); markErr != nil {
			log.Printf("mark order %s failed after registration error: %v", order.OrderNumber, markErr)
		}
		return nil, &RegistrationError{OrderNumber: order.OrderNumber, Cause: err}
	}

	if err := s.orderRepo.SetRegistered(ctx, order.OrderNumber, result.GatewayOrderID, result.FormURL); err != nil {
		return nil, fmt.Errorf("store gateway registration: %w", err)
	}

	return &dto.CreateOrderResponse{
		OrderNumber: order.OrderNumber,
		PaymentURL:  result.FormURL,
		Amount:      input.Price,
	}, nil
}

func (s *paymentServiceImpl) GetOrderStatus(ctx context.Context, orderNumber string) (*model.Order, error) {
	order, err := s.orderRepo.FindByOrderNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if order.Status.Terminal() || order.GatewayOrderID == "" {
		return order, nil
	}

	result, err := s.gateway.GetOrderStatus(ctx, order.GatewayOrderID)
	if err != nil {
		// Transient or explicit gateway errors on the poll path never
		// change the stored status; the caller simply retries later.
		log.Printf("poll order %s: gateway status query failed: %v", order.OrderNumber, err)
		return order, nil
	}

	if err := s.applyStatusResult(ctx, order, result); err != nil {
		return nil, err
	}
	return s.orderRepo.FindByOrderNumber(ctx, orderNumber)
}

func (s *paymentServiceImpl) HandleCallback(ctx context.Context, gatewayOrderID, orderNumber string) error {
	var order *model.Order
	var err error
	if gatewayOrderID != "" {
		order, err = s.orderRepo.FindByGatewayOrderID(ctx, gatewayOrderID)
	} else {
		order, err = s.orderRepo.FindByOrderNumber(ctx, orderNumber)
	}
	if err != nil {
		return err
	}
	if order.Status.Terminal() {
		// Duplicate callback for a settled order: idempotent ack.
		log.Printf("callback for terminal order %s (status %s) discarded", order.OrderNumber, order.Status)
		return nil
	}
	if order.GatewayOrderID == "" {
		// Never registered, so there is nothing to reconcile against.
		log.Printf("callback for unregistered order %s discarded", order.OrderNumber)
		return nil
	}

	// The pushed payload is not trusted; the authoritative status comes
	// from the gateway's status query.
	result, err := s.gateway.GetOrderStatus(ctx, order.GatewayOrderID)
	if err != nil {
		return fmt.Errorf("query gateway status for callback: %w", err)
	}

	return s.applyStatusResult(ctx, order, result)
}

// applyStatusResult is the single place both reconciliation triggers apply
// a gateway result. The transition is a compare-and-set: it is accepted
// only while the order is still non-terminal, and an accepted transition
// into succeeded runs the entitlement grant inside the same transaction.
func (s *paymentServiceImpl) applyStatusResult(ctx context.Context, order *model.Order, result *client.OrderStatusResult) error {
	switch result.Status {
	case model.StatusPending, model.StatusProcessing:
		// Not terminal yet; nothing to apply.
		return nil
	case model.StatusRefunded:
		accepted, err := s.orderRepo.MarkRefunded(ctx, order.OrderNumber)
		if err != nil {
			return fmt.Errorf("mark order refunded: %w", err)
		}
		if !accepted {
			log.Printf("refund result for order %s (status %s) discarded", order.OrderNumber, order.Status)
		}
		return nil
	}

	return s.txManager.Do(ctx, func(tx *gorm.DB) error {
		accepted, err := s.orderRepo.TransitionTerminal(ctx, tx, order.OrderNumber, result.Status, result.PaymentMethod)
		if err != nil {
			return fmt.Errorf("apply status %s to order %s: %w", result.Status, order.OrderNumber, err)
		}
		if !accepted {
			// The other trigger won the race; discard, do not error.
			log.Printf("stale status result %s for order %s discarded", result.Status, order.OrderNumber)
			return nil
		}
		if result.Status == model.StatusSucceeded {
			return s.entitlement.Grant(ctx, tx, order)
		}
		return nil
	})
}

func (s *paymentServiceImpl) PollUntilTerminal(ctx context.Context, orderNumber string, policy RetryPolicy) (*model.Order, error) {
	backoff := policy.InitialBackoff
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		order, err := s.GetOrderStatus(ctx, orderNumber)
		if err != nil {
			return nil, err
		}
		if order.Status.Terminal() {
			return order, nil
		}

		select {
		case <-ctx.Done():
			return order, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > policy.MaxBackoff {
			backoff = policy.MaxBackoff
		}
	}

	order, err := s.orderRepo.FindByOrderNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	return order, fmt.Errorf("order %s still %s after %d attempts", orderNumber, order.Status, policy.MaxAttempts)
}

func (s *paymentServiceImpl) Refund(ctx context.Context, orderNumber string) error {
	order, err := s.orderRepo.FindByOrderNumber(ctx, orderNumber)
	if err != nil {
		return err
	}
	if order.Status != model.StatusSucceeded {
		return model.ErrOrderNotRefundable
	}

	if err := s.gateway.RefundOrder(ctx, order.GatewayOrderID, order.Amount); err != nil {
		return fmt.Errorf("gateway refund: %w", err)
	}

	accepted, err := s.orderRepo.MarkRefunded(ctx, orderNumber)
	if err != nil {
		return fmt.Errorf("mark order refunded: %w", err)
	}
	if !accepted {
		return model.ErrOrderNotRefundable
	}
	return nil
}

func (s *paymentServiceImpl) ListOrders(ctx context.Context, userID string, limit, offset int) ([]*model.Order, int64, error) {
	return s.orderRepo.ListByUser(ctx, userID, limit, offset)
}
