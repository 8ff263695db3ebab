package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"marathon-billing-engine/internal/client"
	"marathon-billing-engine/internal/clock"
	"marathon-billing-engine/internal/model"
	"marathon-billing-engine/internal/repository"

	"gorm.io/gorm"
)

// Orders succeeded longer than this without a grant record indicate a
// crash between the status transition and the entitlement write.
const grantGapThreshold = time.Minute

// Non-terminal orders older than this are abandoned checkouts.
const staleOrderThreshold = 24 * time.Hour

// SweeperService closes the windows the reconciliation design accepts
// instead of a distributed transaction: succeeded orders whose entitlement
// never landed, and pending or processing orders nobody will ever pay.
type SweeperService interface {
	RepairGrantGaps(ctx context.Context) (int, error)
	ExpireStaleOrders(ctx context.Context) (int, error)
}

type sweeperServiceImpl struct {
	txManager   repository.TxManager
	orderRepo   repository.OrderRepository
	gateway     client.AlfabankClient
	payment     PaymentService
	entitlement EntitlementService
	clock       clock.Clock
}

func NewSweeperService(
	txManager repository.TxManager,
	orderRepo repository.OrderRepository,
	gateway client.AlfabankClient,
	payment PaymentService,
	entitlement EntitlementService,
	clk clock.Clock,
) SweeperService {
	return &sweeperServiceImpl{
		txManager:   txManager,
		orderRepo:   orderRepo,
		gateway:     gateway,
		payment:     payment,
		entitlement: entitlement,
		clock:       clk,
	}
}

func (s *sweeperServiceImpl) RepairGrantGaps(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-grantGapThreshold)
	orders, err := s.orderRepo.ListSucceededWithoutGrant(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list succeeded orders without grant: %w", err)
	}

	repaired := 0
	for _, order := range orders {
		// Operational alert: this only happens after a crash between the
		// status transition and the entitlement write.
		log.Printf("reconciliation gap: order %s succeeded with no entitlement, re-granting", order.OrderNumber)

		order := order
		err := s.txManager.Do(ctx, func(tx *gorm.DB) error {
			return s.entitlement.Grant(ctx, tx, order)
		})
		if err != nil {
			log.Printf("repair grant for order %s: %v", order.OrderNumber, err)
			continue
		}
		repaired++
	}
	return repaired, nil
}

// ExpireStaleOrders cancels abandoned checkouts. Registered orders are
// re-checked against the gateway first: a stale processing order may be a
// paid one whose callback was lost, and those are settled through the
// normal reconciliation path, never cancelled.
func (s *sweeperServiceImpl) ExpireStaleOrders(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-staleOrderThreshold)
	orders, err := s.orderRepo.ListStaleUnpaid(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stale unpaid orders: %w", err)
	}

	cancelled := 0
	for _, order := range orders {
		if order.GatewayOrderID != "" {
			result, err := s.gateway.GetOrderStatus(ctx, order.GatewayOrderID)
			if err != nil {
				// The gateway cannot vouch for this order right now; leave
				// it for the next sweep rather than cancel a possibly paid
				// order.
				log.Printf("skip stale order %s: gateway status query failed: %v", order.OrderNumber, err)
				continue
			}
			if result.Status.Terminal() {
				log.Printf("stale order %s settled at the gateway as %s, reconciling", order.OrderNumber, result.Status)
				if err := s.payment.HandleCallback(ctx, order.GatewayOrderID, ""); err != nil {
					log.Printf("reconcile stale order %s: %v", order.OrderNumber, err)
				}
				continue
			}
			// Still unpaid at the gateway; drop the authorization.
			if err := s.gateway.ReverseOrder(ctx, order.GatewayOrderID); err != nil {
				log.Printf("reverse stale order %s at gateway: %v", order.OrderNumber, err)
			}
		}

		var accepted bool
		err := s.txManager.Do(ctx, func(tx *gorm.DB) error {
			var err error
			accepted, err = s.orderRepo.TransitionTerminal(ctx, tx, order.OrderNumber, model.StatusCancelled, "")
			return err
		})
		if err != nil {
			log.Printf("cancel stale order %s: %v", order.OrderNumber, err)
			continue
		}
		if accepted {
			cancelled++
		}
	}
	return cancelled, nil
}
