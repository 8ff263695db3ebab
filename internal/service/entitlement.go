package service

import (
	"context"
	"fmt"
	"log"

	"marathon-billing-engine/internal/client"
	"marathon-billing-engine/internal/clock"
	"marathon-billing-engine/internal/model"
	"marathon-billing-engine/internal/repository"

	"gorm.io/gorm"
)

// Validity window for a standalone exercise purchase.
const exerciseAccessDays = 30

// Buying a marathon also extends the photo diary.
const photoDiaryBonusDays = 90

// EntitlementService converts a succeeded order into a durable entitlement.
// Grant is idempotent: it is keyed by order number through the grant
// record, so invoking it any number of times applies the entitlement once.
type EntitlementService interface {
	// Grant must run inside the same transaction that accepted the order's
	// transition to succeeded, so a crash cannot leave a succeeded order
	// with no entitlement behind a committed transition.
	Grant(ctx context.Context, tx *gorm.DB, order *model.Order) error
}

type entitlementServiceImpl struct {
	grantRepo      repository.GrantRepository
	enrollmentRepo repository.EnrollmentRepository
	purchaseRepo   repository.PurchaseRepository
	premiumRepo    repository.PremiumRepository
	emailClient    client.EmailClient
	clock          clock.Clock
}

func NewEntitlementService(
	grantRepo repository.GrantRepository,
	enrollmentRepo repository.EnrollmentRepository,
	purchaseRepo repository.PurchaseRepository,
	premiumRepo repository.PremiumRepository,
	emailClient client.EmailClient,
	clk clock.Clock,
) EntitlementService {
	return &entitlementServiceImpl{
		grantRepo:      grantRepo,
		enrollmentRepo: enrollmentRepo,
		purchaseRepo:   purchaseRepo,
		premiumRepo:    premiumRepo,
		emailClient:    emailClient,
		clock:          clk,
	}
}

func (s *entitlementServiceImpl) Grant(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	granted, err := s.grantRepo.Exists(ctx, tx, order.OrderNumber)
	if err != nil {
		return fmt.Errorf("check grant record: %w", err)
	}
	if granted {
		// Duplicate grant attempt, absorbed silently.
		log.Printf("entitlement already granted for order %s, skipping", order.OrderNumber)
		return nil
	}

	ref, err := order.ProductRef()
	if err != nil {
		return fmt.Errorf("order %s: %w", order.OrderNumber, err)
	}

	switch ref.Type {
	case model.ProductPremium:
		err = s.grantPremium(ctx, tx, order, ref)
	case model.ProductExercise:
		err = s.grantExercise(ctx, tx, order, ref)
	case model.ProductMarathon:
		err = s.grantMarathon(ctx, tx, order, ref)
	default:
		err = fmt.Errorf("unknown product type %q", ref.Type)
	}
	if err != nil {
		return err
	}

	return s.grantRepo.Create(ctx, tx, &model.EntitlementGrant{
		OrderNumber: order.OrderNumber,
		GrantedAt:   s.clock.Now(),
	})
}

func (s *entitlementServiceImpl) grantPremium(ctx context.Context, tx *gorm.DB, order *model.Order, ref model.ProductRef) error {
	endsAt, err := s.premiumRepo.ExtendPremium(ctx, tx, order.UserID, ref.Duration, s.clock.Now())
	if err != nil {
		return fmt.Errorf("extend premium for user %s: %w", order.UserID, err)
	}

	s.notify(func(ctx context.Context) error {
		return s.emailClient.SendPremiumActivated(ctx, order.UserID, endsAt)
	})
	return nil
}

func (s *entitlementServiceImpl) grantExercise(ctx context.Context, tx *gorm.DB, order *model.Order, ref model.ProductRef) error {
	exists, err := s.purchaseRepo.Exists(ctx, tx, order.UserID, ref.TargetID)
	if err != nil {
		return fmt.Errorf("check existing purchase: %w", err)
	}
	if exists {
		// Second successful payment for the same exercise keeps the first
		// purchase and its expiry.
		log.Printf("exercise %s already purchased by user %s, order %s is a no-op",
			ref.TargetID, order.UserID, order.OrderNumber)
		return nil
	}

	now := s.clock.Now()
	expiresAt := now.AddDate(0, 0, exerciseAccessDays)
	err = s.purchaseRepo.Create(ctx, tx, &model.Purchase{
		UserID:       order.UserID,
		ExerciseID:   ref.TargetID,
		ExerciseName: ref.Name,
		Price:        order.Amount,
		OrderNumber:  order.OrderNumber,
		PurchasedAt:  now,
		ExpiresAt:    expiresAt,
	})
	if err != nil {
		return fmt.Errorf("create purchase: %w", err)
	}

	s.notify(func(ctx context.Context) error {
		return s.emailClient.SendPurchaseReceipt(ctx, order.UserID, ref.Name, expiresAt)
	})
	return nil
}

func (s *entitlementServiceImpl) grantMarathon(ctx context.Context, tx *gorm.DB, order *model.Order, ref model.ProductRef) error {
	now := s.clock.Now()

	enrollment, err := s.enrollmentRepo.FindForGrant(ctx, tx, order.UserID, ref.TargetID)
	if err != nil {
		return fmt.Errorf("find enrollment: %w", err)
	}

	if enrollment == nil {
		enrollment = &model.Enrollment{
			UserID:      order.UserID,
			MarathonID:  ref.TargetID,
			Status:      model.EnrollmentActive,
			EnrolledAt:  now,
			TotalDays:   ref.Duration,
			OrderNumber: order.OrderNumber,
			IsPaid:      true,
			ExpiresAt:   now.AddDate(0, 0, ref.Duration),
		}
		if err := enrollment.SetCompletedDays(nil); err != nil {
			return err
		}
		if err := s.enrollmentRepo.Create(ctx, tx, enrollment); err != nil {
			return fmt.Errorf("create enrollment: %w", err)
		}
	} else {
		// A pending free-tier pre-registration becomes the paid enrollment
		// rather than duplicating.
		enrollment.Status = model.EnrollmentActive
		enrollment.IsPaid = true
		enrollment.OrderNumber = order.OrderNumber
		if enrollment.EnrolledAt.IsZero() {
			enrollment.EnrolledAt = now
			enrollment.ExpiresAt = now.AddDate(0, 0, enrollment.TotalDays)
		}
		if enrollment.TotalDays == 0 {
			enrollment.TotalDays = ref.Duration
		}
		if err := s.enrollmentRepo.Save(ctx, tx, enrollment); err != nil {
			return fmt.Errorf("activate enrollment: %w", err)
		}
	}

	if _, err := s.premiumRepo.ExtendPhotoDiary(ctx, tx, order.UserID, photoDiaryBonusDays, now); err != nil {
		return fmt.Errorf("extend photo diary: %w", err)
	}

	s.notify(func(ctx context.Context) error {
		return s.emailClient.SendEnrollmentConfirmation(ctx, order.UserID, ref.Name)
	})
	return nil
}

// notify runs a mail send in the background. Notification failure never
// rolls back the entitlement.
func (s *entitlementServiceImpl) notify(send func(ctx context.Context) error) {
	go func() {
		if err := send(context.Background()); err != nil {
			log.Printf("send notification: %v", err)
		}
	}()
}
