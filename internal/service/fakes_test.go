package service

import (
	"bytes"
	"context"
	"strconv"
	"sync"
	"time"

	"marathon-billing-engine/internal/client"
	"marathon-billing-engine/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// fakeTxManager runs the function directly; the fake repositories ignore
// the tx handle.
type fakeTxManager struct{}

func (fakeTxManager) Do(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*model.Order
	grants *fakeGrantRepo
}

func newFakeOrderRepo(grants *fakeGrantRepo) *fakeOrderRepo {
	return &fakeOrderRepo{
		orders: make(map[string]*model.Order),
		grants: grants,
	}
}

func (r *fakeOrderRepo) put(order model.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := order
	r.orders[o.OrderNumber] = &o
}

func (r *fakeOrderRepo) get(orderNumber string) model.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.orders[orderNumber]
}

func (r *fakeOrderRepo) Create(ctx context.Context, order *model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := *order
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	r.orders[o.OrderNumber] = &o
	return nil
}

func (r *fakeOrderRepo) FindByOrderNumber(ctx context.Context, orderNumber string) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderNumber]
	if !ok {
		return nil, model.ErrOrderNotFound
	}
	copied := *o
	return &copied, nil
}

func (r *fakeOrderRepo) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.GatewayOrderID == gatewayOrderID {
			copied := *o
			return &copied, nil
		}
	}
	return nil, model.ErrOrderNotFound
}

func (r *fakeOrderRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*model.Order, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Order
	for _, o := range r.orders {
		if o.UserID == userID {
			copied := *o
			out = append(out, &copied)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeOrderRepo) SetRegistered(ctx context.Context, orderNumber, gatewayOrderID, paymentURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderNumber]
	if !ok || o.Status != model.StatusPending {
		return nil
	}
	o.GatewayOrderID = gatewayOrderID
	o.PaymentURL = paymentURL
	o.Status = model.StatusProcessing
	return nil
}

func (r *fakeOrderRepo) MarkRegistrationFailed(ctx context.Context, orderNumber, errorCode, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderNumber]
	if !ok || o.Status != model.StatusPending {
		return nil
	}
	o.Status = model.StatusFailed
	o.ErrorCode = errorCode
	o.ErrorMessage = errorMessage
	return nil
}

func (r *fakeOrderRepo) TransitionTerminal(ctx context.Context, tx *gorm.DB, orderNumber string, status model.OrderStatus, paymentMethod string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderNumber]
	if !ok {
		return false, nil
	}
	if o.Status != model.StatusPending && o.Status != model.StatusProcessing {
		return false, nil
	}
	o.Status = status
	if paymentMethod != "" {
		o.PaymentMethod = paymentMethod
	}
	o.UpdatedAt = time.Now()
	return true, nil
}

func (r *fakeOrderRepo) MarkRefunded(ctx context.Context, orderNumber string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderNumber]
	if !ok || o.Status != model.StatusSucceeded {
		return false, nil
	}
	o.Status = model.StatusRefunded
	return true, nil
}

func (r *fakeOrderRepo) ListStaleUnpaid(ctx context.Context, olderThan time.Time) ([]*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Order
	for _, o := range r.orders {
		unpaid := o.Status == model.StatusPending || o.Status == model.StatusProcessing
		if unpaid && o.CreatedAt.Before(olderThan) {
			copied := *o
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeOrderRepo) ListSucceededWithoutGrant(ctx context.Context, succeededBefore time.Time) ([]*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Order
	for _, o := range r.orders {
		if o.Status == model.StatusSucceeded && o.UpdatedAt.Before(succeededBefore) && !r.grants.has(o.OrderNumber) {
			copied := *o
			out = append(out, &copied)
		}
	}
	return out, nil
}

type fakeGrantRepo struct {
	mu     sync.Mutex
	grants map[string]model.EntitlementGrant
}

func newFakeGrantRepo() *fakeGrantRepo {
	return &fakeGrantRepo{grants: make(map[string]model.EntitlementGrant)}
}

func (r *fakeGrantRepo) has(orderNumber string) bool {
	_, ok := r.grants[orderNumber]
	return ok
}

func (r *fakeGrantRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.grants)
}

func (r *fakeGrantRepo) Exists(ctx context.Context, tx *gorm.DB, orderNumber string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.grants[orderNumber]
	return ok, nil
}

func (r *fakeGrantRepo) Create(ctx context.Context, tx *gorm.DB, grant *model.EntitlementGrant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grants[grant.OrderNumber] = *grant
	return nil
}

type fakeEnrollmentRepo struct {
	mu          sync.Mutex
	enrollments map[string]*model.Enrollment
	nextID      uint
}

func newFakeEnrollmentRepo() *fakeEnrollmentRepo {
	return &fakeEnrollmentRepo{
		enrollments: make(map[string]*model.Enrollment),
		nextID:      1,
	}
}

func enrollmentKey(userID, marathonID string) string {
	return userID + "/" + marathonID
}

func (r *fakeEnrollmentRepo) find(userID, marathonID string) (*model.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.enrollments[enrollmentKey(userID, marathonID)]
	if !ok {
		return nil, nil
	}
	copied := *e
	return &copied, nil
}

func (r *fakeEnrollmentRepo) FindByUserAndMarathon(ctx context.Context, userID, marathonID string) (*model.Enrollment, error) {
	return r.find(userID, marathonID)
}

func (r *fakeEnrollmentRepo) FindForGrant(ctx context.Context, tx *gorm.DB, userID, marathonID string) (*model.Enrollment, error) {
	return r.find(userID, marathonID)
}

func (r *fakeEnrollmentRepo) Create(ctx context.Context, tx *gorm.DB, enrollment *model.Enrollment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := enrollmentKey(enrollment.UserID, enrollment.MarathonID)
	if _, ok := r.enrollments[key]; ok {
		return model.ErrAlreadyEnrolled
	}
	enrollment.ID = r.nextID
	r.nextID++
	copied := *enrollment
	r.enrollments[key] = &copied
	return nil
}

func (r *fakeEnrollmentRepo) Save(ctx context.Context, tx *gorm.DB, enrollment *model.Enrollment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *enrollment
	r.enrollments[enrollmentKey(enrollment.UserID, enrollment.MarathonID)] = &copied
	return nil
}

func (r *fakeEnrollmentRepo) CompareAndSwapCompletedDays(ctx context.Context, id uint, previous, next datatypes.JSON) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.enrollments {
		if stored.ID != id {
			continue
		}
		if !bytes.Equal(stored.CompletedDays, previous) {
			return false, nil
		}
		stored.CompletedDays = next
		return true, nil
	}
	return false, nil
}

func (r *fakeEnrollmentRepo) ListByUser(ctx context.Context, userID string) ([]*model.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Enrollment
	for _, e := range r.enrollments {
		if e.UserID == userID {
			copied := *e
			out = append(out, &copied)
		}
	}
	return out, nil
}

type fakePurchaseRepo struct {
	mu        sync.Mutex
	purchases map[string]*model.Purchase
}

func newFakePurchaseRepo() *fakePurchaseRepo {
	return &fakePurchaseRepo{purchases: make(map[string]*model.Purchase)}
}

func purchaseKey(userID, exerciseID string) string {
	return userID + "/" + exerciseID
}

func (r *fakePurchaseRepo) Exists(ctx context.Context, tx *gorm.DB, userID, exerciseID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.purchases[purchaseKey(userID, exerciseID)]
	return ok, nil
}

func (r *fakePurchaseRepo) Create(ctx context.Context, tx *gorm.DB, purchase *model.Purchase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *purchase
	r.purchases[purchaseKey(purchase.UserID, purchase.ExerciseID)] = &copied
	return nil
}

func (r *fakePurchaseRepo) FindActive(ctx context.Context, userID, exerciseID string, now time.Time) (*model.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.purchases[purchaseKey(userID, exerciseID)]
	if !ok || !now.Before(p.ExpiresAt) {
		return nil, nil
	}
	copied := *p
	return &copied, nil
}

type fakePremiumRepo struct {
	mu     sync.Mutex
	passes map[string]*model.PremiumPass
}

func newFakePremiumRepo() *fakePremiumRepo {
	return &fakePremiumRepo{passes: make(map[string]*model.PremiumPass)}
}

func (r *fakePremiumRepo) Get(ctx context.Context, userID string) (*model.PremiumPass, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.passes[userID]
	if !ok {
		return nil, nil
	}
	copied := *p
	return &copied, nil
}

func (r *fakePremiumRepo) ExtendPremium(ctx context.Context, tx *gorm.DB, userID string, days int, now time.Time) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.passes[userID]
	if !ok {
		p = &model.PremiumPass{UserID: userID}
		r.passes[userID] = p
	}
	base := now
	if p.EndsAt.After(now) {
		base = p.EndsAt
	}
	p.EndsAt = base.AddDate(0, 0, days)
	return p.EndsAt, nil
}

func (r *fakePremiumRepo) ExtendPhotoDiary(ctx context.Context, tx *gorm.DB, userID string, days int, now time.Time) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.passes[userID]
	if !ok {
		p = &model.PremiumPass{UserID: userID}
		r.passes[userID] = p
	}
	base := now
	if p.PhotoDiaryEndsAt.After(now) {
		base = p.PhotoDiaryEndsAt
	}
	p.PhotoDiaryEndsAt = base.AddDate(0, 0, days)
	return p.PhotoDiaryEndsAt, nil
}

type fakeDayProgressRepo struct {
	mu   sync.Mutex
	rows map[string]*model.DayProgress
}

func newFakeDayProgressRepo() *fakeDayProgressRepo {
	return &fakeDayProgressRepo{rows: make(map[string]*model.DayProgress)}
}

func dayProgressKey(p *model.DayProgress) string {
	return p.UserID + "/" + p.MarathonID + "/" + strconv.Itoa(p.Day) + "/" + p.ExerciseID
}

func (r *fakeDayProgressRepo) Upsert(ctx context.Context, progress *model.DayProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *progress
	r.rows[dayProgressKey(progress)] = &copied
	return nil
}

func (r *fakeDayProgressRepo) ListForDay(ctx context.Context, userID, marathonID string, day int) ([]*model.DayProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.DayProgress
	for _, p := range r.rows {
		if p.UserID == userID && p.MarathonID == marathonID && p.Day == day {
			copied := *p
			out = append(out, &copied)
		}
	}
	return out, nil
}

type fakeGateway struct {
	mu sync.Mutex

	registerResult *client.RegisterOrderResult
	registerErr    error

	statusResult *client.OrderStatusResult
	statusErr    error
	statusCalls  int

	refundErr error
	reversed  []string
}

func (g *fakeGateway) RegisterOrder(ctx context.Context, params client.RegisterOrderParams) (*client.RegisterOrderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.registerErr != nil {
		return nil, g.registerErr
	}
	return g.registerResult, nil
}

func (g *fakeGateway) GetOrderStatus(ctx context.Context, gatewayOrderID string) (*client.OrderStatusResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statusCalls++
	if g.statusErr != nil {
		return nil, g.statusErr
	}
	return g.statusResult, nil
}

func (g *fakeGateway) RefundOrder(ctx context.Context, gatewayOrderID string, amount int64) error {
	return g.refundErr
}

func (g *fakeGateway) ReverseOrder(ctx context.Context, gatewayOrderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reversed = append(g.reversed, gatewayOrderID)
	return nil
}

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statusCalls
}

type fakeEmailClient struct{}

func (fakeEmailClient) SendEnrollmentConfirmation(ctx context.Context, userID, marathonName string) error {
	return nil
}

func (fakeEmailClient) SendPremiumActivated(ctx context.Context, userID string, endsAt time.Time) error {
	return nil
}

func (fakeEmailClient) SendPurchaseReceipt(ctx context.Context, userID, exerciseName string, expiresAt time.Time) error {
	return nil
}
