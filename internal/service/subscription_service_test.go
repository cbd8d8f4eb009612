package service

import (
	"os"
	"testing"
	"time"

	"chatpulse-go/internal/model"
	"chatpulse-go/pkg/log"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	log.Init("error", "console", "")
	os.Exit(m.Run())
}

type fakeSubscriptionRepo struct {
	created      []*model.Subscription
	byReference  map[string]*model.Subscription
	expiredUsers []uint
}

func newFakeSubscriptionRepo() *fakeSubscriptionRepo {
	return &fakeSubscriptionRepo{byReference: map[string]*model.Subscription{}}
}

func (f *fakeSubscriptionRepo) Create(sub *model.Subscription) error {
	f.created = append(f.created, sub)
	f.byReference[sub.FlutterwaveReference] = sub
	return nil
}

func (f *fakeSubscriptionRepo) FindActiveByUser(userID uint) (*model.Subscription, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeSubscriptionRepo) FindByReference(reference string) (*model.Subscription, error) {
	if sub, ok := f.byReference[reference]; ok {
		return sub, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeSubscriptionRepo) ExpireActiveByUser(userID uint) error {
	f.expiredUsers = append(f.expiredUsers, userID)
	return nil
}

func (f *fakeSubscriptionRepo) Update(sub *model.Subscription) error { return nil }

type fakeUserRepo struct {
	users map[uint]*model.User
}

func (f *fakeUserRepo) Create(user *model.User) error { return nil }

func (f *fakeUserRepo) FindByEmail(email string) (*model.User, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserRepo) FindByUsername(username string) (*model.User, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserRepo) FindByID(userID uint) (*model.User, error) {
	if u, ok := f.users[userID]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserRepo) Update(user *model.User) error { return nil }

func TestApplySuccessfulPaymentThirtyDayExpiry(t *testing.T) {
	subRepo := newFakeSubscriptionRepo()
	userRepo := &fakeUserRepo{users: map[uint]*model.User{
		7: {ID: 7, Email: "t@example.com", SubscriptionPlan: model.PlanFree},
	}}
	svc := NewSubscriptionService(subRepo, userRepo)

	require.NoError(t, svc.ApplySuccessfulPayment("chatpulse_7_1700000000", 99.99, "USD"))

	require.Len(t, subRepo.created, 1)
	sub := subRepo.created[0]
	assert.Equal(t, model.PlanPro, sub.Plan)
	assert.Equal(t, model.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, []uint{7}, subRepo.expiredUsers)

	// 有效期固定 30 天（720 小时），与日历月长度无关
	require.NotNil(t, sub.ExpiresAt)
	assert.Equal(t, 30*24*time.Hour, sub.ExpiresAt.Sub(sub.StartedAt))

	user := userRepo.users[7]
	assert.Equal(t, model.PlanPro, user.SubscriptionPlan)
	assert.Equal(t, model.SubscriptionStatusActive, user.SubscriptionStatus)
}

func TestApplySuccessfulPaymentIdempotentByReference(t *testing.T) {
	subRepo := newFakeSubscriptionRepo()
	userRepo := &fakeUserRepo{users: map[uint]*model.User{
		7: {ID: 7, Email: "t@example.com", SubscriptionPlan: model.PlanFree},
	}}
	svc := NewSubscriptionService(subRepo, userRepo)

	require.NoError(t, svc.ApplySuccessfulPayment("chatpulse_7_1700000000", 99.99, "USD"))
	require.NoError(t, svc.ApplySuccessfulPayment("chatpulse_7_1700000000", 99.99, "USD"))
	assert.Len(t, subRepo.created, 1)
}

func TestUserIDFromReference(t *testing.T) {
	id, err := userIDFromReference("chatpulse_42_1700000000")
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)
}

func TestUserIDFromReferenceRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"chatpulse_42",
		"chatpulse_42_1700000000_extra",
		"stripe_42_1700000000",
		"chatpulse_abc_1700000000",
		"chatpulse_0_1700000000",
	}
	for _, ref := range cases {
		_, err := userIDFromReference(ref)
		assert.ErrorIs(t, err, ErrInvalidReference, "reference %q", ref)
	}
}

func TestPlanFromAmountThresholds(t *testing.T) {
	assert.Equal(t, model.PlanEnterprise, model.PlanFromAmount(299.99))
	assert.Equal(t, model.PlanEnterprise, model.PlanFromAmount(500))
	assert.Equal(t, model.PlanPro, model.PlanFromAmount(99.99))
	assert.Equal(t, model.PlanPro, model.PlanFromAmount(150))
	assert.Equal(t, model.PlanBasic, model.PlanFromAmount(29.99))
	assert.Equal(t, model.PlanFree, model.PlanFromAmount(10))
	assert.Equal(t, model.PlanFree, model.PlanFromAmount(0))
}
