package service

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"chatpulse-go/internal/model"
	"chatpulse-go/internal/repository"
	"chatpulse-go/pkg/log"

	"gorm.io/gorm"
)

var ErrInvalidReference = errors.New("invalid payment reference")

// PlanInfo 描述一个可订阅的套餐。
type PlanInfo struct {
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Currency  string  `json:"currency"`
	RuleLimit int     `json:"ruleLimit"`
}

// SubscriptionService 接口定义了订阅与支付回调的业务操作。
type SubscriptionService interface {
	ListPlans() []PlanInfo
	Current(userID uint) (*model.Subscription, error)
	PaymentReference(userID uint) string
	ApplySuccessfulPayment(reference string, amount float64, currency string) error
	HandleFailedPayment(reference string, amount float64, currency string) error
}

type subscriptionService struct {
	subRepo  repository.SubscriptionRepository
	userRepo repository.UserRepository
}

// NewSubscriptionService 创建一个新的 SubscriptionService 实例。
func NewSubscriptionService(subRepo repository.SubscriptionRepository, userRepo repository.UserRepository) SubscriptionService {
	return &subscriptionService{subRepo: subRepo, userRepo: userRepo}
}

// ListPlans 返回全部付费套餐，价格与 PlanFromAmount 的阈值保持一致。
func (s *subscriptionService) ListPlans() []PlanInfo {
	return []PlanInfo{
		{Name: model.PlanBasic, Price: 29.99, Currency: "USD", RuleLimit: model.RuleLimit(model.PlanBasic)},
		{Name: model.PlanPro, Price: 99.99, Currency: "USD", RuleLimit: model.RuleLimit(model.PlanPro)},
		{Name: model.PlanEnterprise, Price: 299.99, Currency: "USD", RuleLimit: model.RuleLimit(model.PlanEnterprise)},
	}
}

func (s *subscriptionService) Current(userID uint) (*model.Subscription, error) {
	sub, err := s.subRepo.FindActiveByUser(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return sub, nil
}

// PaymentReference 生成发起支付时使用的交易引用。
func (s *subscriptionService) PaymentReference(userID uint) string {
	return fmt.Sprintf("chatpulse_%d_%d", userID, time.Now().Unix())
}

// ApplySuccessfulPayment 处理支付成功回调：
// 解析引用中的租户 ID，按金额确定套餐，过期旧订阅并写入新订阅。
// 重复投递的回调按引用去重，直接返回成功。
func (s *subscriptionService) ApplySuccessfulPayment(reference string, amount float64, currency string) error {
	userID, err := userIDFromReference(reference)
	if err != nil {
		return err
	}

	// 幂等：相同引用只处理一次
	if _, err := s.subRepo.FindByReference(reference); err == nil {
		log.Infof("[SubscriptionService] 重复的支付回调, reference: %s", reference)
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	user, err := s.userRepo.FindByID(userID)
	if err != nil {
		return fmt.Errorf("支付回调对应的租户不存在: %w", err)
	}

	plan := model.PlanFromAmount(amount)
	if plan == model.PlanFree {
		return fmt.Errorf("支付金额 %.2f 无法匹配任何套餐", amount)
	}

	if err := s.subRepo.ExpireActiveByUser(user.ID); err != nil {
		return err
	}

	now := time.Now()
	// 订阅有效期固定 30 天，而不是一个日历月
	expires := now.Add(30 * 24 * time.Hour)
	sub := &model.Subscription{
		UserID:               user.ID,
		Plan:                 plan,
		Amount:               amount,
		Currency:             currency,
		Status:               model.SubscriptionStatusActive,
		FlutterwaveReference: reference,
		StartedAt:            now,
		ExpiresAt:            &expires,
	}
	if err := s.subRepo.Create(sub); err != nil {
		return err
	}

	user.SubscriptionPlan = plan
	user.SubscriptionStatus = model.SubscriptionStatusActive
	if err := s.userRepo.Update(user); err != nil {
		return err
	}

	log.Infof("[SubscriptionService] 订阅生效, user: %d, plan: %s, reference: %s", user.ID, plan, reference)
	return nil
}

// HandleFailedPayment 记录失败的支付，不改变租户当前套餐。
func (s *subscriptionService) HandleFailedPayment(reference string, amount float64, currency string) error {
	userID, err := userIDFromReference(reference)
	if err != nil {
		return err
	}
	if _, err := s.subRepo.FindByReference(reference); err == nil {
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	sub := &model.Subscription{
		UserID:               userID,
		Plan:                 model.PlanFromAmount(amount),
		Amount:               amount,
		Currency:             currency,
		Status:               model.SubscriptionStatusFailed,
		FlutterwaveReference: reference,
		StartedAt:            time.Now(),
	}
	if err := s.subRepo.Create(sub); err != nil {
		return err
	}
	log.Warnf("[SubscriptionService] 支付失败, user: %d, reference: %s", userID, reference)
	return nil
}

// userIDFromReference 解析形如 chatpulse_{userID}_{timestamp} 的交易引用。
func userIDFromReference(reference string) (uint, error) {
	parts := strings.Split(reference, "_")
	if len(parts) != 3 || parts[0] != "chatpulse" {
		return 0, ErrInvalidReference
	}
	id, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil || id == 0 {
		return 0, ErrInvalidReference
	}
	return uint(id), nil
}
