package service

import (
	"context"
	"errors"
	"fmt"

	"chatpulse-go/internal/model"
	"chatpulse-go/internal/repository"

	"gorm.io/gorm"
)

var (
	ErrRuleNotFound      = errors.New("rule not found")
	ErrRuleLimitExceeded = errors.New("rule limit for current plan exceeded")
)

// RuleInput 是创建或更新规则时的入参。
type RuleInput struct {
	Name             string   `json:"name" binding:"required"`
	TriggerKeywords  []string `json:"triggerKeywords" binding:"required"`
	ResponseTemplate string   `json:"responseTemplate" binding:"required"`
	IsActive         *bool    `json:"isActive"`
	Priority         int      `json:"priority"`
}

// RuleUsage 汇总租户的规则用量信息。
type RuleUsage struct {
	Plan        string `json:"plan"`
	RuleLimit   int    `json:"ruleLimit"`
	TotalRules  int64  `json:"totalRules"`
	ActiveRules int64  `json:"activeRules"`
	GensToday   int64  `json:"generationsToday"`
}

// RuleService 接口定义了自动回复规则的业务操作。
type RuleService interface {
	CreateRule(userID uint, input RuleInput) (*model.AIRule, error)
	ListRules(userID uint) ([]model.AIRule, error)
	GetRule(userID, ruleID uint) (*model.AIRule, error)
	UpdateRule(userID, ruleID uint, input RuleInput) (*model.AIRule, error)
	DeleteRule(userID, ruleID uint) error
	ToggleRule(userID, ruleID uint) (*model.AIRule, error)
	Usage(ctx context.Context, user *model.User) (*RuleUsage, error)
}

type ruleService struct {
	ruleRepo  repository.RuleRepository
	userRepo  repository.UserRepository
	usageRepo repository.UsageRepository
}

// NewRuleService 创建一个新的 RuleService 实例。
func NewRuleService(ruleRepo repository.RuleRepository, userRepo repository.UserRepository, usageRepo repository.UsageRepository) RuleService {
	return &ruleService{
		ruleRepo:  ruleRepo,
		userRepo:  userRepo,
		usageRepo: usageRepo,
	}
}

// CreateRule 校验套餐上限后创建规则。
func (s *ruleService) CreateRule(userID uint, input RuleInput) (*model.AIRule, error) {
	user, err := s.userRepo.FindByID(userID)
	if err != nil {
		return nil, err
	}

	limit := model.RuleLimit(user.SubscriptionPlan)
	if limit >= 0 {
		count, err := s.ruleRepo.CountByUser(userID)
		if err != nil {
			return nil, err
		}
		if count >= int64(limit) {
			return nil, ErrRuleLimitExceeded
		}
	}

	rule := &model.AIRule{
		UserID:           userID,
		Name:             input.Name,
		ResponseTemplate: input.ResponseTemplate,
		Priority:         input.Priority,
		IsActive:         true,
	}
	if input.IsActive != nil {
		rule.IsActive = *input.IsActive
	}
	if err := rule.SetKeywordList(input.TriggerKeywords); err != nil {
		return nil, fmt.Errorf("序列化触发关键词失败: %w", err)
	}

	if err := s.ruleRepo.Create(rule); err != nil {
		return nil, err
	}
	return rule, nil
}

func (s *ruleService) ListRules(userID uint) ([]model.AIRule, error) {
	return s.ruleRepo.FindByUser(userID)
}

func (s *ruleService) GetRule(userID, ruleID uint) (*model.AIRule, error) {
	rule, err := s.ruleRepo.FindByIDAndUser(ruleID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRuleNotFound
		}
		return nil, err
	}
	return rule, nil
}

func (s *ruleService) UpdateRule(userID, ruleID uint, input RuleInput) (*model.AIRule, error) {
	rule, err := s.GetRule(userID, ruleID)
	if err != nil {
		return nil, err
	}

	rule.Name = input.Name
	rule.ResponseTemplate = input.ResponseTemplate
	rule.Priority = input.Priority
	if input.IsActive != nil {
		rule.IsActive = *input.IsActive
	}
	if err := rule.SetKeywordList(input.TriggerKeywords); err != nil {
		return nil, fmt.Errorf("序列化触发关键词失败: %w", err)
	}

	if err := s.ruleRepo.Update(rule); err != nil {
		return nil, err
	}
	return rule, nil
}

func (s *ruleService) DeleteRule(userID, ruleID uint) error {
	rule, err := s.GetRule(userID, ruleID)
	if err != nil {
		return err
	}
	return s.ruleRepo.Delete(rule)
}

// ToggleRule 翻转规则的启用状态。
func (s *ruleService) ToggleRule(userID, ruleID uint) (*model.AIRule, error) {
	rule, err := s.GetRule(userID, ruleID)
	if err != nil {
		return nil, err
	}
	rule.IsActive = !rule.IsActive
	if err := s.ruleRepo.Update(rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// Usage 返回租户的规则用量与当日生成次数。
func (s *ruleService) Usage(ctx context.Context, user *model.User) (*RuleUsage, error) {
	total, err := s.ruleRepo.CountByUser(user.ID)
	if err != nil {
		return nil, err
	}
	active, err := s.ruleRepo.CountActiveByUser(user.ID)
	if err != nil {
		return nil, err
	}
	gens, err := s.usageRepo.GenerationsToday(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &RuleUsage{
		Plan:        user.SubscriptionPlan,
		RuleLimit:   model.RuleLimit(user.SubscriptionPlan),
		TotalRules:  total,
		ActiveRules: active,
		GensToday:   gens,
	}, nil
}
