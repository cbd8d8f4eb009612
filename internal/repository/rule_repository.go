package repository

import (
	"context"

	"chatpulse-go/internal/model"

	"gorm.io/gorm"
)

// RuleRepository 定义了自动回复规则的持久化操作。
// ActiveRules 同时实现了引擎的 RuleSource 协作方接口。
type RuleRepository interface {
	Create(rule *model.AIRule) error
	FindByUser(userID uint) ([]model.AIRule, error)
	FindByIDAndUser(ruleID, userID uint) (*model.AIRule, error)
	Update(rule *model.AIRule) error
	Delete(rule *model.AIRule) error
	CountByUser(userID uint) (int64, error)
	CountActiveByUser(userID uint) (int64, error)
	ActiveRules(ctx context.Context, tenantID uint) ([]model.AIRule, error)
}

// ruleRepository 是 RuleRepository 接口的 GORM 实现。
type ruleRepository struct {
	db *gorm.DB
}

// NewRuleRepository 创建一个新的 RuleRepository 实例。
func NewRuleRepository(db *gorm.DB) RuleRepository {
	return &ruleRepository{db: db}
}

func (r *ruleRepository) Create(rule *model.AIRule) error {
	return r.db.Create(rule).Error
}

// FindByUser 返回租户的全部规则（含停用的），按优先级降序。
func (r *ruleRepository) FindByUser(userID uint) ([]model.AIRule, error) {
	var rules []model.AIRule
	err := r.db.Where("user_id = ?", userID).
		Order("priority DESC, id ASC").
		Find(&rules).Error
	return rules, err
}

func (r *ruleRepository) FindByIDAndUser(ruleID, userID uint) (*model.AIRule, error) {
	var rule model.AIRule
	err := r.db.Where("id = ? AND user_id = ?", ruleID, userID).First(&rule).Error
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *ruleRepository) Update(rule *model.AIRule) error {
	return r.db.Save(rule).Error
}

func (r *ruleRepository) Delete(rule *model.AIRule) error {
	return r.db.Delete(rule).Error
}

func (r *ruleRepository) CountByUser(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&model.AIRule{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

func (r *ruleRepository) CountActiveByUser(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&model.AIRule{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Count(&count).Error
	return count, err
}

// ActiveRules 返回租户当前生效的规则，按优先级降序、同级按入库顺序。
func (r *ruleRepository) ActiveRules(ctx context.Context, tenantID uint) ([]model.AIRule, error) {
	var rules []model.AIRule
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", tenantID, true).
		Order("priority DESC, id ASC").
		Find(&rules).Error
	return rules, err
}
