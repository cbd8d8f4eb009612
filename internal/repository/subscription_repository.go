package repository

import (
	"time"

	"chatpulse-go/internal/model"

	"gorm.io/gorm"
)

// SubscriptionRepository 定义了订阅记录的持久化操作。
type SubscriptionRepository interface {
	Create(sub *model.Subscription) error
	FindActiveByUser(userID uint) (*model.Subscription, error)
	FindByReference(reference string) (*model.Subscription, error)
	ExpireActiveByUser(userID uint) error
	Update(sub *model.Subscription) error
}

type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository 创建一个新的 SubscriptionRepository 实例。
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) Create(sub *model.Subscription) error {
	return r.db.Create(sub).Error
}

func (r *subscriptionRepository) FindActiveByUser(userID uint) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.Where("user_id = ? AND status = ?", userID, model.SubscriptionStatusActive).
		Order("created_at DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepository) FindByReference(reference string) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.Where("flutterwave_reference = ?", reference).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ExpireActiveByUser 把租户现有的活跃订阅全部标记为过期，换套餐前调用。
func (r *subscriptionRepository) ExpireActiveByUser(userID uint) error {
	now := time.Now()
	return r.db.Model(&model.Subscription{}).
		Where("user_id = ? AND status = ?", userID, model.SubscriptionStatusActive).
		Updates(map[string]interface{}{
			"status":     model.SubscriptionStatusExpired,
			"expires_at": &now,
		}).Error
}

func (r *subscriptionRepository) Update(sub *model.Subscription) error {
	return r.db.Save(sub).Error
}
