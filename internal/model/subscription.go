package model

import "time"

// 订阅状态。
const (
	SubscriptionStatusActive    = "active"
	SubscriptionStatusExpired   = "expired"
	SubscriptionStatusCancelled = "cancelled"
	SubscriptionStatusFailed    = "failed"
)

// Subscription 对应于数据库中的 'subscriptions' 表。
type Subscription struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	UserID               uint       `gorm:"index;not null" json:"userId"`
	Plan                 string     `gorm:"type:varchar(20);not null" json:"plan"`
	Amount               float64    `gorm:"not null" json:"amount"`
	Currency             string     `gorm:"type:varchar(10);default:USD" json:"currency"`
	Status               string     `gorm:"type:varchar(20);default:active" json:"status"`
	FlutterwaveReference string     `gorm:"type:varchar(255);uniqueIndex" json:"flutterwaveReference"`
	PaymentProvider      string     `gorm:"type:varchar(50);default:flutterwave" json:"paymentProvider"`
	StartedAt            time.Time  `json:"startedAt"`
	ExpiresAt            *time.Time `json:"expiresAt"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"createdAt"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// PlanFromAmount 根据支付金额推断订阅套餐。
func PlanFromAmount(amount float64) string {
	switch {
	case amount >= 299.99:
		return PlanEnterprise
	case amount >= 99.99:
		return PlanPro
	case amount >= 29.99:
		return PlanBasic
	default:
		return PlanFree
	}
}
