// Package model 包含了应用的数据模型定义。
package model

import "time"

// 订阅套餐
const (
	PlanFree       = "free"
	PlanBasic      = "basic"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"
)

// RuleLimit 返回套餐允许的自定义规则数量上限，-1 表示不限。
func RuleLimit(plan string) int {
	switch plan {
	case PlanBasic:
		return 25
	case PlanPro:
		return 100
	case PlanEnterprise:
		return -1
	default:
		return 5
	}
}

// User 对应于数据库中的 'users' 表，即平台的租户。
type User struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	Email              string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Username           string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"username"`
	Password           string    `gorm:"type:varchar(255);not null" json:"-"`
	FullName           string    `gorm:"type:varchar(255)" json:"fullName"`
	Phone              string    `gorm:"type:varchar(50)" json:"phone"`
	Company            string    `gorm:"type:varchar(255)" json:"company"`
	SubscriptionPlan   string    `gorm:"type:varchar(20);default:free" json:"subscriptionPlan"`
	SubscriptionStatus string    `gorm:"type:varchar(20);default:active" json:"subscriptionStatus"`
	Status             string    `gorm:"type:varchar(20);default:active" json:"status"`
	IsVerified         bool      `gorm:"default:false" json:"isVerified"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (User) TableName() string {
	return "users"
}
