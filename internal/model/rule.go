package model

import (
	"encoding/json"
	"time"
)

// AIRule 对应于数据库中的 'ai_rules' 表，是租户配置的自动回复规则。
// TriggerKeywords 以 JSON 数组文本存储；ResponseTemplate 中的 {message}
// 占位符在命中时会被替换为触发消息的原文。
type AIRule struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	UserID           uint      `gorm:"index;not null" json:"userId"`
	Name             string    `gorm:"type:varchar(255);not null" json:"name"`
	TriggerKeywords  string    `gorm:"type:text" json:"-"`
	ResponseTemplate string    `gorm:"type:text;not null" json:"responseTemplate"`
	IsActive         bool      `gorm:"default:true" json:"isActive"`
	Priority         int       `gorm:"default:1" json:"priority"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (AIRule) TableName() string {
	return "ai_rules"
}

// KeywordList 解析 TriggerKeywords。解析失败返回 nil，
// 调用方将其视为“该规则永不命中”，而不是错误。
func (r *AIRule) KeywordList() []string {
	if r.TriggerKeywords == "" {
		return nil
	}
	var keywords []string
	if err := json.Unmarshal([]byte(r.TriggerKeywords), &keywords); err != nil {
		return nil
	}
	return keywords
}

// SetKeywordList 将关键词序列化为存储格式。
func (r *AIRule) SetKeywordList(keywords []string) error {
	data, err := json.Marshal(keywords)
	if err != nil {
		return err
	}
	r.TriggerKeywords = string(data)
	return nil
}
