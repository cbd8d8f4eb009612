package model

import "time"

// 消息来源类型
const (
	MessageTypeCustomer = "customer"
	MessageTypeAI       = "ai"
	MessageTypeHuman    = "human"
)

// ChatSession 对应于数据库中的 'chat_sessions' 表。
// 一个会话代表一位客户在某个接入渠道上的一段对话。
type ChatSession struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"index;not null" json:"userId"`
	SessionID     string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"sessionId"`
	CustomerName  string    `gorm:"type:varchar(255)" json:"customerName"`
	CustomerEmail string    `gorm:"type:varchar(255)" json:"customerEmail"`
	CustomerPhone string    `gorm:"type:varchar(50)" json:"customerPhone"`
	Platform      string    `gorm:"type:varchar(50);default:website" json:"platform"`
	Status        string    `gorm:"type:varchar(20);default:active" json:"status"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (ChatSession) TableName() string {
	return "chat_sessions"
}

// ChatMessage 对应于数据库中的 'chat_messages' 表。
type ChatMessage struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	SessionID        uint      `gorm:"index;not null" json:"sessionId"`
	MessageType      string    `gorm:"type:varchar(20);not null" json:"messageType"`
	Content          string    `gorm:"type:text;not null" json:"content"`
	Metadata         string    `gorm:"type:text" json:"metadata,omitempty"`
	AttachmentObject string    `gorm:"type:varchar(512)" json:"attachmentObject,omitempty"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}

// ContextTurn 代表缓存在 Redis 中的单条会话上下文。
type ContextTurn struct {
	Role      string    `json:"role"` // customer / ai / human
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// EsChatMessage 是写入 Elasticsearch 会话转写索引的文档结构。
type EsChatMessage struct {
	MessageID   string    `json:"message_id"`
	SessionID   string    `json:"session_id"`
	UserID      uint      `json:"user_id"`
	MessageType string    `json:"message_type"`
	Platform    string    `json:"platform"`
	TextContent string    `json:"text_content"`
	FileName    string    `json:"file_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
