// Package tasks defines the structure for events that are sent to Kafka.
package tasks

import (
	"fmt"
	"time"
)

// 事件类型
const (
	EventChatMessage = "chat_message"
	EventAttachment  = "attachment"
)

// ChatEvent 是聊天消息与附件上传产生的异步事件，
// 由消费端管道写入 Elasticsearch 会话转写索引。
type ChatEvent struct {
	Type        string    `json:"type"`
	MessageID   uint      `json:"message_id"`
	SessionID   string    `json:"session_id"`
	UserID      uint      `json:"user_id"`
	MessageType string    `json:"message_type,omitempty"`
	Content     string    `json:"content,omitempty"`
	Platform    string    `json:"platform,omitempty"`
	ObjectName  string    `json:"object_name,omitempty"`
	FileName    string    `json:"file_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Key 返回用于重试计数的事件标识。
func (e ChatEvent) Key() string {
	if e.Type == EventAttachment {
		return "attachment:" + e.ObjectName
	}
	return fmt.Sprintf("message:%d", e.MessageID)
}
