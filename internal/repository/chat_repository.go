package repository

import (
	"time"

	"chatpulse-go/internal/model"

	"gorm.io/gorm"
)

// ChatAnalytics 汇总某个租户在时间窗口内的会话数据。
type ChatAnalytics struct {
	TotalSessions      int64            `json:"total_sessions"`
	TotalMessages      int64            `json:"total_messages"`
	AIMessages         int64            `json:"ai_messages"`
	CustomerMessages   int64            `json:"customer_messages"`
	SessionsByPlatform map[string]int64 `json:"sessions_by_platform"`
}

// ChatRepository 定义了会话和消息的持久化操作。
type ChatRepository interface {
	CreateSession(session *model.ChatSession) error
	FindSessionBySessionID(sessionID string) (*model.ChatSession, error)
	FindSessionByIDAndUser(id, userID uint) (*model.ChatSession, error)
	FindSessionsByUser(userID uint, limit, offset int) ([]model.ChatSession, error)
	UpdateSession(session *model.ChatSession) error
	CreateMessage(message *model.ChatMessage) error
	FindMessagesBySession(sessionID uint, limit, offset int) ([]model.ChatMessage, error)
	Analytics(userID uint, since time.Time) (*ChatAnalytics, error)
}

type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository 创建一个新的 ChatRepository 实例。
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) CreateSession(session *model.ChatSession) error {
	return r.db.Create(session).Error
}

func (r *chatRepository) FindSessionBySessionID(sessionID string) (*model.ChatSession, error) {
	var session model.ChatSession
	err := r.db.Where("session_id = ?", sessionID).First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *chatRepository) FindSessionByIDAndUser(id, userID uint) (*model.ChatSession, error) {
	var session model.ChatSession
	err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *chatRepository) FindSessionsByUser(userID uint, limit, offset int) ([]model.ChatSession, error) {
	var sessions []model.ChatSession
	err := r.db.Where("user_id = ?", userID).
		Order("updated_at DESC").
		Limit(limit).Offset(offset).
		Find(&sessions).Error
	return sessions, err
}

func (r *chatRepository) UpdateSession(session *model.ChatSession) error {
	return r.db.Save(session).Error
}

func (r *chatRepository) CreateMessage(message *model.ChatMessage) error {
	return r.db.Create(message).Error
}

// FindMessagesBySession 按时间正序返回会话消息，保证前端按对话顺序渲染。
func (r *chatRepository) FindMessagesBySession(sessionID uint, limit, offset int) ([]model.ChatMessage, error) {
	var messages []model.ChatMessage
	err := r.db.Where("session_id = ?", sessionID).
		Order("created_at ASC, id ASC").
		Limit(limit).Offset(offset).
		Find(&messages).Error
	return messages, err
}

// Analytics 统计租户在 since 之后的会话与消息量。
func (r *chatRepository) Analytics(userID uint, since time.Time) (*ChatAnalytics, error) {
	stats := &ChatAnalytics{}

	err := r.db.Model(&model.ChatSession{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Count(&stats.TotalSessions).Error
	if err != nil {
		return nil, err
	}

	base := r.db.Model(&model.ChatMessage{}).
		Joins("JOIN chat_sessions ON chat_sessions.id = chat_messages.session_id").
		Where("chat_sessions.user_id = ? AND chat_messages.created_at >= ?", userID, since)

	if err := base.Session(&gorm.Session{}).Count(&stats.TotalMessages).Error; err != nil {
		return nil, err
	}
	if err := base.Session(&gorm.Session{}).
		Where("chat_messages.message_type = ?", model.MessageTypeAI).
		Count(&stats.AIMessages).Error; err != nil {
		return nil, err
	}
	if err := base.Session(&gorm.Session{}).
		Where("chat_messages.message_type = ?", model.MessageTypeCustomer).
		Count(&stats.CustomerMessages).Error; err != nil {
		return nil, err
	}

	var byPlatform []struct {
		Platform string
		Count    int64
	}
	if err := r.db.Model(&model.ChatSession{}).
		Select("platform, COUNT(*) AS count").
		Where("user_id = ? AND created_at >= ?", userID, since).
		Group("platform").
		Scan(&byPlatform).Error; err != nil {
		return nil, err
	}
	stats.SessionsByPlatform = make(map[string]int64, len(byPlatform))
	for _, row := range byPlatform {
		stats.SessionsByPlatform[row.Platform] = row.Count
	}
	return stats, nil
}
