package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"chatpulse-go/internal/config"
	"chatpulse-go/internal/engine"
	"chatpulse-go/internal/model"
	"chatpulse-go/internal/repository"
	"chatpulse-go/pkg/kafka"
	"chatpulse-go/pkg/log"
	"chatpulse-go/pkg/storage"
	"chatpulse-go/pkg/tasks"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrSessionNotFound = errors.New("chat session not found")

// SessionInput 是创建会话时的客户信息。
type SessionInput struct {
	CustomerName  string `json:"customerName"`
	CustomerEmail string `json:"customerEmail"`
	CustomerPhone string `json:"customerPhone"`
	Platform      string `json:"platform"`
}

// ReplyResult 是客户消息经过引擎处理后的产出。
type ReplyResult struct {
	CustomerMessage *model.ChatMessage `json:"customerMessage"`
	AIMessage       *model.ChatMessage `json:"aiMessage"`
	Provenance      string             `json:"provenance"`
}

// AttachmentResult 描述一次附件上传的结果。
type AttachmentResult struct {
	Message     *model.ChatMessage `json:"message"`
	ObjectName  string             `json:"objectName"`
	DownloadURL string             `json:"downloadUrl"`
}

// ChatService 接口定义了会话与消息的业务操作。
type ChatService interface {
	CreateSession(userID uint, input SessionInput) (*model.ChatSession, error)
	ListSessions(userID uint, limit, offset int) ([]model.ChatSession, error)
	ListMessages(userID, sessionID uint, limit, offset int) ([]model.ChatMessage, error)
	HandleCustomerMessage(ctx context.Context, sessionID string, content string) (*ReplyResult, error)
	UploadAttachment(ctx context.Context, sessionID string, fileName string, reader io.Reader, size int64, contentType string) (*AttachmentResult, error)
	PostHumanReply(ctx context.Context, userID, sessionID uint, content string) (*model.ChatMessage, error)
	Analytics(userID uint, days int) (*repository.ChatAnalytics, error)
	CloseSession(userID, sessionID uint) error
}

type chatService struct {
	chatRepo  repository.ChatRepository
	convRepo  repository.ConversationRepository
	usageRepo repository.UsageRepository
	engine    *engine.Engine
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(chatRepo repository.ChatRepository, convRepo repository.ConversationRepository, usageRepo repository.UsageRepository, eng *engine.Engine) ChatService {
	return &chatService{
		chatRepo:  chatRepo,
		convRepo:  convRepo,
		usageRepo: usageRepo,
		engine:    eng,
	}
}

// CreateSession 创建一个新的客户会话，会话标识使用 UUID。
func (s *chatService) CreateSession(userID uint, input SessionInput) (*model.ChatSession, error) {
	platform := input.Platform
	if platform == "" {
		platform = "website"
	}
	session := &model.ChatSession{
		UserID:        userID,
		SessionID:     uuid.NewString(),
		CustomerName:  input.CustomerName,
		CustomerEmail: input.CustomerEmail,
		CustomerPhone: input.CustomerPhone,
		Platform:      platform,
		Status:        "active",
	}
	if err := s.chatRepo.CreateSession(session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *chatService) ListSessions(userID uint, limit, offset int) ([]model.ChatSession, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.chatRepo.FindSessionsByUser(userID, limit, offset)
}

func (s *chatService) ListMessages(userID, sessionID uint, limit, offset int) ([]model.ChatMessage, error) {
	if _, err := s.findOwnedSession(userID, sessionID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	return s.chatRepo.FindMessagesBySession(sessionID, limit, offset)
}

// HandleCustomerMessage 完整处理一条客户消息：
// 落库 -> 读取上下文 -> 引擎生成回复 -> 回复落库 -> 投递索引事件 -> 更新上下文。
// 引擎保证总能给出回复，因此该方法只在持久化失败时返回错误。
func (s *chatService) HandleCustomerMessage(ctx context.Context, sessionID string, content string) (*ReplyResult, error) {
	session, err := s.chatRepo.FindSessionBySessionID(sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	customerMsg := &model.ChatMessage{
		SessionID:   session.ID,
		MessageType: model.MessageTypeCustomer,
		Content:     content,
	}
	if err := s.chatRepo.CreateMessage(customerMsg); err != nil {
		return nil, err
	}

	turns, err := s.convRepo.GetContext(ctx, session.SessionID)
	if err != nil {
		// 上下文缓存故障不阻断回复
		log.Warnf("[ChatService] 读取会话上下文失败, session: %s, error: %v", session.SessionID, err)
		turns = nil
	}

	result := s.engine.GenerateResponse(ctx, engine.Request{
		Message:        content,
		TenantID:       session.UserID,
		SessionContext: toEngineTurns(turns),
	})

	aiMsg := &model.ChatMessage{
		SessionID:   session.ID,
		MessageType: model.MessageTypeAI,
		Content:     result.ResponseText,
		Metadata:    provenanceMetadata(result),
	}
	if err := s.chatRepo.CreateMessage(aiMsg); err != nil {
		return nil, err
	}

	if err := s.usageRepo.IncrGeneration(ctx, session.UserID); err != nil {
		log.Warnf("[ChatService] 更新生成计数失败, user: %d, error: %v", session.UserID, err)
	}

	s.produceMessageEvent(session, customerMsg)
	s.produceMessageEvent(session, aiMsg)

	now := time.Now()
	if err := s.convRepo.AppendTurns(ctx, session.SessionID,
		model.ContextTurn{Role: model.MessageTypeCustomer, Content: content, Timestamp: now},
		model.ContextTurn{Role: model.MessageTypeAI, Content: result.ResponseText, Timestamp: now},
	); err != nil {
		log.Warnf("[ChatService] 更新会话上下文失败, session: %s, error: %v", session.SessionID, err)
	}

	session.UpdatedAt = now
	if err := s.chatRepo.UpdateSession(session); err != nil {
		log.Warnf("[ChatService] 刷新会话时间失败, session: %s, error: %v", session.SessionID, err)
	}

	return &ReplyResult{
		CustomerMessage: customerMsg,
		AIMessage:       aiMsg,
		Provenance:      result.Provenance,
	}, nil
}

// UploadAttachment 把客户上传的附件写入 MinIO 并投递异步索引事件。
func (s *chatService) UploadAttachment(ctx context.Context, sessionID string, fileName string, reader io.Reader, size int64, contentType string) (*AttachmentResult, error) {
	session, err := s.chatRepo.FindSessionBySessionID(sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	objectName := fmt.Sprintf("attachments/%s/%s%s", session.SessionID, uuid.NewString(), filepath.Ext(fileName))
	bucket := config.Conf.MinIO.BucketName
	if err := storage.PutAttachment(ctx, bucket, objectName, reader, size, contentType); err != nil {
		return nil, fmt.Errorf("上传附件失败: %w", err)
	}

	msg := &model.ChatMessage{
		SessionID:        session.ID,
		MessageType:      model.MessageTypeCustomer,
		Content:          fmt.Sprintf("[附件] %s", fileName),
		AttachmentObject: objectName,
	}
	if err := s.chatRepo.CreateMessage(msg); err != nil {
		return nil, err
	}

	event := tasksEvent(session, msg)
	event.Type = tasks.EventAttachment
	event.ObjectName = objectName
	event.FileName = fileName
	if err := kafka.ProduceChatEvent(event); err != nil {
		log.Errorf("[ChatService] 投递附件事件失败, object: %s, error: %v", objectName, err)
	}

	url, err := storage.GetPresignedURL(bucket, objectName, 24*time.Hour)
	if err != nil {
		log.Warnf("[ChatService] 生成附件下载链接失败, object: %s, error: %v", objectName, err)
	}

	return &AttachmentResult{Message: msg, ObjectName: objectName, DownloadURL: url}, nil
}

// PostHumanReply 记录租户客服人工发出的回复。
// 人工回复不经过引擎，但同样进入上下文缓存和转写索引。
func (s *chatService) PostHumanReply(ctx context.Context, userID, sessionID uint, content string) (*model.ChatMessage, error) {
	session, err := s.findOwnedSession(userID, sessionID)
	if err != nil {
		return nil, err
	}

	msg := &model.ChatMessage{
		SessionID:   session.ID,
		MessageType: model.MessageTypeHuman,
		Content:     content,
	}
	if err := s.chatRepo.CreateMessage(msg); err != nil {
		return nil, err
	}

	s.produceMessageEvent(session, msg)

	if err := s.convRepo.AppendTurns(ctx, session.SessionID,
		model.ContextTurn{Role: model.MessageTypeHuman, Content: content, Timestamp: time.Now()},
	); err != nil {
		log.Warnf("[ChatService] 更新会话上下文失败, session: %s, error: %v", session.SessionID, err)
	}
	return msg, nil
}

func (s *chatService) Analytics(userID uint, days int) (*repository.ChatAnalytics, error) {
	if days <= 0 || days > 365 {
		days = 30
	}
	since := time.Now().AddDate(0, 0, -days)
	return s.chatRepo.Analytics(userID, since)
}

// CloseSession 结束会话并清空其上下文缓存。
func (s *chatService) CloseSession(userID, sessionID uint) error {
	session, err := s.findOwnedSession(userID, sessionID)
	if err != nil {
		return err
	}
	session.Status = "closed"
	if err := s.chatRepo.UpdateSession(session); err != nil {
		return err
	}
	if err := s.convRepo.ClearContext(context.Background(), session.SessionID); err != nil {
		log.Warnf("[ChatService] 清理会话上下文失败, session: %s, error: %v", session.SessionID, err)
	}
	return nil
}

func (s *chatService) findOwnedSession(userID, sessionID uint) (*model.ChatSession, error) {
	session, err := s.chatRepo.FindSessionByIDAndUser(sessionID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

func (s *chatService) produceMessageEvent(session *model.ChatSession, msg *model.ChatMessage) {
	if err := kafka.ProduceChatEvent(tasksEvent(session, msg)); err != nil {
		log.Errorf("[ChatService] 投递消息事件失败, message: %d, error: %v", msg.ID, err)
	}
}

func tasksEvent(session *model.ChatSession, msg *model.ChatMessage) tasks.ChatEvent {
	return tasks.ChatEvent{
		Type:        tasks.EventChatMessage,
		MessageID:   msg.ID,
		SessionID:   session.SessionID,
		UserID:      session.UserID,
		MessageType: msg.MessageType,
		Content:     msg.Content,
		Platform:    session.Platform,
		CreatedAt:   msg.CreatedAt,
	}
}

func toEngineTurns(turns []model.ContextTurn) []engine.Turn {
	out := make([]engine.Turn, 0, len(turns))
	for _, t := range turns {
		out = append(out, engine.Turn{Role: t.Role, Content: t.Content})
	}
	return out
}

func provenanceMetadata(result engine.Result) string {
	meta := map[string]interface{}{"provenance": result.Provenance}
	if result.MatchedRuleID != nil {
		meta["rule_id"] = *result.MatchedRuleID
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return ""
	}
	return string(data)
}
