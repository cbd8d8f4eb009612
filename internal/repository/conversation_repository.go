// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chatpulse-go/internal/model"

	"github.com/go-redis/redis/v8"
)

const (
	// 每个会话在缓存中最多保留的上下文轮次。
	maxCachedTurns = 20
	contextTTL     = 7 * 24 * time.Hour
)

// ConversationRepository 定义了会话上下文缓存的操作接口。
// 上下文存放在 Redis 中，供引擎构造模型请求时读取。
type ConversationRepository interface {
	GetContext(ctx context.Context, sessionID string) ([]model.ContextTurn, error)
	AppendTurns(ctx context.Context, sessionID string, turns ...model.ContextTurn) error
	ClearContext(ctx context.Context, sessionID string) error
}

type redisConversationRepository struct {
	redisClient *redis.Client
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(redisClient *redis.Client) ConversationRepository {
	return &redisConversationRepository{redisClient: redisClient}
}

func contextKey(sessionID string) string {
	return fmt.Sprintf("chat:context:%s", sessionID)
}

// GetContext 从 Redis 获取会话上下文，缓存未命中时返回空切片。
func (r *redisConversationRepository) GetContext(ctx context.Context, sessionID string) ([]model.ContextTurn, error) {
	jsonData, err := r.redisClient.Get(ctx, contextKey(sessionID)).Result()
	if err == redis.Nil {
		return []model.ContextTurn{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session context: %w", err)
	}
	var turns []model.ContextTurn
	if err := json.Unmarshal([]byte(jsonData), &turns); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session context: %w", err)
	}
	return turns, nil
}

// AppendTurns 追加上下文轮次并刷新过期时间。
func (r *redisConversationRepository) AppendTurns(ctx context.Context, sessionID string, turns ...model.ContextTurn) error {
	existing, err := r.GetContext(ctx, sessionID)
	if err != nil {
		return err
	}
	merged := append(existing, turns...)
	// 保留最近 20 轮
	if len(merged) > maxCachedTurns {
		merged = merged[len(merged)-maxCachedTurns:]
	}
	jsonData, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("failed to marshal session context: %w", err)
	}
	if err := r.redisClient.Set(ctx, contextKey(sessionID), jsonData, contextTTL).Err(); err != nil {
		return fmt.Errorf("failed to set session context: %w", err)
	}
	return nil
}

// ClearContext 清空会话上下文缓存。
func (r *redisConversationRepository) ClearContext(ctx context.Context, sessionID string) error {
	if err := r.redisClient.Del(ctx, contextKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to clear session context: %w", err)
	}
	return nil
}
