package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	// 验证码 10 分钟内有效，重置令牌 1 小时内有效。
	verificationCodeTTL = 10 * time.Minute
	resetTokenTTL       = time.Hour
)

// ResetTokenData 是重置令牌在 Redis 中保存的内容。
type ResetTokenData struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
}

// VerificationRepository 定义了邮箱验证码与密码重置令牌的存取接口。
// 两类数据都存放在 Redis 中，过期即失效。
type VerificationRepository interface {
	StoreCode(ctx context.Context, email, code string) error
	GetCode(ctx context.Context, email string) (string, error)
	DeleteCode(ctx context.Context, email string) error
	StoreResetToken(ctx context.Context, token string, data ResetTokenData) error
	GetResetToken(ctx context.Context, token string) (*ResetTokenData, error)
	DeleteResetToken(ctx context.Context, token string) error
}

type redisVerificationRepository struct {
	redisClient *redis.Client
}

// NewVerificationRepository 创建一个新的 VerificationRepository 实例。
func NewVerificationRepository(redisClient *redis.Client) VerificationRepository {
	return &redisVerificationRepository{redisClient: redisClient}
}

func codeKey(email string) string {
	return fmt.Sprintf("verify:code:%s", email)
}

func resetKey(token string) string {
	return fmt.Sprintf("verify:reset:%s", token)
}

// StoreCode 保存验证码并设置过期时间，重复发送时覆盖旧码。
func (r *redisVerificationRepository) StoreCode(ctx context.Context, email, code string) error {
	if err := r.redisClient.Set(ctx, codeKey(email), code, verificationCodeTTL).Err(); err != nil {
		return fmt.Errorf("failed to store verification code: %w", err)
	}
	return nil
}

// GetCode 读取验证码，不存在或已过期时返回 redis.Nil。
func (r *redisVerificationRepository) GetCode(ctx context.Context, email string) (string, error) {
	return r.redisClient.Get(ctx, codeKey(email)).Result()
}

// DeleteCode 删除已使用的验证码。
func (r *redisVerificationRepository) DeleteCode(ctx context.Context, email string) error {
	return r.redisClient.Del(ctx, codeKey(email)).Err()
}

// StoreResetToken 保存密码重置令牌及其关联用户。
func (r *redisVerificationRepository) StoreResetToken(ctx context.Context, token string, data ResetTokenData) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal reset token data: %w", err)
	}
	if err := r.redisClient.Set(ctx, resetKey(token), jsonData, resetTokenTTL).Err(); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}
	return nil
}

// GetResetToken 读取重置令牌，不存在或已过期时返回 redis.Nil。
func (r *redisVerificationRepository) GetResetToken(ctx context.Context, token string) (*ResetTokenData, error) {
	jsonData, err := r.redisClient.Get(ctx, resetKey(token)).Result()
	if err != nil {
		return nil, err
	}
	var data ResetTokenData
	if err := json.Unmarshal([]byte(jsonData), &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reset token data: %w", err)
	}
	return &data, nil
}

// DeleteResetToken 删除已使用的重置令牌。
func (r *redisVerificationRepository) DeleteResetToken(ctx context.Context, token string) error {
	return r.redisClient.Del(ctx, resetKey(token)).Err()
}
