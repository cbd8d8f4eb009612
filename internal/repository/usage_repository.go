package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// UsageRepository 以天为粒度记录租户的生成次数，计数仅供展示参考。
type UsageRepository interface {
	IncrGeneration(ctx context.Context, userID uint) error
	GenerationsToday(ctx context.Context, userID uint) (int64, error)
}

type redisUsageRepository struct {
	redisClient *redis.Client
}

// NewUsageRepository 创建一个新的 UsageRepository 实例。
func NewUsageRepository(redisClient *redis.Client) UsageRepository {
	return &redisUsageRepository{redisClient: redisClient}
}

func usageKey(userID uint, day time.Time) string {
	return fmt.Sprintf("usage:generations:%d:%s", userID, day.UTC().Format("2006-01-02"))
}

// IncrGeneration 递增当天的生成计数，键保留 48 小时后自动过期。
func (r *redisUsageRepository) IncrGeneration(ctx context.Context, userID uint) error {
	key := usageKey(userID, time.Now())
	if err := r.redisClient.Incr(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to increment usage counter: %w", err)
	}
	if err := r.redisClient.Expire(ctx, key, 48*time.Hour).Err(); err != nil {
		return fmt.Errorf("failed to set usage counter expiry: %w", err)
	}
	return nil
}

func (r *redisUsageRepository) GenerationsToday(ctx context.Context, userID uint) (int64, error) {
	count, err := r.redisClient.Get(ctx, usageKey(userID, time.Now())).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get usage counter: %w", err)
	}
	return count, nil
}
