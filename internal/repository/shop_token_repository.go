package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ShopTokenRepository 缓存每个店铺的 Admin API access token。
type ShopTokenRepository interface {
	Get(ctx context.Context, shop string) (string, bool, error)
	Set(ctx context.Context, shop, token string, ttl time.Duration) error
	Delete(ctx context.Context, shop string) error
}

type redisShopTokenRepository struct {
	redisClient *redis.Client
}

// NewShopTokenRepository 创建一个基于 Redis 的 ShopTokenRepository。
func NewShopTokenRepository(redisClient *redis.Client) ShopTokenRepository {
	return &redisShopTokenRepository{redisClient: redisClient}
}

func shopTokenKey(shop string) string {
	return fmt.Sprintf("shop:%s:admin_token", shop)
}

// Get 返回缓存的 token，未命中时第二个返回值为 false。
func (r *redisShopTokenRepository) Get(ctx context.Context, shop string) (string, bool, error) {
	token, err := r.redisClient.Get(ctx, shopTokenKey(shop)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get shop token: %w", err)
	}
	return token, true, nil
}

// Set 写入 token 并设置过期时间。
func (r *redisShopTokenRepository) Set(ctx context.Context, shop, token string, ttl time.Duration) error {
	if err := r.redisClient.Set(ctx, shopTokenKey(shop), token, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set shop token: %w", err)
	}
	return nil
}

// Delete 删除缓存的 token，例如 Admin API 返回 401 时。
func (r *redisShopTokenRepository) Delete(ctx context.Context, shop string) error {
	if err := r.redisClient.Del(ctx, shopTokenKey(shop)).Err(); err != nil {
		return fmt.Errorf("failed to delete shop token: %w", err)
	}
	return nil
}
