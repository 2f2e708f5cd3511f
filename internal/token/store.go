package token

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound 表示 token 不存在或已被注销。
var ErrNotFound = errors.New("token not found")

// Store 保存 access token 与用户的双向映射，保证同一用户同一时刻
// 只持有一个有效 token。生产环境使用 Redis 实现。
type Store interface {
	// Save 绑定 token 与用户，TTL 为 0 时永不过期。
	Save(ctx context.Context, token string, userID uint, ttl time.Duration) error
	// UserID 根据 token 查找用户，不存在时返回 ErrNotFound。
	UserID(ctx context.Context, token string) (uint, error)
	// TokenOf 返回用户当前持有的 token，不存在时返回 ErrNotFound。
	TokenOf(ctx context.Context, userID uint) (string, error)
	// Delete 注销 token 及其反向映射。
	Delete(ctx context.Context, token string) error
}
