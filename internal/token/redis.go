package token

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisStore 把 token 映射存进 Redis，键格式沿用 token_<token> 与 user_<id>。
type redisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) Store {
	return &redisStore{client: client}
}

func tokenKey(token string) string { return "token_" + token }
func userKey(userID uint) string   { return fmt.Sprintf("user_%d", userID) }

func (s *redisStore) Save(ctx context.Context, token string, userID uint, ttl time.Duration) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, tokenKey(token), strconv.FormatUint(uint64(userID), 10), ttl)
	pipe.Set(ctx, userKey(userID), token, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisStore) UserID(ctx context.Context, token string) (uint, error) {
	val, err := s.client.Get(ctx, tokenKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(val, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrNotFound
	}
	return uint(id), nil
}

func (s *redisStore) TokenOf(ctx context.Context, userID uint) (string, error) {
	val, err := s.client.Get(ctx, userKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (s *redisStore) Delete(ctx context.Context, token string) error {
	userID, err := s.UserID(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return s.client.Del(ctx, tokenKey(token)).Err()
	}
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, tokenKey(token))
	pipe.Del(ctx, userKey(userID))
	_, err = pipe.Exec(ctx)
	return err
}
