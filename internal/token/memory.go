package token

import (
	"context"
	"sync"
	"time"
)

// memoryStore 是 Store 的进程内实现，测试及无 Redis 的开发环境使用。
type memoryStore struct {
	mu      sync.Mutex
	byToken map[string]entry
	byUser  map[uint]string
}

type entry struct {
	userID    uint
	expiresAt time.Time
}

func NewMemoryStore() Store {
	return &memoryStore{
		byToken: make(map[string]entry),
		byUser:  make(map[uint]string),
	}
}

func (s *memoryStore) Save(_ context.Context, token string, userID uint, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	if old, ok := s.byUser[userID]; ok {
		delete(s.byToken, old)
	}
	s.byToken[token] = entry{userID: userID, expiresAt: exp}
	s.byUser[userID] = token
	return nil
}

func (s *memoryStore) UserID(_ context.Context, tok string) (uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byToken[tok]
	if !ok {
		return 0, ErrNotFound
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(s.byToken, tok)
		delete(s.byUser, e.userID)
		return 0, ErrNotFound
	}
	return e.userID, nil
}

func (s *memoryStore) TokenOf(_ context.Context, userID uint) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.byUser[userID]
	if !ok {
		return "", ErrNotFound
	}
	e := s.byToken[tok]
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(s.byToken, tok)
		delete(s.byUser, userID)
		return "", ErrNotFound
	}
	return tok, nil
}

func (s *memoryStore) Delete(_ context.Context, tok string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.byToken[tok]; ok {
		delete(s.byToken, tok)
		if s.byUser[e.userID] == tok {
			delete(s.byUser, e.userID)
		}
	}
	return nil
}
