package service

import (
	"context"
	"errors"
	"time"

	"github.com/Matrx007/rrchat/internal/auth"
	"github.com/Matrx007/rrchat/internal/config"
	"github.com/Matrx007/rrchat/internal/models"
	"github.com/Matrx007/rrchat/internal/store"
	"github.com/Matrx007/rrchat/internal/token"
)

// UserService 封装注册、登录与 token 解析，是会话注册表的服务端实现。
type UserService struct {
	dir    store.Directory
	tokens token.Store
	ttl    time.Duration
}

func NewUserService(dir store.Directory, tokens token.Store, cfg config.Config) *UserService {
	return &UserService{
		dir:    dir,
		tokens: tokens,
		ttl:    time.Duration(cfg.SessionTTLHours) * time.Hour,
	}
}

// AuthResult 注册或登录成功后返回的数据。
type AuthResult struct {
	Token    string `json:"token"`
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
}

// Register 注册新用户并直接签发会话 token。
func (s *UserService) Register(ctx context.Context, username, password string) (*AuthResult, error) {
	if _, err := s.dir.UserByName(username); err == nil {
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user, err := s.dir.CreateUser(username, hash)
	if err != nil {
		return nil, err
	}
	return s.issueToken(ctx, user)
}

// Login 校验用户名密码并签发 token。同一用户重复登录复用现有 token，
// 保证单用户单会话。
func (s *UserService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	user, err := s.dir.UserByName(username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.VerifyPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return s.issueToken(ctx, user)
}

func (s *UserService) issueToken(ctx context.Context, user *models.User) (*AuthResult, error) {
	tok, err := s.tokens.TokenOf(ctx, user.ID)
	if errors.Is(err, token.ErrNotFound) {
		tok, err = auth.GenerateToken()
		if err != nil {
			return nil, err
		}
		err = s.tokens.Save(ctx, tok, user.ID, s.ttl)
	}
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: tok, UserID: user.ID, Username: user.Username}, nil
}

// Logout 注销 token，之后的 Resolve 调用将失败。
func (s *UserService) Logout(ctx context.Context, tok string) error {
	return s.tokens.Delete(ctx, tok)
}

// Resolve 把 bearer token 解析为用户，token 无效时返回 ErrNotAuthenticated。
func (s *UserService) Resolve(ctx context.Context, tok string) (*models.User, error) {
	if tok == "" {
		return nil, ErrNotAuthenticated
	}
	userID, err := s.tokens.UserID(ctx, tok)
	if err != nil {
		if errors.Is(err, token.ErrNotFound) {
			return nil, ErrNotAuthenticated
		}
		return nil, err
	}
	user, err := s.dir.UserByID(userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotAuthenticated
		}
		return nil, err
	}
	return user, nil
}
