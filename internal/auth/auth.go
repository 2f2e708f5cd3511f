package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/Matrx007/rrchat/internal/models"
	"github.com/Matrx007/rrchat/internal/store"
	"github.com/Matrx007/rrchat/internal/token"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}

func VerifyPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// GenerateToken 生成 256 位随机 access token。
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	_, err := rand.Read(b)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// BearerToken 从 Authorization 头中提取 bearer token，没有则返回空串。
func BearerToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return ""
	}
	return strings.TrimSpace(authz[len("Bearer "):])
}

// Middleware 校验 bearer token 并把用户注入请求上下文。
func Middleware(tokens token.Store, dir store.Directory) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := BearerToken(c.Request)
		if tok == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		userID, err := tokens.UserID(c.Request.Context(), tok)
		if err != nil {
			if errors.Is(err, token.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth failed"})
			return
		}
		user, err := dir.UserByID(userID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}
		c.Set("userID", user.ID)
		c.Set("user", *user)
		c.Next()
	}
}

func GetUserID(c *gin.Context) uint {
	if v, ok := c.Get("userID"); ok {
		if id, ok2 := v.(uint); ok2 {
			return id
		}
	}
	return 0
}

func GetUser(c *gin.Context) (models.User, bool) {
	if v, ok := c.Get("user"); ok {
		if u, ok2 := v.(models.User); ok2 {
			return u, true
		}
	}
	return models.User{}, false
}

// Optional 与 Middleware 类似，但没有 token 时放行为匿名请求，
// 供公开聊天的只读接口使用。
func Optional(tokens token.Store, dir store.Directory) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := BearerToken(c.Request)
		if tok == "" {
			c.Next()
			return
		}
		userID, err := tokens.UserID(c.Request.Context(), tok)
		if err != nil {
			c.Next()
			return
		}
		if user, err := dir.UserByID(userID); err == nil {
			c.Set("userID", user.ID)
			c.Set("user", *user)
		}
		c.Next()
	}
}
