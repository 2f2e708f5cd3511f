package service

import (
	"context"
	"testing"

	"github.com/Matrx007/rrchat/internal/config"
	"github.com/Matrx007/rrchat/internal/hub"
	"github.com/Matrx007/rrchat/internal/store"
	"github.com/Matrx007/rrchat/internal/token"
)

type testEnv struct {
	dir    store.Directory
	tokens token.Store
	hub    *hub.Hub
	users  *UserService
	rooms  *RoomService
	msgs   *MessageService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := store.NewMemoryDirectory()
	tokens := token.NewMemoryStore()
	h := hub.NewHub()
	cfg := config.Config{SessionTTLHours: 1}
	return &testEnv{
		dir:    dir,
		tokens: tokens,
		hub:    h,
		users:  NewUserService(dir, tokens, cfg),
		rooms:  NewRoomService(dir, h),
		msgs:   NewMessageService(dir, h),
	}
}

// mustRegister 注册用户并返回其 ID。
func (e *testEnv) mustRegister(t *testing.T, username string) uint {
	t.Helper()
	res, err := e.users.Register(context.Background(), username, "password")
	if err != nil {
		t.Fatalf("Register(%s) error = %v", username, err)
	}
	return res.UserID
}

// mustChat 创建聊天并返回其 ID。
func (e *testEnv) mustChat(t *testing.T, name string, public, requestToJoin bool, adminID uint) uint {
	t.Helper()
	chat, err := e.rooms.Create(name, public, requestToJoin, adminID)
	if err != nil {
		t.Fatalf("Create(%s) error = %v", name, err)
	}
	return chat.ID
}

// connFor 建立一条已绑定身份的连接。
func (e *testEnv) connFor(t *testing.T, userID uint, username string) *hub.Conn {
	t.Helper()
	c := e.hub.NewConn()
	e.hub.Bind(c, userID, username)
	return c
}

// drain 取出连接缓冲中当前的全部帧。
func drain(c *hub.Conn) [][]byte {
	var out [][]byte
	for {
		select {
		case b := <-c.Outbox():
			out = append(out, b)
		default:
			return out
		}
	}
}
