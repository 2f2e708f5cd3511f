package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Matrx007/rrchat/internal/hub"
	"github.com/Matrx007/rrchat/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Client 把一条 websocket 连接与 hub 中的 Conn 关联起来，
// 负责协议帧的解析与派发。
type Client struct {
	conn *websocket.Conn
	c    *hub.Conn
	hub  *hub.Hub

	users *service.UserService
	rooms *service.RoomService
	msgs  *service.MessageService
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Inbound 是客户端到服务端的帧。字段按 type 取用。
type Inbound struct {
	Type        string `json:"type"`
	Token       string `json:"token,omitempty"`
	ChatID      uint   `json:"chat_id,omitempty"`
	Content     string `json:"content,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	BeforeID    uint   `json:"before_id,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

// Serve 升级 websocket 连接。token 可以通过 query 参数带上以便立刻绑定
// 身份，也可以之后用 auth 帧绑定；未绑定前所有房间与消息操作都会被拒绝。
func Serve(h *hub.Hub, users *service.UserService, rooms *service.RoomService, msgs *service.MessageService) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
		if err != nil {
			return
		}
		client := &Client{
			conn:  conn,
			c:     h.NewConn(),
			hub:   h,
			users: users,
			rooms: rooms,
			msgs:  msgs,
		}
		if tok := ctx.Query("token"); tok != "" {
			client.bind(tok)
		}
		go client.writePump()
		client.readPump()
	}
}

func (cl *Client) readPump() {
	defer func() {
		cl.hub.Disconnect(cl.c)
		_ = cl.conn.Close()
	}()
	cl.conn.SetReadLimit(1 << 20) // 1MB
	_ = cl.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})
	for {
		_, data, err := cl.conn.ReadMessage()
		if err != nil {
			break
		}
		var in Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			cl.sendError("bad_frame")
			continue
		}
		cl.dispatch(in)
	}
}

func (cl *Client) dispatch(in Inbound) {
	switch in.Type {
	case "auth":
		cl.bind(in.Token)
	case "enter":
		cl.enter(in.ChatID)
	case "leave":
		if cl.hub.RoomOf(cl.c) == 0 {
			cl.fail(service.ErrNotInRoom)
			return
		}
		cl.hub.Unsubscribe(cl.c)
		cl.send(map[string]any{"type": "leave_ok"})
	case "message":
		if _, err := cl.msgs.Post(cl.c, in.Content, in.ContentType); err != nil {
			cl.fail(err)
		}
	case "history":
		cl.history(in.BeforeID, in.Limit)
	default:
		cl.sendError("unknown_type")
	}
}

// bind 解析 token 并把连接绑定到对应身份。
func (cl *Client) bind(tok string) {
	user, err := cl.users.Resolve(context.Background(), tok)
	if err != nil {
		cl.fail(err)
		return
	}
	cl.hub.Bind(cl.c, user.ID, user.Username)
	cl.send(map[string]any{"type": "auth_ok", "user_id": user.ID, "username": user.Username})
}

// enter 走准入状态机，成功订阅后回放最近一页历史。
func (cl *Client) enter(chatID uint) {
	outcome, err := cl.rooms.Enter(cl.c, chatID)
	if err != nil {
		cl.fail(err)
		return
	}
	if !outcome.Joined {
		cl.send(map[string]any{"type": "pending", "request_id": outcome.RequestID})
		return
	}
	userID, _ := cl.hub.Identity(cl.c)
	info, err := cl.rooms.Info(chatID, userID)
	if err != nil {
		cl.fail(err)
		return
	}
	cl.send(map[string]any{"type": "enter_ok", "chat": info})
	cl.history(0, 50)
}

func (cl *Client) history(beforeID uint, limit int) {
	chatID := cl.hub.RoomOf(cl.c)
	if chatID == 0 {
		cl.fail(service.ErrNotInRoom)
		return
	}
	page, err := cl.msgs.History(chatID, beforeID, limit)
	if err != nil {
		cl.fail(err)
		return
	}
	cl.send(map[string]any{"type": "history", "chat_id": chatID, "messages": page})
}

func (cl *Client) send(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	cl.hub.Send(cl.c, b)
}

func (cl *Client) sendError(code string) {
	cl.send(map[string]any{"type": "error", "code": code})
}

// fail 把业务错误翻译成错误帧。
func (cl *Client) fail(err error) {
	switch {
	case errors.Is(err, service.ErrNotAuthenticated):
		cl.sendError("not_authenticated")
	case errors.Is(err, service.ErrNotInRoom):
		cl.sendError("not_in_room")
	case errors.Is(err, service.ErrPrivateGroup):
		cl.sendError("private_group")
	case errors.Is(err, service.ErrRequestAlreadySent):
		cl.sendError("request_already_sent")
	case errors.Is(err, service.ErrChatNotFound):
		cl.sendError("not_found")
	default:
		log.Error().Err(err).Msg("ws dispatch")
		cl.sendError("internal")
	}
}

func (cl *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = cl.conn.Close()
	}()
	for {
		select {
		case message, ok := <-cl.c.Outbox():
			_ = cl.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := cl.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			_ = w.Close()
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
