package service

import (
	"encoding/json"
	"html"
	"time"

	"github.com/Matrx007/rrchat/internal/hub"
	"github.com/Matrx007/rrchat/internal/metrics"
	"github.com/Matrx007/rrchat/internal/models"
	"github.com/Matrx007/rrchat/internal/store"

	"github.com/rs/zerolog/log"
)

// MessageService 封装消息的落库与实时扇出。
type MessageService struct {
	dir store.Directory
	hub *hub.Hub
}

func NewMessageService(dir store.Directory, h *hub.Hub) *MessageService {
	return &MessageService{dir: dir, hub: h}
}

// MessageDTO 是对外输出的消息数据，广播帧与历史接口共用。
type MessageDTO struct {
	Type        string    `json:"type"`
	ID          uint      `json:"id"`
	ChatID      uint      `json:"chat_id"`
	SenderID    uint      `json:"sender_id"`
	Sender      string    `json:"sender"`
	ContentType string    `json:"content_type"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
}

// Post 处理一条新消息：连接必须已认证并且订阅着某个房间。内容在写入前
// 做一次 HTML 转义。落库与广播在房间排序锁内顺序执行，因此同一房间的
// 所有订阅者观察到同一份全序；广播对掉线或写满的连接尽力而为。
func (s *MessageService) Post(c *hub.Conn, content, contentType string) (*MessageDTO, error) {
	userID, username := s.hub.Identity(c)
	if userID == 0 {
		return nil, ErrNotAuthenticated
	}
	chatID := s.hub.RoomOf(c)
	if chatID == 0 {
		return nil, ErrNotInRoom
	}
	if contentType == "" {
		contentType = "text"
	}

	unlock := s.hub.LockRoom(chatID)
	defer unlock()

	msg := models.Message{
		ChatID:      chatID,
		SenderID:    userID,
		ContentType: contentType,
		Content:     html.EscapeString(content),
	}
	if err := s.dir.CreateMessage(&msg); err != nil {
		return nil, err
	}

	dto := &MessageDTO{
		Type:        "message",
		ID:          msg.ID,
		ChatID:      msg.ChatID,
		SenderID:    msg.SenderID,
		Sender:      username,
		ContentType: msg.ContentType,
		Content:     msg.Content,
		CreatedAt:   msg.CreatedAt,
	}
	b, err := json.Marshal(dto)
	if err != nil {
		// 落库已经成功，只丢广播
		log.Error().Err(err).Uint("chat_id", chatID).Msg("marshal broadcast frame")
		return dto, nil
	}
	metrics.WsMessagesTotal.Inc()
	s.hub.Broadcast(chatID, b)
	return dto, nil
}

// History 分页查询聊天消息。取 id 小于 beforeID 的最新一页，
// 反转为升序返回，便于客户端按时间顺序渲染。
func (s *MessageService) History(chatID uint, beforeID uint, limit int) ([]MessageDTO, error) {
	msgs, err := s.dir.MessagesOfChat(chatID, beforeID, clampLimit(limit, 50))
	if err != nil {
		return nil, err
	}

	// 反转为升序
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	usernames, err := s.resolveUsernames(msgs)
	if err != nil {
		return nil, err
	}

	out := make([]MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageDTO{
			Type:        "message",
			ID:          m.ID,
			ChatID:      m.ChatID,
			SenderID:    m.SenderID,
			Sender:      usernames[m.SenderID],
			ContentType: m.ContentType,
			Content:     m.Content,
			CreatedAt:   m.CreatedAt,
		})
	}
	return out, nil
}

// resolveUsernames 批量获取消息涉及的用户名。
func (s *MessageService) resolveUsernames(msgs []models.Message) (map[uint]string, error) {
	seen := make(map[uint]struct{}, len(msgs))
	senderIDs := make([]uint, 0, len(msgs))
	for _, m := range msgs {
		if _, ok := seen[m.SenderID]; ok {
			continue
		}
		seen[m.SenderID] = struct{}{}
		senderIDs = append(senderIDs, m.SenderID)
	}
	return s.dir.UsernamesByID(senderIDs)
}
