package store

import (
	"errors"
	"time"

	"github.com/Matrx007/rrchat/internal/models"
)

// ErrNotFound 表示查询的记录不存在，由各实现统一返回。
var ErrNotFound = errors.New("record not found")

// ChatSummary 是发现页/列表页使用的聊天概要。
type ChatSummary struct {
	ID            uint      `json:"id"`
	Name          string    `json:"name"`
	Members       int64     `json:"members"`
	Public        bool      `json:"public"`
	RequestToJoin bool      `json:"request_to_join"`
	Created       time.Time `json:"created"`
}

// InvitationView 是邀请列表条目，带上邀请人与聊天名称。
type InvitationView struct {
	ID        uint      `json:"id"`
	Inviter   string    `json:"inviter"`
	InviterID uint      `json:"inviter_id"`
	Chat      string    `json:"chat"`
	ChatID    uint      `json:"chat_id"`
	Created   time.Time `json:"created"`
}

// RequestView 是加入请求列表条目。
type RequestView struct {
	ID          uint      `json:"id"`
	Requester   string    `json:"requester"`
	RequesterID uint      `json:"requester_id"`
	Chat        string    `json:"chat"`
	ChatID      uint      `json:"chat_id"`
	Created     time.Time `json:"created"`
}

// Directory 抽象聊天服务依赖的关系型存储（用户、聊天、成员、邀请、请求、消息）。
// 业务层只依赖该接口，便于在测试中用内存实现替换 Postgres。
type Directory interface {
	// users
	CreateUser(username, passwordHash string) (*models.User, error)
	UserByName(username string) (*models.User, error)
	UserByID(id uint) (*models.User, error)
	UsernamesByID(ids []uint) (map[uint]string, error)

	// chats
	CreateChat(chat *models.Chat) error
	ChatByID(id uint) (*models.Chat, error)
	ChatByName(name string) (*models.Chat, error)
	Discover(query string, limit int) ([]ChatSummary, error)
	ChatsOfUser(userID uint, limit int) ([]models.Chat, error)

	// memberships
	IsMember(userID, chatID uint) (bool, error)
	AddMember(chatID, userID uint) error
	RemoveMember(chatID, userID uint) error
	Members(chatID uint, limit int) ([]models.User, error)
	MemberCount(chatID uint) (int64, error)

	// invitations
	CreateInvitation(inv *models.Invitation) error
	InvitationByID(id uint) (*models.Invitation, error)
	InvitationFor(inviteeID, chatID uint) (*models.Invitation, error)
	ConsumeInvitation(invitationID, chatID, userID uint) error
	InvitationsOfUser(inviteeID uint, limit int) ([]InvitationView, error)

	// join requests
	HasRequest(userID, chatID uint) (bool, error)
	CreateRequest(req *models.JoinRequest) error
	RequestsOfUser(userID uint, limit int) ([]RequestView, error)

	// messages
	CreateMessage(msg *models.Message) error
	MessagesOfChat(chatID uint, beforeID uint, limit int) ([]models.Message, error)
}
