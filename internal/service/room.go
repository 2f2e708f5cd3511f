package service

import (
	"errors"
	"regexp"
	"time"

	"github.com/Matrx007/rrchat/internal/hub"
	"github.com/Matrx007/rrchat/internal/models"
	"github.com/Matrx007/rrchat/internal/store"
)

// RoomService 封装聊天的创建、发现、准入（join 状态机）、邀请与退出。
type RoomService struct {
	dir store.Directory
	hub *hub.Hub
}

func NewRoomService(dir store.Directory, h *hub.Hub) *RoomService {
	return &RoomService{dir: dir, hub: h}
}

// chatNamePattern 沿用原始规则：字母、数字、空格、连字符与下划线。
var chatNamePattern = regexp.MustCompile(`^[a-zA-Z0-9 _\-]+$`)

func ValidChatName(name string) bool {
	return name != "" && len(name) <= 128 && chatNamePattern.MatchString(name)
}

// ChatDTO 是对外输出的聊天数据。
type ChatDTO struct {
	ID            uint      `json:"id"`
	Name          string    `json:"name"`
	Admin         string    `json:"admin"`
	AdminID       uint      `json:"admin_id"`
	Public        bool      `json:"public"`
	RequestToJoin bool      `json:"request_to_join"`
	Created       time.Time `json:"created"`
	Members       int64     `json:"members"`
	IsMember      bool      `json:"is_member"`
	Online        int       `json:"online"`
}

// Create 创建新聊天，创建者成为 admin。公开聊天不允许 request-to-join：
// 私有且关闭 request-to-join 的聊天即为仅限邀请。
func (s *RoomService) Create(name string, public, requestToJoin bool, adminID uint) (*ChatDTO, error) {
	if public && requestToJoin {
		return nil, ErrInvalidChatFlags
	}
	if _, err := s.dir.ChatByName(name); err == nil {
		return nil, ErrChatNameTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	chat := models.Chat{Name: name, AdminID: adminID, Public: public, RequestToJoin: requestToJoin}
	if err := s.dir.CreateChat(&chat); err != nil {
		return nil, err
	}
	return &ChatDTO{
		ID:            chat.ID,
		Name:          chat.Name,
		AdminID:       chat.AdminID,
		Public:        chat.Public,
		RequestToJoin: chat.RequestToJoin,
		Created:       chat.CreatedAt,
	}, nil
}

// isAuthorized 是全局唯一的成员判定：显式成员或 admin。
// admin 不持有 Membership 行，但永远视为成员。
func (s *RoomService) isAuthorized(userID uint, chat *models.Chat) (bool, error) {
	if chat.AdminID == userID {
		return true, nil
	}
	return s.dir.IsMember(userID, chat.ID)
}

// CanView 是只读可见性检查：公开聊天任何人可见，私有聊天仅成员可见。
func (s *RoomService) CanView(userID uint, chat *models.Chat) (bool, error) {
	if chat.Public {
		return true, nil
	}
	if userID == 0 {
		return false, nil
	}
	return s.isAuthorized(userID, chat)
}

// Info 返回聊天详情，私有聊天要求调用者是成员。
func (s *RoomService) Info(chatID, userID uint) (*ChatDTO, error) {
	chat, err := s.dir.ChatByID(chatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, err
	}
	ok, err := s.CanView(userID, chat)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPrivateGroup
	}
	count, err := s.dir.MemberCount(chatID)
	if err != nil {
		return nil, err
	}
	admin, err := s.dir.UserByID(chat.AdminID)
	if err != nil {
		return nil, err
	}
	isMember := false
	if userID != 0 {
		if isMember, err = s.isAuthorized(userID, chat); err != nil {
			return nil, err
		}
	}
	return &ChatDTO{
		ID:            chat.ID,
		Name:          chat.Name,
		Admin:         admin.Username,
		AdminID:       admin.ID,
		Public:        chat.Public,
		RequestToJoin: chat.RequestToJoin,
		Created:       chat.CreatedAt,
		Members:       count,
		IsMember:      isMember,
		Online:        s.hub.Online(chat.ID),
	}, nil
}

// MemberDTO 是成员列表条目。
type MemberDTO struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

// Members 返回聊天的 admin 与成员列表，可见性规则与 Info 相同。
func (s *RoomService) Members(chatID, userID uint, limit int) (admin MemberDTO, members []MemberDTO, err error) {
	chat, err := s.dir.ChatByID(chatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return admin, nil, ErrChatNotFound
		}
		return admin, nil, err
	}
	ok, err := s.CanView(userID, chat)
	if err != nil {
		return admin, nil, err
	}
	if !ok {
		return admin, nil, ErrPrivateGroup
	}
	adminUser, err := s.dir.UserByID(chat.AdminID)
	if err != nil {
		return admin, nil, err
	}
	admin = MemberDTO{ID: adminUser.ID, Name: adminUser.Username}
	users, err := s.dir.Members(chatID, clampLimit(limit, 30))
	if err != nil {
		return admin, nil, err
	}
	members = make([]MemberDTO, 0, len(users))
	for _, u := range users {
		members = append(members, MemberDTO{ID: u.ID, Name: u.Username})
	}
	return admin, members, nil
}

// JoinOutcome 是一次准入尝试的终态：要么入群成功，要么排队等待审批。
type JoinOutcome struct {
	Joined    bool `json:"joined"`
	RequestID uint `json:"request_id"`
}

// Join 实现准入状态机。认证之后按顺序判定：
//  1. 已是成员或 admin → 已加入；
//  2. 持有未消费的邀请 → 消费邀请、写入成员 → 加入；
//  3. request-to-join → 已有请求报 ErrRequestAlreadySent，否则建请求并等待；
//  4. 公开 → 写入成员 → 加入；
//  5. 否则拒绝 ErrPrivateGroup。
//
// 所有判定都在任何写入之前完成，失败时不产生部分状态。
func (s *RoomService) Join(userID, chatID uint) (*JoinOutcome, error) {
	chat, err := s.dir.ChatByID(chatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, err
	}

	member, err := s.isAuthorized(userID, chat)
	if err != nil {
		return nil, err
	}
	if member {
		return nil, ErrAlreadyMember
	}

	inv, err := s.dir.InvitationFor(userID, chatID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if inv != nil {
		if err := s.dir.ConsumeInvitation(inv.ID, chatID, userID); err != nil {
			return nil, err
		}
		return &JoinOutcome{Joined: true}, nil
	}

	if chat.RequestToJoin {
		exists, err := s.dir.HasRequest(userID, chatID)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrRequestAlreadySent
		}
		req := models.JoinRequest{UserID: userID, ChatID: chatID}
		if err := s.dir.CreateRequest(&req); err != nil {
			return nil, err
		}
		return &JoinOutcome{RequestID: req.ID}, nil
	}

	if chat.Public {
		if err := s.dir.AddMember(chatID, userID); err != nil {
			return nil, err
		}
		return &JoinOutcome{Joined: true}, nil
	}

	return nil, ErrPrivateGroup
}

// Enter 先走准入状态机（必要时把既有成员短路为已加入），成功后才把
// 连接订阅到房间。授权判定全部在索引锁之外完成。
func (s *RoomService) Enter(c *hub.Conn, chatID uint) (*JoinOutcome, error) {
	userID, _ := s.hub.Identity(c)
	if userID == 0 {
		return nil, ErrNotAuthenticated
	}
	outcome, err := s.Join(userID, chatID)
	if errors.Is(err, ErrAlreadyMember) {
		outcome, err = &JoinOutcome{Joined: true}, nil
	}
	if err != nil {
		return nil, err
	}
	if outcome.Joined {
		s.hub.Subscribe(c, chatID)
	}
	return outcome, nil
}

// Leave 退出聊天：删除成员记录并把该用户的在线连接踢出房间。
// admin 必须先转让所有权。
func (s *RoomService) Leave(userID, chatID uint) error {
	chat, err := s.dir.ChatByID(chatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrChatNotFound
		}
		return err
	}
	if chat.AdminID == userID {
		return ErrAdminMustTransferFirst
	}
	member, err := s.dir.IsMember(userID, chatID)
	if err != nil {
		return err
	}
	if !member {
		return ErrNotMember
	}
	if err := s.dir.RemoveMember(chatID, userID); err != nil {
		return err
	}
	s.hub.KickUser(chatID, userID)
	return nil
}

// Invite 由成员向非成员发出邀请。
func (s *RoomService) Invite(inviterID, inviteeID, chatID uint) (*models.Invitation, error) {
	chat, err := s.dir.ChatByID(chatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, err
	}
	ok, err := s.isAuthorized(inviterID, chat)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotMember
	}
	invitee, err := s.dir.UserByID(inviteeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	already, err := s.isAuthorized(invitee.ID, chat)
	if err != nil {
		return nil, err
	}
	if already {
		return nil, ErrAlreadyMember
	}
	if _, err := s.dir.InvitationFor(inviteeID, chatID); err == nil {
		return nil, ErrInvitationAlreadySent
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	inv := models.Invitation{InviterID: inviterID, InviteeID: inviteeID, ChatID: chatID}
	if err := s.dir.CreateInvitation(&inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// AcceptInvitation 消费邀请并成为成员。只有受邀人本人可以接受。
func (s *RoomService) AcceptInvitation(userID, invitationID uint) (*models.Chat, error) {
	inv, err := s.dir.InvitationByID(invitationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvitationNotFound
		}
		return nil, err
	}
	if inv.InviteeID != userID {
		return nil, ErrInvitationNotFound
	}
	chat, err := s.dir.ChatByID(inv.ChatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, err
	}
	if err := s.dir.ConsumeInvitation(inv.ID, inv.ChatID, userID); err != nil {
		return nil, err
	}
	return chat, nil
}

// Discover 搜索公开聊天。
func (s *RoomService) Discover(query string, limit int) ([]store.ChatSummary, error) {
	return s.dir.Discover(query, clampLimit(limit, 30))
}

// UserChats 返回用户加入的聊天，附带在线人数。
func (s *RoomService) UserChats(userID uint, limit int) ([]ChatDTO, error) {
	chats, err := s.dir.ChatsOfUser(userID, clampLimit(limit, 30))
	if err != nil {
		return nil, err
	}
	out := make([]ChatDTO, 0, len(chats))
	for _, c := range chats {
		out = append(out, ChatDTO{
			ID:            c.ID,
			Name:          c.Name,
			AdminID:       c.AdminID,
			Public:        c.Public,
			RequestToJoin: c.RequestToJoin,
			Created:       c.CreatedAt,
			IsMember:      true,
			Online:        s.hub.Online(c.ID),
		})
	}
	return out, nil
}

func (s *RoomService) UserInvitations(userID uint, limit int) ([]store.InvitationView, error) {
	return s.dir.InvitationsOfUser(userID, clampLimit(limit, 30))
}

func (s *RoomService) UserRequests(userID uint, limit int) ([]store.RequestView, error) {
	return s.dir.RequestsOfUser(userID, clampLimit(limit, 30))
}

func clampLimit(limit, def int) int {
	if limit <= 0 || limit > 200 {
		return def
	}
	return limit
}
