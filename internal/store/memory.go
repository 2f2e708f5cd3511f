package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Matrx007/rrchat/internal/models"
)

// memoryDirectory 是 Directory 的进程内实现，测试及无数据库的开发环境使用。
type memoryDirectory struct {
	mu          sync.Mutex
	users       map[uint]*models.User
	chats       map[uint]*models.Chat
	memberships map[uint]*models.Membership
	invitations map[uint]*models.Invitation
	requests    map[uint]*models.JoinRequest
	messages    map[uint]*models.Message
	nextID      map[string]uint
}

func NewMemoryDirectory() Directory {
	return &memoryDirectory{
		users:       make(map[uint]*models.User),
		chats:       make(map[uint]*models.Chat),
		memberships: make(map[uint]*models.Membership),
		invitations: make(map[uint]*models.Invitation),
		requests:    make(map[uint]*models.JoinRequest),
		messages:    make(map[uint]*models.Message),
		nextID:      make(map[string]uint),
	}
}

func (d *memoryDirectory) id(kind string) uint {
	d.nextID[kind]++
	return d.nextID[kind]
}

func (d *memoryDirectory) CreateUser(username, passwordHash string) (*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	user := &models.User{ID: d.id("user"), Username: username, PasswordHash: passwordHash, CreatedAt: time.Now()}
	d.users[user.ID] = user
	out := *user
	return &out, nil
}

func (d *memoryDirectory) UserByName(username string) (*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if u.Username == username {
			out := *u
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (d *memoryDirectory) UserByID(id uint) (*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *u
	return &out, nil
}

func (d *memoryDirectory) UsernamesByID(ids []uint) (map[uint]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[uint]string, len(ids))
	for _, id := range ids {
		if u, ok := d.users[id]; ok {
			out[id] = u.Username
		}
	}
	return out, nil
}

func (d *memoryDirectory) CreateChat(chat *models.Chat) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	chat.ID = d.id("chat")
	chat.CreatedAt = time.Now()
	cp := *chat
	d.chats[chat.ID] = &cp
	return nil
}

func (d *memoryDirectory) ChatByID(id uint) (*models.Chat, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.chats[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *c
	return &out, nil
}

func (d *memoryDirectory) ChatByName(name string) (*models.Chat, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.chats {
		if c.Name == name {
			out := *c
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (d *memoryDirectory) Discover(query string, limit int) ([]ChatSummary, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]ChatSummary, 0)
	for _, c := range d.chats {
		if !c.Public {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(c.Name), strings.ToLower(query)) {
			continue
		}
		out = append(out, ChatSummary{
			ID:            c.ID,
			Name:          c.Name,
			Members:       d.memberCountLocked(c.ID),
			Public:        c.Public,
			RequestToJoin: c.RequestToJoin,
			Created:       c.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (d *memoryDirectory) ChatsOfUser(userID uint, limit int) ([]models.Chat, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.Chat, 0)
	for _, m := range d.memberships {
		if m.UserID == userID {
			if c, ok := d.chats[m.ChatID]; ok {
				out = append(out, *c)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (d *memoryDirectory) IsMember(userID, chatID uint) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, m := range d.memberships {
		if m.UserID == userID && m.ChatID == chatID {
			return true, nil
		}
	}
	return false, nil
}

func (d *memoryDirectory) AddMember(chatID, userID uint) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	m := &models.Membership{ID: d.id("membership"), ChatID: chatID, UserID: userID, CreatedAt: time.Now()}
	d.memberships[m.ID] = m
	return nil
}

func (d *memoryDirectory) RemoveMember(chatID, userID uint) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, m := range d.memberships {
		if m.ChatID == chatID && m.UserID == userID {
			delete(d.memberships, id)
		}
	}
	return nil
}

func (d *memoryDirectory) Members(chatID uint, limit int) ([]models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.User, 0)
	for _, m := range d.memberships {
		if m.ChatID == chatID {
			if u, ok := d.users[m.UserID]; ok {
				out = append(out, *u)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (d *memoryDirectory) MemberCount(chatID uint) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.memberCountLocked(chatID), nil
}

func (d *memoryDirectory) memberCountLocked(chatID uint) int64 {
	var count int64
	for _, m := range d.memberships {
		if m.ChatID == chatID {
			count++
		}
	}
	return count
}

func (d *memoryDirectory) CreateInvitation(inv *models.Invitation) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	inv.ID = d.id("invitation")
	inv.CreatedAt = time.Now()
	cp := *inv
	d.invitations[inv.ID] = &cp
	return nil
}

func (d *memoryDirectory) InvitationByID(id uint) (*models.Invitation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	inv, ok := d.invitations[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *inv
	return &out, nil
}

func (d *memoryDirectory) InvitationFor(inviteeID, chatID uint) (*models.Invitation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var found *models.Invitation
	for _, inv := range d.invitations {
		if inv.InviteeID == inviteeID && inv.ChatID == chatID {
			if found == nil || inv.ID < found.ID {
				found = inv
			}
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	out := *found
	return &out, nil
}

func (d *memoryDirectory) ConsumeInvitation(invitationID, chatID, userID uint) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.invitations[invitationID]; !ok {
		return ErrNotFound
	}
	delete(d.invitations, invitationID)
	m := &models.Membership{ID: d.id("membership"), ChatID: chatID, UserID: userID, CreatedAt: time.Now()}
	d.memberships[m.ID] = m
	return nil
}

func (d *memoryDirectory) InvitationsOfUser(inviteeID uint, limit int) ([]InvitationView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]InvitationView, 0)
	for _, inv := range d.invitations {
		if inv.InviteeID != inviteeID {
			continue
		}
		view := InvitationView{ID: inv.ID, InviterID: inv.InviterID, ChatID: inv.ChatID, Created: inv.CreatedAt}
		if u, ok := d.users[inv.InviterID]; ok {
			view.Inviter = u.Username
		}
		if c, ok := d.chats[inv.ChatID]; ok {
			view.Chat = c.Name
		}
		out = append(out, view)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (d *memoryDirectory) HasRequest(userID, chatID uint) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range d.requests {
		if r.UserID == userID && r.ChatID == chatID && !r.Hidden {
			return true, nil
		}
	}
	return false, nil
}

func (d *memoryDirectory) CreateRequest(req *models.JoinRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	req.ID = d.id("request")
	req.CreatedAt = time.Now()
	cp := *req
	d.requests[req.ID] = &cp
	return nil
}

func (d *memoryDirectory) RequestsOfUser(userID uint, limit int) ([]RequestView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]RequestView, 0)
	for _, r := range d.requests {
		if r.UserID != userID || r.Hidden {
			continue
		}
		view := RequestView{ID: r.ID, RequesterID: r.UserID, ChatID: r.ChatID, Created: r.CreatedAt}
		if u, ok := d.users[r.UserID]; ok {
			view.Requester = u.Username
		}
		if c, ok := d.chats[r.ChatID]; ok {
			view.Chat = c.Name
		}
		out = append(out, view)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (d *memoryDirectory) CreateMessage(msg *models.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	msg.ID = d.id("message")
	msg.CreatedAt = time.Now()
	cp := *msg
	d.messages[msg.ID] = &cp
	return nil
}

func (d *memoryDirectory) MessagesOfChat(chatID uint, beforeID uint, limit int) ([]models.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.Message, 0)
	for _, m := range d.messages {
		if m.ChatID != chatID {
			continue
		}
		if beforeID > 0 && m.ID >= beforeID {
			continue
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
