package store

import (
	"errors"

	"github.com/Matrx007/rrchat/internal/models"
	"gorm.io/gorm"
)

// gormDirectory 是 Directory 的 Postgres 实现。
type gormDirectory struct {
	db *gorm.DB
}

func NewGormDirectory(db *gorm.DB) Directory {
	return &gormDirectory{db: db}
}

func wrapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (d *gormDirectory) CreateUser(username, passwordHash string) (*models.User, error) {
	user := models.User{Username: username, PasswordHash: passwordHash}
	if err := d.db.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (d *gormDirectory) UserByName(username string) (*models.User, error) {
	var user models.User
	if err := d.db.Where("username = ?", username).First(&user).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &user, nil
}

func (d *gormDirectory) UserByID(id uint) (*models.User, error) {
	var user models.User
	if err := d.db.First(&user, id).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &user, nil
}

func (d *gormDirectory) UsernamesByID(ids []uint) (map[uint]string, error) {
	out := make(map[uint]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []models.User
	if err := d.db.Select("id", "username").Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u.Username
	}
	return out, nil
}

func (d *gormDirectory) CreateChat(chat *models.Chat) error {
	return d.db.Create(chat).Error
}

func (d *gormDirectory) ChatByID(id uint) (*models.Chat, error) {
	var chat models.Chat
	if err := d.db.First(&chat, id).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &chat, nil
}

func (d *gormDirectory) ChatByName(name string) (*models.Chat, error) {
	var chat models.Chat
	if err := d.db.Where("name = ?", name).First(&chat).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &chat, nil
}

// Discover 列出公开聊天，支持按名称模糊搜索。
func (d *gormDirectory) Discover(query string, limit int) ([]ChatSummary, error) {
	q := d.db.Model(&models.Chat{}).Where("public = ?", true)
	if query != "" {
		q = q.Where("name ILIKE ?", "%"+escapeLike(query)+"%")
	}
	var chats []models.Chat
	if err := q.Order("id desc").Limit(limit).Find(&chats).Error; err != nil {
		return nil, err
	}
	out := make([]ChatSummary, 0, len(chats))
	for _, c := range chats {
		count, err := d.MemberCount(c.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, ChatSummary{
			ID:            c.ID,
			Name:          c.Name,
			Members:       count,
			Public:        c.Public,
			RequestToJoin: c.RequestToJoin,
			Created:       c.CreatedAt,
		})
	}
	return out, nil
}

// escapeLike 转义 LIKE 模式中的通配符，来自原始实现的 makeSQLLIKESafe。
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' || s[i] == '_' || s[i] == '\\' {
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}

func (d *gormDirectory) ChatsOfUser(userID uint, limit int) ([]models.Chat, error) {
	var chats []models.Chat
	err := d.db.
		Joins("JOIN memberships ON memberships.chat_id = chats.id AND memberships.user_id = ?", userID).
		Order("chats.id desc").Limit(limit).Find(&chats).Error
	if err != nil {
		return nil, err
	}
	return chats, nil
}

func (d *gormDirectory) IsMember(userID, chatID uint) (bool, error) {
	var count int64
	err := d.db.Model(&models.Membership{}).
		Where("user_id = ? AND chat_id = ?", userID, chatID).Count(&count).Error
	return count > 0, err
}

func (d *gormDirectory) AddMember(chatID, userID uint) error {
	return d.db.Create(&models.Membership{ChatID: chatID, UserID: userID}).Error
}

func (d *gormDirectory) RemoveMember(chatID, userID uint) error {
	return d.db.Where("chat_id = ? AND user_id = ?", chatID, userID).
		Delete(&models.Membership{}).Error
}

func (d *gormDirectory) Members(chatID uint, limit int) ([]models.User, error) {
	var users []models.User
	err := d.db.Select("users.id", "users.username").
		Joins("JOIN memberships ON memberships.user_id = users.id AND memberships.chat_id = ?", chatID).
		Order("users.id").Limit(limit).Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (d *gormDirectory) MemberCount(chatID uint) (int64, error) {
	var count int64
	err := d.db.Model(&models.Membership{}).Where("chat_id = ?", chatID).Count(&count).Error
	return count, err
}

func (d *gormDirectory) CreateInvitation(inv *models.Invitation) error {
	return d.db.Create(inv).Error
}

func (d *gormDirectory) InvitationByID(id uint) (*models.Invitation, error) {
	var inv models.Invitation
	if err := d.db.First(&inv, id).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &inv, nil
}

func (d *gormDirectory) InvitationFor(inviteeID, chatID uint) (*models.Invitation, error) {
	var inv models.Invitation
	err := d.db.Where("invitee_id = ? AND chat_id = ?", inviteeID, chatID).
		Order("id").First(&inv).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &inv, nil
}

// ConsumeInvitation 在一个事务内删除邀请并写入成员记录，保证二者同时生效。
func (d *gormDirectory) ConsumeInvitation(invitationID, chatID, userID uint) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.Invitation{}, invitationID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Create(&models.Membership{ChatID: chatID, UserID: userID}).Error
	})
}

func (d *gormDirectory) InvitationsOfUser(inviteeID uint, limit int) ([]InvitationView, error) {
	var out []InvitationView
	err := d.db.Model(&models.Invitation{}).
		Select("invitations.id", "users.username AS inviter", "invitations.inviter_id",
			"chats.name AS chat", "invitations.chat_id", "invitations.created_at AS created").
		Joins("JOIN users ON users.id = invitations.inviter_id").
		Joins("JOIN chats ON chats.id = invitations.chat_id").
		Where("invitations.invitee_id = ?", inviteeID).
		Order("invitations.id desc").Limit(limit).Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *gormDirectory) HasRequest(userID, chatID uint) (bool, error) {
	var count int64
	err := d.db.Model(&models.JoinRequest{}).
		Where("user_id = ? AND chat_id = ? AND hidden = ?", userID, chatID, false).
		Count(&count).Error
	return count > 0, err
}

func (d *gormDirectory) CreateRequest(req *models.JoinRequest) error {
	return d.db.Create(req).Error
}

func (d *gormDirectory) RequestsOfUser(userID uint, limit int) ([]RequestView, error) {
	var out []RequestView
	err := d.db.Model(&models.JoinRequest{}).
		Select("join_requests.id", "users.username AS requester", "join_requests.user_id AS requester_id",
			"chats.name AS chat", "join_requests.chat_id", "join_requests.created_at AS created").
		Joins("JOIN users ON users.id = join_requests.user_id").
		Joins("JOIN chats ON chats.id = join_requests.chat_id").
		Where("join_requests.user_id = ? AND join_requests.hidden = ?", userID, false).
		Order("join_requests.id desc").Limit(limit).Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *gormDirectory) CreateMessage(msg *models.Message) error {
	return d.db.Create(msg).Error
}

// MessagesOfChat 按 id 降序取一页消息，调用方自行反转为升序展示。
func (d *gormDirectory) MessagesOfChat(chatID uint, beforeID uint, limit int) ([]models.Message, error) {
	q := d.db.Where("chat_id = ?", chatID)
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}
	var msgs []models.Message
	if err := q.Order("id desc").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}
