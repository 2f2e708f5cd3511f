package models

import "time"

type User struct {
	ID           uint   `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex;size:64;not null"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Chat struct {
	ID            uint   `gorm:"primaryKey"`
	Name          string `gorm:"uniqueIndex;size:128;not null"`
	AdminID       uint   `gorm:"index;not null"`
	Public        bool   `gorm:"not null"`
	RequestToJoin bool   `gorm:"not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Membership struct {
	ID        uint `gorm:"primaryKey"`
	ChatID    uint `gorm:"uniqueIndex:idx_member_chat_user;not null"`
	UserID    uint `gorm:"uniqueIndex:idx_member_chat_user;index;not null"`
	CreatedAt time.Time
}

type Invitation struct {
	ID        uint `gorm:"primaryKey"`
	InviterID uint `gorm:"not null"`
	InviteeID uint `gorm:"index;not null"`
	ChatID    uint `gorm:"index;not null"`
	CreatedAt time.Time
}

type JoinRequest struct {
	ID        uint `gorm:"primaryKey"`
	UserID    uint `gorm:"index;not null"`
	ChatID    uint `gorm:"index;not null"`
	Hidden    bool `gorm:"not null;default:false"`
	CreatedAt time.Time
}

type Message struct {
	ID          uint   `gorm:"primaryKey"`
	ChatID      uint   `gorm:"index:idx_msg_chat_id;not null"`
	SenderID    uint   `gorm:"index;not null"`
	ContentType string `gorm:"size:32;not null;default:'text'"`
	Content     string `gorm:"type:text;not null"`
	CreatedAt   time.Time
}
