package service

import "errors"

// 业务层通用错误，handler 与 ws 层根据错误类型映射到 HTTP 状态码或错误帧。
var (
	ErrNotAuthenticated       = errors.New("not authenticated")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrUsernameTaken          = errors.New("username taken")
	ErrChatNameTaken          = errors.New("chat name taken")
	ErrInvalidChatFlags       = errors.New("public chat cannot be request-to-join")
	ErrChatNotFound           = errors.New("chat not found")
	ErrUserNotFound           = errors.New("user not found")
	ErrInvitationNotFound     = errors.New("invitation not found")
	ErrPrivateGroup           = errors.New("this chat is private")
	ErrAlreadyMember          = errors.New("already a member of this chat")
	ErrNotMember              = errors.New("not a member of this chat")
	ErrRequestAlreadySent     = errors.New("join request already sent")
	ErrInvitationAlreadySent  = errors.New("invitation already sent")
	ErrAdminMustTransferFirst = errors.New("transfer ownership before leaving")
	ErrNotInRoom              = errors.New("no active room")
)
