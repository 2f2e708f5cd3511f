package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/Matrx007/rrchat/internal/auth"
	"github.com/Matrx007/rrchat/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Handler 聚合所有 HTTP handler，依赖注入 service 层。
type Handler struct {
	userSvc *service.UserService
	roomSvc *service.RoomService
	msgSvc  *service.MessageService
}

func NewHandler(userSvc *service.UserService, roomSvc *service.RoomService, msgSvc *service.MessageService) *Handler {
	return &Handler{userSvc: userSvc, roomSvc: roomSvc, msgSvc: msgSvc}
}

// fail 把业务错误映射为统一的 HTTP 响应；未识别的错误按 500 处理。
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotAuthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrUsernameTaken),
		errors.Is(err, service.ErrChatNameTaken),
		errors.Is(err, service.ErrAlreadyMember),
		errors.Is(err, service.ErrRequestAlreadySent),
		errors.Is(err, service.ErrInvitationAlreadySent):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrChatNotFound),
		errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrInvitationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrPrivateGroup):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidChatFlags),
		errors.Is(err, service.ErrAdminMustTransferFirst),
		errors.Is(err, service.ErrNotMember),
		errors.Is(err, service.ErrNotInRoom):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// Register 处理用户注册请求，成功后直接返回会话 token。
func (h *Handler) Register(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if len(req.Username) < 2 || len(req.Username) > 64 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid username"})
		return
	}
	if len(req.Password) < 4 || len(req.Password) > 128 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid password"})
		return
	}
	result, err := h.userSvc.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Login 处理用户登录请求。
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	result, err := h.userSvc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Logout 注销当前会话 token。
func (h *Handler) Logout(c *gin.Context) {
	tok := auth.BearerToken(c.Request)
	if tok == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}
	if err := h.userSvc.Logout(c.Request.Context(), tok); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Discover 搜索公开聊天。
func (h *Handler) Discover(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "30"))
	chats, err := h.roomSvc.Discover(c.Query("q"), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// MyChats 返回当前用户加入的聊天。
func (h *Handler) MyChats(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "30"))
	chats, err := h.roomSvc.UserChats(auth.GetUserID(c), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// MyInvitations 返回当前用户收到的邀请。
func (h *Handler) MyInvitations(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "30"))
	invs, err := h.roomSvc.UserInvitations(auth.GetUserID(c), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invitations": invs})
}

// MyRequests 返回当前用户发出的加入请求。
func (h *Handler) MyRequests(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "30"))
	reqs, err := h.roomSvc.UserRequests(auth.GetUserID(c), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs})
}

// CreateChat 处理创建聊天请求。
func (h *Handler) CreateChat(c *gin.Context) {
	var req struct {
		Name          string `json:"name"`
		Public        bool   `json:"public"`
		RequestToJoin bool   `json:"request_to_join"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if !service.ValidChatName(req.Name) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chat name can only contain letters, numbers, spaces, hyphens and underscores"})
		return
	}
	chat, err := h.roomSvc.Create(req.Name, req.Public, req.RequestToJoin, auth.GetUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat": chat})
}

func chatIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return 0, false
	}
	return uint(id), true
}

// ChatInfo 返回聊天详情，私有聊天要求成员身份。
func (h *Handler) ChatInfo(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}
	info, err := h.roomSvc.Info(chatID, auth.GetUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// ChatMembers 返回聊天的 admin 与成员列表。
func (h *Handler) ChatMembers(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "30"))
	admin, members, err := h.roomSvc.Members(chatID, auth.GetUserID(c), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"admin": admin.Name, "admin_id": admin.ID, "members": members})
}

// JoinChat 走准入状态机：入群、排队或被拒绝。
func (h *Handler) JoinChat(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}
	outcome, err := h.roomSvc.Join(auth.GetUserID(c), chatID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

// LeaveChat 退出聊天。admin 需要先转让所有权。
func (h *Handler) LeaveChat(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}
	if err := h.roomSvc.Leave(auth.GetUserID(c), chatID); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Invite 邀请其他用户加入聊天。
func (h *Handler) Invite(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}
	var req struct {
		InviteeID uint `json:"invitee_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.InviteeID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	inv, err := h.roomSvc.Invite(auth.GetUserID(c), req.InviteeID, chatID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "invitation_id": inv.ID})
}

// AcceptInvitation 接受邀请并加入聊天。
func (h *Handler) AcceptInvitation(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invitation id"})
		return
	}
	chat, err := h.roomSvc.AcceptInvitation(auth.GetUserID(c), uint(id))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"joined": true, "chat": gin.H{"id": chat.ID, "name": chat.Name}})
}

// ChatMessages 分页查询聊天历史，可见性规则与 ChatInfo 相同。
func (h *Handler) ChatMessages(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}
	// 先做可见性检查，Info 会对私有聊天的非成员报 ErrPrivateGroup。
	if _, err := h.roomSvc.Info(chatID, auth.GetUserID(c)); err != nil {
		fail(c, err)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	var beforeID uint
	if bid := c.Query("before_id"); bid != "" {
		if v, err := strconv.Atoi(bid); err == nil && v > 0 {
			beforeID = uint(v)
		}
	}
	msgs, err := h.msgSvc.History(chatID, beforeID, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
