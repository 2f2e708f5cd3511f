package server

import (
	"net/http"
	"time"

	"github.com/Matrx007/rrchat/internal/auth"
	"github.com/Matrx007/rrchat/internal/config"
	"github.com/Matrx007/rrchat/internal/hub"
	"github.com/Matrx007/rrchat/internal/metrics"
	"github.com/Matrx007/rrchat/internal/mw"
	"github.com/Matrx007/rrchat/internal/service"
	"github.com/Matrx007/rrchat/internal/store"
	"github.com/Matrx007/rrchat/internal/token"
	"github.com/Matrx007/rrchat/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 端点。
func SetupRouter(cfg config.Config, dir store.Directory, tokens token.Store, h *hub.Hub) *gin.Engine {
	userSvc := service.NewUserService(dir, tokens, cfg)
	roomSvc := service.NewRoomService(dir, h)
	msgSvc := service.NewMessageService(dir, h)
	handler := NewHandler(userSvc, roomSvc, msgSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env))
	// 控制单个 IP+路由的速率，避免匿名接口被刷爆。
	r.Use(mw.RateLimit(rate.Every(time.Second/20), 40))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")

	api.POST("/auth/register", handler.Register)
	api.POST("/auth/login", handler.Login)
	api.GET("/discover", handler.Discover)

	// 公开聊天的详情与历史无需登录也可访问，带 token 则按成员身份放宽可见性。
	public := api.Group("")
	public.Use(auth.Optional(tokens, dir))
	public.GET("/chats/:id", handler.ChatInfo)
	public.GET("/chats/:id/members", handler.ChatMembers)
	public.GET("/chats/:id/messages", handler.ChatMessages)

	// 需要 Bearer Token 的业务接口。
	authed := api.Group("")
	authed.Use(auth.Middleware(tokens, dir))

	authed.POST("/auth/logout", handler.Logout)
	authed.GET("/me/chats", handler.MyChats)
	authed.GET("/me/invitations", handler.MyInvitations)
	authed.GET("/me/requests", handler.MyRequests)
	authed.POST("/chats", handler.CreateChat)
	authed.POST("/chats/:id/join", handler.JoinChat)
	authed.POST("/chats/:id/leave", handler.LeaveChat)
	authed.POST("/chats/:id/invite", handler.Invite)
	authed.POST("/invitations/:id/accept", handler.AcceptInvitation)

	r.GET("/ws", ws.Serve(h, userSvc, roomSvc, msgSvc))

	return r
}
