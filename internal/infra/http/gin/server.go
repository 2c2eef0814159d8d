package ginserver

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"pingme/internal/infra/config"
	"pingme/internal/infra/obs"
)

// ChatHTTP exposes the REST half of the chat gateway.
type ChatHTTP interface {
	ResolveConversation(c *gin.Context)
	SendMessage(c *gin.Context)
	MarkSeen(c *gin.Context)
	SetTyping(c *gin.Context)
	UploadMedia(c *gin.Context)
}

// StreamHTTP exposes the WebSocket half: live conversation views and the
// per-user chat list.
type StreamHTTP interface {
	ConversationSocket(c *gin.Context)
	ChatListSocket(c *gin.Context)
}

type Handlers struct {
	Chat   ChatHTTP
	Stream StreamHTTP
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID"},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			"X-Request-ID",
		},
		MaxAge: 12 * time.Hour,
	}))

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)

	api := router.Group("/api/v1")
	if h.Chat != nil {
		api.GET("/conversations/resolve", h.Chat.ResolveConversation)
		api.POST("/conversations/:id/messages", h.Chat.SendMessage)
		api.POST("/conversations/:id/seen", h.Chat.MarkSeen)
		api.POST("/conversations/:id/typing", h.Chat.SetTyping)
		api.POST("/conversations/:id/media", h.Chat.UploadMedia)
	}
	if h.Stream != nil {
		api.GET("/conversations/:id/ws", h.Stream.ConversationSocket)
		api.GET("/chats/ws", h.Stream.ChatListSocket)
	}

	return &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}
}

func configureGinMode(env string) string {
	switch env {
	case "prod", "production":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}
	return gin.Mode()
}
