package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

// RouterConfig carries what the router needs beyond the handlers.
type RouterConfig struct {
	Auth           *Authenticator
	AllowedOrigins []string
}

// NewRouter mounts the REST API under /api/v1, the websocket at /ws and a
// health check, wrapped in CORS.
func NewRouter(api *Handler, ws *WSHandler, cfg RouterConfig) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ws", gin.WrapF(ws.ServeWS))

	v1 := r.Group("/api/v1")
	host := cfg.Auth.RequireAuth()
	optional := cfg.Auth.OptionalAuth()
	player := cfg.Auth.RequireParticipant()

	sessions := v1.Group("/sessions")
	{
		sessions.POST("", host, api.CreateSession)
		sessions.POST("/join", optional, api.Join)
		sessions.GET("/pin/:pin", api.FindByPin)
		sessions.GET("/:id", api.GetSession)
		sessions.DELETE("/:id", host, api.DeleteSession)
		sessions.POST("/:id/countdown", host, api.StartCountdown)
		sessions.POST("/:id/activate", optional, api.Activate)
		sessions.POST("/:id/finish", optional, api.Finish)
		sessions.POST("/:id/next", host, api.AdvanceQuestion)
		sessions.GET("/:id/leaderboard", api.Leaderboard)
		sessions.POST("/:id/answers", player, api.SubmitAnswer)
		sessions.POST("/:id/hold", player, api.Hold)
		sessions.GET("/:id/chat", api.ChatHistory)
		sessions.POST("/:id/chat", optional, api.SendChat)
	}

	participants := v1.Group("/participants")
	{
		participants.POST("/:id/leave", player, api.Leave)
		participants.GET("/:id/score", api.Score)
	}

	chat := v1.Group("/chat")
	{
		chat.POST("/:messageId/read", optional, api.MarkRead)
		chat.GET("/:messageId/receipts", api.Receipts)
	}

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodDelete,
		},
		AllowedHeaders: []string{"Origin", "Content-Type", "Authorization"},
	})
	return c.Handler(r)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		event := log.Debug()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = log.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}
