package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"askgpt/internal/auth"
	"askgpt/internal/chat"
	"askgpt/internal/store"
)

// WindowInvalidator drops a conversation's cached history window when
// the conversation is deleted. nil when no cache is configured.
type WindowInvalidator interface {
	Invalidate(ctx context.Context, userID, conversationID uint) error
}

type Server struct {
	engine  *gin.Engine
	authSvc *auth.Service
	chatSvc *chat.Service
	store   *store.Store
	window  WindowInvalidator
	log     *zap.Logger
}

func New(allowedOrigin string, authSvc *auth.Service, chatSvc *chat.Service, st *store.Store, window WindowInvalidator, log *zap.Logger) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery(), RequestLog(log), CORS(allowedOrigin), Identity(authSvc))

	s := &Server{
		engine:  engine,
		authSvc: authSvc,
		chatSvc: chatSvc,
		store:   st,
		window:  window,
		log:     log,
	}

	api := engine.Group("/api")
	{
		api.POST("/register", s.handleRegister)
		api.POST("/login", s.handleLogin)
		api.POST("/chat", s.handleChat)
		api.GET("/history", s.handleHistory)
		api.GET("/conversations", s.handleListConversations)
		api.DELETE("/conversations/:id", s.handleDeleteConversation)
		api.DELETE("/conversations", s.handleDeleteAllConversations)
		api.GET("/health", s.handleHealth)
	}

	return s
}

func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

// Handler exposes the engine for tests.
func (s *Server) Handler() http.Handler { return s.engine }
