package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"askgpt/internal/chat"
	"askgpt/internal/store"
)

type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleRegister(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request: " + err.Error()})
		return
	}

	if _, err := s.store.FindUserByUsername(c.Request.Context(), req.Username); err == nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Username already registered"})
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		s.log.Error("user lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
		return
	}

	hashed, err := s.authSvc.HashPassword(req.Password)
	if err != nil {
		s.log.Error("password hash failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
		return
	}
	if _, err := s.store.CreateUser(c.Request.Context(), req.Username, hashed); err != nil {
		s.log.Error("user create failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "User created successfully"})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request: " + err.Error()})
		return
	}

	user, err := s.store.FindUserByUsername(c.Request.Context(), req.Username)
	if err != nil || !s.authSvc.CheckPassword(user.HashedPassword, req.Password) {
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Incorrect username or password"})
		return
	}

	token, err := s.authSvc.IssueToken(user.Username)
	if err != nil {
		s.log.Error("token issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"access_token": token, "token_type": "bearer"})
}

type chatRequest struct {
	Message        string `json:"message" binding:"required"`
	Image          string `json:"image"`
	ConversationID *uint  `json:"conversation_id"`
}

func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request: " + err.Error()})
		return
	}

	envelope := s.chatSvc.HandleTurn(c.Request.Context(), currentUser(c), chat.Turn{
		Message:        req.Message,
		Image:          req.Image,
		ConversationID: req.ConversationID,
	})
	c.JSON(http.StatusOK, envelope)
}

func (s *Server) handleHistory(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Not authenticated"})
		return
	}

	var (
		msgs []store.Message
		err  error
	)
	if raw := c.Query("conversation_id"); raw != "" {
		id, parseErr := strconv.ParseUint(raw, 10, 64)
		if parseErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid conversation_id"})
			return
		}
		msgs, err = s.store.ListMessages(c.Request.Context(), user.ID, uint(id))
	} else {
		msgs, err = s.store.ListUserMessages(c.Request.Context(), user.ID, 50)
	}
	if err != nil {
		s.log.Error("history fetch failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
		return
	}

	// Shape rows the way the front end renders them.
	rows := make([]gin.H, 0, len(msgs))
	for _, m := range msgs {
		sender := "ai"
		if m.Role == "user" {
			sender = "user"
		}
		var image *string
		if m.Image != "" {
			img := m.Image
			image = &img
		}
		rows = append(rows, gin.H{
			"id":     m.ID,
			"text":   m.Content,
			"sender": sender,
			"image":  image,
			"model":  "History",
		})
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) handleListConversations(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Not authenticated"})
		return
	}

	convs, err := s.store.ListConversations(c.Request.Context(), user.ID)
	if err != nil {
		s.log.Error("conversation list failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
		return
	}

	rows := make([]gin.H, 0, len(convs))
	for _, conv := range convs {
		rows = append(rows, gin.H{
			"id":         conv.ID,
			"title":      conv.Title,
			"updated_at": conv.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) handleDeleteConversation(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Not authenticated"})
		return
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid conversation id"})
		return
	}
	if err := s.store.DeleteConversation(c.Request.Context(), user.ID, uint(id)); err != nil {
		s.log.Error("conversation delete failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
		return
	}
	s.dropWindow(c.Request.Context(), user.ID, uint(id))
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (s *Server) handleDeleteAllConversations(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Not authenticated"})
		return
	}

	// Collect ids before the purge so their cached windows can be
	// dropped afterwards.
	var convs []store.Conversation
	if s.window != nil {
		var err error
		convs, err = s.store.ListConversations(c.Request.Context(), user.ID)
		if err != nil {
			s.log.Warn("failed to list conversations for window cleanup", zap.Error(err))
		}
	}

	if err := s.store.DeleteAllConversations(c.Request.Context(), user.ID); err != nil {
		s.log.Error("conversation purge failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
		return
	}
	for _, conv := range convs {
		s.dropWindow(c.Request.Context(), user.ID, conv.ID)
	}
	c.JSON(http.StatusOK, gin.H{"status": "all_deleted"})
}

// dropWindow removes a deleted conversation's cached history so a
// reused id cannot inherit stale context.
func (s *Server) dropWindow(ctx context.Context, userID, conversationID uint) {
	if s.window == nil {
		return
	}
	if err := s.window.Invalidate(ctx, userID, conversationID); err != nil {
		s.log.Warn("failed to drop history window",
			zap.Uint("conversation_id", conversationID), zap.Error(err))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
