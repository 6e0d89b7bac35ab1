package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"askgpt/internal/auth"
	"askgpt/internal/store"
)

const identityKey = "identity"

// CORS allows the configured front-end origin. Preflight requests are
// answered here.
func CORS(allowedOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", allowedOrigin)
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Identity resolves the caller. It never rejects: anonymous callers
// proceed with no identity set; handlers that require one check for it.
func Identity(authSvc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if user := authSvc.Identify(c.Request.Context(), c.GetHeader("Authorization")); user != nil {
			c.Set(identityKey, user)
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) *store.User {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	user, _ := v.(*store.User)
	return user
}

// RequestLog tags each request with an id and logs its outcome.
func RequestLog(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.NewString()
		c.Header("X-Request-ID", requestID)

		start := time.Now()
		c.Next()

		log.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
