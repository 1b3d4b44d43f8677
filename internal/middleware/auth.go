package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/hop/internal/apperr"
	"github.com/lalith-99/hop/internal/identity"
	"go.uber.org/zap"
)

const (
	HeaderAccessToken  = "X-Stack-Access-Token"
	HeaderRefreshToken = "X-Stack-Refresh-Token"

	ContextKeyUserID = "user_id"
)

// StackAuth requires both Stack Auth session headers and resolves them to
// a user id through verifier. Handlers read the id with GetUserID.
func StackAuth(verifier identity.Verifier, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		accessToken := c.GetHeader(HeaderAccessToken)
		refreshToken := c.GetHeader(HeaderRefreshToken)
		if accessToken == "" || refreshToken == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "session tokens not provided",
			})
			return
		}

		userID, err := verifier.Verify(c.Request.Context(), accessToken, refreshToken)
		if err != nil {
			status, msg := apperr.Public(err)
			if status >= http.StatusInternalServerError {
				logger.Error("session verification failed", zap.Error(err))
			}
			c.AbortWithStatusJSON(status, gin.H{"error": msg})
			return
		}

		c.Set(ContextKeyUserID, userID)
		c.Next()
	}
}

// GetUserID returns the authenticated user, or uuid.Nil outside StackAuth.
func GetUserID(c *gin.Context) uuid.UUID {
	val, exists := c.Get(ContextKeyUserID)
	if !exists {
		return uuid.Nil
	}
	id, ok := val.(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return id
}
