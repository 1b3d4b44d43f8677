package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/hop/internal/apperr"
	"go.uber.org/zap"
)

// respondError maps err to its public status and message. Server-side
// failures are logged with the full cause.
func respondError(c *gin.Context, logger *zap.Logger, msg string, err error) {
	status, public := apperr.Public(err)
	if status >= http.StatusInternalServerError {
		logger.Error(msg, zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": public})
}

// badRequest answers 400 for malformed input that never reached a service.
func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// uuidParam parses a path parameter, answering 400 when it is not a UUID.
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
