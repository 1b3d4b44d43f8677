package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/hop/internal/middleware"
	"github.com/lalith-99/hop/internal/user"
	"go.uber.org/zap"
)

// UserHandler serves the caller's own profile.
type UserHandler struct {
	users  *user.Service
	logger *zap.Logger
}

func NewUserHandler(users *user.Service, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// GetMe handles GET /api/user
func (h *UserHandler) GetMe(c *gin.Context) {
	u, err := h.users.Get(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, "failed to get user", err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// UpdateMe handles PUT /api/user
func (h *UserHandler) UpdateMe(c *gin.Context) {
	var req user.ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	u, err := h.users.UpdateProfile(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		respondError(c, h.logger, "failed to update user", err)
		return
	}
	c.JSON(http.StatusOK, u)
}
