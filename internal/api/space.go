package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/hop/internal/middleware"
	"github.com/lalith-99/hop/internal/space"
	"go.uber.org/zap"
)

// SpaceHandler serves space creation, editing and lookups. Invitations and
// membership live in MembershipHandler.
type SpaceHandler struct {
	spaces *space.Service
	logger *zap.Logger
}

func NewSpaceHandler(spaces *space.Service, logger *zap.Logger) *SpaceHandler {
	return &SpaceHandler{spaces: spaces, logger: logger}
}

// createSpaceRequest is the body of POST /api/space. ID is optional; the
// web client pre-generates it so it can route to the space immediately.
type createSpaceRequest struct {
	ID       string `json:"id" binding:"omitempty,uuid"`
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required"`
	Theme    string `json:"theme"`
}

type editSpaceRequest struct {
	SpaceID string `json:"spaceId" binding:"required,uuid"`
	Name    string `json:"name" binding:"required"`
	Theme   string `json:"theme"`
}

type verifySpaceRequest struct {
	SpaceID  string `json:"spaceId" binding:"required,uuid"`
	Password string `json:"password" binding:"required"`
}

// Create handles POST /api/space
func (h *SpaceHandler) Create(c *gin.Context) {
	var req createSpaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	in := space.CreateSpaceInput{
		Name:     req.Name,
		OwnerID:  middleware.GetUserID(c),
		Password: req.Password,
		Theme:    req.Theme,
	}
	if req.ID != "" {
		in.ID = uuid.MustParse(req.ID)
	}

	sp, err := h.spaces.CreateSpace(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.logger, "failed to create space", err)
		return
	}
	c.JSON(http.StatusCreated, sp.View())
}

// Delete handles DELETE /api/space/:spaceId
func (h *SpaceHandler) Delete(c *gin.Context) {
	spaceID, ok := uuidParam(c, "spaceId")
	if !ok {
		return
	}
	if err := h.spaces.DeleteSpace(c.Request.Context(), spaceID, middleware.GetUserID(c)); err != nil {
		respondError(c, h.logger, "failed to delete space", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Edit handles PUT /api/space/edit
func (h *SpaceHandler) Edit(c *gin.Context) {
	var req editSpaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	view, err := h.spaces.EditSpace(c.Request.Context(), middleware.GetUserID(c), uuid.MustParse(req.SpaceID), req.Name, req.Theme)
	if err != nil {
		respondError(c, h.logger, "failed to edit space", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Get handles GET /api/spaceId/:id
//
// Public: the join page shows the space name before the visitor signs in.
func (h *SpaceHandler) Get(c *gin.Context) {
	spaceID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	view, err := h.spaces.GetSpace(c.Request.Context(), spaceID)
	if err != nil {
		respondError(c, h.logger, "failed to get space", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Verify handles POST /api/space/verify
func (h *SpaceHandler) Verify(c *gin.Context) {
	var req verifySpaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	valid, err := h.spaces.VerifyPassword(c.Request.Context(), uuid.MustParse(req.SpaceID), req.Password)
	if err != nil {
		respondError(c, h.logger, "failed to verify space password", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": valid})
}

// MySpaces handles GET /api/space/mySpaces
func (h *SpaceHandler) MySpaces(c *gin.Context) {
	spaces, err := h.spaces.ListOwnedSpaces(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, "failed to list owned spaces", err)
		return
	}
	c.JSON(http.StatusOK, spaces)
}

// InvitedSpaces handles GET /api/space/invitedSpaces
func (h *SpaceHandler) InvitedSpaces(c *gin.Context) {
	spaces, err := h.spaces.ListInvitedSpaces(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, "failed to list invited spaces", err)
		return
	}
	c.JSON(http.StatusOK, spaces)
}
