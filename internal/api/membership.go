package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/hop/internal/middleware"
	"github.com/lalith-99/hop/internal/space"
	"go.uber.org/zap"
)

// MembershipHandler serves invitations, roles and removal for spaces.
type MembershipHandler struct {
	spaces *space.Service
	logger *zap.Logger
}

func NewMembershipHandler(spaces *space.Service, logger *zap.Logger) *MembershipHandler {
	return &MembershipHandler{spaces: spaces, logger: logger}
}

type inviteRequest struct {
	SpaceID  string `json:"spaceId" binding:"required,uuid"`
	FriendID string `json:"friendId" binding:"required,uuid"`
	Role     string `json:"role" binding:"required"`
}

type changeRoleRequest struct {
	SpaceID string `json:"spaceId" binding:"required,uuid"`
	UserID  string `json:"userId" binding:"required,uuid"`
	Role    string `json:"role" binding:"required"`
}

// Invite handles POST /api/space/request
func (h *MembershipHandler) Invite(c *gin.Context) {
	var req inviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	sr, err := h.spaces.InviteUser(c.Request.Context(), space.InviteInput{
		SpaceID:   uuid.MustParse(req.SpaceID),
		InviterID: middleware.GetUserID(c),
		InvitedID: uuid.MustParse(req.FriendID),
		Role:      req.Role,
	})
	if err != nil {
		respondError(c, h.logger, "failed to invite user", err)
		return
	}
	c.JSON(http.StatusCreated, sr)
}

// Accept handles POST /api/space/request/:requestId
func (h *MembershipHandler) Accept(c *gin.Context) {
	requestID, ok := uuidParam(c, "requestId")
	if !ok {
		return
	}
	member, err := h.spaces.AcceptInvite(c.Request.Context(), requestID, middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, "failed to accept invite", err)
		return
	}
	c.JSON(http.StatusCreated, member)
}

// Reject handles DELETE /api/space/request/:requestId
func (h *MembershipHandler) Reject(c *gin.Context) {
	requestID, ok := uuidParam(c, "requestId")
	if !ok {
		return
	}
	if err := h.spaces.RejectInvite(c.Request.Context(), requestID, middleware.GetUserID(c)); err != nil {
		respondError(c, h.logger, "failed to reject invite", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListInvites handles GET /api/space/request
func (h *MembershipHandler) ListInvites(c *gin.Context) {
	invites, err := h.spaces.ListInvites(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, "failed to list invites", err)
		return
	}
	c.JSON(http.StatusOK, invites)
}

// Kick handles DELETE /api/space/kick/:spaceId/:userId
//
// Members leave a space through the same route with their own id.
func (h *MembershipHandler) Kick(c *gin.Context) {
	spaceID, ok := uuidParam(c, "spaceId")
	if !ok {
		return
	}
	targetID, ok := uuidParam(c, "userId")
	if !ok {
		return
	}
	if err := h.spaces.RemoveMember(c.Request.Context(), spaceID, middleware.GetUserID(c), targetID); err != nil {
		respondError(c, h.logger, "failed to remove member", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Members handles GET /api/space/spaceMembers/:spaceId
func (h *MembershipHandler) Members(c *gin.Context) {
	spaceID, ok := uuidParam(c, "spaceId")
	if !ok {
		return
	}
	members, err := h.spaces.ListSpaceMembers(c.Request.Context(), spaceID, middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, "failed to list members", err)
		return
	}
	c.JSON(http.StatusOK, members)
}

// ChangeRole handles PUT /api/space/changeRole
func (h *MembershipHandler) ChangeRole(c *gin.Context) {
	var req changeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	err := h.spaces.EditUserRole(c.Request.Context(), middleware.GetUserID(c), uuid.MustParse(req.UserID), uuid.MustParse(req.SpaceID), req.Role)
	if err != nil {
		respondError(c, h.logger, "failed to change role", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// MyRole handles GET /api/space/role/:spaceId
func (h *MembershipHandler) MyRole(c *gin.Context) {
	spaceID, ok := uuidParam(c, "spaceId")
	if !ok {
		return
	}
	role, err := h.spaces.MyRole(c.Request.Context(), spaceID, middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, "failed to get role", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"role": role})
}
