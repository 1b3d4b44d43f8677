package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/hop/internal/friends"
	"github.com/lalith-99/hop/internal/middleware"
	"go.uber.org/zap"
)

// FriendHandler serves the friend list and friend requests.
type FriendHandler struct {
	friends *friends.Service
	logger  *zap.Logger
}

func NewFriendHandler(svc *friends.Service, logger *zap.Logger) *FriendHandler {
	return &FriendHandler{friends: svc, logger: logger}
}

// List handles GET /api/user/friend
func (h *FriendHandler) List(c *gin.Context) {
	list, err := h.friends.ListFriends(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, "failed to list friends", err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Add handles POST /api/user/friend/:friendId
func (h *FriendHandler) Add(c *gin.Context) {
	friendID, ok := uuidParam(c, "friendId")
	if !ok {
		return
	}
	if err := h.friends.AddFriend(c.Request.Context(), middleware.GetUserID(c), friendID); err != nil {
		respondError(c, h.logger, "failed to add friend", err)
		return
	}
	c.Status(http.StatusCreated)
}

// Remove handles DELETE /api/user/friend/:friendId
func (h *FriendHandler) Remove(c *gin.Context) {
	friendID, ok := uuidParam(c, "friendId")
	if !ok {
		return
	}
	if err := h.friends.RemoveFriend(c.Request.Context(), middleware.GetUserID(c), friendID); err != nil {
		respondError(c, h.logger, "failed to remove friend", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SendRequest handles POST /api/user/friend/request/:id where id is the
// target user.
func (h *FriendHandler) SendRequest(c *gin.Context) {
	targetID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	req, err := h.friends.SendRequest(c.Request.Context(), middleware.GetUserID(c), targetID)
	if err != nil {
		respondError(c, h.logger, "failed to send friend request", err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

// ListRequests handles GET /api/user/friend/request
func (h *FriendHandler) ListRequests(c *gin.Context) {
	reqs, err := h.friends.ListRequests(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, "failed to list friend requests", err)
		return
	}
	c.JSON(http.StatusOK, reqs)
}

// AcceptRequest handles POST /api/user/friend/request/:id/accept where id
// is the request.
func (h *FriendHandler) AcceptRequest(c *gin.Context) {
	requestID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.friends.AcceptRequest(c.Request.Context(), requestID, middleware.GetUserID(c)); err != nil {
		respondError(c, h.logger, "failed to accept friend request", err)
		return
	}
	c.Status(http.StatusCreated)
}

// RejectRequest handles DELETE /api/user/friend/request/:id
func (h *FriendHandler) RejectRequest(c *gin.Context) {
	requestID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.friends.RejectRequest(c.Request.Context(), requestID, middleware.GetUserID(c)); err != nil {
		respondError(c, h.logger, "failed to reject friend request", err)
		return
	}
	c.Status(http.StatusNoContent)
}
