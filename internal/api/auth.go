package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/lalith-99/hop/internal/auth"
	"github.com/lalith-99/hop/internal/identity"
	"github.com/lalith-99/hop/internal/middleware"
	"github.com/lalith-99/hop/internal/user"
	"go.uber.org/zap"
)

// AuthHandler serves the identity provider webhook and mints realtime
// tickets for already authenticated sessions.
type AuthHandler struct {
	users        *user.Service
	webhooks     identity.WebhookVerifier
	ticketSecret string
	ticketTTL    time.Duration
	logger       *zap.Logger
}

// NewAuthHandler builds the handler. A nil webhooks verifier rejects
// every webhook.
func NewAuthHandler(users *user.Service, webhooks identity.WebhookVerifier, ticketSecret string, ticketTTL time.Duration, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		users:        users,
		webhooks:     webhooks,
		ticketSecret: ticketSecret,
		ticketTTL:    ticketTTL,
		logger:       logger,
	}
}

// Webhook handles POST /api/auth
//
// The route is public, so the body must carry the identity provider's
// signature before anything in it is trusted.
func (h *AuthHandler) Webhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		badRequest(c, "invalid webhook payload")
		return
	}
	if h.webhooks == nil {
		h.logger.Warn("identity webhook received but no signing secret is configured")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook signature"})
		return
	}
	if err := h.webhooks.Verify(body, c.Request.Header); err != nil {
		h.logger.Warn("rejected identity webhook",
			zap.String("client_ip", c.ClientIP()),
			zap.Error(err),
		)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook signature"})
		return
	}

	var ev user.WebhookEvent
	if err := binding.JSON.BindBody(body, &ev); err != nil {
		badRequest(c, "invalid webhook payload")
		return
	}

	u, err := h.users.HandleWebhook(c.Request.Context(), ev)
	if err != nil {
		respondError(c, h.logger, "failed to process identity event", err)
		return
	}

	switch ev.Event {
	case user.EventUserCreated:
		c.JSON(http.StatusCreated, u)
	case user.EventUserDeleted:
		c.Status(http.StatusNoContent)
	default:
		c.JSON(http.StatusOK, u)
	}
}

type ticketResponse struct {
	Ticket    string    `json:"ticket"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IssueTicket handles POST /api/realtime/ticket
//
// The websocket handshake cannot carry the session headers from a
// browser, so the client trades them here for a short-lived ticket.
func (h *AuthHandler) IssueTicket(c *gin.Context) {
	userID := middleware.GetUserID(c)

	ticket, expiresAt, err := auth.IssueTicket(userID, h.ticketSecret, h.ticketTTL)
	if err != nil {
		h.logger.Error("failed to issue ticket", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue ticket"})
		return
	}

	c.JSON(http.StatusCreated, ticketResponse{Ticket: ticket, ExpiresAt: expiresAt})
}
