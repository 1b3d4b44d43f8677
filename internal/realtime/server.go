package realtime

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/hop/internal/auth"
	"go.uber.org/zap"
)

// Handler upgrades ticket-authenticated requests to websockets.
type Handler struct {
	lifecycle    *Lifecycle
	ticketSecret string
	upgrader     websocket.Upgrader
	logger       *zap.Logger
}

func NewHandler(lifecycle *Lifecycle, ticketSecret string, logger *zap.Logger) *Handler {
	return &Handler{
		lifecycle:    lifecycle,
		ticketSecret: ticketSecret,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browsers connect from the web client's origin; the ticket is
			// the credential.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// ServeWS handles GET /ws?ticket=...
//
// The ticket is checked before the upgrade so a bad ticket gets a plain
// HTTP 401. The handler goroutine then runs the read loop until the
// connection ends.
func (h *Handler) ServeWS(c *gin.Context) {
	ticket := c.Query("ticket")
	if ticket == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "ticket required"})
		return
	}
	userID, err := auth.ParseTicket(ticket, h.ticketSecret)
	if err != nil {
		h.logger.Debug("rejected websocket ticket", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired ticket"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(conn, userID, h.logger)
	go client.writePump()

	ctx := c.Request.Context()
	if err := h.lifecycle.Connect(ctx, client); err != nil {
		client.logger.Error("register connection", zap.Error(err))
		client.sendError("presence unavailable")
		client.Close()
		return
	}
	client.logger.Info("websocket connected")

	client.readPump(ctx, h.lifecycle.HandleEvent)

	h.lifecycle.Disconnect(ctx, client)
	client.logger.Info("websocket disconnected")
}
