package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/hop/internal/friends"
	"github.com/lalith-99/hop/internal/identity"
	"github.com/lalith-99/hop/internal/middleware"
	"github.com/lalith-99/hop/internal/space"
	"github.com/lalith-99/hop/internal/user"
	"go.uber.org/zap"
)

// Deps is everything the router wires into handlers.
type Deps struct {
	Logger   *zap.Logger
	Verifier identity.Verifier
	// Webhooks checks identity webhook signatures. Nil rejects them all.
	Webhooks identity.WebhookVerifier

	Users   *user.Service
	Friends *friends.Service
	Spaces  *space.Service

	TicketSecret string
	TicketTTL    time.Duration

	// WebSocket serves GET /ws. Optional.
	WebSocket gin.HandlerFunc
	// Metrics serves GET /metrics. Optional.
	Metrics http.Handler
	// Health reports whether backing stores are reachable. Optional.
	Health func(ctx context.Context) error
}

// NewRouter builds the HTTP surface. Everything under /api except the
// index, health, public space lookup and the signed identity webhook
// requires a Stack Auth session.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(d.Logger))

	authH := NewAuthHandler(d.Users, d.Webhooks, d.TicketSecret, d.TicketTTL, d.Logger)
	userH := NewUserHandler(d.Users, d.Logger)
	friendH := NewFriendHandler(d.Friends, d.Logger)
	spaceH := NewSpaceHandler(d.Spaces, d.Logger)
	memberH := NewMembershipHandler(d.Spaces, d.Logger)

	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics))
	}
	if d.WebSocket != nil {
		r.GET("/ws", d.WebSocket)
	}

	public := r.Group("/api")
	public.GET("", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": "hop"})
	})
	public.GET("/health", func(c *gin.Context) {
		if d.Health != nil {
			if err := d.Health(c.Request.Context()); err != nil {
				d.Logger.Warn("health check failed", zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	public.GET("/spaceId/:id", spaceH.Get)
	public.POST("/auth", authH.Webhook)

	protected := r.Group("/api")
	protected.Use(middleware.StackAuth(d.Verifier, d.Logger))

	protected.POST("/realtime/ticket", authH.IssueTicket)

	protected.GET("/user", userH.GetMe)
	protected.PUT("/user", userH.UpdateMe)
	protected.GET("/user/friend", friendH.List)
	protected.POST("/user/friend/:friendId", friendH.Add)
	protected.DELETE("/user/friend/:friendId", friendH.Remove)
	protected.GET("/user/friend/request", friendH.ListRequests)
	protected.POST("/user/friend/request/:id", friendH.SendRequest)
	protected.POST("/user/friend/request/:id/accept", friendH.AcceptRequest)
	protected.DELETE("/user/friend/request/:id", friendH.RejectRequest)

	protected.POST("/space", spaceH.Create)
	protected.DELETE("/space/:spaceId", spaceH.Delete)
	protected.PUT("/space/edit", spaceH.Edit)
	protected.POST("/space/verify", spaceH.Verify)
	protected.GET("/space/mySpaces", spaceH.MySpaces)
	protected.GET("/space/invitedSpaces", spaceH.InvitedSpaces)

	protected.POST("/space/request", memberH.Invite)
	protected.GET("/space/request", memberH.ListInvites)
	protected.POST("/space/request/:requestId", memberH.Accept)
	protected.DELETE("/space/request/:requestId", memberH.Reject)
	protected.DELETE("/space/kick/:spaceId/:userId", memberH.Kick)
	protected.GET("/space/spaceMembers/:spaceId", memberH.Members)
	protected.PUT("/space/changeRole", memberH.ChangeRole)
	protected.GET("/space/role/:spaceId", memberH.MyRole)

	return r
}
