package httpapi

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gatherhq/gather/internal/fanout"
	"github.com/gatherhq/gather/internal/gateway"
	"github.com/gatherhq/gather/pkg/middleware"
	"github.com/gatherhq/gather/pkg/response"
)

// Handler serves the thin REST surface next to the WebSocket gateway.
type Handler struct {
	fanout         fanout.Service
	hub            *gateway.Hub
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler creates a new HTTP handler.
func NewHandler(fo fanout.Service, hub *gateway.Hub, authMiddleware *middleware.AuthMiddleware) *Handler {
	return &Handler{
		fanout:         fo,
		hub:            hub,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	api := r.Group("/api/v1")
	{
		groups := api.Group("/groups")
		{
			groups.GET("/:id/messages", h.authMiddleware.RequireAuth(), h.ListMessages)
		}
	}
}

// Health reports liveness and the current connection count.
func (h *Handler) Health(c *gin.Context) {
	response.Success(c, gin.H{
		"status":      "ok",
		"connections": h.hub.ClientCount(),
	})
}

// ListMessages returns recent messages for a group in display order.
// History reads lag the write buffer by at most one flush interval.
func (h *Handler) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()

	userID := middleware.GetUserID(c)
	if userID == "" {
		response.Unauthorized(c, "unauthorized")
		return
	}

	groupID := c.Param("id")
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil {
		response.BadRequest(c, "invalid limit")
		return
	}

	msgs, err := h.fanout.List(ctx, groupID, userID, limit)
	if err != nil {
		if errors.Is(err, fanout.ErrNotAMember) {
			response.Forbidden(c, "not a member of this group")
			return
		}
		response.InternalError(c, "failed to list messages")
		return
	}

	response.Success(c, msgs)
}
