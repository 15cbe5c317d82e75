package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/gatherhq/gather/internal/config"
	"github.com/gatherhq/gather/internal/domain"
	"github.com/gatherhq/gather/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler terminates WebSocket connections and dispatches inbound frames.
type WSHandler struct {
	hub     *Hub
	service Service
	wsCfg   config.WebSocketConfig
}

// NewWSHandler creates a new WebSocket handler.
func NewWSHandler(h *Hub, svc Service, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:     h,
		service: svc,
		wsCfg:   wsCfg,
	}
}

// RegisterRoutes registers the WebSocket route.
func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", h.HandleWebSocket)
}

// HandleWebSocket upgrades the connection and starts the client pumps.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := NewClient(uuid.New().String(), h.hub, conn, h.wsCfg)
	client.OnClose = func(cl *Client) {
		h.service.HandleDisconnect(context.Background(), cl)
	}

	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(h.handleFrame)

	client.SendFrame(&domain.ConnectedFrame{
		Type:         domain.FrameTypeConnected,
		ConnectionID: client.ID,
	})
}

func (h *WSHandler) handleFrame(client *Client, message []byte) {
	var base domain.BaseFrame
	if err := json.Unmarshal(message, &base); err != nil {
		client.SendFrame(domain.NewErrorFrame(domain.ErrCodeBadRequest, "invalid frame format"))
		return
	}

	ctx := context.Background()
	l := log.L()

	switch base.Type {
	case domain.FrameTypeSubscribe:
		var frame domain.SubscribeFrame
		if err := json.Unmarshal(message, &frame); err != nil || frame.GroupID == "" {
			client.SendFrame(domain.NewErrorFrame(domain.ErrCodeBadRequest, "invalid subscribe frame"))
			return
		}
		if err := h.service.HandleSubscribe(ctx, client, frame.GroupID, frame.Credential); err != nil {
			l.Debug().Err(err).Str(log.FieldConnectionID, client.ID).Msg("subscribe rejected")
		}

	case domain.FrameTypeUnsubscribe:
		var frame domain.UnsubscribeFrame
		if err := json.Unmarshal(message, &frame); err != nil || frame.GroupID == "" {
			client.SendFrame(domain.NewErrorFrame(domain.ErrCodeBadRequest, "invalid unsubscribe frame"))
			return
		}
		if err := h.service.HandleUnsubscribe(ctx, client, frame.GroupID); err != nil {
			l.Debug().Err(err).Str(log.FieldConnectionID, client.ID).Msg("unsubscribe failed")
		}

	case domain.FrameTypeMessage:
		var frame domain.MessageFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			client.SendFrame(domain.NewErrorFrame(domain.ErrCodeBadRequest, "invalid message frame"))
			return
		}
		if err := h.service.HandleMessage(ctx, client, frame.Content, frame.Kind, frame.MeetingID); err != nil {
			l.Debug().Err(err).Str(log.FieldConnectionID, client.ID).Msg("message rejected")
		}

	case domain.FrameTypePing:
		client.SendFrame(&domain.BaseFrame{Type: domain.FrameTypePong})

	default:
		client.SendFrame(domain.NewErrorFrame(domain.ErrCodeBadRequest, "unknown frame type"))
	}
}
