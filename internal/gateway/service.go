package gateway

import (
	"context"
	"errors"

	"github.com/gatherhq/gather/internal/domain"
	"github.com/gatherhq/gather/internal/fanout"
	"github.com/gatherhq/gather/internal/store"
	"github.com/gatherhq/gather/pkg/jwt"
	"github.com/gatherhq/gather/pkg/log"
)

// Service implements the per-frame gateway logic on top of the fan-out
// service. Failures are reported only to the offending connection.
type Service interface {
	HandleSubscribe(ctx context.Context, c *Client, groupID, credential string) error
	HandleUnsubscribe(ctx context.Context, c *Client, groupID string) error
	HandleMessage(ctx context.Context, c *Client, content, kind, meetingID string) error
	HandleDisconnect(ctx context.Context, c *Client) error
}

type gatewayService struct {
	fanout  fanout.Service
	members store.MembershipStore
	tokens  *jwt.Manager
}

// NewService creates the gateway service.
func NewService(fo fanout.Service, members store.MembershipStore, tokens *jwt.Manager) Service {
	return &gatewayService{
		fanout:  fo,
		members: members,
		tokens:  tokens,
	}
}

func (s *gatewayService) HandleSubscribe(ctx context.Context, c *Client, groupID, credential string) error {
	l := log.Ctx(ctx)

	claims, err := s.tokens.Verify(credential)
	if err != nil {
		// Connection stays open in Connected state.
		c.SendFrame(domain.NewErrorFrame(domain.ErrCodeAuthenticationFailed, "invalid credential"))
		return err
	}

	ok, err := s.members.IsMember(ctx, groupID, claims.UserID)
	if err != nil {
		c.SendFrame(domain.NewErrorFrame(domain.ErrCodeInternalError, "membership check failed"))
		return err
	}
	if !ok {
		c.SendFrame(domain.NewErrorFrame(domain.ErrCodeNotAMember, "not a member of this group"))
		return fanout.ErrNotAMember
	}

	// Re-subscribing while subscribed to another group implies leaving it.
	if prev := c.Session.GroupID(); prev != "" && prev != groupID {
		s.fanout.UnsubscribeFromGroup(ctx, prev, c.ID)
		c.Session.Unsubscribe()
	}

	c.Session.Authenticate(claims.UserID, claims.DisplayName, claims.Email)

	err = s.fanout.SubscribeToGroup(ctx, groupID, c.ID, func(msg *domain.ChatMessage) {
		if !c.TrySend(domain.NewMessageFrame(msg)) {
			// Slow consumer: cut it loose rather than stall group delivery.
			l.Warn().Str(log.FieldConnectionID, c.ID).Msg("send buffer full, closing slow client")
			go c.Hub.Unregister(c)
		}
	})
	if err != nil {
		c.SendFrame(domain.NewErrorFrame(domain.ErrCodeInternalError, "failed to subscribe"))
		return err
	}

	c.Session.Subscribe(groupID)

	l.Info().
		Str(log.FieldConnectionID, c.ID).
		Str(log.FieldGroupID, groupID).
		Str(log.FieldUserID, claims.UserID).
		Msg("connection subscribed")

	return c.SendFrame(&domain.SubscribedFrame{
		Type:    domain.FrameTypeSubscribed,
		GroupID: groupID,
	})
}

func (s *gatewayService) HandleUnsubscribe(ctx context.Context, c *Client, groupID string) error {
	if c.Session.GroupID() != groupID {
		return c.SendFrame(domain.NewErrorFrame(domain.ErrCodeNotSubscribed, "not subscribed to this group"))
	}

	s.fanout.UnsubscribeFromGroup(ctx, groupID, c.ID)
	c.Session.Unsubscribe()

	return c.SendFrame(&domain.UnsubscribedFrame{
		Type:    domain.FrameTypeUnsubscribed,
		GroupID: groupID,
	})
}

func (s *gatewayService) HandleMessage(ctx context.Context, c *Client, content, kind, meetingID string) error {
	groupID := c.Session.GroupID()
	if groupID == "" {
		return c.SendFrame(domain.NewErrorFrame(domain.ErrCodeNotSubscribed, "subscribe to a group first"))
	}

	_, err := s.fanout.Send(ctx, groupID, c.Session.GetUserID(), content, domain.MessageKind(kind), meetingID)
	if err != nil {
		// The sender alone hears about the failure; siblings are never told.
		if errors.Is(err, fanout.ErrNotAMember) {
			return c.SendFrame(domain.NewErrorFrame(domain.ErrCodeNotAMember, "membership revoked"))
		}
		return c.SendFrame(domain.NewErrorFrame(domain.ErrCodeInternalError, "failed to send message"))
	}

	return nil
}

func (s *gatewayService) HandleDisconnect(ctx context.Context, c *Client) error {
	if groupID := c.Session.GroupID(); groupID != "" {
		s.fanout.UnsubscribeFromGroup(ctx, groupID, c.ID)
		c.Session.Unsubscribe()
	}
	return nil
}
