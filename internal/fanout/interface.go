package fanout

import (
	"context"
	"errors"
	"time"

	"github.com/gatherhq/gather/internal/domain"
)

var (
	// ErrNotAMember is returned when the caller is not a current member of
	// the group. Membership is re-checked on every call, never cached.
	ErrNotAMember = errors.New("not a member of this group")
)

// MessageHandler receives messages delivered for a subscribed group, in
// per-group publish order. Handlers must not block.
type MessageHandler func(msg *domain.ChatMessage)

// Service owns message validation, broker hand-off, and write-behind
// persistence for group chat.
type Service interface {
	// Send validates membership, publishes the message to the broker, and
	// stages it for durable storage. It returns the accepted message without
	// waiting for the durable write.
	Send(ctx context.Context, groupID, senderID, body string, kind domain.MessageKind, meetingID string) (*domain.ChatMessage, error)

	// List returns recent messages for the group in display order (oldest
	// first). Reads only the message store, so entries staged in the write
	// buffer are invisible until the next flush.
	List(ctx context.Context, groupID, callerID string, limit int) ([]*domain.ChatMessage, error)

	// SubscribeToGroup registers a local listener for the group. The first
	// listener establishes the single broker subscription for the group in
	// this process; later listeners share it.
	SubscribeToGroup(ctx context.Context, groupID, listenerID string, h MessageHandler) error

	// UnsubscribeFromGroup removes a local listener. When the last listener
	// for the group is gone, the broker subscription is torn down.
	UnsubscribeFromGroup(ctx context.Context, groupID, listenerID string)

	// Start launches the background flush loop.
	Start(ctx context.Context) error

	// Stop halts the flush loop and drains the write buffer with a bounded
	// best-effort timeout. Messages still unflushed when the process is
	// killed outright are an accepted loss boundary.
	Stop() error
}

// Config holds fan-out service tunables.
type Config struct {
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	MaxBatchSize  int           `mapstructure:"max_batch_size"`
	DrainTimeout  time.Duration `mapstructure:"drain_timeout"`
}
