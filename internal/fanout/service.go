package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gatherhq/gather/internal/broker"
	"github.com/gatherhq/gather/internal/domain"
	"github.com/gatherhq/gather/internal/store"
	"github.com/gatherhq/gather/pkg/log"
)

type service struct {
	broker   broker.Broker
	messages store.MessageStore
	members  store.MembershipStore
	buffer   *writeBuffer
	cfg      Config

	// listeners is the local dispatch table (group -> listener id -> handler);
	// subs holds the one broker subscription per group in this process.
	mu        sync.RWMutex
	listeners map[string]map[string]MessageHandler
	subs      map[string]broker.Subscription

	flushCh chan string
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewService creates the fan-out service.
func NewService(b broker.Broker, messages store.MessageStore, members store.MembershipStore, cfg Config) Service {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 50
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 10 * time.Second
	}

	return &service{
		broker:    b,
		messages:  messages,
		members:   members,
		buffer:    newWriteBuffer(),
		cfg:       cfg,
		listeners: make(map[string]map[string]MessageHandler),
		subs:      make(map[string]broker.Subscription),
		flushCh:   make(chan string, 64),
	}
}

func (s *service) Send(ctx context.Context, groupID, senderID, body string, kind domain.MessageKind, meetingID string) (*domain.ChatMessage, error) {
	l := log.Ctx(ctx)

	// Membership can change between subscribe time and send time, so this
	// check runs fresh on every call.
	sender, err := s.resolveSender(ctx, groupID, senderID)
	if err != nil {
		return nil, err
	}

	if kind == "" {
		kind = domain.KindMessage
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown message kind %q", kind)
	}

	msg := &domain.ChatMessage{
		ID:          uuid.New().String(),
		GroupID:     groupID,
		SenderID:    sender.UserID,
		SenderName:  sender.DisplayName,
		SenderEmail: sender.Email,
		Body:        body,
		Kind:        kind,
		MeetingID:   meetingID,
		CreatedAt:   time.Now().UTC(),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	// The append log is best effort; the message store is the system of
	// record and the staged entry below will reach it.
	if err := s.broker.Append(ctx, groupID, payload); err != nil {
		l.Warn().Err(err).Str(log.FieldGroupID, groupID).Msg("broker append failed")
	}

	if err := s.broker.Publish(ctx, groupID, payload); err != nil {
		return nil, fmt.Errorf("failed to publish message: %w", err)
	}

	if count := s.buffer.append(msg); count >= s.cfg.MaxBatchSize {
		select {
		case s.flushCh <- groupID:
		default:
			// Flush already signalled; the pending tick will cover it.
		}
	}

	l.Debug().
		Str(log.FieldMessageID, msg.ID).
		Str(log.FieldGroupID, groupID).
		Str(log.FieldUserID, senderID).
		Msg("message accepted")

	return msg, nil
}

func (s *service) List(ctx context.Context, groupID, callerID string, limit int) ([]*domain.ChatMessage, error) {
	ok, err := s.members.IsMember(ctx, groupID, callerID)
	if err != nil {
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}
	if !ok {
		return nil, ErrNotAMember
	}

	msgs, err := s.messages.ListByGroup(ctx, groupID, limit)
	if err != nil {
		return nil, err
	}

	// Store returns newest first; reverse into display order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	return msgs, nil
}

// resolveSender checks membership and returns the sender's display fields
// for denormalization.
func (s *service) resolveSender(ctx context.Context, groupID, senderID string) (*domain.Member, error) {
	members, err := s.members.GetMembers(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load group members: %w", err)
	}
	for i := range members {
		if members[i].UserID == senderID {
			return &members[i], nil
		}
	}
	return nil, ErrNotAMember
}

func (s *service) SubscribeToGroup(ctx context.Context, groupID, listenerID string, h MessageHandler) error {
	s.mu.Lock()
	if s.listeners[groupID] == nil {
		s.listeners[groupID] = make(map[string]MessageHandler)
	}
	s.listeners[groupID][listenerID] = h
	needSub := s.subs[groupID] == nil
	s.mu.Unlock()

	if !needSub {
		return nil
	}

	// Broker subscribe is blocking I/O and runs off the dispatch lock.
	sub, err := s.broker.Subscribe(ctx, groupID, func(payload []byte) {
		s.dispatch(groupID, payload)
	})
	if err != nil {
		s.mu.Lock()
		delete(s.listeners[groupID], listenerID)
		if len(s.listeners[groupID]) == 0 {
			delete(s.listeners, groupID)
		}
		s.mu.Unlock()
		return fmt.Errorf("failed to subscribe to group channel: %w", err)
	}

	s.mu.Lock()
	if existing := s.subs[groupID]; existing != nil {
		// A concurrent subscriber won the race; keep the established one.
		s.mu.Unlock()
		sub.Close()
		return nil
	}
	if len(s.listeners[groupID]) == 0 {
		// All interest vanished while subscribing.
		s.mu.Unlock()
		sub.Close()
		return nil
	}
	s.subs[groupID] = sub
	s.mu.Unlock()

	l := log.L()
	l.Info().Str(log.FieldGroupID, groupID).Msg("broker subscription established")
	return nil
}

func (s *service) UnsubscribeFromGroup(ctx context.Context, groupID, listenerID string) {
	s.mu.Lock()
	if handlers, ok := s.listeners[groupID]; ok {
		delete(handlers, listenerID)
		if len(handlers) > 0 {
			s.mu.Unlock()
			return
		}
		delete(s.listeners, groupID)
	}
	sub := s.subs[groupID]
	delete(s.subs, groupID)
	s.mu.Unlock()

	if sub != nil {
		if err := sub.Close(); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldGroupID, groupID).Msg("failed to close broker subscription")
		} else {
			l := log.L()
			l.Info().Str(log.FieldGroupID, groupID).Msg("broker subscription torn down")
		}
	}
}

// dispatch fans one broker notification out to every local listener for the
// group. Handlers are called outside the lock and must not block.
func (s *service) dispatch(groupID string, payload []byte) {
	var msg domain.ChatMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		l := log.L()
		l.Warn().Err(err).Str(log.FieldGroupID, groupID).Msg("dropping malformed broker payload")
		return
	}

	s.mu.RLock()
	handlers := make([]MessageHandler, 0, len(s.listeners[groupID]))
	for _, h := range s.listeners[groupID] {
		handlers = append(handlers, h)
	}
	s.mu.RUnlock()

	for _, h := range handlers {
		h(&msg)
	}
}

func (s *service) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.flushLoop(runCtx)

	l := log.L()
	l.Info().
		Dur("flush_interval", s.cfg.FlushInterval).
		Int("max_batch_size", s.cfg.MaxBatchSize).
		Msg("fan-out service started")
	return nil
}

func (s *service) Stop() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}

	// Final drain, bounded. Anything still staged at hard kill is lost;
	// that boundary is documented on the interface.
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.DrainTimeout)
	defer cancel()
	s.flushAll(ctx)

	if remaining := s.buffer.size(); remaining > 0 {
		l := log.L()
		l.Error().Int("messages", remaining).Msg("shutdown drain left unflushed messages")
	}

	s.mu.Lock()
	subs := s.subs
	s.subs = make(map[string]broker.Subscription)
	s.listeners = make(map[string]map[string]MessageHandler)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}

	return nil
}

// flushLoop serialises all flushes through one goroutine so a retried batch
// can never interleave behind a newer one for the same group.
func (s *service) flushLoop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.flushAll(ctx)
		case groupID := <-s.flushCh:
			s.flushGroup(ctx, groupID)
		}
	}
}

// flushAll sweeps every non-empty group buffer. Failures are isolated per
// group.
func (s *service) flushAll(ctx context.Context) {
	for _, groupID := range s.buffer.groups() {
		s.flushGroup(ctx, groupID)
	}
}

// flushGroup swaps the group's staged entries out and inserts them one by
// one. On failure the unpersisted tail is requeued verbatim and retried on
// the next tick; inserts are idempotent on message id so the already-written
// head of the batch cannot duplicate.
func (s *service) flushGroup(ctx context.Context, groupID string) {
	batch := s.buffer.take(groupID)
	if len(batch) == 0 {
		return
	}

	l := log.L()
	for i, msg := range batch {
		if err := s.messages.Insert(ctx, msg); err != nil {
			l.Error().Err(err).
				Str(log.FieldGroupID, groupID).
				Int("flushed", i).
				Int("remaining", len(batch)-i).
				Msg("flush failed, batch tail requeued")
			s.buffer.requeue(groupID, batch[i:])
			return
		}
	}

	l.Debug().Str(log.FieldGroupID, groupID).Int("messages", len(batch)).Msg("buffer flushed")
}
