package fanout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gatherhq/gather/internal/broker"
	"github.com/gatherhq/gather/internal/domain"
)

type fakeBroker struct {
	mu        sync.Mutex
	appends   map[string]int
	published map[string][][]byte
	handlers  map[string]map[int]broker.Handler
	nextID    int
	subsOpen  int
	subsTotal int
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		appends:   make(map[string]int),
		published: make(map[string][][]byte),
		handlers:  make(map[string]map[int]broker.Handler),
	}
}

func (b *fakeBroker) Append(ctx context.Context, groupID string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.appends[groupID]++
	return nil
}

func (b *fakeBroker) Publish(ctx context.Context, groupID string, payload []byte) error {
	b.mu.Lock()
	b.published[groupID] = append(b.published[groupID], payload)
	handlers := make([]broker.Handler, 0, len(b.handlers[groupID]))
	for _, h := range b.handlers[groupID] {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(payload)
	}
	return nil
}

func (b *fakeBroker) Subscribe(ctx context.Context, groupID string, h broker.Handler) (broker.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers[groupID] == nil {
		b.handlers[groupID] = make(map[int]broker.Handler)
	}
	id := b.nextID
	b.nextID++
	b.handlers[groupID][id] = h
	b.subsOpen++
	b.subsTotal++
	return &fakeSub{broker: b, groupID: groupID, id: id}, nil
}

func (b *fakeBroker) Close() error { return nil }

func (b *fakeBroker) openSubs(groupID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[groupID])
}

func (b *fakeBroker) publishCount(groupID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published[groupID])
}

type fakeSub struct {
	broker  *fakeBroker
	groupID string
	id      int
}

func (s *fakeSub) Close() error {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	delete(s.broker.handlers[s.groupID], s.id)
	s.broker.subsOpen--
	return nil
}

type fakeMessageStore struct {
	mu         sync.Mutex
	byID       map[string]*domain.ChatMessage
	order      []string
	inserts    int
	failOnCall int // 1-based insert call number to fail, 0 = never
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{byID: make(map[string]*domain.ChatMessage)}
}

func (s *fakeMessageStore) Insert(ctx context.Context, msg *domain.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts++
	if s.inserts == s.failOnCall {
		return errors.New("store unavailable")
	}
	if _, ok := s.byID[msg.ID]; ok {
		return nil // idempotent on message id
	}
	s.byID[msg.ID] = msg
	s.order = append(s.order, msg.ID)
	return nil
}

func (s *fakeMessageStore) ListByGroup(ctx context.Context, groupID string, limit int) ([]*domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.ChatMessage
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		msg := s.byID[s.order[i]]
		if msg.GroupID == groupID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (s *fakeMessageStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

type fakeMembershipStore struct {
	members map[string][]domain.Member
}

func (s *fakeMembershipStore) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	for _, m := range s.members[groupID] {
		if m.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeMembershipStore) GetMembers(ctx context.Context, groupID string) ([]domain.Member, error) {
	return s.members[groupID], nil
}

func newTestService(b *fakeBroker, msgs *fakeMessageStore) *service {
	members := &fakeMembershipStore{members: map[string][]domain.Member{
		"g1": {
			{UserID: "alice", DisplayName: "Alice", Email: "alice@example.com"},
			{UserID: "bob", DisplayName: "Bob", Email: "bob@example.com"},
		},
	}}
	return NewService(b, msgs, members, Config{
		FlushInterval: time.Hour, // flushes driven manually in tests
		MaxBatchSize:  1000,
		DrainTimeout:  time.Second,
	}).(*service)
}

func TestSendRejectsNonMember(t *testing.T) {
	b := newFakeBroker()
	msgs := newFakeMessageStore()
	svc := newTestService(b, msgs)
	ctx := context.Background()

	_, err := svc.Send(ctx, "g1", "mallory", "hi", domain.KindMessage, "")
	if !errors.Is(err, ErrNotAMember) {
		t.Fatalf("expected ErrNotAMember, got %v", err)
	}

	if b.publishCount("g1") != 0 {
		t.Fatal("rejected send must not publish")
	}
	if svc.buffer.size() != 0 {
		t.Fatal("rejected send must not stage a buffer entry")
	}
}

func TestSendPublishesAndStages(t *testing.T) {
	b := newFakeBroker()
	msgs := newFakeMessageStore()
	svc := newTestService(b, msgs)
	ctx := context.Background()

	msg, err := svc.Send(ctx, "g1", "alice", "hello", domain.KindMessage, "")
	if err != nil {
		t.Fatalf("Send err: %v", err)
	}

	if msg.ID == "" {
		t.Fatal("expected assigned message id")
	}
	if msg.SenderName != "Alice" || msg.SenderEmail != "alice@example.com" {
		t.Fatalf("sender not denormalized: %+v", msg)
	}
	if b.publishCount("g1") != 1 {
		t.Fatalf("expected 1 publish, got %d", b.publishCount("g1"))
	}
	if svc.buffer.size() != 1 {
		t.Fatalf("expected 1 staged entry, got %d", svc.buffer.size())
	}
	if msgs.count() != 0 {
		t.Fatal("Send must not write to the store synchronously")
	}
}

func TestDeliveryOrderPreserved(t *testing.T) {
	b := newFakeBroker()
	msgs := newFakeMessageStore()
	svc := newTestService(b, msgs)
	ctx := context.Background()

	var mu sync.Mutex
	var got []string
	err := svc.SubscribeToGroup(ctx, "g1", "conn-1", func(m *domain.ChatMessage) {
		mu.Lock()
		got = append(got, m.Body)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("SubscribeToGroup err: %v", err)
	}

	var want []string
	for i := 0; i < 10; i++ {
		body := fmt.Sprintf("msg-%d", i)
		want = append(want, body)
		if _, err := svc.Send(ctx, "g1", "alice", body, domain.KindMessage, ""); err != nil {
			t.Fatalf("Send err: %v", err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != len(want) {
		t.Fatalf("expected %d deliveries, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("delivery order broken at %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestSingleBrokerSubscriptionPerGroup(t *testing.T) {
	b := newFakeBroker()
	svc := newTestService(b, newFakeMessageStore())
	ctx := context.Background()

	noop := func(*domain.ChatMessage) {}
	if err := svc.SubscribeToGroup(ctx, "g1", "conn-1", noop); err != nil {
		t.Fatalf("subscribe err: %v", err)
	}
	if err := svc.SubscribeToGroup(ctx, "g1", "conn-2", noop); err != nil {
		t.Fatalf("subscribe err: %v", err)
	}

	if b.openSubs("g1") != 1 {
		t.Fatalf("expected 1 broker subscription, got %d", b.openSubs("g1"))
	}

	svc.UnsubscribeFromGroup(ctx, "g1", "conn-1")
	if b.openSubs("g1") != 1 {
		t.Fatal("broker subscription torn down while a listener remained")
	}

	svc.UnsubscribeFromGroup(ctx, "g1", "conn-2")
	if b.openSubs("g1") != 0 {
		t.Fatalf("expected teardown after last listener, got %d open", b.openSubs("g1"))
	}

	// Re-subscribing establishes exactly one fresh subscription.
	if err := svc.SubscribeToGroup(ctx, "g1", "conn-3", noop); err != nil {
		t.Fatalf("resubscribe err: %v", err)
	}
	if b.openSubs("g1") != 1 {
		t.Fatalf("expected 1 subscription after resubscribe, got %d", b.openSubs("g1"))
	}
	if b.subsTotal != 2 {
		t.Fatalf("expected 2 subscriptions over the test, got %d", b.subsTotal)
	}
}

func TestBothListenersReceiveSend(t *testing.T) {
	b := newFakeBroker()
	svc := newTestService(b, newFakeMessageStore())
	ctx := context.Background()

	received := make(map[string]*domain.ChatMessage)
	var mu sync.Mutex
	for _, conn := range []string{"conn-a", "conn-b"} {
		conn := conn
		err := svc.SubscribeToGroup(ctx, "g1", conn, func(m *domain.ChatMessage) {
			mu.Lock()
			received[conn] = m
			mu.Unlock()
		})
		if err != nil {
			t.Fatalf("subscribe err: %v", err)
		}
	}

	sent, err := svc.Send(ctx, "g1", "alice", "hi", domain.KindMessage, "")
	if err != nil {
		t.Fatalf("Send err: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	for _, conn := range []string{"conn-a", "conn-b"} {
		got := received[conn]
		if got == nil {
			t.Fatalf("%s received nothing", conn)
		}
		if got.ID != sent.ID || got.Body != "hi" || got.SenderID != "alice" || got.Kind != domain.KindMessage {
			t.Fatalf("%s received wrong message: %+v", conn, got)
		}
	}
}

func TestFlushMovesBufferToStore(t *testing.T) {
	b := newFakeBroker()
	msgs := newFakeMessageStore()
	svc := newTestService(b, msgs)
	ctx := context.Background()

	sent, err := svc.Send(ctx, "g1", "alice", "persist me", domain.KindMessage, "")
	if err != nil {
		t.Fatalf("Send err: %v", err)
	}

	svc.flushGroup(ctx, "g1")

	if msgs.count() != 1 {
		t.Fatalf("expected 1 stored message, got %d", msgs.count())
	}
	if svc.buffer.size() != 0 {
		t.Fatal("flush must clear the buffer")
	}

	listed, err := svc.List(ctx, "g1", "bob", 10)
	if err != nil {
		t.Fatalf("List err: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != sent.ID {
		t.Fatalf("unexpected List result: %+v", listed)
	}
}

func TestFlushFailureRetriesSameEntries(t *testing.T) {
	b := newFakeBroker()
	msgs := newFakeMessageStore()
	svc := newTestService(b, msgs)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		m, err := svc.Send(ctx, "g1", "alice", fmt.Sprintf("m%d", i), domain.KindMessage, "")
		if err != nil {
			t.Fatalf("Send err: %v", err)
		}
		ids = append(ids, m.ID)
	}

	// Second insert of the batch fails; the tail must be requeued.
	msgs.mu.Lock()
	msgs.failOnCall = 2
	msgs.mu.Unlock()

	svc.flushGroup(ctx, "g1")

	if msgs.count() != 1 {
		t.Fatalf("expected 1 persisted before failure, got %d", msgs.count())
	}
	if svc.buffer.size() != 2 {
		t.Fatalf("expected 2 requeued entries, got %d", svc.buffer.size())
	}

	// Next sweep retries the same slice; all three end up stored once.
	svc.flushGroup(ctx, "g1")

	if msgs.count() != 3 {
		t.Fatalf("expected 3 persisted after retry, got %d", msgs.count())
	}
	msgs.mu.Lock()
	defer msgs.mu.Unlock()
	for i, id := range ids {
		if msgs.order[i] != id {
			t.Fatalf("persist order broken at %d", i)
		}
	}
}

func TestListRejectsNonMember(t *testing.T) {
	svc := newTestService(newFakeBroker(), newFakeMessageStore())

	_, err := svc.List(context.Background(), "g1", "mallory", 10)
	if !errors.Is(err, ErrNotAMember) {
		t.Fatalf("expected ErrNotAMember, got %v", err)
	}
}

func TestListReturnsDisplayOrder(t *testing.T) {
	b := newFakeBroker()
	msgs := newFakeMessageStore()
	svc := newTestService(b, msgs)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Send(ctx, "g1", "alice", fmt.Sprintf("m%d", i), domain.KindMessage, ""); err != nil {
			t.Fatalf("Send err: %v", err)
		}
	}
	svc.flushGroup(ctx, "g1")

	listed, err := svc.List(ctx, "g1", "alice", 10)
	if err != nil {
		t.Fatalf("List err: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(listed))
	}
	for i := range listed {
		if listed[i].Body != fmt.Sprintf("m%d", i) {
			t.Fatalf("display order broken: %+v", listed)
		}
	}
}

func TestStopDrainsBuffer(t *testing.T) {
	b := newFakeBroker()
	msgs := newFakeMessageStore()
	svc := newTestService(b, msgs)
	ctx := context.Background()

	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start err: %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := svc.Send(ctx, "g1", "alice", fmt.Sprintf("m%d", i), domain.KindMessage, ""); err != nil {
			t.Fatalf("Send err: %v", err)
		}
	}

	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop err: %v", err)
	}

	if msgs.count() != 5 {
		t.Fatalf("expected full drain on shutdown, stored %d of 5", msgs.count())
	}
}

func TestThresholdTriggersEarlyFlush(t *testing.T) {
	b := newFakeBroker()
	msgs := newFakeMessageStore()
	members := &fakeMembershipStore{members: map[string][]domain.Member{
		"g1": {{UserID: "alice", DisplayName: "Alice"}},
	}}
	svc := NewService(b, msgs, members, Config{
		FlushInterval: time.Hour, // only the size threshold can trigger
		MaxBatchSize:  3,
		DrainTimeout:  time.Second,
	}).(*service)
	ctx := context.Background()

	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	defer svc.Stop()

	for i := 0; i < 3; i++ {
		if _, err := svc.Send(ctx, "g1", "alice", fmt.Sprintf("m%d", i), domain.KindMessage, ""); err != nil {
			t.Fatalf("Send err: %v", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for msgs.count() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("threshold flush never ran, stored %d of 3", msgs.count())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
