package reaper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gatherhq/gather/internal/domain"
)

type fakeRoomStore struct {
	mu           sync.Mutex
	rooms        map[string]*domain.Room
	participants map[string][]*domain.Participant
	listErr      map[string]error
}

func newFakeRoomStore() *fakeRoomStore {
	return &fakeRoomStore{
		rooms:        make(map[string]*domain.Room),
		participants: make(map[string][]*domain.Participant),
		listErr:      make(map[string]error),
	}
}

func (s *fakeRoomStore) addRoom(id, name string, tags ...string) {
	s.rooms[id] = &domain.Room{ID: id, Name: name, Status: domain.RoomStatusActive, Tags: tags}
}

func (s *fakeRoomStore) addParticipant(roomID, userID string, leftAt *time.Time) {
	s.participants[roomID] = append(s.participants[roomID], &domain.Participant{
		RoomID: roomID,
		UserID: userID,
		LeftAt: leftAt,
	})
}

func (s *fakeRoomStore) ListNonDeleted(ctx context.Context) ([]*domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Room
	for _, r := range s.rooms {
		if r.Status != domain.RoomStatusDeleted {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeRoomStore) ListParticipants(ctx context.Context, roomID string) ([]*domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.listErr[roomID]; err != nil {
		return nil, err
	}
	return s.participants[roomID], nil
}

func (s *fakeRoomStore) SoftDeleteRoom(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[roomID]; ok {
		r.Status = domain.RoomStatusDeleted
		now := time.Now()
		r.DeletedAt = &now
	}
	return nil
}

func (s *fakeRoomStore) MarkAllParticipantsDeparted(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, p := range s.participants[roomID] {
		if p.LeftAt == nil {
			p.LeftAt = &now
		}
	}
	return nil
}

func (s *fakeRoomStore) status(roomID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rooms[roomID].Status
}

type fakeProvider struct {
	mu      sync.Mutex
	deleted []string
	err     error
}

func (p *fakeProvider) DeleteRoom(ctx context.Context, roomName string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, roomName)
	return p.err
}

func (p *fakeProvider) deletedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.deleted)
}

func past(d time.Duration) *time.Time {
	t := time.Now().Add(-d)
	return &t
}

func newTestReaper(rooms *fakeRoomStore, provider Provider) *Reaper {
	return New(rooms, provider, Config{
		SweepInterval:       time.Hour,
		InactivityThreshold: time.Minute,
	})
}

func TestSweepReclaimsAbandonedRoom(t *testing.T) {
	rooms := newFakeRoomStore()
	rooms.addRoom("r1", "standup")
	rooms.addParticipant("r1", "alice", past(5*time.Minute))
	rooms.addParticipant("r1", "bob", past(2*time.Minute))
	provider := &fakeProvider{}

	r := newTestReaper(rooms, provider)
	if err := r.ManualSweep(context.Background()); err != nil {
		t.Fatalf("ManualSweep err: %v", err)
	}

	if rooms.status("r1") != domain.RoomStatusDeleted {
		t.Fatal("abandoned room must be soft-deleted")
	}
	if provider.deletedCount() != 1 || provider.deleted[0] != "standup" {
		t.Fatalf("provider delete not issued: %v", provider.deleted)
	}
}

func TestSweepNeverReclaimsOccupiedRoom(t *testing.T) {
	rooms := newFakeRoomStore()
	rooms.addRoom("r1", "standup")
	// One participant left long ago, one is still in the call.
	rooms.addParticipant("r1", "alice", past(2*time.Hour))
	rooms.addParticipant("r1", "bob", nil)
	provider := &fakeProvider{}

	r := newTestReaper(rooms, provider)
	if err := r.ManualSweep(context.Background()); err != nil {
		t.Fatalf("ManualSweep err: %v", err)
	}

	if rooms.status("r1") != domain.RoomStatusActive {
		t.Fatal("occupied room must never be reclaimed")
	}
	if provider.deletedCount() != 0 {
		t.Fatal("provider delete must not be issued for an occupied room")
	}
}

func TestSweepInactivityMeasuredFromLastDeparture(t *testing.T) {
	rooms := newFakeRoomStore()
	rooms.addRoom("r1", "standup")
	// First departure is well past the threshold, but the last one is not.
	rooms.addParticipant("r1", "alice", past(2*time.Hour))
	rooms.addParticipant("r1", "bob", past(10*time.Second))
	provider := &fakeProvider{}

	r := newTestReaper(rooms, provider)
	if err := r.ManualSweep(context.Background()); err != nil {
		t.Fatalf("ManualSweep err: %v", err)
	}

	if rooms.status("r1") != domain.RoomStatusActive {
		t.Fatal("inactivity must be measured from the last departure")
	}
}

func TestSweepSkipsPinnedRooms(t *testing.T) {
	rooms := newFakeRoomStore()
	rooms.addRoom("r1", "lobby", domain.RoomTagPinned, "social")
	rooms.addParticipant("r1", "alice", past(2*time.Hour))
	provider := &fakeProvider{}

	r := newTestReaper(rooms, provider)
	if err := r.ManualSweep(context.Background()); err != nil {
		t.Fatalf("ManualSweep err: %v", err)
	}

	if rooms.status("r1") != domain.RoomStatusActive {
		t.Fatal("pinned room must never be reclaimed")
	}
	if provider.deletedCount() != 0 {
		t.Fatal("provider delete must not be issued for a pinned room")
	}
}

func TestSweepSkipsNeverJoinedRooms(t *testing.T) {
	rooms := newFakeRoomStore()
	rooms.addRoom("r1", "standup")
	provider := &fakeProvider{}

	r := newTestReaper(rooms, provider)
	if err := r.ManualSweep(context.Background()); err != nil {
		t.Fatalf("ManualSweep err: %v", err)
	}

	if rooms.status("r1") != domain.RoomStatusActive {
		t.Fatal("room nobody joined must be left alone")
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	rooms := newFakeRoomStore()
	rooms.addRoom("r1", "standup")
	rooms.addParticipant("r1", "alice", past(time.Hour))
	provider := &fakeProvider{}

	r := newTestReaper(rooms, provider)
	ctx := context.Background()
	if err := r.ManualSweep(ctx); err != nil {
		t.Fatalf("first sweep err: %v", err)
	}
	if err := r.ManualSweep(ctx); err != nil {
		t.Fatalf("second sweep err: %v", err)
	}

	// The soft-deleted room drops out of enumeration, so the provider is
	// called exactly once across both sweeps.
	if provider.deletedCount() != 1 {
		t.Fatalf("expected 1 provider delete, got %d", provider.deletedCount())
	}
}

func TestSweepProceedsWhenProviderFails(t *testing.T) {
	rooms := newFakeRoomStore()
	rooms.addRoom("r1", "standup")
	rooms.addParticipant("r1", "alice", past(time.Hour))
	provider := &fakeProvider{err: errors.New("provider unreachable")}

	r := newTestReaper(rooms, provider)
	if err := r.ManualSweep(context.Background()); err != nil {
		t.Fatalf("ManualSweep err: %v", err)
	}

	if rooms.status("r1") != domain.RoomStatusDeleted {
		t.Fatal("db soft-delete is authoritative and must proceed on provider failure")
	}
}

func TestSweepIsolatesPerRoomFailures(t *testing.T) {
	rooms := newFakeRoomStore()
	rooms.addRoom("r1", "broken")
	rooms.addParticipant("r1", "alice", past(time.Hour))
	rooms.listErr["r1"] = errors.New("participants query failed")
	rooms.addRoom("r2", "abandoned")
	rooms.addParticipant("r2", "bob", past(time.Hour))
	provider := &fakeProvider{}

	r := newTestReaper(rooms, provider)
	if err := r.ManualSweep(context.Background()); err != nil {
		t.Fatalf("ManualSweep err: %v", err)
	}

	if rooms.status("r1") != domain.RoomStatusActive {
		t.Fatal("failed room must be left untouched")
	}
	if rooms.status("r2") != domain.RoomStatusDeleted {
		t.Fatal("failure on one room must not abort the sweep of others")
	}
}

func TestSweepClosesStaleParticipantRows(t *testing.T) {
	rooms := newFakeRoomStore()
	rooms.addRoom("r1", "standup")
	rooms.addParticipant("r1", "alice", past(time.Hour))

	r := newTestReaper(rooms, &fakeProvider{})
	if err := r.ManualSweep(context.Background()); err != nil {
		t.Fatalf("ManualSweep err: %v", err)
	}

	rooms.mu.Lock()
	defer rooms.mu.Unlock()
	for _, p := range rooms.participants["r1"] {
		if p.LeftAt == nil {
			t.Fatal("reclaimed room must have no active participant rows")
		}
	}
}
