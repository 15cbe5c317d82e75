package gateway

import (
	"sync"
	"time"
)

// Session tracks one connection's state machine: Connected (post-handshake)
// -> Subscribed(groupID) -> Connected -> ... -> Closed (socket teardown).
// A connection holds at most one group subscription at any instant.
type Session struct {
	ID             string
	UserID         string
	DisplayName    string
	Email          string
	Authenticated  bool
	CurrentGroupID string
	CreatedAt      time.Time
	mu             sync.RWMutex
}

func NewSession(id string) *Session {
	return &Session{
		ID:        id,
		CreatedAt: time.Now(),
	}
}

// Authenticate records the identity resolved from a subscribe credential.
func (s *Session) Authenticate(userID, displayName, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UserID = userID
	s.DisplayName = displayName
	s.Email = email
	s.Authenticated = true
}

func (s *Session) Subscribe(groupID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CurrentGroupID = groupID
}

func (s *Session) Unsubscribe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CurrentGroupID = ""
}

func (s *Session) IsSubscribed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.CurrentGroupID != ""
}

func (s *Session) GroupID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.CurrentGroupID
}

func (s *Session) GetUserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.UserID
}
