package store

import (
	"context"
	"errors"

	"github.com/gatherhq/gather/internal/domain"
)

var ErrRoomNotFound = errors.New("room not found")

// MessageStore is the relational system of record for chat messages.
type MessageStore interface {
	// Insert persists one message. It is idempotent on message id, so
	// retrying a partially failed batch cannot create duplicates.
	Insert(ctx context.Context, msg *domain.ChatMessage) error

	// ListByGroup returns up to limit messages for the group, newest first.
	ListByGroup(ctx context.Context, groupID string, limit int) ([]*domain.ChatMessage, error)
}

// MembershipStore is the group membership authority.
type MembershipStore interface {
	// IsMember reports whether the user is a current (non-departed) member.
	IsMember(ctx context.Context, groupID, userID string) (bool, error)

	// GetMembers returns all current members with display fields.
	GetMembers(ctx context.Context, groupID string) ([]domain.Member, error)
}

// RoomStore exposes the room/participant state the reaper reads and mutates.
// All mutations are idempotent row updates.
type RoomStore interface {
	ListNonDeleted(ctx context.Context) ([]*domain.Room, error)
	ListParticipants(ctx context.Context, roomID string) ([]*domain.Participant, error)
	SoftDeleteRoom(ctx context.Context, roomID string) error
	MarkAllParticipantsDeparted(ctx context.Context, roomID string) error
}
