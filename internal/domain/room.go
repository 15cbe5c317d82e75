package domain

import (
	"time"

	"github.com/gatherhq/gather/pkg/database"
)

// Room statuses.
const (
	RoomStatusActive  = "active"
	RoomStatusDeleted = "deleted"
)

// RoomTagPinned exempts a room from inactivity reclamation.
const RoomTagPinned = "pinned"

// Room is a video call room tracked for inactivity reclamation. The external
// SFU provider knows the room by Name; the database row is authoritative for
// whether the room is still usable.
type Room struct {
	ID        string
	GroupID   string
	Name      string
	Status    string
	Tags      []string
	CreatedAt time.Time
	DeletedAt *time.Time
}

// Participant is a single join record for a room. A nil LeftAt means the
// participant is still in the call.
type Participant struct {
	ID       string
	RoomID   string
	UserID   string
	JoinedAt time.Time
	LeftAt   *time.Time
}

// Active reports whether the participant has not yet left.
func (p *Participant) Active() bool {
	return p.LeftAt == nil
}

// Pinned reports whether the room carries the pinned tag.
func (r *Room) Pinned() bool {
	for _, tag := range r.Tags {
		if tag == RoomTagPinned {
			return true
		}
	}
	return false
}

// RoomModel is the GORM model for the rooms table.
type RoomModel struct {
	ID        string               `gorm:"type:varchar(36);primaryKey"`
	GroupID   string               `gorm:"type:varchar(36);index;not null"`
	Name      string               `gorm:"type:varchar(200);not null"`
	Status    string               `gorm:"type:varchar(20);index;not null;default:'active'"`
	Tags      database.StringArray `gorm:"type:text"`
	CreatedAt time.Time            `gorm:"autoCreateTime"`
	DeletedAt *time.Time
}

// TableName overrides the GORM table name.
func (RoomModel) TableName() string {
	return "rooms"
}

// ToDomain converts the model to a domain Room.
func (m *RoomModel) ToDomain() *Room {
	return &Room{
		ID:        m.ID,
		GroupID:   m.GroupID,
		Name:      m.Name,
		Status:    m.Status,
		Tags:      m.Tags,
		CreatedAt: m.CreatedAt,
		DeletedAt: m.DeletedAt,
	}
}

// ParticipantModel is the GORM model for the room_participants table.
type ParticipantModel struct {
	ID       string     `gorm:"type:varchar(36);primaryKey"`
	RoomID   string     `gorm:"type:varchar(36);index;not null"`
	UserID   string     `gorm:"type:varchar(36);not null"`
	JoinedAt time.Time  `gorm:"autoCreateTime"`
	LeftAt   *time.Time
}

// TableName overrides the GORM table name.
func (ParticipantModel) TableName() string {
	return "room_participants"
}

// ToDomain converts the model to a domain Participant.
func (m *ParticipantModel) ToDomain() *Participant {
	return &Participant{
		ID:       m.ID,
		RoomID:   m.RoomID,
		UserID:   m.UserID,
		JoinedAt: m.JoinedAt,
		LeftAt:   m.LeftAt,
	}
}
