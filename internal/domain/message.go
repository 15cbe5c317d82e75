package domain

import (
	"time"
)

// MessageKind distinguishes regular chat messages from meeting lifecycle
// notices that appear inline in the group timeline.
type MessageKind string

const (
	KindMessage        MessageKind = "message"
	KindMeetingStarted MessageKind = "meeting_started"
	KindMeetingEnded   MessageKind = "meeting_ended"
)

// Valid reports whether k is one of the known message kinds.
func (k MessageKind) Valid() bool {
	switch k {
	case KindMessage, KindMeetingStarted, KindMeetingEnded:
		return true
	}
	return false
}

// ChatMessage is an immutable group chat message. Sender display fields are
// denormalized at send time so delivery and history reads need no user join.
type ChatMessage struct {
	ID          string      `json:"id"`
	GroupID     string      `json:"group_id"`
	SenderID    string      `json:"sender_id"`
	SenderName  string      `json:"sender_name"`
	SenderEmail string      `json:"sender_email"`
	Body        string      `json:"body"`
	Kind        MessageKind `json:"kind"`
	MeetingID   string      `json:"meeting_id,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// MessageModel is the GORM model for the messages table.
type MessageModel struct {
	ID          string    `gorm:"type:varchar(36);primaryKey"`
	GroupID     string    `gorm:"type:varchar(36);index:idx_messages_group_created;not null"`
	SenderID    string    `gorm:"type:varchar(36);not null"`
	SenderName  string    `gorm:"type:varchar(100);not null"`
	SenderEmail string    `gorm:"type:varchar(255)"`
	Body        string    `gorm:"type:text;not null"`
	Kind        string    `gorm:"type:varchar(20);not null;default:'message'"`
	MeetingID   *string   `gorm:"type:varchar(36)"`
	CreatedAt   time.Time `gorm:"index:idx_messages_group_created;not null"`
}

// TableName overrides the GORM table name.
func (MessageModel) TableName() string {
	return "messages"
}

// ToDomain converts the model to a domain ChatMessage.
func (m *MessageModel) ToDomain() *ChatMessage {
	msg := &ChatMessage{
		ID:          m.ID,
		GroupID:     m.GroupID,
		SenderID:    m.SenderID,
		SenderName:  m.SenderName,
		SenderEmail: m.SenderEmail,
		Body:        m.Body,
		Kind:        MessageKind(m.Kind),
		CreatedAt:   m.CreatedAt,
	}
	if m.MeetingID != nil {
		msg.MeetingID = *m.MeetingID
	}
	return msg
}

// MessageToModel converts a domain ChatMessage to its GORM model.
func MessageToModel(msg *ChatMessage) *MessageModel {
	model := &MessageModel{
		ID:          msg.ID,
		GroupID:     msg.GroupID,
		SenderID:    msg.SenderID,
		SenderName:  msg.SenderName,
		SenderEmail: msg.SenderEmail,
		Body:        msg.Body,
		Kind:        string(msg.Kind),
		CreatedAt:   msg.CreatedAt,
	}
	if msg.MeetingID != "" {
		id := msg.MeetingID
		model.MeetingID = &id
	}
	return model
}
