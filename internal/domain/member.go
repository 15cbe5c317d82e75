package domain

import "time"

// Member is a current group member with the display fields denormalized
// into chat messages at send time.
type Member struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// GroupMemberModel is the GORM model for the group_members table. A row with
// a nil LeftAt is a current member; departed members keep their row for
// history but no longer pass membership checks.
type GroupMemberModel struct {
	GroupID     string     `gorm:"type:varchar(36);primaryKey"`
	UserID      string     `gorm:"type:varchar(36);primaryKey"`
	DisplayName string     `gorm:"type:varchar(100);not null"`
	Email       string     `gorm:"type:varchar(255)"`
	JoinedAt    time.Time  `gorm:"autoCreateTime"`
	LeftAt      *time.Time `gorm:"index"`
}

// TableName overrides the GORM table name.
func (GroupMemberModel) TableName() string {
	return "group_members"
}

// ToDomain converts the model to a domain Member.
func (m *GroupMemberModel) ToDomain() Member {
	return Member{
		UserID:      m.UserID,
		DisplayName: m.DisplayName,
		Email:       m.Email,
	}
}
