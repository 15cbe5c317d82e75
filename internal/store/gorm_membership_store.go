package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/gatherhq/gather/internal/domain"
	"github.com/gatherhq/gather/pkg/log"
)

// GormMembershipStore implements MembershipStore using GORM.
type GormMembershipStore struct {
	db *gorm.DB
}

// NewGormMembershipStore creates a new GORM-based membership store.
func NewGormMembershipStore(db *gorm.DB) *GormMembershipStore {
	return &GormMembershipStore{db: db}
}

// IsMember reports whether the user is a current member of the group.
func (s *GormMembershipStore) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	l := log.Ctx(ctx)

	var count int64
	result := s.db.WithContext(ctx).Model(&domain.GroupMemberModel{}).
		Where("group_id = ? AND user_id = ? AND left_at IS NULL", groupID, userID).
		Count(&count)
	if result.Error != nil {
		l.Error().Err(result.Error).
			Str(log.FieldGroupID, groupID).
			Str(log.FieldUserID, userID).
			Msg("failed to check group membership")
		return false, result.Error
	}
	return count > 0, nil
}

// GetMembers returns all current members of the group.
func (s *GormMembershipStore) GetMembers(ctx context.Context, groupID string) ([]domain.Member, error) {
	l := log.Ctx(ctx)

	var models []domain.GroupMemberModel
	result := s.db.WithContext(ctx).
		Where("group_id = ? AND left_at IS NULL", groupID).
		Find(&models)
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldGroupID, groupID).Msg("failed to list group members")
		return nil, result.Error
	}

	members := make([]domain.Member, len(models))
	for i := range models {
		members[i] = models[i].ToDomain()
	}

	return members, nil
}
