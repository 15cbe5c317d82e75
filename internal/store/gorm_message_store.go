package store

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gatherhq/gather/internal/domain"
	"github.com/gatherhq/gather/pkg/log"
)

// GormMessageStore implements MessageStore using GORM.
type GormMessageStore struct {
	db *gorm.DB
}

// NewGormMessageStore creates a new GORM-based message store.
func NewGormMessageStore(db *gorm.DB) *GormMessageStore {
	return &GormMessageStore{db: db}
}

// Insert persists a message. Conflicts on the primary key are ignored so a
// retried flush batch is a no-op for already-persisted entries.
func (s *GormMessageStore) Insert(ctx context.Context, msg *domain.ChatMessage) error {
	l := log.Ctx(ctx)

	model := domain.MessageToModel(msg)
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(model)
	if result.Error != nil {
		l.Error().Err(result.Error).
			Str(log.FieldMessageID, msg.ID).
			Str(log.FieldGroupID, msg.GroupID).
			Msg("failed to insert message in db")
		return result.Error
	}
	return nil
}

// ListByGroup returns up to limit messages for the group, newest first.
func (s *GormMessageStore) ListByGroup(ctx context.Context, groupID string, limit int) ([]*domain.ChatMessage, error) {
	l := log.Ctx(ctx)

	if limit < 1 || limit > 200 {
		limit = 50
	}

	var models []domain.MessageModel
	result := s.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models)
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldGroupID, groupID).Msg("failed to list messages from db")
		return nil, result.Error
	}

	messages := make([]*domain.ChatMessage, len(models))
	for i := range models {
		messages[i] = models[i].ToDomain()
	}

	return messages, nil
}
