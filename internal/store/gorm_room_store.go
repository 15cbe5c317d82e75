package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/gatherhq/gather/internal/domain"
	"github.com/gatherhq/gather/pkg/log"
)

// GormRoomStore implements RoomStore using GORM.
type GormRoomStore struct {
	db *gorm.DB
}

// NewGormRoomStore creates a new GORM-based room store.
func NewGormRoomStore(db *gorm.DB) *GormRoomStore {
	return &GormRoomStore{db: db}
}

// ListNonDeleted returns every room that has not been soft-deleted.
func (s *GormRoomStore) ListNonDeleted(ctx context.Context) ([]*domain.Room, error) {
	l := log.Ctx(ctx)

	var models []domain.RoomModel
	result := s.db.WithContext(ctx).
		Where("status <> ?", domain.RoomStatusDeleted).
		Order("created_at ASC").
		Find(&models)
	if result.Error != nil {
		l.Error().Err(result.Error).Msg("failed to list rooms from db")
		return nil, result.Error
	}

	rooms := make([]*domain.Room, len(models))
	for i := range models {
		rooms[i] = models[i].ToDomain()
	}

	return rooms, nil
}

// ListParticipants returns all participant records for the room, active and
// departed.
func (s *GormRoomStore) ListParticipants(ctx context.Context, roomID string) ([]*domain.Participant, error) {
	l := log.Ctx(ctx)

	var models []domain.ParticipantModel
	result := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Find(&models)
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldRoomID, roomID).Msg("failed to list room participants")
		return nil, result.Error
	}

	participants := make([]*domain.Participant, len(models))
	for i := range models {
		participants[i] = models[i].ToDomain()
	}

	return participants, nil
}

// SoftDeleteRoom marks the room deleted. Re-running on an already deleted
// room affects zero rows and is not an error.
func (s *GormRoomStore) SoftDeleteRoom(ctx context.Context, roomID string) error {
	l := log.Ctx(ctx)

	now := time.Now()
	result := s.db.WithContext(ctx).Model(&domain.RoomModel{}).
		Where("id = ? AND status <> ?", roomID, domain.RoomStatusDeleted).
		Updates(map[string]interface{}{
			"status":     domain.RoomStatusDeleted,
			"deleted_at": now,
		})
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldRoomID, roomID).Msg("failed to soft-delete room in db")
		return result.Error
	}
	if result.RowsAffected > 0 {
		l.Debug().Str(log.FieldRoomID, roomID).Msg("room soft-deleted in db")
	}
	return nil
}

// MarkAllParticipantsDeparted sets left_at on any participant rows for the
// room that still look active. A deleted room must have no active rows.
func (s *GormRoomStore) MarkAllParticipantsDeparted(ctx context.Context, roomID string) error {
	l := log.Ctx(ctx)

	now := time.Now()
	result := s.db.WithContext(ctx).Model(&domain.ParticipantModel{}).
		Where("room_id = ? AND left_at IS NULL", roomID).
		Update("left_at", now)
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldRoomID, roomID).Msg("failed to mark participants departed")
		return result.Error
	}
	if result.RowsAffected > 0 {
		l.Warn().Str(log.FieldRoomID, roomID).
			Int64("rows", result.RowsAffected).
			Msg("marked lingering participants departed")
	}
	return nil
}
