package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"whiteboard-backend/internal/model"
)

// DrawingStore is the append-only persistence the synchronization engine
// depends on. Implementations may be slow or fail; callers must never
// invoke them on the broadcast path.
type DrawingStore interface {
	// Append inserts one event; the stored ID is assigned on the event.
	Append(ctx context.Context, ev *model.DrawingEvent) error
	// ListByBoard returns the board's events ordered by creation time
	// ascending (id breaks ties).
	ListByBoard(ctx context.Context, boardID int64) ([]model.DrawingEvent, error)
	// DeleteByBoard removes every event for the board and returns the
	// number of rows removed.
	DeleteByBoard(ctx context.Context, boardID int64) (int64, error)
}

// GormDrawingStore DrawingStore backed by GORM
type GormDrawingStore struct {
	db *gorm.DB
}

// NewGormDrawingStore creates a GormDrawingStore
func NewGormDrawingStore(db *gorm.DB) *GormDrawingStore {
	return &GormDrawingStore{db: db}
}

func (s *GormDrawingStore) Append(ctx context.Context, ev *model.DrawingEvent) error {
	if err := s.db.WithContext(ctx).Create(ev).Error; err != nil {
		return fmt.Errorf("append drawing event: %w", err)
	}
	return nil
}

func (s *GormDrawingStore) ListByBoard(ctx context.Context, boardID int64) ([]model.DrawingEvent, error) {
	var events []model.DrawingEvent
	if err := s.db.WithContext(ctx).
		Where("board_id = ?", boardID).
		Order("created_at ASC, id ASC").
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list drawing events: %w", err)
	}
	return events, nil
}

func (s *GormDrawingStore) DeleteByBoard(ctx context.Context, boardID int64) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("board_id = ?", boardID).
		Delete(&model.DrawingEvent{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete drawing events: %w", res.Error)
	}
	return res.RowsAffected, nil
}
