package model

import (
	"time"
)

// Board a named canvas; container for drawing events
type Board struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"type:varchar(100);not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	Drawings []DrawingEvent `gorm:"foreignKey:BoardID" json:"drawings,omitempty"`
}

func (Board) TableName() string {
	return "boards"
}

// DrawingEvent one line segment drawn on a board. Immutable: rows are
// created or bulk-deleted, never updated. Replay order within a board is
// created_at then id.
type DrawingEvent struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	BoardID   int64     `gorm:"not null;index:idx_board_created" json:"board_id"`
	X1        float64   `json:"x1"`
	Y1        float64   `json:"y1"`
	X2        float64   `json:"x2"`
	Y2        float64   `json:"y2"`
	Color     string    `gorm:"type:varchar(30)" json:"color"`
	Tool      string    `gorm:"type:varchar(50)" json:"tool"`
	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_board_created" json:"created_at"`

	// Relations
	Board Board `gorm:"foreignKey:BoardID" json:"board,omitempty"`
}

func (DrawingEvent) TableName() string {
	return "drawing_events"
}
