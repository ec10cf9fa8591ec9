package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"whiteboard-backend/internal/model"
	"whiteboard-backend/internal/realtime"
)

// DrawingHandler replay endpoint for board event history
type DrawingHandler struct {
	db     *gorm.DB
	engine *realtime.Engine
}

// NewDrawingHandler creates a DrawingHandler
func NewDrawingHandler(db *gorm.DB, engine *realtime.Engine) *DrawingHandler {
	return &DrawingHandler{db: db, engine: engine}
}

// GetDrawings returns the board's ordered event history so a joining
// client can reconstruct the canvas. The read goes through the engine's
// per-board queue, so it always reflects the latest completed clear.
func (h *DrawingHandler) GetDrawings(c *fiber.Ctx) error {
	boardID, err := c.ParamsInt("boardId")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid board id"})
	}

	var board model.Board
	if err := h.db.Select("id").First(&board, int64(boardID)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Board not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Error fetching drawings"})
	}

	events, err := h.engine.History(c.UserContext(), int64(boardID))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Error fetching drawings"})
	}

	if events == nil {
		events = []model.DrawingEvent{}
	}
	return c.JSON(events)
}
