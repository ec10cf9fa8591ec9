package handler

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"whiteboard-backend/internal/model"
	"whiteboard-backend/internal/presence"
	"whiteboard-backend/internal/realtime"
)

// BoardHandler board metadata CRUD
type BoardHandler struct {
	db       *gorm.DB
	engine   *realtime.Engine
	hub      *realtime.Hub
	presence *presence.Manager // optional
}

// NewBoardHandler creates a BoardHandler
func NewBoardHandler(db *gorm.DB, engine *realtime.Engine, hub *realtime.Hub, presenceManager *presence.Manager) *BoardHandler {
	return &BoardHandler{
		db:       db,
		engine:   engine,
		hub:      hub,
		presence: presenceManager,
	}
}

// BoardRequest create/rename payload
type BoardRequest struct {
	Name string `json:"name"`
}

// GetBoards returns all boards
func (h *BoardHandler) GetBoards(c *fiber.Ctx) error {
	var boards []model.Board
	if err := h.db.Order("created_at ASC, id ASC").Find(&boards).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Error fetching boards"})
	}
	return c.JSON(boards)
}

// CreateBoard creates a board
func (h *BoardHandler) CreateBoard(c *fiber.Ctx) error {
	var req BoardRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Board name is required"})
	}

	board := model.Board{Name: req.Name}
	if err := h.db.Create(&board).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Error creating board"})
	}

	log.Printf("[Board] Created board %d (%s)", board.ID, board.Name)
	return c.Status(fiber.StatusCreated).JSON(board)
}

// UpdateBoard renames a board
func (h *BoardHandler) UpdateBoard(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid board id"})
	}

	var req BoardRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Board name is required"})
	}

	var board model.Board
	if err := h.db.First(&board, int64(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Board not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Error updating board"})
	}

	board.Name = req.Name
	if err := h.db.Save(&board).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Error updating board"})
	}
	return c.JSON(board)
}

// DeleteBoard deletes a board and its stored events. The event delete
// goes through the engine so it is serialized against in-flight draws.
func (h *BoardHandler) DeleteBoard(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid board id"})
	}

	var board model.Board
	if err := h.db.First(&board, int64(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Board not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Error deleting board"})
	}

	if _, err := h.engine.Clear(c.UserContext(), board.ID); err != nil {
		log.Printf("[Board] Failed to clear events for board %d: %v", board.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Error deleting board"})
	}

	if err := h.db.Delete(&board).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Error deleting board"})
	}

	log.Printf("[Board] Deleted board %d (%s)", board.ID, board.Name)
	return c.JSON(board)
}

// GetBoardPresence returns the board's room occupancy. Redis when
// configured, otherwise the local hub count.
func (h *BoardHandler) GetBoardPresence(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid board id"})
	}

	if h.presence != nil {
		count, err := h.presence.Count(c.UserContext(), int64(id))
		if err == nil {
			return c.JSON(fiber.Map{"boardId": int64(id), "count": count})
		}
		log.Printf("[Board] Presence lookup failed for board %d: %v", id, err)
	}

	return c.JSON(fiber.Map{"boardId": int64(id), "count": h.hub.Count(int64(id))})
}
