package handler

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gofiber/contrib/websocket"

	"whiteboard-backend/internal/model"
	"whiteboard-backend/internal/presence"
	"whiteboard-backend/internal/realtime"
)

// BoardWSHandler realtime protocol boundary. Frames are dispatched by
// event type; the engine never sees a malformed payload.
type BoardWSHandler struct {
	hub      *realtime.Hub
	engine   *realtime.Engine
	presence *presence.Manager // optional
	dispatch map[string]func(*realtime.Client, json.RawMessage)
}

// WSMessage WebSocket message envelope
type WSMessage struct {
	Type    string          `json:"type"` // join, leave, draw, clearBoard
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JoinPayload join/leave payload
type JoinPayload struct {
	BoardID int64 `json:"boardId"`
}

// DrawPayload one stroke segment
type DrawPayload struct {
	BoardID int64   `json:"boardId"`
	X1      float64 `json:"x1"`
	Y1      float64 `json:"y1"`
	X2      float64 `json:"x2"`
	Y2      float64 `json:"y2"`
	Color   string  `json:"color"`
	Tool    string  `json:"tool"`
}

// ClearPayload clearBoard payload
type ClearPayload struct {
	BoardID int64 `json:"boardId"`
}

// NewBoardWSHandler creates a BoardWSHandler with its dispatch table
func NewBoardWSHandler(hub *realtime.Hub, engine *realtime.Engine, presenceManager *presence.Manager) *BoardWSHandler {
	h := &BoardWSHandler{
		hub:      hub,
		engine:   engine,
		presence: presenceManager,
	}
	h.dispatch = map[string]func(*realtime.Client, json.RawMessage){
		"join":       h.handleJoin,
		"leave":      h.handleLeave,
		"draw":       h.handleDraw,
		"clearBoard": h.handleClear,
	}
	return h
}

// HandleWebSocket runs one connection's read loop
func (h *BoardWSHandler) HandleWebSocket(c *websocket.Conn) {
	// recover so one bad connection cannot crash the server
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[BoardWS] Recovered from panic: %v", r)
		}
	}()

	client := realtime.NewClient(c)
	log.Printf("[BoardWS] Client connected: %s", client.ID)

	defer func() {
		if boardID, ok := h.hub.Board(client); ok {
			h.presenceLeave(boardID, client.ID)
		}
		h.engine.Disconnect(client)
		c.Close()
		log.Printf("[BoardWS] Client disconnected: %s", client.ID)
	}()

	for {
		_, msgBytes, err := c.ReadMessage()
		if err != nil {
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(msgBytes, &msg); err != nil {
			h.sendError(client, "invalid message")
			continue
		}

		handle, ok := h.dispatch[msg.Type]
		if !ok {
			log.Printf("[BoardWS] Unknown message type %q from client %s", msg.Type, client.ID)
			continue
		}
		handle(client, msg.Payload)
	}
}

func (h *BoardWSHandler) handleJoin(client *realtime.Client, raw json.RawMessage) {
	var payload JoinPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.BoardID <= 0 {
		h.sendError(client, "boardId is required")
		return
	}

	if prev, ok := h.hub.Board(client); ok && prev != payload.BoardID {
		h.presenceLeave(prev, client.ID)
	}
	h.hub.Join(client, payload.BoardID)
	h.presenceJoin(payload.BoardID, client.ID)
}

func (h *BoardWSHandler) handleLeave(client *realtime.Client, _ json.RawMessage) {
	if boardID, ok := h.hub.Board(client); ok {
		h.presenceLeave(boardID, client.ID)
	}
	h.hub.Leave(client)
}

func (h *BoardWSHandler) handleDraw(client *realtime.Client, raw json.RawMessage) {
	var payload DrawPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.sendError(client, "invalid draw payload")
		return
	}
	// geometry is accepted as-is, only presence of the fields is checked
	if payload.BoardID <= 0 || payload.Color == "" || payload.Tool == "" {
		h.sendError(client, "boardId, color and tool are required")
		return
	}

	ev := &model.DrawingEvent{
		BoardID: payload.BoardID,
		X1:      payload.X1,
		Y1:      payload.Y1,
		X2:      payload.X2,
		Y2:      payload.Y2,
		Color:   payload.Color,
		Tool:    payload.Tool,
	}

	// relay the payload verbatim
	frame, err := json.Marshal(WSMessage{Type: "draw", Payload: raw})
	if err != nil {
		return
	}
	h.engine.Draw(client, ev, frame)
}

func (h *BoardWSHandler) handleClear(client *realtime.Client, raw json.RawMessage) {
	var payload ClearPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.BoardID <= 0 {
		h.sendError(client, "boardId is required")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := h.engine.Clear(ctx, payload.BoardID); err != nil {
		log.Printf("[BoardWS] Clear failed for board %d: %v", payload.BoardID, err)
		h.sendError(client, "failed to clear board")
	}
}

func (h *BoardWSHandler) sendError(client *realtime.Client, message string) {
	frame, _ := json.Marshal(errorFrame{Type: "error", Message: message})
	if err := client.Send(frame); err != nil {
		log.Printf("[BoardWS] Failed to send error to client %s: %v", client.ID, err)
	}
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// presence writes run off the hot path with their own short deadline
func (h *BoardWSHandler) presenceJoin(boardID int64, connID string) {
	if h.presence == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := h.presence.JoinBoard(ctx, boardID, connID); err != nil {
			log.Printf("[BoardWS] Failed to record presence for board %d: %v", boardID, err)
		}
	}()
}

func (h *BoardWSHandler) presenceLeave(boardID int64, connID string) {
	if h.presence == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := h.presence.LeaveBoard(ctx, boardID, connID); err != nil {
			log.Printf("[BoardWS] Failed to remove presence for board %d: %v", boardID, err)
		}
	}()
}
