package realtime

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

// TextMessage mirrors websocket.TextMessage so this package stays
// independent of the transport.
const TextMessage = 1

// Conn is the subset of *websocket.Conn the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
}

// Client one live connection. A client belongs to at most one board room
// at a time.
type Client struct {
	ID      string
	conn    Conn
	writeMu sync.Mutex
}

// NewClient wraps a connection with a fresh connection ID
func NewClient(conn Conn) *Client {
	return &Client{
		ID:   uuid.NewString(),
		conn: conn,
	}
}

// Send writes one text frame; safe for concurrent callers
func (c *Client) Send(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(TextMessage, payload)
}

// Hub maps board IDs to the set of connections currently in the room.
// All room membership mutation goes through Join/Leave.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[int64]map[*Client]struct{}
	boards map[*Client]int64
}

// NewHub creates an empty Hub
func NewHub() *Hub {
	return &Hub{
		rooms:  make(map[int64]map[*Client]struct{}),
		boards: make(map[*Client]int64),
	}
}

// Join adds the client to the board's room. A client already in another
// room switches explicitly: it leaves the old room first. Joining the
// room it is already in is a no-op.
func (h *Hub) Join(client *Client, boardID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.boards[client]; ok {
		if current == boardID {
			return
		}
		h.removeLocked(client, current)
	}

	room, ok := h.rooms[boardID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[boardID] = room
	}
	room[client] = struct{}{}
	h.boards[client] = boardID

	log.Printf("[Hub] Client %s joined board %d, room size: %d", client.ID, boardID, len(room))
}

// Leave removes the client from whatever room it occupies. Idempotent.
func (h *Hub) Leave(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	boardID, ok := h.boards[client]
	if !ok {
		return
	}
	h.removeLocked(client, boardID)

	log.Printf("[Hub] Client %s left board %d", client.ID, boardID)
}

func (h *Hub) removeLocked(client *Client, boardID int64) {
	if room, ok := h.rooms[boardID]; ok {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, boardID)
		}
	}
	delete(h.boards, client)
}

// Board returns the board the client is currently in, if any
func (h *Hub) Board(client *Client) (int64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	boardID, ok := h.boards[client]
	return boardID, ok
}

// Count returns the current room size for the board
func (h *Hub) Count(boardID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[boardID])
}

// BroadcastExcept delivers the payload to every connection in the
// board's room other than sender. A failed send is logged and does not
// abort delivery to the remaining connections.
func (h *Hub) BroadcastExcept(boardID int64, sender *Client, payload []byte) {
	for _, client := range h.members(boardID) {
		if client == sender {
			continue
		}
		if err := client.Send(payload); err != nil {
			log.Printf("[Hub] Failed to send to client %s on board %d: %v", client.ID, boardID, err)
		}
	}
}

// Broadcast delivers the payload to every connection in the board's room
func (h *Hub) Broadcast(boardID int64, payload []byte) {
	h.BroadcastExcept(boardID, nil, payload)
}

// members snapshots the room so sends happen outside the lock
func (h *Hub) members(boardID int64) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room := h.rooms[boardID]
	clients := make([]*Client, 0, len(room))
	for client := range room {
		clients = append(clients, client)
	}
	return clients
}
