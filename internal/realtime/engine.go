package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"whiteboard-backend/internal/model"
	"whiteboard-backend/internal/store"
)

// ErrEngineClosed is returned for operations submitted after Close.
var ErrEngineClosed = errors.New("engine closed")

// Engine orchestrates inbound board events. Draw frames fan out to the
// room before any storage write; appends, bulk deletes and history reads
// for one board run on a single per-board queue so a clear can never
// interleave with them. Queues for different boards run in parallel.
//
// Tie-break between a clear and in-flight draws: queue receipt order. A
// draw enqueued before the clear is persisted and then removed by the
// delete; a draw enqueued after the clear survives it.
type Engine struct {
	store     store.DrawingStore
	hub       *Hub
	bufSize   int
	opTimeout time.Duration

	mu     sync.Mutex
	queues map[int64]chan func()
	closed bool
	wg     sync.WaitGroup
}

// NewEngine creates an Engine. bufSize is the per-board queue depth,
// opTimeout bounds a single store operation.
func NewEngine(s store.DrawingStore, hub *Hub, bufSize int, opTimeout time.Duration) *Engine {
	if bufSize <= 0 {
		bufSize = 256
	}
	if opTimeout <= 0 {
		opTimeout = 5 * time.Second
	}
	return &Engine{
		store:     s,
		hub:       hub,
		bufSize:   bufSize,
		opTimeout: opTimeout,
		queues:    make(map[int64]chan func()),
	}
}

// queue returns the board's task queue, starting its consumer on first
// use. Returns nil after Close.
func (e *Engine) queue(boardID int64) chan func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	q, ok := e.queues[boardID]
	if !ok {
		q = make(chan func(), e.bufSize)
		e.queues[boardID] = q
		e.wg.Add(1)
		go e.run(q)
	}
	return q
}

func (e *Engine) run(q chan func()) {
	defer e.wg.Done()
	for task := range q {
		task()
	}
}

// Draw relays the frame to everyone else in the sender's room, then
// queues the append. The relay never waits on storage; if the board's
// queue is full the stroke is dropped from history with a log.
func (e *Engine) Draw(sender *Client, ev *model.DrawingEvent, frame []byte) {
	e.hub.BroadcastExcept(ev.BoardID, sender, frame)

	q := e.queue(ev.BoardID)
	if q == nil {
		return
	}
	select {
	case q <- func() { e.append(ev) }:
	default:
		log.Printf("[Engine] Persist queue full for board %d, dropping stroke", ev.BoardID)
	}
}

// append failure loses the stroke from history only; peers already saw
// it live, so there is no retry.
func (e *Engine) append(ev *model.DrawingEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), e.opTimeout)
	defer cancel()

	if err := e.store.Append(ctx, ev); err != nil {
		log.Printf("[Engine] Failed to persist stroke for board %d: %v", ev.BoardID, err)
	}
}

// Clear deletes the board's stored events and notifies the whole room
// (requester included) to wipe its canvas. Runs on the board's queue. A
// delete failure is returned to the requester and no notification goes
// out. Clearing an empty board succeeds with count 0.
func (e *Engine) Clear(ctx context.Context, boardID int64) (int64, error) {
	q := e.queue(boardID)
	if q == nil {
		return 0, ErrEngineClosed
	}

	type result struct {
		count int64
		err   error
	}
	done := make(chan result, 1)

	task := func() {
		opCtx, cancel := context.WithTimeout(context.Background(), e.opTimeout)
		defer cancel()

		count, err := e.store.DeleteByBoard(opCtx, boardID)
		if err == nil {
			e.hub.Broadcast(boardID, clearFrame(boardID))
		}
		done <- result{count: count, err: err}
	}

	select {
	case q <- task:
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	select {
	case r := <-done:
		if r.err != nil {
			return 0, fmt.Errorf("clear board %d: %w", boardID, r.err)
		}
		log.Printf("[Engine] Cleared board %d (%d events removed)", boardID, r.count)
		return r.count, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// History returns the board's events in replay order. The read runs on
// the board's queue so it reflects every completed clear and never sees
// a torn one.
func (e *Engine) History(ctx context.Context, boardID int64) ([]model.DrawingEvent, error) {
	q := e.queue(boardID)
	if q == nil {
		return nil, ErrEngineClosed
	}

	type result struct {
		events []model.DrawingEvent
		err    error
	}
	done := make(chan result, 1)

	task := func() {
		opCtx, cancel := context.WithTimeout(context.Background(), e.opTimeout)
		defer cancel()

		events, err := e.store.ListByBoard(opCtx, boardID)
		done <- result{events: events, err: err}
	}

	select {
	case q <- task:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-done:
		return r.events, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Disconnect removes the client from its room. Appends already queued
// for events it sent still complete.
func (e *Engine) Disconnect(client *Client) {
	e.hub.Leave(client)
}

// Close stops accepting work, drains every board queue and waits for
// in-flight tasks.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	for _, q := range e.queues {
		close(q)
	}
	e.mu.Unlock()

	e.wg.Wait()
	log.Printf("[Engine] Shutdown complete")
}

type wsEnvelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// clearFrame is the room notification for a completed clear
func clearFrame(boardID int64) []byte {
	frame, _ := json.Marshal(wsEnvelope{
		Type:    "clearBoard",
		Payload: map[string]int64{"boardId": boardID},
	})
	return frame
}
