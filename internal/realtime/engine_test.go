package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whiteboard-backend/internal/model"
)

// memStore in-memory DrawingStore with fault injection
type memStore struct {
	mu          sync.Mutex
	nextID      int64
	events      map[int64][]model.DrawingEvent
	appendErr   error
	deleteErr   error
	appendDelay time.Duration
}

func newMemStore() *memStore {
	return &memStore{events: make(map[int64][]model.DrawingEvent)}
}

func (s *memStore) Append(_ context.Context, ev *model.DrawingEvent) error {
	if s.appendDelay > 0 {
		time.Sleep(s.appendDelay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.nextID++
	ev.ID = s.nextID
	ev.CreatedAt = time.Now()
	s.events[ev.BoardID] = append(s.events[ev.BoardID], *ev)
	return nil
}

func (s *memStore) ListByBoard(_ context.Context, boardID int64) ([]model.DrawingEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.DrawingEvent, len(s.events[boardID]))
	copy(out, s.events[boardID])
	return out, nil
}

func (s *memStore) DeleteByBoard(_ context.Context, boardID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return 0, s.deleteErr
	}
	n := int64(len(s.events[boardID]))
	delete(s.events, boardID)
	return n, nil
}

func newTestEngine(t *testing.T, st *memStore) (*Engine, *Hub) {
	t.Helper()
	hub := NewHub()
	engine := NewEngine(st, hub, 256, time.Second)
	t.Cleanup(engine.Close)
	return engine, hub
}

func drawEvent(boardID int64, x float64) *model.DrawingEvent {
	return &model.DrawingEvent{BoardID: boardID, X1: x, Y1: 0, X2: x + 10, Y2: 10, Color: "#000", Tool: "pen"}
}

func TestDrawRelaysToRoomExceptSender(t *testing.T) {
	engine, hub := newTestEngine(t, newMemStore())
	a, connA := newFakeClient()
	b, connB := newFakeClient()
	c, connC := newFakeClient()
	for _, client := range []*Client{a, b, c} {
		hub.Join(client, 1)
	}

	frame := []byte(`{"type":"draw","payload":{"boardId":1,"x1":0,"y1":0,"x2":10,"y2":10,"color":"#000","tool":"pen"}}`)
	engine.Draw(a, drawEvent(1, 0), frame)

	assert.Empty(t, connA.Frames())
	require.Len(t, connB.Frames(), 1)
	require.Len(t, connC.Frames(), 1)
	assert.Equal(t, frame, connB.Frames()[0])

	events, err := engine.History(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, float64(0), events[0].X1)
	assert.Equal(t, "#000", events[0].Color)
}

func TestDrawPerSenderOrderPreserved(t *testing.T) {
	engine, hub := newTestEngine(t, newMemStore())
	sender, _ := newFakeClient()
	receiver, recvConn := newFakeClient()
	hub.Join(sender, 1)
	hub.Join(receiver, 1)

	const n = 25
	for i := 0; i < n; i++ {
		frame := []byte(fmt.Sprintf(`{"type":"draw","payload":{"seq":%d}}`, i))
		engine.Draw(sender, drawEvent(1, float64(i)), frame)
	}

	frames := recvConn.Frames()
	require.Len(t, frames, n)
	for i, frame := range frames {
		assert.Contains(t, string(frame), fmt.Sprintf(`"seq":%d`, i))
	}

	// persistence order matches send order too
	events, err := engine.History(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, events, n)
	for i, ev := range events {
		assert.Equal(t, float64(i), ev.X1)
	}
}

func TestClearRemovesInFlightDraws(t *testing.T) {
	st := newMemStore()
	st.appendDelay = 2 * time.Millisecond
	engine, hub := newTestEngine(t, st)
	sender, _ := newFakeClient()
	hub.Join(sender, 1)

	// queue a burst of appends, then clear while they drain
	for i := 0; i < 10; i++ {
		engine.Draw(sender, drawEvent(1, float64(i)), []byte("frame"))
	}
	count, err := engine.Clear(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), count)

	events, err := engine.History(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestClearIsolatedAcrossBoards(t *testing.T) {
	engine, hub := newTestEngine(t, newMemStore())
	a, _ := newFakeClient()
	b, connB := newFakeClient()
	hub.Join(a, 1)
	hub.Join(b, 2)

	engine.Draw(a, drawEvent(1, 1), []byte("frame-1"))
	engine.Draw(b, drawEvent(2, 2), []byte("frame-2"))

	_, err := engine.Clear(context.Background(), 1)
	require.NoError(t, err)

	events, err := engine.History(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, float64(2), events[0].X1)

	// board 2's room saw no clear notification
	for _, frame := range connB.Frames() {
		assert.NotContains(t, string(frame), "clearBoard")
	}
}

func TestClearIdempotentOnEmptyBoard(t *testing.T) {
	engine, _ := newTestEngine(t, newMemStore())

	for i := 0; i < 2; i++ {
		count, err := engine.Clear(context.Background(), 7)
		require.NoError(t, err)
		assert.Equal(t, int64(0), count)
	}

	events, err := engine.History(context.Background(), 7)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestClearNotifiesWholeRoom(t *testing.T) {
	engine, hub := newTestEngine(t, newMemStore())
	a, connA := newFakeClient()
	b, connB := newFakeClient()
	hub.Join(a, 1)
	hub.Join(b, 1)

	_, err := engine.Clear(context.Background(), 1)
	require.NoError(t, err)

	// everyone wipes their canvas, the requester included
	for _, conn := range []*fakeConn{connA, connB} {
		frames := conn.Frames()
		require.Len(t, frames, 1)
		var msg struct {
			Type    string `json:"type"`
			Payload struct {
				BoardID int64 `json:"boardId"`
			} `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(frames[0], &msg))
		assert.Equal(t, "clearBoard", msg.Type)
		assert.Equal(t, int64(1), msg.Payload.BoardID)
	}
}

func TestBroadcastIndependentOfPersistence(t *testing.T) {
	st := newMemStore()
	st.appendErr = fmt.Errorf("store outage")
	engine, hub := newTestEngine(t, st)
	a, _ := newFakeClient()
	b, connB := newFakeClient()
	hub.Join(a, 1)
	hub.Join(b, 1)

	engine.Draw(a, drawEvent(1, 5), []byte("live-frame"))

	require.Len(t, connB.Frames(), 1)
	assert.Equal(t, []byte("live-frame"), connB.Frames()[0])

	// the stroke is lost from history, not from the live relay
	events, err := engine.History(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestClearSurfacesDeleteFailure(t *testing.T) {
	st := newMemStore()
	st.deleteErr = fmt.Errorf("store outage")
	engine, hub := newTestEngine(t, st)
	a, connA := newFakeClient()
	hub.Join(a, 1)

	_, err := engine.Clear(context.Background(), 1)
	require.Error(t, err)

	// no notification when the clear did not complete
	assert.Empty(t, connA.Frames())
}

func TestOperationsAfterClose(t *testing.T) {
	engine, hub := newTestEngine(t, newMemStore())
	a, _ := newFakeClient()
	b, connB := newFakeClient()
	hub.Join(a, 1)
	hub.Join(b, 1)

	engine.Close()

	_, err := engine.Clear(context.Background(), 1)
	assert.ErrorIs(t, err, ErrEngineClosed)

	_, err = engine.History(context.Background(), 1)
	assert.ErrorIs(t, err, ErrEngineClosed)

	// the live relay still works; only persistence is gone
	engine.Draw(a, drawEvent(1, 1), []byte("frame"))
	assert.Len(t, connB.Frames(), 1)
}

func TestConcurrentDrawsAllPersisted(t *testing.T) {
	engine, hub := newTestEngine(t, newMemStore())

	const senders = 8
	const perSender = 10
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		client, _ := newFakeClient()
		hub.Join(client, 1)
		wg.Add(1)
		go func(client *Client, base int) {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				engine.Draw(client, drawEvent(1, float64(base+j)), []byte("frame"))
			}
		}(client, i*perSender)
	}
	wg.Wait()

	events, err := engine.History(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, events, senders*perSender)
}
