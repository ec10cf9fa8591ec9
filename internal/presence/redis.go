package presence

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// presenceTTL keeps stale rooms from lingering after a crashed server;
// membership writes refresh it.
const presenceTTL = 5 * time.Minute

// Manager tracks which connections are on which board in Redis so the
// REST surface can report room occupancy. Optional collaborator: a nil
// Manager disables presence and every failure is log-only.
type Manager struct {
	client *redis.Client
}

// NewManager connects to Redis and verifies it with a ping
func NewManager(addr, password string, db int) (*Manager, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	log.Printf("[Presence] Connected to %s", addr)
	return &Manager{client: client}, nil
}

func boardKey(boardID int64) string {
	return fmt.Sprintf("presence:board:%d", boardID)
}

// JoinBoard records the connection in the board's presence set
func (m *Manager) JoinBoard(ctx context.Context, boardID int64, connID string) error {
	key := boardKey(boardID)
	if err := m.client.SAdd(ctx, key, connID).Err(); err != nil {
		return err
	}
	return m.client.Expire(ctx, key, presenceTTL).Err()
}

// LeaveBoard removes the connection from the board's presence set
func (m *Manager) LeaveBoard(ctx context.Context, boardID int64, connID string) error {
	return m.client.SRem(ctx, boardKey(boardID), connID).Err()
}

// Count returns how many connections are on the board
func (m *Manager) Count(ctx context.Context, boardID int64) (int64, error) {
	return m.client.SCard(ctx, boardKey(boardID)).Result()
}

// Ping health check
func (m *Manager) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

// Close releases the Redis connection pool
func (m *Manager) Close() error {
	return m.client.Close()
}
