package server

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/prasadu-1619/synchronos/pkg/transport"
)

type trackedConn struct {
	userID    string
	conn      *transport.Connection
	createdAt time.Time
}

// connTracker indexes live transport connections by user, backing the
// per-user connection limiter and the shutdown sweep.
type connTracker struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]trackedConn
}

func newConnTracker() *connTracker {
	return &connTracker{conns: make(map[uuid.UUID]trackedConn)}
}

func (t *connTracker) Add(userID string, conn *transport.Connection) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns[conn.ID()] = trackedConn{userID: userID, conn: conn, createdAt: time.Now()}
}

func (t *connTracker) Remove(connID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conns, connID)
}

func (t *connTracker) Count(userID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, tc := range t.conns {
		if tc.userID == userID {
			n++
		}
	}
	return n
}

// Oldest returns the user's longest-lived connection, for the limiter's
// cycle mode.
func (t *connTracker) Oldest(userID string) (*transport.Connection, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var oldest *transport.Connection
	var oldestTime time.Time
	for _, tc := range t.conns {
		if tc.userID != userID {
			continue
		}
		if oldest == nil || tc.createdAt.Before(oldestTime) {
			oldest = tc.conn
			oldestTime = tc.createdAt
		}
	}
	return oldest, oldest != nil
}

func (t *connTracker) All() []*transport.Connection {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*transport.Connection, 0, len(t.conns))
	for _, tc := range t.conns {
		out = append(out, tc.conn)
	}
	return out
}
