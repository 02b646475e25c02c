package sessionstore

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/prasadu-1619/synchronos/pkg/collab"
)

// InMemorySessions keeps every live DocumentSession in process memory. One
// mutex guards both the session map and the connection index; session state is
// only ever mutated while it is held, and only leaves as value snapshots, so
// per-sender handler goroutines never race on the same session.
type InMemorySessions struct {
	mu       sync.RWMutex
	sessions map[string]*collab.DocumentSession
	// connection -> set of joined document ids, for implicit leave on disconnect.
	byConn map[uuid.UUID]map[string]struct{}

	logger *slog.Logger
}

func NewInMemorySessions(logger *slog.Logger) *InMemorySessions {
	return &InMemorySessions{
		sessions: make(map[string]*collab.DocumentSession),
		byConn:   make(map[uuid.UUID]map[string]struct{}),
		logger:   logger.With(slog.String("component", "session_registry")),
	}
}

// compile-time check to ensure InMemorySessions implements Registry.
var _ collab.Registry = (*InMemorySessions)(nil)

func (s *InMemorySessions) Join(documentID string, p *collab.Participant) []collab.ParticipantSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[documentID]
	if !ok {
		sess = &collab.DocumentSession{
			DocumentID:   documentID,
			Participants: make(map[uuid.UUID]*collab.Participant),
		}
		s.sessions[documentID] = sess
		s.logger.Debug("Session created", "documentID", documentID)
	}

	peers := make([]collab.ParticipantSnapshot, 0, len(sess.Participants))
	for id, existing := range sess.Participants {
		if id != p.ConnectionID {
			peers = append(peers, existing.Snapshot())
		}
	}

	sess.Participants[p.ConnectionID] = p

	docs, ok := s.byConn[p.ConnectionID]
	if !ok {
		docs = make(map[string]struct{})
		s.byConn[p.ConnectionID] = docs
	}
	docs[documentID] = struct{}{}

	s.logger.Debug("Participant joined", "documentID", documentID, "connID", p.ConnectionID.String(), "userID", p.UserID)
	return peers
}

func (s *InMemorySessions) Leave(documentID string, connID uuid.UUID) (collab.LeaveResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[documentID]
	if !ok {
		return collab.LeaveResult{}, false
	}
	p, ok := sess.Participants[connID]
	if !ok {
		return collab.LeaveResult{}, false
	}

	delete(sess.Participants, connID)
	if docs, ok := s.byConn[connID]; ok {
		delete(docs, documentID)
		if len(docs) == 0 {
			delete(s.byConn, connID)
		}
	}

	res := collab.LeaveResult{Participant: p.Snapshot()}
	if sess.Lock != nil && sess.Lock.Holder == connID {
		sess.Lock = nil
		res.LockReleased = true
	}

	// Drop empty sessions; they are recreated lazily on the next join.
	if len(sess.Participants) == 0 {
		delete(s.sessions, documentID)
		res.SessionClosed = true
		s.logger.Debug("Session closed", "documentID", documentID)
	}

	s.logger.Debug("Participant left", "documentID", documentID, "connID", connID.String())
	return res, true
}

func (s *InMemorySessions) Participant(documentID string, connID uuid.UUID) (collab.ParticipantSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.participantLocked(documentID, connID)
	if !ok {
		return collab.ParticipantSnapshot{}, false
	}
	return p.Snapshot(), true
}

func (s *InMemorySessions) Peers(documentID string, except uuid.UUID) []collab.ParticipantSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[documentID]
	if !ok {
		return nil
	}
	peers := make([]collab.ParticipantSnapshot, 0, len(sess.Participants))
	for id, p := range sess.Participants {
		if id != except {
			peers = append(peers, p.Snapshot())
		}
	}
	return peers
}

func (s *InMemorySessions) DocumentsOf(connID uuid.UUID) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs, ok := s.byConn[connID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(docs))
	for id := range docs {
		out = append(out, id)
	}
	return out
}

func (s *InMemorySessions) SetCursor(documentID string, connID uuid.UUID, cur collab.CursorPosition) (collab.ParticipantSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participantLocked(documentID, connID)
	if !ok {
		return collab.ParticipantSnapshot{}, false
	}
	p.Cursor = &cur
	return p.Snapshot(), true
}

func (s *InMemorySessions) SetSelection(documentID string, connID uuid.UUID, sel collab.SelectionRange) (collab.ParticipantSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participantLocked(documentID, connID)
	if !ok {
		return collab.ParticipantSnapshot{}, false
	}
	p.Selection = &sel
	return p.Snapshot(), true
}

func (s *InMemorySessions) AcquireLock(documentID string, connID uuid.UUID, ttl time.Duration) collab.LockResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[documentID]
	if !ok {
		return collab.LockResult{}
	}
	p, ok := sess.Participants[connID]
	if !ok {
		return collab.LockResult{}
	}

	now := time.Now()
	displaced := false
	if sess.Lock != nil {
		if sess.Lock.Holder == connID {
			// Re-request by the current holder; refresh the grant time.
			sess.Lock.GrantedAt = now
			return collab.LockResult{Granted: true, Lock: sess.Lock}
		}
		if !sess.Lock.Expired(now, ttl) {
			return collab.LockResult{Lock: sess.Lock}
		}
		s.logger.Debug("Displacing expired edit lock", "documentID", documentID, "holder", sess.Lock.Holder.String())
		sess.Lock = nil
		displaced = true
	}

	sess.Lock = &collab.EditLock{
		Holder:     connID,
		HolderUser: p.UserID,
		HolderName: p.DisplayName,
		GrantedAt:  now,
	}
	return collab.LockResult{Granted: true, Lock: sess.Lock, Displaced: displaced}
}

func (s *InMemorySessions) ReleaseLock(documentID string, connID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[documentID]
	if !ok || sess.Lock == nil {
		return false
	}
	// A non-holder must not be able to release another connection's lock.
	if sess.Lock.Holder != connID {
		return false
	}
	sess.Lock = nil
	return true
}

func (s *InMemorySessions) ActiveLock(documentID string, ttl time.Duration) (*collab.EditLock, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[documentID]
	if !ok || sess.Lock == nil {
		return nil, false
	}
	if sess.Lock.Expired(time.Now(), ttl) {
		return nil, false
	}
	return sess.Lock, true
}

// participantLocked requires s.mu to be held.
func (s *InMemorySessions) participantLocked(documentID string, connID uuid.UUID) (*collab.Participant, bool) {
	sess, ok := s.sessions[documentID]
	if !ok {
		return nil, false
	}
	p, ok := sess.Participants[connID]
	return p, ok
}
