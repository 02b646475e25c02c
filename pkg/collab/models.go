package collab

import (
	"time"

	"github.com/google/uuid"
)

// Sender is the outbound half of a transport connection. The session layer only
// ever needs to push frames at a participant, never to read from it.
type Sender interface {
	ID() uuid.UUID
	Send(msg []byte)
}

// CursorPosition is the last reported caret location of a participant.
// Presentation-only state: relayed to peers, never persisted.
type CursorPosition struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	RangeStart int     `json:"rangeStart"`
	RangeEnd   int     `json:"rangeEnd"`
}

// SelectionRange is a highlighted span of the document, same relay discipline
// as CursorPosition.
type SelectionRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Participant is one live connection to a document's session. A user with
// several tabs open holds several Participant entries, each keyed by its own
// ConnectionID; removal is always by ConnectionID, never by UserID.
type Participant struct {
	ConnectionID uuid.UUID
	UserID       string
	DisplayName  string
	Color        string

	Cursor    *CursorPosition
	Selection *SelectionRange

	Conn     Sender
	JoinedAt time.Time
}

// ParticipantSnapshot is a value copy of a participant's state taken while the
// registry mutex is held. Everything rendered or broadcast after the mutex is
// released works from snapshots, never from live Participant pointers.
type ParticipantSnapshot struct {
	ConnectionID uuid.UUID
	UserID       string
	DisplayName  string
	Color        string

	Cursor    *CursorPosition
	Selection *SelectionRange

	Conn     Sender
	JoinedAt time.Time
}

// Snapshot copies the participant, including its cursor and selection values,
// so the result stays stable under concurrent mutation.
func (p *Participant) Snapshot() ParticipantSnapshot {
	s := ParticipantSnapshot{
		ConnectionID: p.ConnectionID,
		UserID:       p.UserID,
		DisplayName:  p.DisplayName,
		Color:        p.Color,
		Conn:         p.Conn,
		JoinedAt:     p.JoinedAt,
	}
	if p.Cursor != nil {
		cur := *p.Cursor
		s.Cursor = &cur
	}
	if p.Selection != nil {
		sel := *p.Selection
		s.Selection = &sel
	}
	return s
}

// EditLock is the advisory single-writer lock. At most one per session.
type EditLock struct {
	Holder     uuid.UUID // ConnectionID of the owner
	HolderUser string
	HolderName string
	GrantedAt  time.Time
}

// Expired reports whether the lock has outlived ttl. A zero ttl means locks
// never expire.
func (l *EditLock) Expired(now time.Time, ttl time.Duration) bool {
	if l == nil || ttl <= 0 {
		return false
	}
	return now.Sub(l.GrantedAt) > ttl
}

// DocumentSession is the ephemeral server-side record of one open document:
// who is connected and whether the edit lock is held. Created lazily on first
// join, dropped when the last participant leaves, never persisted.
type DocumentSession struct {
	DocumentID   string
	Participants map[uuid.UUID]*Participant
	Lock         *EditLock
}
