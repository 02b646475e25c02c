package collab

import (
	"time"

	"github.com/google/uuid"
)

// LeaveResult describes the side effects of removing a participant.
type LeaveResult struct {
	Participant   ParticipantSnapshot
	LockReleased  bool // the departing connection held the edit lock
	SessionClosed bool // it was the last participant; the session is gone
}

// LockResult is the outcome of an AcquireLock call.
type LockResult struct {
	Granted bool
	// The active lock after a grant, or the competing holder after a denial.
	Lock *EditLock
	// A stale lock aged past its TTL and was displaced to make room.
	Displaced bool
}

// Registry owns every live DocumentSession. All mutation of session state goes
// through here, and state only leaves as value snapshots taken under the
// registry's mutex; callers never see a live Participant pointer.
type Registry interface {
	// --- Presence ---
	// Join registers the participant, creating the session on first join, and
	// returns the peers that were already present (excluding the new arrival).
	Join(documentID string, p *Participant) []ParticipantSnapshot
	// Leave removes the participant by connection id. Unknown connections are a
	// no-op (ok=false) so duplicate disconnect signals are harmless.
	Leave(documentID string, connID uuid.UUID) (LeaveResult, bool)
	Participant(documentID string, connID uuid.UUID) (ParticipantSnapshot, bool)
	// Peers lists the session's participants excluding one connection. Pass
	// uuid.Nil to list everyone.
	Peers(documentID string, except uuid.UUID) []ParticipantSnapshot
	// DocumentsOf lists every document the connection has joined, for implicit
	// leave on disconnect.
	DocumentsOf(connID uuid.UUID) []string

	// --- Cursor/selection relay state ---
	SetCursor(documentID string, connID uuid.UUID, cur CursorPosition) (ParticipantSnapshot, bool)
	SetSelection(documentID string, connID uuid.UUID, sel SelectionRange) (ParticipantSnapshot, bool)

	// --- Edit lock state machine ---
	AcquireLock(documentID string, connID uuid.UUID, ttl time.Duration) LockResult
	// ReleaseLock unlocks only when connID is the holder; anything else is a
	// no-op.
	ReleaseLock(documentID string, connID uuid.UUID) bool
	// ActiveLock returns the current non-expired lock, if any.
	ActiveLock(documentID string, ttl time.Duration) (*EditLock, bool)
}
