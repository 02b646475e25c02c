package sessionstore_test

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/prasadu-1619/synchronos/pkg/collab"
	"github.com/prasadu-1619/synchronos/pkg/collab/sessionstore"
)

// --- Test Suite Setup ---

func newTestLogger() *slog.Logger {
	// Discard logger output during tests by setting a high level
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func newTestRegistry() *sessionstore.InMemorySessions {
	return sessionstore.NewInMemorySessions(newTestLogger())
}

func newParticipant(userID string) *collab.Participant {
	return &collab.Participant{
		ConnectionID: uuid.New(),
		UserID:       userID,
		DisplayName:  userID,
		Color:        "#336699",
		JoinedAt:     time.Now(),
	}
}

// --- Presence ---

func TestJoinLeaveLifecycle(t *testing.T) {
	r := newTestRegistry()
	a := newParticipant("user-a")
	b := newParticipant("user-b")

	// First join creates the session lazily and sees no peers.
	peers := r.Join("doc-1", a)
	if len(peers) != 0 {
		t.Fatalf("expected no peers on first join, got %d", len(peers))
	}

	// Second join sees the first participant.
	peers = r.Join("doc-1", b)
	if len(peers) != 1 || peers[0].ConnectionID != a.ConnectionID {
		t.Fatalf("expected peer list [a], got %v", peers)
	}

	res, ok := r.Leave("doc-1", a.ConnectionID)
	if !ok {
		t.Fatal("Leave of a registered connection failed")
	}
	if res.SessionClosed {
		t.Error("session closed while a participant remained")
	}

	// Leaving twice is a no-op, not an error.
	if _, ok := r.Leave("doc-1", a.ConnectionID); ok {
		t.Error("duplicate leave should report not-found")
	}

	res, ok = r.Leave("doc-1", b.ConnectionID)
	if !ok {
		t.Fatal("Leave of last participant failed")
	}
	if !res.SessionClosed {
		t.Error("expected session teardown when the last participant leaves")
	}
	if peers := r.Peers("doc-1", uuid.Nil); len(peers) != 0 {
		t.Errorf("expected empty session after teardown, got %d peers", len(peers))
	}
}

func TestMultiTabSameUser(t *testing.T) {
	r := newTestRegistry()
	tab1 := newParticipant("user-a")
	tab2 := newParticipant("user-a") // same user, distinct connection

	r.Join("doc-1", tab1)
	r.Join("doc-1", tab2)

	if got := len(r.Peers("doc-1", uuid.Nil)); got != 2 {
		t.Fatalf("expected 2 participants for the same user, got %d", got)
	}

	// Removal is by connectionId, never by userId.
	r.Leave("doc-1", tab1.ConnectionID)
	remaining := r.Peers("doc-1", uuid.Nil)
	if len(remaining) != 1 || remaining[0].ConnectionID != tab2.ConnectionID {
		t.Fatalf("expected only tab2 to remain, got %v", remaining)
	}
}

func TestDocumentsOf(t *testing.T) {
	r := newTestRegistry()
	a := newParticipant("user-a")

	r.Join("doc-1", a)
	r.Join("doc-2", a)

	docs := r.DocumentsOf(a.ConnectionID)
	if len(docs) != 2 {
		t.Fatalf("expected 2 joined documents, got %d", len(docs))
	}

	r.Leave("doc-1", a.ConnectionID)
	docs = r.DocumentsOf(a.ConnectionID)
	if len(docs) != 1 || docs[0] != "doc-2" {
		t.Fatalf("expected [doc-2], got %v", docs)
	}
}

// --- Cursor state ---

func TestSetCursor(t *testing.T) {
	r := newTestRegistry()
	a := newParticipant("user-a")

	if _, ok := r.SetCursor("doc-1", a.ConnectionID, collab.CursorPosition{X: 1}); ok {
		t.Fatal("SetCursor for an unjoined connection should fail")
	}

	r.Join("doc-1", a)
	p, ok := r.SetCursor("doc-1", a.ConnectionID, collab.CursorPosition{X: 10, Y: 20})
	if !ok {
		t.Fatal("SetCursor failed for a joined connection")
	}
	if p.Cursor == nil || p.Cursor.X != 10 || p.Cursor.Y != 20 {
		t.Errorf("cursor not stored on participant: %+v", p.Cursor)
	}
}

func TestSnapshotsAreStable(t *testing.T) {
	r := newTestRegistry()
	a := newParticipant("user-a")
	b := newParticipant("user-b")

	r.Join("doc-1", a)
	r.SetCursor("doc-1", a.ConnectionID, collab.CursorPosition{X: 1})

	// The peer list handed back by Join must be a value copy, not a view onto
	// live registry state.
	peers := r.Join("doc-1", b)
	if len(peers) != 1 || peers[0].Cursor == nil {
		t.Fatalf("expected one peer with a cursor, got %v", peers)
	}

	r.SetCursor("doc-1", a.ConnectionID, collab.CursorPosition{X: 99})
	if peers[0].Cursor.X != 1 {
		t.Errorf("peer snapshot mutated by a later cursor update: X=%v", peers[0].Cursor.X)
	}

	snap, ok := r.Participant("doc-1", a.ConnectionID)
	if !ok || snap.Cursor.X != 99 {
		t.Fatalf("fresh snapshot should see the update, got %+v", snap.Cursor)
	}
	r.SetSelection("doc-1", a.ConnectionID, collab.SelectionRange{Start: 3, End: 7})
	if snap.Selection != nil {
		t.Error("participant snapshot mutated by a later selection update")
	}
}

// --- Lock state machine ---

func TestLockStateMachine(t *testing.T) {
	r := newTestRegistry()
	a := newParticipant("user-a")
	b := newParticipant("user-b")
	r.Join("doc-1", a)
	r.Join("doc-1", b)

	// Unlocked -> Locked(a)
	res := r.AcquireLock("doc-1", a.ConnectionID, 0)
	if !res.Granted {
		t.Fatal("first lock request should be granted")
	}

	// Locked(a): b is denied and told who holds it.
	res = r.AcquireLock("doc-1", b.ConnectionID, 0)
	if res.Granted {
		t.Fatal("contending lock request must be denied, not queued")
	}
	if res.Lock == nil || res.Lock.Holder != a.ConnectionID {
		t.Fatalf("denial should name the holder, got %+v", res.Lock)
	}

	// A non-holder must not be able to release another's lock.
	if r.ReleaseLock("doc-1", b.ConnectionID) {
		t.Fatal("non-holder release must be a no-op")
	}
	if _, held := r.ActiveLock("doc-1", 0); !held {
		t.Fatal("lock should survive a non-holder release attempt")
	}

	if !r.ReleaseLock("doc-1", a.ConnectionID) {
		t.Fatal("holder release failed")
	}

	// Unlocked again: b can now acquire.
	res = r.AcquireLock("doc-1", b.ConnectionID, 0)
	if !res.Granted {
		t.Fatal("lock request after release should be granted")
	}
}

func TestLockReleasedOnLeave(t *testing.T) {
	r := newTestRegistry()
	a := newParticipant("user-a")
	b := newParticipant("user-b")
	r.Join("doc-1", a)
	r.Join("doc-1", b)

	r.AcquireLock("doc-1", a.ConnectionID, 0)

	res, ok := r.Leave("doc-1", a.ConnectionID)
	if !ok {
		t.Fatal("Leave failed")
	}
	if !res.LockReleased {
		t.Fatal("leaving holder should release the lock")
	}
	if _, held := r.ActiveLock("doc-1", 0); held {
		t.Fatal("lock should be gone after the holder left")
	}
}

func TestLockTTLDisplacement(t *testing.T) {
	r := newTestRegistry()
	a := newParticipant("user-a")
	b := newParticipant("user-b")
	r.Join("doc-1", a)
	r.Join("doc-1", b)

	const ttl = 5 * time.Millisecond
	if res := r.AcquireLock("doc-1", a.ConnectionID, ttl); !res.Granted {
		t.Fatal("initial grant failed")
	}
	time.Sleep(3 * ttl)

	// The stale lock ages out and is displaced by the next request.
	res := r.AcquireLock("doc-1", b.ConnectionID, ttl)
	if !res.Granted {
		t.Fatal("expected expired lock to be displaced")
	}
	if !res.Displaced {
		t.Error("expected the grant to report displacement")
	}
	if res.Lock.Holder != b.ConnectionID {
		t.Errorf("expected b to hold the lock, got %s", res.Lock.Holder)
	}

	// With no TTL the same sequence would be denied.
	if _, held := r.ActiveLock("doc-1", ttl); !held {
		t.Error("fresh lock should be active")
	}
}

func TestLockRequestWithoutSession(t *testing.T) {
	r := newTestRegistry()
	res := r.AcquireLock("doc-missing", uuid.New(), 0)
	if res.Granted || res.Lock != nil {
		t.Fatal("lock request against a missing session must not grant")
	}
}
