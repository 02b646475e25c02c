// Package session implements the collaboration protocol's server-side state:
// presence, the cursor/selection relay, the advisory edit lock, and the
// full-snapshot content synchronization channel.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/prasadu-1619/synchronos/internal/protocol"
	"github.com/prasadu-1619/synchronos/internal/store"
	"github.com/prasadu-1619/synchronos/pkg/collab"
)

// Identity is the verified user attached to a connection by the auth
// handshake. The core trusts it verbatim.
type Identity struct {
	UserID      string
	DisplayName string
	Email       string
}

type Config struct {
	// Reject content-changes from non-holders while the lock is held.
	EnforceEditLock bool
	// Zero disables lock expiry.
	LockTTL time.Duration
}

// Coordinator handles every protocol event for every document session. It owns
// no transport and no globals: the registry, store, and broadcast capability
// are all injected.
type Coordinator struct {
	logger   *slog.Logger
	sessions collab.Registry
	docs     store.DocumentStore
	bcast    Broadcaster
	cfg      Config
}

func NewCoordinator(logger *slog.Logger, sessions collab.Registry, docs store.DocumentStore, bcast Broadcaster, cfg Config) *Coordinator {
	return &Coordinator{
		logger:   logger.With(slog.String("component", "coordinator")),
		sessions: sessions,
		docs:     docs,
		bcast:    bcast,
		cfg:      cfg,
	}
}

// Join registers the connection in the document's session, replies with a
// presence snapshot of everyone already there, and announces the arrival to
// the rest of the room.
func (c *Coordinator) Join(conn collab.Sender, ident Identity, req protocol.JoinDocument) {
	if req.DocumentID == "" {
		c.logger.Warn("join-document without documentId", "connID", conn.ID().String())
		return
	}

	userID := ident.UserID
	if userID == "" {
		userID = req.User.ID
	}
	name := ident.DisplayName
	if name == "" {
		name = req.User.Name
	}
	if name == "" {
		name = "Anonymous"
	}
	color := req.User.Color
	if color == "" {
		color = randomColor()
	}

	p := &collab.Participant{
		ConnectionID: conn.ID(),
		UserID:       userID,
		DisplayName:  name,
		Color:        color,
		Conn:         conn,
		JoinedAt:     time.Now(),
	}
	// Snapshot before the participant is shared through the registry.
	self := p.Snapshot()

	peers := c.sessions.Join(req.DocumentID, p)

	infos := make([]protocol.ParticipantInfo, 0, len(peers))
	for _, peer := range peers {
		infos = append(infos, protocol.MakeParticipantInfo(peer))
	}
	c.send(conn, protocol.EventPresenceSnapshot, protocol.PresenceSnapshot{
		DocumentID:   req.DocumentID,
		Participants: infos,
	})

	c.bcast.Broadcast(req.DocumentID, conn.ID(), protocol.EventParticipantJoined, protocol.ParticipantJoined{
		DocumentID:  req.DocumentID,
		Participant: protocol.MakeParticipantInfo(self),
	})

	c.logger.Info("Participant joined document",
		slog.String("documentID", req.DocumentID),
		slog.String("userID", userID),
		slog.String("connID", conn.ID().String()),
	)
}

// Leave removes the connection from the document's session. Unknown
// connections are a no-op so duplicate or late disconnect signals are harmless.
func (c *Coordinator) Leave(connID uuid.UUID, documentID string) {
	res, ok := c.sessions.Leave(documentID, connID)
	if !ok {
		return
	}

	c.bcast.Broadcast(documentID, uuid.Nil, protocol.EventParticipantLeft, protocol.ParticipantLeft{
		DocumentID:   documentID,
		ConnectionID: connID.String(),
		UserID:       res.Participant.UserID,
	})
	if res.LockReleased {
		c.bcast.Broadcast(documentID, uuid.Nil, protocol.EventDocumentUnlocked, protocol.DocumentUnlocked{
			DocumentID: documentID,
		})
	}

	c.logger.Info("Participant left document",
		slog.String("documentID", documentID),
		slog.String("connID", connID.String()),
		slog.Bool("lockReleased", res.LockReleased),
		slog.Bool("sessionClosed", res.SessionClosed),
	)
}

// Disconnect is the implicit-leave path: the transport dropped, so the
// connection leaves every document it had joined.
func (c *Coordinator) Disconnect(connID uuid.UUID) {
	for _, documentID := range c.sessions.DocumentsOf(connID) {
		c.Leave(connID, documentID)
	}
}

// MoveCursor stores the sender's position and relays it to everyone else.
// Never echoed to the sender, never persisted.
func (c *Coordinator) MoveCursor(connID uuid.UUID, req protocol.CursorMove) {
	p, ok := c.sessions.SetCursor(req.DocumentID, connID, req.Position)
	if !ok {
		c.logger.Warn("cursor-move for a document the connection has not joined",
			"documentID", req.DocumentID, "connID", connID.String())
		return
	}
	c.bcast.Broadcast(req.DocumentID, connID, protocol.EventCursorUpdate, protocol.CursorUpdate{
		DocumentID:   req.DocumentID,
		ConnectionID: connID.String(),
		UserID:       p.UserID,
		Name:         p.DisplayName,
		Color:        p.Color,
		Position:     req.Position,
	})
}

// ChangeSelection is the same fan-out discipline as MoveCursor for a range.
func (c *Coordinator) ChangeSelection(connID uuid.UUID, req protocol.SelectionChange) {
	p, ok := c.sessions.SetSelection(req.DocumentID, connID, req.Selection)
	if !ok {
		c.logger.Warn("selection-change for a document the connection has not joined",
			"documentID", req.DocumentID, "connID", connID.String())
		return
	}
	c.bcast.Broadcast(req.DocumentID, connID, protocol.EventSelectionUpdate, protocol.SelectionUpdate{
		DocumentID:   req.DocumentID,
		ConnectionID: connID.String(),
		UserID:       p.UserID,
		Name:         p.DisplayName,
		Color:        p.Color,
		Selection:    req.Selection,
	})
}

// PublishContent relays a full-document snapshot to the rest of the room and
// persists it on the slower path. The broadcast is not sequenced: concurrent
// publishes from different senders race and the last one processed wins.
func (c *Coordinator) PublishContent(ctx context.Context, connID uuid.UUID, req protocol.ContentChange) {
	p, ok := c.sessions.Participant(req.DocumentID, connID)
	if !ok {
		c.logger.Warn("content-change for a document the connection has not joined",
			"documentID", req.DocumentID, "connID", connID.String())
		return
	}

	if c.cfg.EnforceEditLock {
		if lock, held := c.sessions.ActiveLock(req.DocumentID, c.cfg.LockTTL); held && lock.Holder != connID {
			c.send(p.Conn, protocol.EventEditUnauthorized, protocol.EditUnauthorized{
				DocumentID: req.DocumentID,
				Message:    fmt.Sprintf("document is locked for editing by %s", lock.HolderName),
			})
			return
		}
	}

	c.bcast.Broadcast(req.DocumentID, connID, protocol.EventContentUpdate, protocol.ContentUpdate{
		DocumentID:     req.DocumentID,
		UserID:         p.UserID,
		Content:        req.Content,
		CursorPosition: req.CursorPosition,
	})

	// Persistence is decoupled from the live relay: peers already saw the edit,
	// a store failure is only a warning.
	if err := c.docs.SetDocument(ctx, req.DocumentID, req.Content, p.UserID); err != nil {
		c.logger.Warn("Failed to persist content snapshot",
			slog.String("documentID", req.DocumentID),
			slog.Any("error", err),
		)
	}
}

// RequestLock runs the lock state machine: grant when unlocked (or when the
// previous lock aged out), deny with the holder otherwise. Denials are a
// normal outcome, not an error.
func (c *Coordinator) RequestLock(connID uuid.UUID, req protocol.RequestEditLock) {
	p, ok := c.sessions.Participant(req.DocumentID, connID)
	if !ok {
		c.logger.Warn("request-edit-lock for a document the connection has not joined",
			"documentID", req.DocumentID, "connID", connID.String())
		return
	}

	res := c.sessions.AcquireLock(req.DocumentID, connID, c.cfg.LockTTL)
	switch {
	case res.Granted:
		if res.Displaced {
			c.bcast.Broadcast(req.DocumentID, uuid.Nil, protocol.EventDocumentUnlocked, protocol.DocumentUnlocked{
				DocumentID: req.DocumentID,
			})
		}
		c.send(p.Conn, protocol.EventEditLockGranted, protocol.EditLockGranted{
			DocumentID: req.DocumentID,
		})
		c.bcast.Broadcast(req.DocumentID, connID, protocol.EventDocumentLocked, protocol.DocumentLocked{
			DocumentID: req.DocumentID,
			Holder:     res.Lock.Holder.String(),
			HolderUser: res.Lock.HolderUser,
			HolderName: res.Lock.HolderName,
		})
	case res.Lock != nil:
		c.send(p.Conn, protocol.EventEditLockDenied, protocol.EditLockDenied{
			DocumentID: req.DocumentID,
			Holder:     res.Lock.Holder.String(),
			HolderUser: res.Lock.HolderUser,
			HolderName: res.Lock.HolderName,
		})
	default:
		c.logger.Warn("lock request against missing session", "documentID", req.DocumentID)
	}
}

// ReleaseLock unlocks the document if the caller holds the lock. Everyone in
// the room, releaser included, hears document-unlocked.
func (c *Coordinator) ReleaseLock(connID uuid.UUID, req protocol.ReleaseEditLock) {
	if !c.sessions.ReleaseLock(req.DocumentID, connID) {
		return
	}
	c.bcast.Broadcast(req.DocumentID, uuid.Nil, protocol.EventDocumentUnlocked, protocol.DocumentUnlocked{
		DocumentID: req.DocumentID,
	})
}

func (c *Coordinator) send(conn collab.Sender, event string, payload any) {
	frame, err := protocol.Marshal(event, payload)
	if err != nil {
		c.logger.Error("Failed to marshal reply", slog.String("event", event), slog.Any("error", err))
		return
	}
	conn.Send(frame)
}

func randomColor() string {
	return fmt.Sprintf("#%06x", rand.Intn(0x1000000))
}
