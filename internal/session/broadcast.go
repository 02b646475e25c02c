package session

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/prasadu-1619/synchronos/internal/protocol"
	"github.com/prasadu-1619/synchronos/pkg/collab"
)

// Broadcaster is the transport's push capability, handed to the coordinator as
// an explicit dependency. Nothing in the session layer reaches for a global
// socket registry.
type Broadcaster interface {
	// Broadcast pushes one event to every participant of the document except
	// the excluded connection. Pass uuid.Nil to exclude no one.
	Broadcast(documentID string, except uuid.UUID, event string, payload any)
}

// FanOut delivers broadcasts to the local process's participants.
type FanOut struct {
	sessions collab.Registry
	logger   *slog.Logger
}

func NewFanOut(sessions collab.Registry, logger *slog.Logger) *FanOut {
	return &FanOut{
		sessions: sessions,
		logger:   logger.With(slog.String("component", "fanout")),
	}
}

var _ Broadcaster = (*FanOut)(nil)

func (f *FanOut) Broadcast(documentID string, except uuid.UUID, event string, payload any) {
	frame, err := protocol.Marshal(event, payload)
	if err != nil {
		f.logger.Error("Failed to marshal broadcast", slog.String("event", event), slog.Any("error", err))
		return
	}
	f.DeliverFrame(documentID, except, frame)
}

// DeliverFrame pushes an already-encoded frame to local participants. The
// cross-node relay uses this path for frames that arrive from peer processes.
func (f *FanOut) DeliverFrame(documentID string, except uuid.UUID, frame []byte) {
	for _, p := range f.sessions.Peers(documentID, except) {
		p.Conn.Send(frame)
	}
}
