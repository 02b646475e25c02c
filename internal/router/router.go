// Package router decodes inbound frames and dispatches them to the session
// coordinator. Malformed or out-of-sequence messages are protocol errors:
// logged and ignored, the connection stays up.
package router

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/prasadu-1619/synchronos/internal/protocol"
	"github.com/prasadu-1619/synchronos/internal/session"
	"github.com/prasadu-1619/synchronos/pkg/collab"
	"github.com/prasadu-1619/synchronos/pkg/transport"
)

type EventRouter struct {
	logger *slog.Logger
	coord  *session.Coordinator
}

func NewEventRouter(logger *slog.Logger, coord *session.Coordinator) *EventRouter {
	return &EventRouter{
		logger: logger.With(slog.String("component", "event_router")),
		coord:  coord,
	}
}

// HandlerFor binds a connection and its verified identity to a message
// handler. Messages from one connection are handled sequentially by its read
// pump, which preserves per-sender event ordering end to end.
func (r *EventRouter) HandlerFor(conn collab.Sender, ident session.Identity) transport.MessageHandler {
	return func(ctx context.Context, connID uuid.UUID, msg []byte) {
		r.handle(ctx, conn, ident, msg)
	}
}

func (r *EventRouter) handle(ctx context.Context, conn collab.Sender, ident session.Identity, msg []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		r.logger.Warn("Failed to unmarshal client message", "connID", conn.ID().String(), "error", err)
		return
	}

	// Peek the document id for log context without decoding the payload twice.
	docID := gjson.GetBytes(env.Payload, "documentId").String()
	r.logger.Debug("Handling event",
		slog.String("event", env.Event),
		slog.String("documentID", docID),
		slog.String("connID", conn.ID().String()),
	)

	switch env.Event {
	case protocol.EventJoinDocument:
		var req protocol.JoinDocument
		if !r.decode(env, &req, conn.ID()) {
			return
		}
		r.coord.Join(conn, ident, req)
	case protocol.EventLeaveDocument:
		var req protocol.LeaveDocument
		if !r.decode(env, &req, conn.ID()) {
			return
		}
		r.coord.Leave(conn.ID(), req.DocumentID)
	case protocol.EventCursorMove:
		var req protocol.CursorMove
		if !r.decode(env, &req, conn.ID()) {
			return
		}
		r.coord.MoveCursor(conn.ID(), req)
	case protocol.EventSelectionChange:
		var req protocol.SelectionChange
		if !r.decode(env, &req, conn.ID()) {
			return
		}
		r.coord.ChangeSelection(conn.ID(), req)
	case protocol.EventContentChange:
		var req protocol.ContentChange
		if !r.decode(env, &req, conn.ID()) {
			return
		}
		r.coord.PublishContent(ctx, conn.ID(), req)
	case protocol.EventRequestEditLock:
		var req protocol.RequestEditLock
		if !r.decode(env, &req, conn.ID()) {
			return
		}
		r.coord.RequestLock(conn.ID(), req)
	case protocol.EventReleaseEditLock:
		var req protocol.ReleaseEditLock
		if !r.decode(env, &req, conn.ID()) {
			return
		}
		r.coord.ReleaseLock(conn.ID(), req)
	default:
		r.logger.Warn("Received unknown event", "event", env.Event, "connID", conn.ID().String())
	}
}

func (r *EventRouter) decode(env protocol.Envelope, v any, connID uuid.UUID) bool {
	if err := json.Unmarshal(env.Payload, v); err != nil {
		r.logger.Warn("Failed to decode event payload",
			slog.String("event", env.Event),
			slog.String("connID", connID.String()),
			slog.Any("error", err),
		)
		return false
	}
	return true
}
