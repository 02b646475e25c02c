// Package relay fans broadcasts out across server processes. Each node
// republishes its document broadcasts on a Redis channel per document and
// delivers inbound frames from peer nodes to its local participants.
package relay

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/prasadu-1619/synchronos/internal/protocol"
	"github.com/prasadu-1619/synchronos/internal/session"
)

const channelPrefix = "synchronos:doc:"

// frame is the cross-node wire shape: the already-encoded client frame plus
// enough routing metadata to suppress self-delivery.
type frame struct {
	Node       string          `json:"node"`
	DocumentID string          `json:"documentId"`
	Message    json.RawMessage `json:"message"`
}

// Bridge decorates the local fan-out with Redis pub/sub.
type Bridge struct {
	ctx    context.Context
	rdb    *redis.Client
	node   string
	local  *session.FanOut
	logger *slog.Logger
}

func NewBridge(ctx context.Context, rdb *redis.Client, local *session.FanOut, logger *slog.Logger) *Bridge {
	return &Bridge{
		ctx:    ctx,
		rdb:    rdb,
		node:   uuid.NewString(),
		local:  local,
		logger: logger.With(slog.String("component", "redis_relay")),
	}
}

var _ session.Broadcaster = (*Bridge)(nil)

func (b *Bridge) Broadcast(documentID string, except uuid.UUID, event string, payload any) {
	raw, err := protocol.Marshal(event, payload)
	if err != nil {
		b.logger.Error("Failed to marshal broadcast", slog.String("event", event), slog.Any("error", err))
		return
	}
	b.local.DeliverFrame(documentID, except, raw)

	wire, err := json.Marshal(frame{Node: b.node, DocumentID: documentID, Message: raw})
	if err != nil {
		b.logger.Error("Failed to marshal relay frame", slog.Any("error", err))
		return
	}
	if err := b.rdb.Publish(b.ctx, channelPrefix+documentID, wire).Err(); err != nil {
		// Peer nodes miss this frame; local participants already got it.
		b.logger.Warn("Failed to publish relay frame", slog.String("documentID", documentID), slog.Any("error", err))
	}
}

// Run consumes frames from peer nodes until the context is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	pubsub := b.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	b.logger.Info("Cross-node relay running", slog.String("node", b.node))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var f frame
			if err := json.Unmarshal([]byte(msg.Payload), &f); err != nil {
				b.logger.Warn("Dropping malformed relay frame", slog.Any("error", err))
				continue
			}
			if f.Node == b.node {
				continue
			}
			// The original sender lives on another node; every local
			// participant of the document gets the frame.
			b.local.DeliverFrame(f.DocumentID, uuid.Nil, f.Message)
		}
	}
}
