package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// callback executed when a message is received.
type MessageHandler func(ctx context.Context, connID uuid.UUID, msg []byte)

type OnCloseHandler func(connID uuid.UUID, err error)

type ConnectionConfig struct {
	ReadTimeout time.Duration
	// Capacity of the outbound queue. A receiver that lets it fill up is
	// disconnected rather than allowed to buffer broadcasts without bound.
	SendQueueSize int
}

// ErrSlowConsumer is the close reason for connections dropped on queue overflow.
var ErrSlowConsumer = errors.New("outbound queue overflow")

// Connection represents a single, thread-safe WebSocket connection.
type Connection struct {
	id     uuid.UUID
	conn   *websocket.Conn
	config ConnectionConfig
	send   chan []byte

	onMessage MessageHandler
	onClose   OnCloseHandler

	done      chan struct{}
	wg        *sync.WaitGroup
	ctx       context.Context
	closeOnce sync.Once
	cancel    context.CancelFunc

	logger *slog.Logger
}

func NewConnection(parentCtx context.Context, wg *sync.WaitGroup, conn *websocket.Conn, config ConnectionConfig, onMessage MessageHandler, onClose OnCloseHandler, logger *slog.Logger) *Connection {
	id := uuid.New()
	connCtx, cancel := context.WithCancel(parentCtx)
	connLogger := logger.With(slog.String("connID", id.String()))

	queueSize := config.SendQueueSize
	if queueSize <= 0 {
		queueSize = 256
	}

	return &Connection{
		id:        id,
		conn:      conn,
		logger:    connLogger,
		config:    config,
		onMessage: onMessage,
		send:      make(chan []byte, queueSize),
		done:      make(chan struct{}),
		ctx:       connCtx,
		cancel:    cancel,
		onClose:   onClose,
		wg:        wg,
	}
}

func (c *Connection) Run() {
	c.wg.Add(1)
	go c.readPump()
	go c.writePump()

	c.logger.Info("connection established")
}

// readPump pumps messages from the WebSocket connection to the message handler.
// Messages from one connection are handled strictly in arrival order, which is
// what preserves per-sender event ordering for every peer downstream.
func (c *Connection) readPump() {
	var readErr error
	defer func() {
		c.Close(readErr)
	}()

	for {
		readCtx, cancelRead := context.WithTimeout(c.ctx, c.config.ReadTimeout)
		typ, r, err := c.conn.Reader(readCtx)
		if err != nil {
			readErr = err
			cancelRead()
			return
		}
		// Ensure we are only handling text or binary messages.
		if typ != websocket.MessageText && typ != websocket.MessageBinary {
			cancelRead()
			continue
		}
		message, err := io.ReadAll(r)
		cancelRead()
		if err != nil {
			c.logger.Error("failed to read full message", slog.Any("error", err))
			readErr = err
			return
		}
		// Pass a connection-scoped context to the handler.
		c.onMessage(c.ctx, c.id, message)
	}
}

// writePump pumps messages from the send channel to the WebSocket connection.
func (c *Connection) writePump() {
	var writeErr error

	defer func() {
		c.Close(writeErr)
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.conn.Write(c.ctx, websocket.MessageText, message); err != nil {
				writeErr = err
				return
			}
		case <-c.ctx.Done():
			c.conn.Close(websocket.StatusNormalClosure, "request cancelled")
			return
		}
	}
}

// Send queues a message for the client. It is safe for concurrent use and never
// blocks: if the outbound queue is full the connection is torn down instead.
func (c *Connection) Send(message []byte) {
	select {
	case <-c.ctx.Done():
		c.logger.Warn("Attempted to send on a closed connection")
		return
	default:
	}
	select {
	case c.send <- message:
	case <-c.ctx.Done():
	default:
		c.logger.Warn("Outbound queue full, disconnecting slow consumer")
		go c.Close(ErrSlowConsumer)
	}
}

// gracefully shuts down the connection and its resources.
func (c *Connection) Close(err error) {
	c.closeOnce.Do(func() {
		status := websocket.CloseStatus(err)
		c.logger.Info("Transport connection closing", slog.Any("reason", err), slog.String("status", status.String()))

		// The send channel is never closed; writePump exits on ctx.Done and a
		// concurrent Send can therefore never hit a closed channel.
		c.cancel()
		if c.conn != nil {
			c.conn.Close(websocket.StatusNormalClosure, "")
		}
		c.logger.Info("Connection closed")
		if c.onClose != nil {
			c.onClose(c.id, err)
		}
		c.wg.Done()
		close(c.done)
	})
}

// Done returns a channel that is closed when the connection is fully terminated.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// ID returns the unique identifier of the connection.
func (c *Connection) ID() uuid.UUID {
	return c.id
}

func (c *Connection) SetOnMessageHandler(handler MessageHandler) {
	c.onMessage = handler
}

func (c *Connection) SetOnCloseHandler(handler OnCloseHandler) {
	c.onClose = handler
}
