package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/prasadu-1619/synchronos/internal/relay"
	"github.com/prasadu-1619/synchronos/internal/router"
	"github.com/prasadu-1619/synchronos/internal/server/middleware"
	"github.com/prasadu-1619/synchronos/internal/session"
	"github.com/prasadu-1619/synchronos/internal/store"
	"github.com/prasadu-1619/synchronos/pkg/collab/sessionstore"
	"github.com/prasadu-1619/synchronos/pkg/config"
	"github.com/prasadu-1619/synchronos/pkg/transport"
)

type App struct {
	logger      *slog.Logger
	sessions    *sessionstore.InMemorySessions
	coordinator *session.Coordinator
	eventRouter *router.EventRouter
	docs        store.DocumentStore
	tracker     *connTracker
	bridge      *relay.Bridge
	wg          sync.WaitGroup
	http        *http.Server
	config      *config.Config

	ctx context.Context
}

// NewApp wires the collaboration server: session registry, coordinator,
// broadcast fan-out (optionally bridged across nodes via Redis), websocket
// upgrade path, and the revision-history HTTP endpoints. The document store is
// injected; rdb may be nil to run single-node.
func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config, docs store.DocumentStore, rdb *redis.Client) *App {
	sessions := sessionstore.NewInMemorySessions(logger)
	fan := session.NewFanOut(sessions, logger)

	var bcast session.Broadcaster = fan
	var bridge *relay.Bridge
	if rdb != nil {
		bridge = relay.NewBridge(rootCtx, rdb, fan, logger)
		bcast = bridge
	}

	coord := session.NewCoordinator(logger, sessions, docs, bcast, session.Config{
		EnforceEditLock: cfg.Collab.EnforceEditLock,
		LockTTL:         cfg.Collab.LockTTL,
	})

	app := &App{
		logger:      logger,
		sessions:    sessions,
		coordinator: coord,
		eventRouter: router.NewEventRouter(logger, coord),
		docs:        docs,
		tracker:     newConnTracker(),
		bridge:      bridge,
		config:      cfg,
		ctx:         rootCtx,
	}

	// Cycle mode closes the user's oldest connection to make room for the new one.
	connCycler := func(userID string) {
		if oldest, found := app.tracker.Oldest(userID); found {
			logger.Info("Cycling connection: closing oldest", "userID", userID, "connID", oldest.ID().String())
			oldest.Close(errors.New("connection cycled by new connection"))
		}
	}

	authed := func(h http.Handler) http.Handler {
		return middleware.Chain(h,
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(app.logger),
			middleware.NewAuthMiddleware(logger, cfg.Server.Auth.JWTSecret),
		)
	}

	mux := http.NewServeMux()
	mux.Handle("/ws",
		middleware.Chain(http.HandlerFunc(app.upgradeHandler),
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(app.logger),
			middleware.NewAuthMiddleware(logger, cfg.Server.Auth.JWTSecret),
			middleware.NewConnectionLimiter(
				logger,
				app.tracker.Count,
				connCycler,
				cfg.Server.ConnectionLimit,
			),
		),
	)
	mux.Handle("GET /documents/{id}/revisions", authed(http.HandlerFunc(app.handleListRevisions)))
	mux.Handle("POST /documents/{id}/restore", authed(http.HandlerFunc(app.handleRestore)))

	app.http = &http.Server{Addr: cfg.Server.Address, Handler: mux, BaseContext: func(l net.Listener) context.Context {
		return app.ctx
	}}

	return app
}

func (a *App) Run() error {
	if a.bridge != nil {
		go func() {
			if err := a.bridge.Run(a.ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("Cross-node relay stopped", slog.Any("error", err))
			}
		}()
	}

	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	connLogger := a.logger.With(
		slog.String("remoteAddr", reqMeta.IP),
		slog.String("userID", reqMeta.UserID),
	)

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig{
			ReadTimeout:   a.config.Transport.ReadTimeout,
			SendQueueSize: a.config.Transport.SendQueueSize,
		},
		nil,
		nil,
		a.logger,
	)
	a.tracker.Add(reqMeta.UserID, conn)

	ident := session.Identity{
		UserID:      reqMeta.UserID,
		DisplayName: reqMeta.DisplayName,
		Email:       reqMeta.Email,
	}
	conn.SetOnMessageHandler(a.eventRouter.HandlerFor(conn, ident))
	conn.SetOnCloseHandler(func(id uuid.UUID, err error) {
		connLogger.Info("Connection closed, leaving joined documents", slog.String("connID", id.String()))
		// Implicit leave: presence and any held lock are released, peers notified.
		a.coordinator.Disconnect(id)
		a.tracker.Remove(id)
	})

	connLogger.Info("User connection fully established")
	conn.Run()
	<-conn.Done()
}

// Shutdown runs the graceful shutdown sequence.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// close all active WebSocket connections.
	a.logger.Info("Closing all active connections...")
	for _, conn := range a.tracker.All() {
		conn.Close(errors.New("graceful shutdown"))
	}

	// wait for all connection goroutines to finish their cleanup.
	a.wg.Wait()
	a.logger.Info("Server shut down gracefully.")
	return nil
}
