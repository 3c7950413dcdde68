package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/mossy-p/screenview-signaling/internal/router"
	"github.com/mossy-p/screenview-signaling/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

// Tracker is told when a session starts and ends so shutdown can wait for
// teardown to finish.
type Tracker interface {
	Add(delta int)
	Done()
}

// Signaling upgrades connections and runs one session per connection
type Signaling struct {
	ctx     context.Context
	router  *router.Router
	cfg     session.Config
	tracker Tracker
	logger  *slog.Logger
}

// NewSignaling binds the handler to ctx; cancelling it closes every session
// the handler started.
func NewSignaling(ctx context.Context, r *router.Router, cfg session.Config, tracker Tracker, logger *slog.Logger) *Signaling {
	if logger == nil {
		logger = slog.Default()
	}
	return &Signaling{
		ctx:     ctx,
		router:  r,
		cfg:     cfg,
		tracker: tracker,
		logger:  logger,
	}
}

// Handle serves the websocket endpoint. The session runs on the request
// goroutine until the connection ends.
func (s *Signaling) Handle(c *gin.Context) {
	if s.ctx.Err() != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Server shutting down"})
		return
	}

	// Upgrade HTTP connection to WebSocket
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Debug("Failed to upgrade connection", "remote", c.Request.RemoteAddr, "error", err)
		return
	}

	if s.tracker != nil {
		s.tracker.Add(1)
		defer s.tracker.Done()
	}

	session.New(conn, s.router, s.cfg, s.logger).Run(s.ctx)
}

// HandleAnyPath serves websocket upgrades on unrouted paths and answers 404
// for everything else.
func (s *Signaling) HandleAnyPath(c *gin.Context) {
	if !websocket.IsWebSocketUpgrade(c.Request) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	s.Handle(c)
}
