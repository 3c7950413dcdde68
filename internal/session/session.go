package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mossy-p/screenview-signaling/internal/models"
	"github.com/mossy-p/screenview-signaling/internal/router"
)

// Config holds the per-connection keepalive and size limits
type Config struct {
	// Time allowed to write a frame to the peer.
	WriteWait time.Duration
	// Time allowed to read the next pong from the peer.
	PongWait time.Duration
	// Ping period. Must be less than PongWait.
	PingPeriod time.Duration
	// Largest inbound frame accepted.
	MaxMessageSize int64
}

func DefaultConfig() Config {
	return Config{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		MaxMessageSize: 1 << 20,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.WriteWait <= 0 {
		c.WriteWait = d.WriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = d.PongWait
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	return c
}

// Session owns one upgraded websocket connection. Its read loop feeds the
// router; everything addressed to the peer goes through the outbox and is
// written by the write loop.
type Session struct {
	id     string
	conn   *websocket.Conn
	router *router.Router
	cfg    Config
	logger *slog.Logger
	out    *outbox

	// role is only touched by the read loop.
	role router.Role

	leaveOnce sync.Once
	closing   atomic.Bool
}

func New(conn *websocket.Conn, r *router.Router, cfg Config, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New().String()
	return &Session{
		id:     id,
		conn:   conn,
		router: r,
		cfg:    cfg.withDefaults(),
		logger: logger.With("conn", id),
		out:    newOutbox(),
		role:   router.Unassigned{},
	}
}

func (s *Session) ID() string {
	return s.id
}

// Send queues env for the peer. It returns false once the session is closing.
func (s *Session) Send(env models.Envelope) bool {
	data, err := models.Encode(env)
	if err != nil {
		s.logger.Error("Failed to marshal message", "error", err)
		return false
	}
	return s.out.push(data)
}

// Run serves the connection until the peer goes away or ctx is cancelled.
// Teardown runs exactly once before Run returns.
func (s *Session) Run(ctx context.Context) {
	s.logger.Info("Connection opened", "remote", s.conn.RemoteAddr().String())

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writePump()
	}()

	stop := context.AfterFunc(ctx, s.interrupt)
	s.readPump(ctx)
	stop()

	s.teardown(context.WithoutCancel(ctx))
	s.out.close()
	<-writerDone
	s.conn.Close()

	s.logger.Info("Connection closed")
}

func (s *Session) teardown(ctx context.Context) {
	s.leaveOnce.Do(func() {
		s.router.Leave(ctx, s, s.role)
	})
}

// interrupt unblocks the read loop on shutdown
func (s *Session) interrupt() {
	s.closing.Store(true)
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.cfg.WriteWait))
	_ = s.conn.Close()
}

func (s *Session) readPump(ctx context.Context) {
	s.conn.SetReadLimit(s.cfg.MaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closing.Load() && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("WebSocket error", "error", err)
			}
			return
		}

		if msgType != websocket.TextMessage {
			s.logger.Debug("Ignoring non-text frame", "frameType", msgType)
			continue
		}

		env, err := models.Decode(data)
		if err != nil {
			s.logger.Debug("Dropping malformed message", "error", err)
			continue
		}

		s.role = s.router.Dispatch(ctx, s, s.role, env)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(s.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-s.out.ready():
			batch, open := s.out.take()
			for _, message := range batch {
				_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
				if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
					if !s.closing.Load() {
						s.logger.Debug("Failed to write message", "error", err)
					}
					s.out.close()
					return
				}
			}
			if !open {
				_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
				_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.out.close()
				return
			}
		}
	}
}
