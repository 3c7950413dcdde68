package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mossy-p/screenview-signaling/internal/discovery"
	"github.com/mossy-p/screenview-signaling/internal/handlers"
	"github.com/mossy-p/screenview-signaling/internal/registry"
	"github.com/mossy-p/screenview-signaling/internal/router"
	"github.com/mossy-p/screenview-signaling/internal/session"
)

// Config controls one signaling server
type Config struct {
	AllowedOrigins  []string
	Session         session.Config
	ShutdownTimeout time.Duration
	// RequestLog enables gin's request logger.
	RequestLog bool
}

type Option func(*Server)

// WithPresence mirrors room membership into p and resets it on Stop
func WithPresence(p router.Presence) Option {
	return func(s *Server) {
		if p != nil {
			s.presence = p
		}
	}
}

// WithAnnouncer advertises the endpoint through a while the server runs.
// The port of service is filled in at Start.
func WithAnnouncer(a discovery.Announcer, service discovery.ServiceInfo) Option {
	return func(s *Server) {
		s.announcer = a
		s.service = service
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// Server is the lifecycle controller of the signaling relay. Start and Stop
// may be called any number of times, from any goroutine.
type Server struct {
	cfg       Config
	presence  router.Presence
	announcer discovery.Announcer
	service   discovery.ServiceInfo
	logger    *slog.Logger
	rooms     *registry.Registry
	sessions  *tracker

	mu         sync.Mutex
	running    atomic.Bool
	port       int
	cancel     context.CancelFunc
	httpServer *http.Server
	background sync.WaitGroup
}

func New(cfg Config, opts ...Option) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		cfg:      cfg,
		presence: router.NopPresence{},
		logger:   slog.Default(),
		rooms:    registry.New(),
		sessions: newTracker(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start listens on port on all interfaces and returns the bound port; port 0
// picks a free one. If the server is already running the current port is
// returned and nothing else happens.
func (s *Server) Start(port int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return s.port, nil
	}
	if s.cancel != nil {
		// The previous run died on its own; release what it left behind.
		s.shutdownLocked()
	}
	if port < 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port %d", port)
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return 0, fmt.Errorf("failed to listen on port %d: %w", port, err)
	}
	boundPort := ln.Addr().(*net.TCPAddr).Port

	ctx, cancel := context.WithCancel(context.Background())
	r := router.New(s.rooms, router.WithPresence(s.presence), router.WithLogger(s.logger))

	s.httpServer = &http.Server{
		Handler:           s.engine(ctx, r),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.cancel = cancel
	s.port = boundPort
	s.running.Store(true)

	srv := s.httpServer
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Signaling server stopped accepting connections", "error", err)
		}
		s.running.Store(false)
	}()

	if s.announcer != nil {
		service := s.service
		service.Port = boundPort
		s.background.Add(1)
		go func() {
			defer s.background.Done()
			if err := s.announcer.Announce(ctx, service); err != nil {
				s.logger.Warn("Failed to announce signaling server", "error", err)
			}
		}()
	}

	s.logger.Info("Signaling server started", "port", boundPort)
	return boundPort, nil
}

// Stop closes the listener, ends every session and clears all rooms. Calling
// it on a stopped server does nothing.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}
	s.logger.Info("Stopping signaling server", "port", s.port, "sessions", s.sessions.Active())
	s.shutdownLocked()
	return nil
}

func (s *Server) shutdownLocked() {
	// Stop accepting first so no session starts after the broadcast.
	_ = s.httpServer.Close()
	s.cancel()

	select {
	case <-s.sessions.Idle():
	case <-time.After(s.cfg.ShutdownTimeout):
		s.logger.Warn("Sessions still running after shutdown timeout", "sessions", s.sessions.Active())
	}
	s.background.Wait()

	s.rooms.Clear()
	s.presence.Reset(context.Background())

	s.running.Store(false)
	s.cancel = nil
	s.httpServer = nil
	s.port = 0
}

// IsRunning reports whether the server is accepting connections
func (s *Server) IsRunning() bool {
	return s.running.Load()
}

// Port returns the bound port, or 0 when stopped
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Rooms exposes the room registry
func (s *Server) Rooms() *registry.Registry {
	return s.rooms
}

func (s *Server) engine(ctx context.Context, r *router.Router) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	if s.cfg.RequestLog {
		engine.Use(gin.Logger())
	}
	engine.Use(handlers.OriginFilter(s.cfg.AllowedOrigins))

	handlers.RegisterRoutes(engine,
		handlers.NewSignaling(ctx, r, s.cfg.Session, s.sessions, s.logger),
		handlers.NewRooms(s.rooms),
	)
	return engine
}
