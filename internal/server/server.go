package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/zeusync/arena/internal/arena/match"
	"github.com/zeusync/arena/internal/core/observability/log"
)

// Server exposes one match controller over HTTP and a websocket stream.
type Server struct {
	config Config
	match  *match.Controller
	hub    *Hub
	logger log.Log

	httpServer *http.Server
	listener   net.Listener

	// Server state
	running int32 // atomic bool
	closed  int32 // atomic bool

	serveErr chan error
}

// Config holds server configuration
type Config struct {
	ListenAddr      string
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// MaxBodyBytes caps request bodies; decision code arrives in them.
	MaxBodyBytes int64
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() Config {
	return Config{
		ListenAddr:      "127.0.0.1:5000",
		WriteTimeout:    2 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		MaxBodyBytes:    1 << 20, // 1MB
	}
}

// NewServer creates a server for the given controller. The websocket hub
// subscribes to the controller's bus right away.
func NewServer(config Config, controller *match.Controller, logger log.Log) (*Server, error) {
	def := DefaultServerConfig()
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = def.WriteTimeout
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = def.ShutdownTimeout
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = def.MaxBodyBytes
	}
	if logger == nil {
		logger = log.NewNop()
	}
	logger = logger.With(log.String("component", "server"))

	hub, err := NewHub(controller, config.WriteTimeout, logger)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:   config,
		match:    controller,
		hub:      hub,
		logger:   logger,
		serveErr: make(chan error, 1),
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info("Server created", log.String("listen_addr", config.ListenAddr))
	return s, nil
}

// Start listens and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	if atomic.LoadInt32(&s.closed) == 1 {
		return ErrServerClosed
	}
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return ErrServerAlreadyRunning
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.config.ListenAddr)
	if err != nil {
		atomic.StoreInt32(&s.running, 0)
		s.logger.Error("Failed to create listener", log.Error(err))
		return err
	}
	s.listener = listener

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server failed", log.Error(err))
			s.serveErr <- err
		}
	}()

	s.logger.Info("Server listening", log.String("addr", listener.Addr().String()))
	return nil
}

// Addr is the bound listen address, useful with port 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.config.ListenAddr
	}
	return s.listener.Addr().String()
}

// Err delivers a fatal serve error, if one happens.
func (s *Server) Err() <-chan error { return s.serveErr }

// Stop shuts down HTTP and disconnects stream clients.
func (s *Server) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return ErrServerNotRunning
	}
	s.logger.Info("Stopping server")

	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	s.hub.Close()
	err := s.httpServer.Shutdown(ctx)

	s.logger.Info("Server stopped")
	return err
}

// Close closes the server and releases all resources
func (s *Server) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	if atomic.LoadInt32(&s.running) == 1 {
		_ = s.Stop(context.Background())
	}
	s.hub.Close()
	return nil
}
