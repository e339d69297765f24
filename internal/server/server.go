package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/zeusync/behaviour/internal/core/bt"
	"github.com/zeusync/behaviour/internal/core/events/bus"
	"github.com/zeusync/behaviour/internal/core/observability/log"
	"github.com/zeusync/behaviour/internal/core/observability/metrics"
	"github.com/zeusync/behaviour/internal/runner"
)

// Inspector is the read side of the runner the server exposes.
type Inspector interface {
	Snapshot() []runner.AgentSnapshot
	Agent(id string) (runner.AgentSnapshot, bool)
	Template() *bt.Tree
	Ticks() uint64
	Len() int
}

// Config holds server configuration
type Config struct {
	Enabled      bool          `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Addr         string        `mapstructure:"addr" json:"addr" yaml:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" json:"write_timeout" yaml:"write_timeout"`
	// MaxClients bounds concurrent websocket subscribers.
	MaxClients int `mapstructure:"max_clients" json:"max_clients" yaml:"max_clients"`
	// Token, when set, is required as a bearer token or ?token= query.
	Token string `mapstructure:"token" json:"token" yaml:"token"`
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Enabled:      false,
		Addr:         "127.0.0.1:8080",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		MaxClients:   64,
	}
}

// Server is the read-only inspection surface of a running host: JSON
// snapshots over HTTP plus a websocket feed of bus events.
type Server struct {
	config    Config
	inspector Inspector
	exporter  metrics.Exporter
	hub       *Hub
	logger    log.Log

	http     *http.Server
	listener net.Listener

	running atomic.Bool
	closed  atomic.Bool
}

// NewServer wires the handlers. A nil exporter serves 404 on /metrics.
func NewServer(config Config, inspector Inspector, events bus.EventBus, exporter metrics.Exporter, logger log.Log) (*Server, error) {
	if inspector == nil {
		return nil, fmt.Errorf("%w: nil inspector", ErrInvalidConfig)
	}
	if logger == nil {
		logger = log.NewNop()
	}
	if exporter == nil {
		exporter = metrics.Nop{}
	}
	logger = logger.With(log.String("component", "server"))

	s := &Server{
		config:    config,
		inspector: inspector,
		exporter:  exporter,
		logger:    logger,
	}
	hub, err := NewHub(events, config.MaxClients, logger)
	if err != nil {
		return nil, err
	}
	s.hub = hub
	s.http = &http.Server{
		Addr:         config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return s, nil
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(_ context.Context) error {
	if s.closed.Load() {
		return ErrServerClosed
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrServerAlreadyRunning
	}

	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		s.running.Store(false)
		s.logger.Error("Failed to create listener", log.Error(err))
		return fmt.Errorf("%w: %w", ErrListenerFailed, err)
	}
	s.listener = ln
	s.logger.Info("Server listening", log.String("addr", ln.Addr().String()))

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server stopped unexpectedly", log.Error(err))
		}
	}()
	return nil
}

// Addr is the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.config.Addr
	}
	return s.listener.Addr().String()
}

// Stop shuts down HTTP and disconnects every websocket client.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return ErrServerNotRunning
	}
	s.logger.Info("Stopping server")
	s.hub.Close()
	if err := s.http.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("Server stopped")
	return nil
}

// Close stops the server if running and prevents restarts.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.running.Load() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(ctx)
	}
	s.hub.Close()
	return nil
}
