// Package server assembles the daemon: probe, controller, history,
// metrics, status API and config hot reload.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"relink/internal/config"
	"relink/internal/gateway"
	"relink/internal/gateway/handlers"
	"relink/internal/history"
	"relink/internal/observability"
	"relink/internal/probe"
	"relink/internal/reconnect"
	"relink/internal/storage"
)

// Probe is a reconnect.Probe with a background monitor.
type Probe interface {
	reconnect.Probe
	Start(ctx context.Context)
	Stop()
}

// ServerConfig holds what the daemon needs beyond the loaded config.
type ServerConfig struct {
	Config      *config.Config
	ConfigPath  string
	StoragePath string
	Version     string
	Logger      zerolog.Logger
	// Watch enables config hot reload from ConfigPath.
	Watch bool
	// Listener overrides the configured server address.
	Listener net.Listener
	// Probe overrides the probe built from the config.
	Probe Probe
}

// Server is the running daemon.
type Server struct {
	cfg    ServerConfig
	logger zerolog.Logger

	probe    Probe
	ctrl     *reconnect.Controller
	db       *storage.DB
	events   *storage.EventStore
	recorder *history.Recorder
	jobs     *history.Jobs
	exporter *observability.Exporter
	gateway  *gateway.Server
	watcher  *config.Watcher

	ctx     context.Context
	cancel  context.CancelFunc
	errChan chan error

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer validates the config and builds the probe and controller.
// Nothing runs until Start.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Config == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		logger:  cfg.Logger,
		errChan: make(chan error, 1),
	}

	s.probe = cfg.Probe
	if s.probe == nil {
		p, err := NewProbe(cfg.Config.Probe, cfg.Logger.With().Str("component", "probe").Logger())
		if err != nil {
			return nil, err
		}
		s.probe = p
	}

	ctrl, err := reconnect.NewController(s.probe, cfg.Config.Reconnect.ToReconnect(),
		reconnect.WithLogger(cfg.Logger.With().Str("component", "reconnect").Logger()))
	if err != nil {
		return nil, err
	}
	s.ctrl = ctrl
	return s, nil
}

// NewProbe builds the probe named by cfg.Kind.
func NewProbe(cfg config.ProbeConfig, log zerolog.Logger) (Probe, error) {
	opts := probe.Options{
		Timeout:       cfg.Timeout,
		Interval:      cfg.Interval,
		LatencyBudget: cfg.LatencyBudget,
	}
	switch strings.ToLower(cfg.Kind) {
	case config.ProbeHTTP:
		return probe.NewHTTPProbe(cfg.URL, opts, log), nil
	case config.ProbeWebSocket:
		return probe.NewWebSocketProbe(cfg.URL, opts, log), nil
	default:
		return nil, fmt.Errorf("unknown probe kind %q", cfg.Kind)
	}
}

// ErrorChan reports a gateway failure after Start.
func (s *Server) ErrorChan() <-chan error {
	return s.errChan
}

// Controller returns the reconnection controller.
func (s *Server) Controller() *reconnect.Controller {
	return s.ctrl
}

// Start opens storage and starts every component. On error everything
// already started is stopped again.
func (s *Server) Start(ctx context.Context) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	defer func() {
		if err != nil {
			s.teardown()
		}
	}()

	cfg := s.cfg.Config

	if historyEnabled(cfg.Storage) {
		if err := s.startHistory(); err != nil {
			return err
		}
	}

	if cfg.Metrics.Enabled {
		s.exporter = observability.NewExporter(cfg.Metrics.Namespace, s.ctrl)
		s.exporter.Attach(s.ctrl)
	}

	if err := s.ctrl.Start(s.ctx); err != nil {
		return err
	}
	s.probe.Start(s.ctx)

	if cfg.Server.Enabled {
		if err := s.startGateway(); err != nil {
			return err
		}
	}

	if s.cfg.Watch && s.cfg.ConfigPath != "" {
		if err := s.startWatcher(); err != nil {
			s.logger.Warn().Err(err).Msg("Config hot reload disabled")
		}
	}

	s.running = true
	s.startedAt = time.Now()
	s.logger.Info().
		Str("probe", cfg.Probe.Kind).
		Str("url", cfg.Probe.URL).
		Msg("relink daemon started")
	return nil
}

func historyEnabled(cfg config.StorageConfig) bool {
	switch strings.ToLower(cfg.Driver) {
	case "", "none", "off":
		return false
	default:
		return true
	}
}

func (s *Server) startHistory() error {
	cfg := s.cfg.Config
	path := s.cfg.StoragePath
	if path == "" {
		path = cfg.Storage.Path
	}
	if path == "" {
		return errors.New("storage.path not set")
	}

	db, err := storage.Open(path)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	s.db = db
	s.events = storage.NewEventStore(db)

	s.recorder = history.NewRecorder(s.events, s.logger.With().Str("component", "history").Logger())
	s.recorder.Attach(s.ctrl)

	if !cfg.Snapshot.Enabled {
		return nil
	}
	jobs, err := history.NewJobs(s.ctrl, storage.NewSnapshotStore(db), db, history.JobsConfig{
		SnapshotSchedule: cfg.Snapshot.Schedule,
		PruneSchedule:    cfg.Snapshot.PruneSchedule,
		Retention:        cfg.Storage.Retention,
	}, s.logger.With().Str("component", "jobs").Logger())
	if err != nil {
		return err
	}
	s.jobs = jobs
	s.jobs.Start()
	return nil
}

func (s *Server) startGateway() error {
	deps := gateway.Deps{
		Controller: s.ctrl,
		Version:    s.cfg.Version,
		Logger:     s.logger,
	}
	if s.events != nil {
		deps.Events = s.events
	}
	if s.exporter != nil {
		deps.Metrics = s.exporter.Handler()
	}
	s.gateway = gateway.NewServer(s.cfg.Config.Server, deps)

	ln := s.cfg.Listener
	if ln == nil {
		var err error
		if ln, err = net.Listen("tcp", s.cfg.Config.Server.Addr()); err != nil {
			return fmt.Errorf("listen %s: %w", s.cfg.Config.Server.Addr(), err)
		}
	}

	go func() {
		if err := s.gateway.Serve(ln); err != nil {
			s.logger.Error().Err(err).Msg("Gateway error")
			select {
			case s.errChan <- err:
			default:
			}
		}
	}()
	return nil
}

func (s *Server) startWatcher() error {
	w, err := config.NewWatcher(s.cfg.ConfigPath, s.applyConfig)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		w.Stop()
		return err
	}
	s.watcher = w
	return nil
}

// applyConfig pushes a reloaded reconnect policy into the controller.
// Other sections need a restart.
func (s *Server) applyConfig(cfg *config.Config) {
	next := cfg.Reconnect.ToReconnect()
	if err := s.ctrl.UpdateConfig(reconnect.PatchFrom(next)); err != nil {
		s.logger.Warn().Err(err).Msg("Reloaded reconnect config rejected")
		return
	}
	s.logger.Info().Msg("Reconnect config reloaded")
}

// Addr returns the gateway's bound address, or nil.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.gateway == nil {
		return nil
	}
	return s.gateway.Addr()
}

// Stop shuts every component down in reverse start order.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.logger.Info().Msg("Stopping relink daemon...")
	s.teardown()
	s.running = false
	s.logger.Info().Msg("relink daemon stopped")
	return nil
}

func (s *Server) teardown() {
	if s.watcher != nil {
		s.watcher.Stop()
		s.watcher = nil
	}
	if s.gateway != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := s.gateway.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Error during gateway shutdown")
		}
		cancel()
		s.gateway = nil
	}

	s.probe.Stop()
	s.ctrl.Stop()
	if s.cancel != nil {
		s.cancel()
	}

	if s.jobs != nil {
		<-s.jobs.Stop().Done()
		s.jobs = nil
	}
	if s.recorder != nil {
		s.recorder.Close()
		s.recorder = nil
	}
	if s.exporter != nil {
		s.exporter.Close()
		s.exporter = nil
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Error closing history database")
		}
		s.db = nil
		s.events = nil
	}
}

// IsRunning returns whether the daemon is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// StartedAt returns when Start last succeeded.
func (s *Server) StartedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startedAt
}

var _ handlers.EventLister = (*storage.EventStore)(nil)
