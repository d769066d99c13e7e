// Package gateway serves the status API, the metrics endpoint and the
// event stream.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"relink/internal/config"
	"relink/internal/gateway/handlers"
	"relink/internal/gateway/middleware"
	"relink/internal/gateway/websocket"
	"relink/internal/reconnect"
)

// Controller is the controller surface the gateway needs.
type Controller interface {
	handlers.Controller
	Subscribe(fn func(reconnect.Event)) (unsubscribe func())
}

// Deps are the server's collaborators. Events and Metrics may be nil.
type Deps struct {
	Controller Controller
	Events     handlers.EventLister
	Metrics    http.Handler
	Version    string
	Logger     zerolog.Logger
}

// Server represents the HTTP gateway server.
type Server struct {
	httpServer  *http.Server
	router      *mux.Router
	hub         *websocket.Hub
	rateLimiter *middleware.RateLimiter
	config      config.ServerConfig
	deps        Deps
	log         zerolog.Logger

	mu   sync.Mutex
	addr net.Addr
}

// NewServer creates the server and registers its routes.
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	router := mux.NewRouter()
	log := deps.Logger.With().Str("component", "gateway").Logger()

	// Recovery -> Logging -> router
	handler := middleware.Recovery(log)(middleware.Logging(log)(router))

	s := &Server{
		httpServer: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			// A forced reconnect blocks for up to one probe timeout.
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		router:      router,
		hub:         websocket.NewHub(deps.Controller, log),
		rateLimiter: middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig()),
		config:      cfg,
		deps:        deps,
		log:         log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	ctrl := handlers.NewControllerHandler(s.deps.Controller)
	limited := func(h http.HandlerFunc) http.Handler {
		return s.rateLimiter.RateLimit(h)
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", handlers.HealthHandler(s.deps.Version, s.deps.Controller)).Methods(http.MethodGet)
	api.HandleFunc("/state", ctrl.GetState).Methods(http.MethodGet)
	api.HandleFunc("/metrics", ctrl.GetMetrics).Methods(http.MethodGet)
	api.HandleFunc("/status", ctrl.GetStatus).Methods(http.MethodGet)
	api.HandleFunc("/config", ctrl.GetConfig).Methods(http.MethodGet)
	api.Handle("/config", limited(ctrl.PatchConfig)).Methods(http.MethodPatch)
	api.Handle("/reconnect", limited(ctrl.Reconnect)).Methods(http.MethodPost)
	api.Handle("/quality", limited(ctrl.AssessQuality)).Methods(http.MethodPost)

	api.HandleFunc("/events", handlers.EventsHandler(s.deps.Events)).Methods(http.MethodGet)

	if s.deps.Metrics != nil {
		s.router.Handle("/metrics", s.deps.Metrics).Methods(http.MethodGet)
	}

	s.router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		websocket.ServeWs(s.hub, w, r)
	})

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlers.SendError(w, http.StatusNotFound, handlers.ErrCodeNotFound, "no route for "+r.URL.Path)
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlers.SendError(w, http.StatusMethodNotAllowed, handlers.ErrCodeInvalidRequest, r.Method+" not allowed on "+r.URL.Path)
	})
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Hub returns the event stream hub.
func (s *Server) Hub() *websocket.Hub {
	return s.hub
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Addr(), err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	handlers.InitStartTime()

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	go s.hub.Run()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("Starting gateway server")

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Addr returns the bound address once serving, or nil.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Shutdown closes the event stream and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down gateway server")

	s.hub.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}
