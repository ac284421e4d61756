// Package api exposes the privacy and rule engines over a local HTTP API
// for the flow-paste host application.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/raaihank/flowpaste/internal/audit"
	"github.com/raaihank/flowpaste/internal/config"
	"github.com/raaihank/flowpaste/internal/logger"
	"github.com/raaihank/flowpaste/internal/metrics"
	"github.com/raaihank/flowpaste/internal/privacy"
	"github.com/raaihank/flowpaste/internal/rules"
	"github.com/raaihank/flowpaste/internal/shield"
	"github.com/raaihank/flowpaste/internal/websocket"
	"go.uber.org/zap"
)

// Server represents the local API server
type Server struct {
	config  *config.Config // startup settings; see engines for reloadable ones
	version string
	base    *logger.Logger
	logger  *logger.Logger
	store   shield.Store
	audit   audit.Recorder
	metrics *metrics.Metrics
	limiter *RateLimiter
	wsHub   *websocket.Hub
	router  *mux.Router
	server  *http.Server

	engines atomic.Pointer[engines]
	cancel  context.CancelFunc
}

// engines are rebuilt together on reload, along with the config they
// came from
type engines struct {
	config   *config.Config
	detector *privacy.Detector
	rules    *rules.Executor
	shield   *shield.Shield
}

// New creates a new API server instance
func New(cfg *config.Config, log *logger.Logger, version string) (*Server, error) {
	store, err := shield.NewStore(cfg.Shield, log.WithComponent("shield").Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create shield store: %w", err)
	}

	recorder, err := audit.New(cfg.Audit, log.WithComponent("audit").Logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create audit recorder: %w", err)
	}

	s := &Server{
		config:  cfg,
		version: version,
		base:    log,
		logger:  log.WithComponent("api"),
		store:   store,
		audit:   recorder,
		metrics: metrics.New(),
		limiter: NewRateLimiter(cfg.RateLimit),
		wsHub:   websocket.NewHub(websocket.NewHubConfig(cfg.WebSocket), log.WithComponent("websocket").Logger),
		router:  mux.NewRouter(),
	}

	e, err := s.buildEngines(cfg)
	if err != nil {
		store.Close()
		recorder.Close()
		return nil, err
	}
	s.engines.Store(e)

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")
	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")

	if s.config.WebSocket.Enabled {
		s.router.HandleFunc(s.config.WebSocket.Path, s.wsHub.HandleWebSocket).Methods("GET")
	}

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.Use(s.loggingMiddleware)
	v1.Use(s.rateLimitMiddleware)

	v1.HandleFunc("/pii/scan", s.handleScan).Methods("POST")
	v1.HandleFunc("/pii/mask", s.handleMask).Methods("POST")
	v1.HandleFunc("/pii/restore", s.handleRestore).Methods("POST")

	v1.HandleFunc("/rules", s.handleListRules).Methods("GET")
	v1.HandleFunc("/rules/apply", s.handleApplyCustom).Methods("POST")
	v1.HandleFunc("/rules/{id}/apply", s.handleApplyRule).Methods("POST")

	v1.HandleFunc("/shield/sessions", s.handleShieldBegin).Methods("POST")
	v1.HandleFunc("/shield/sessions/{id}/restore", s.handleShieldFinish).Methods("POST")

	v1.HandleFunc("/audit", s.handleAudit).Methods("GET")
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the background workers and serves until Stop is called
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.logger.Info("Starting flowpaste API server",
		zap.String("addr", s.server.Addr),
		zap.Bool("privacy_enabled", s.config.Privacy.Enabled),
		zap.String("shield_store", s.config.Shield.Store),
		zap.Bool("audit_enabled", s.config.Audit.Enabled),
	)

	s.RunBackground(ctx)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// RunBackground starts the websocket hub and the limiter cleanup
func (s *Server) RunBackground(ctx context.Context) {
	go s.wsHub.Run(ctx)
	s.limiter.StartCleanupRoutine(ctx)
}

// Stop gracefully stops the HTTP server and releases the stores
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping flowpaste API server")

	err := s.server.Shutdown(ctx)
	if s.cancel != nil {
		s.cancel()
	}
	if cerr := s.store.Close(); cerr != nil {
		s.logger.Warn("Failed to close shield store", zap.Error(cerr))
	}
	if cerr := s.audit.Close(); cerr != nil {
		s.logger.Warn("Failed to close audit recorder", zap.Error(cerr))
	}
	return err
}

func (s *Server) buildEngines(cfg *config.Config) (*engines, error) {
	detector, err := privacy.New(cfg.Privacy, s.base.WithComponent("privacy").Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create privacy detector: %w", err)
	}
	executor := rules.FromConfig(cfg.Rules, s.base.WithComponent("rules").Logger, rules.WithObserver(s.metrics))
	return &engines{
		config:   cfg,
		detector: detector,
		rules:    executor,
		shield:   shield.New(detector, s.store, cfg.Shield.SessionTTL, s.base.WithComponent("shield").Logger),
	}, nil
}

// Reload swaps in detectors and rules built from cfg. Requests already
// running keep the engines they started with. Server, store and audit
// settings need a restart.
func (s *Server) Reload(cfg *config.Config) error {
	e, err := s.buildEngines(cfg)
	if err != nil {
		return err
	}
	s.engines.Store(e)
	s.logger.Info("Configuration reloaded",
		zap.Bool("privacy_enabled", e.detector.Enabled()),
		zap.Int("rules", len(e.rules.List())),
	)
	return nil
}

// WebSocketHub returns the WebSocket hub for broadcasting events
func (s *Server) WebSocketHub() *websocket.Hub {
	return s.wsHub
}

func (s *Server) record(ctx context.Context, event audit.Event) {
	event.RequestID = getRequestID(ctx)
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.audit.Record(rctx, event); err != nil {
		s.logger.WithRequestID(event.RequestID).Warn("Failed to record audit event", zap.Error(err))
	}
}
