// Package server exposes the detection pipeline over HTTP: the analyze
// endpoint, health and info probes, and the admin WebSocket event stream.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vigilguard/pii-gateway/internal/cache"
	"github.com/vigilguard/pii-gateway/internal/config"
	"github.com/vigilguard/pii-gateway/internal/events"
	"github.com/vigilguard/pii-gateway/internal/logger"
	"github.com/vigilguard/pii-gateway/internal/pii"
	"github.com/vigilguard/pii-gateway/internal/security"
	"github.com/vigilguard/pii-gateway/internal/websocket"
)

// Analyzer runs the detection pipeline for one request.
type Analyzer interface {
	Analyze(ctx context.Context, req pii.AnalyzeRequest) (*pii.AnalyzeResult, error)
}

// Server is the gateway HTTP server.
type Server struct {
	config      *config.Config
	logger      *logger.Logger
	analyzer    Analyzer
	resultCache *cache.ResultCache
	eventStore  *events.Store
	rateLimiter *security.RateLimiter
	wsHub       *websocket.Hub
	router      *mux.Router
	server      *http.Server

	startTime       time.Time
	totalRequests   int64
	totalDetections int64
}

// Options carries the optional collaborators. Nil fields disable the
// corresponding feature.
type Options struct {
	ResultCache *cache.ResultCache
	EventStore  *events.Store
}

// New creates a gateway server over the given analyzer.
func New(cfg *config.Config, analyzer Analyzer, opts Options, log *logger.Logger) *Server {
	wsHub := websocket.NewHub(&websocket.HubConfig{
		BroadcastDetections:  cfg.WebSocket.Events.BroadcastDetections,
		BroadcastRequestLogs: cfg.WebSocket.Events.BroadcastRequests,
		BroadcastSystem:      cfg.WebSocket.Events.BroadcastSystem,
		BroadcastConnections: cfg.WebSocket.Events.BroadcastConnections,
		Username:             cfg.WebSocket.Username,
		Password:             cfg.WebSocket.Password,
	}, log)

	s := &Server{
		config:      cfg,
		logger:      log.WithComponent("server"),
		analyzer:    analyzer,
		resultCache: opts.ResultCache,
		eventStore:  opts.EventStore,
		rateLimiter: security.NewRateLimiter(&cfg.RateLimit),
		wsHub:       wsHub,
		router:      mux.NewRouter(),
		startTime:   time.Now(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")

	if s.config.WebSocket.Enabled {
		path := s.config.WebSocket.Path
		if path == "" {
			path = "/ws"
		}
		s.router.HandleFunc(path, s.wsHub.HandleWebSocket).Methods("GET")
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)
	api.HandleFunc("/analyze", s.handleAnalyze).Methods("POST")
}

// Start starts the HTTP server and the WebSocket hub.
func (s *Server) Start() error {
	s.logger.Info("Starting PII gateway server",
		zap.Int("port", s.config.Server.Port),
		zap.String("language_service", s.config.Services.LanguageURL),
		zap.String("recognizer_service", s.config.Services.RecognizerURL),
	)

	go s.wsHub.Run()
	s.rateLimiter.StartCleanupRoutine()

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping PII gateway server")
	return s.server.Shutdown(ctx)
}

// Router exposes the handler tree, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{
		"name":"pii-gateway",
		"version":"0.1.0",
		"uptime":"%s",
		"total_requests":%d,
		"total_detections":%d,
		"cache_enabled":%t,
		"events_enabled":%t
	}`, time.Since(s.startTime).Round(time.Second),
		atomic.LoadInt64(&s.totalRequests),
		atomic.LoadInt64(&s.totalDetections),
		s.resultCache != nil,
		s.eventStore != nil)
}

// GetWebSocketHub returns the WebSocket hub for broadcasting events
func (s *Server) GetWebSocketHub() *websocket.Hub {
	return s.wsHub
}
