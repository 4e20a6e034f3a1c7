// Package api provides the HTTP API server the dashboard talks to.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/slot-automator/internal/app"
	"github.com/slot-automator/internal/logging"
	"github.com/slot-automator/internal/metrics"
	"github.com/slot-automator/internal/notify"
	"github.com/slot-automator/internal/types"
)

// Automator is the runtime the handlers drive. *app.App implements it.
type Automator interface {
	IsUnlocked() bool
	Unlock(ctx context.Context, passphrase string) error
	Lock()
	Reset(ctx context.Context) error

	Wallets() ([]app.WalletStatus, error)
	Wallet(id string) (app.WalletStatus, error)
	CreateWallet(ctx context.Context, name string) (app.WalletStatus, error)
	DeleteWallet(ctx context.Context, id string) error
	ExportKey(id, passphrase string) (string, error)

	StartAutomation(id string) (types.AutomationConfig, error)
	StopAutomation(id string) (types.AutomationConfig, error)
	UpdateAutomation(id string, rate int, betSize decimal.Decimal, game string) (types.AutomationConfig, error)
	Automation(id string) (types.AutomationConfig, error)

	History() []types.TransactionRecord
	Verify(ctx context.Context, hash string) (types.VerificationState, error)

	Notifications() *notify.Bus
	Metrics() *metrics.Metrics
	Health() app.Health
	Ping(ctx context.Context) error
}

// Server represents the HTTP API server.
type Server struct {
	router      *mux.Router
	httpServer  *http.Server
	automator   Automator
	rateLimiter *RateLimiter
	logger      *logging.Logger
	config      *ServerConfig
	stopPrune   chan struct{}
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RateLimit       int // requests per minute per client
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, automator Automator, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	s := &Server{
		router:      mux.NewRouter(),
		automator:   automator,
		rateLimiter: NewRateLimiter(config.RateLimit),
		logger:      logger.WithComponent("api"),
		config:      config,
		stopPrune:   make(chan struct{}),
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	// order matters: recovery needs the request logger, limits apply after CORS preflight
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(s.rateLimiter))
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", s.automator.Metrics().Handler()).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Session endpoints
	api.HandleFunc("/unlock", s.handleUnlock).Methods("POST")
	api.HandleFunc("/lock", s.handleLock).Methods("POST")
	api.HandleFunc("/reset", s.handleReset).Methods("POST")

	// Wallet endpoints
	api.HandleFunc("/wallets", s.handleListWallets).Methods("GET")
	api.HandleFunc("/wallets", s.handleCreateWallet).Methods("POST")
	api.HandleFunc("/wallets/{id}", s.handleGetWallet).Methods("GET")
	api.HandleFunc("/wallets/{id}", s.handleDeleteWallet).Methods("DELETE")
	api.HandleFunc("/wallets/{id}/export", s.handleExportKey).Methods("POST")

	// Automation endpoints
	api.HandleFunc("/wallets/{id}/automation", s.handleGetAutomation).Methods("GET")
	api.HandleFunc("/wallets/{id}/automation", s.handleUpdateAutomation).Methods("PUT")
	api.HandleFunc("/wallets/{id}/automation/start", s.handleStartAutomation).Methods("POST")
	api.HandleFunc("/wallets/{id}/automation/stop", s.handleStopAutomation).Methods("POST")
	api.HandleFunc("/cost", s.handleCost).Methods("GET")

	// History endpoints
	api.HandleFunc("/history", s.handleHistory).Methods("GET")
	api.HandleFunc("/history/{hash}/verify", s.handleVerify).Methods("POST")

	api.Handle("/notifications/ws", notify.NewStream(s.automator.Notifications(), s.logger)).Methods("GET")

	// preflight for every path; CORSMiddleware answers it
	s.router.PathPrefix("/").Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

// Handler returns the root handler, used by tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK
	storageErr := ""
	if err := s.automator.Ping(r.Context()); err != nil {
		status, code = "degraded", http.StatusServiceUnavailable
		storageErr = err.Error()
	}
	respondJSON(w, code, map[string]interface{}{
		"status":       status,
		"service":      "slot-automator",
		"storageError": storageErr,
		"details":      s.automator.Health(),
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	go s.pruneLimiters()
	s.logger.WithField("addr", s.httpServer.Addr).Info("starting API server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	close(s.stopPrune)
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) pruneLimiters() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopPrune:
			return
		case <-ticker.C:
			if n := s.rateLimiter.Prune(); n > 0 {
				s.logger.WithField("clients", n).Debug("pruned idle rate limiters")
			}
		}
	}
}
