// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/fund-ledger/internal/ledger"
	"github.com/fund-ledger/internal/models"
	"github.com/fund-ledger/internal/service"
)

// Service interfaces for dependency injection and testing

// RegistryServiceInterface defines the interface for registry operations
type RegistryServiceInterface interface {
	CreateFund(ctx context.Context, input *service.CreateFundInput) (*models.Fund, error)
	GetFund(ctx context.Context, fundID string) (*models.Fund, error)
	ListFunds(ctx context.Context, limit, offset int) ([]*models.Fund, error)
	ListFundsByManager(ctx context.Context, manager string) ([]*models.Fund, error)
}

// FundServiceInterface defines the interface for per-fund operations
type FundServiceInterface interface {
	Initialize(ctx context.Context, fundID, caller, initialAum string) error
	Whitelist(ctx context.Context, fundID, caller string, addrs, names []string) error
	RevokeWhitelist(ctx context.Context, fundID, caller string, addrs []string) error
	UpdateAUM(ctx context.Context, fundID, caller, newAum string, processInvestor string) (*models.NavMark, error)
	SubmitInvestmentRequest(ctx context.Context, fundID string, input *service.InvestmentRequestInput) error
	CancelInvestmentRequest(ctx context.Context, fundID, investor string) error
	SubmitRedemptionRequest(ctx context.Context, fundID string, input *service.RedemptionRequestInput) error
	CancelRedemptionRequest(ctx context.Context, fundID, investor string) error
	ProcessInvestmentRequest(ctx context.Context, fundID, caller, investor string) (*models.Investment, error)
	ProcessRedemptionRequest(ctx context.Context, fundID, caller, investor string) (*ledger.RedemptionResult, error)
	AddManualInvestment(ctx context.Context, fundID, caller, investor, usdAmount, note string) (*models.Investment, error)
	AddManualRedemption(ctx context.Context, fundID, caller string, investmentID uint64, minUsdOut string) (*ledger.RedemptionResult, error)
	MarkTransferCompleted(ctx context.Context, fundID, caller string, investmentID uint64) error
	SweepFees(ctx context.Context, fundID, caller string, investmentIDs []uint64) ([]ledger.FeeSweepResult, error)
	WithdrawFees(ctx context.Context, fundID, caller, shareAmount string) (*ledger.WithdrawResult, error)
	CloseFund(ctx context.Context, fundID, caller string) error
	GetLatestNav(ctx context.Context, fundID string) (*models.NavMark, error)
	GetNavHistory(ctx context.Context, fundID string, from, to time.Time, limit int) ([]*models.NavMark, error)
	ListInvestments(ctx context.Context, fundID string) ([]*models.Investment, error)
	ListInvestorInvestments(ctx context.Context, fundID, investor string) ([]*models.Investment, error)
	GetInvestor(ctx context.Context, fundID, investor string) (*models.InvestorSummary, error)
}

// Server represents the HTTP API server.
type Server struct {
	router      *mux.Router
	httpServer  *http.Server
	registry    RegistryServiceInterface
	fundService FundServiceInterface
	config      *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	FreeTierRPS     int // Requests per second for anonymous callers
	BasicTierRPS    int // Requests per second for investors
	PremiumTierRPS  int // Requests per second for managers
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, registry RegistryServiceInterface, fundService FundServiceInterface) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		registry:    registry,
		fundService: fundService,
		config:      config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.FreeTierRPS, s.config.BasicTierRPS, s.config.PremiumTierRPS)

	// Middleware order matters.
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))
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
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// API v1 routes
	api := s.router.PathPrefix("/api").Subrouter()

	// Registry endpoints
	api.HandleFunc("/funds", s.handleCreateFund).Methods("POST")
	api.HandleFunc("/funds", s.handleListFunds).Methods("GET")
	api.HandleFunc("/funds/{id}", s.handleGetFund).Methods("GET")

	// Fund lifecycle endpoints (manager)
	api.HandleFunc("/funds/{id}/initialize", s.handleInitialize).Methods("POST")
	api.HandleFunc("/funds/{id}/whitelist", s.handleWhitelist).Methods("POST")
	api.HandleFunc("/funds/{id}/whitelist", s.handleRevokeWhitelist).Methods("DELETE")
	api.HandleFunc("/funds/{id}/close", s.handleCloseFund).Methods("POST")

	// NAV endpoints
	api.HandleFunc("/funds/{id}/nav", s.handleUpdateAUM).Methods("POST")
	api.HandleFunc("/funds/{id}/nav", s.handleGetLatestNav).Methods("GET")
	api.HandleFunc("/funds/{id}/nav/history", s.handleGetNavHistory).Methods("GET")

	// Request endpoints (investor)
	api.HandleFunc("/funds/{id}/requests/investments", s.handleSubmitInvestmentRequest).Methods("POST")
	api.HandleFunc("/funds/{id}/requests/investments/{investor}", s.handleCancelInvestmentRequest).Methods("DELETE")
	api.HandleFunc("/funds/{id}/requests/investments/{investor}/process", s.handleProcessInvestmentRequest).Methods("POST")
	api.HandleFunc("/funds/{id}/requests/redemptions", s.handleSubmitRedemptionRequest).Methods("POST")
	api.HandleFunc("/funds/{id}/requests/redemptions/{investor}", s.handleCancelRedemptionRequest).Methods("DELETE")
	api.HandleFunc("/funds/{id}/requests/redemptions/{investor}/process", s.handleProcessRedemptionRequest).Methods("POST")

	// Investment endpoints
	api.HandleFunc("/funds/{id}/investments", s.handleListInvestments).Methods("GET")
	api.HandleFunc("/funds/{id}/investments", s.handleAddManualInvestment).Methods("POST")
	api.HandleFunc("/funds/{id}/investments/{investmentId}/redeem", s.handleAddManualRedemption).Methods("POST")
	api.HandleFunc("/funds/{id}/investments/{investmentId}/transfer-completed", s.handleMarkTransferCompleted).Methods("POST")
	api.HandleFunc("/funds/{id}/investors/{investor}", s.handleGetInvestor).Methods("GET")

	// Fee endpoints (manager)
	api.HandleFunc("/funds/{id}/fees/sweep", s.handleSweepFees).Methods("POST")
	api.HandleFunc("/funds/{id}/fees/withdraw", s.handleWithdrawFees).Methods("POST")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "fund-ledger",
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	log.Printf("Starting API server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}
