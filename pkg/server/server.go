// Package server exposes an Airdrop over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Layr-Labs/merkle-airdrop-go/pkg/airdrop"
	"go.uber.org/zap"
)

/*
Endpoints:

	GET  /root               published root, hash function and leaf count
	POST /can_claim          { recipient, amount, proof } -> { canClaim }
	POST /claim              { amount, proof, signature } -> { claim }
	                         the recipient is the address that signed the claim
	GET  /claims             every claim record
	GET  /claims/{recipient} claim status of one recipient
	GET  /health             persistence health

Every non-2xx response carries a JSON { error } body.
*/

// Config holds the HTTP settings of a Server
type Config struct {
	Port int

	// RateLimit is the sustained requests per second allowed per client IP; 0 disables limiting
	RateLimit float64
	RateBurst int
}

// Server handles HTTP requests for an airdrop
type Server struct {
	airdrop    *airdrop.Airdrop
	logger     *zap.Logger
	limiter    *clientRateLimiter
	httpServer *http.Server
}

// NewServer creates a new server instance
func NewServer(a *airdrop.Airdrop, cfg *Config, logger *zap.Logger) (*Server, error) {
	if a == nil {
		return nil, fmt.Errorf("airdrop cannot be nil")
	}
	if cfg == nil {
		return nil, fmt.Errorf("server config cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		airdrop: a,
		logger:  logger,
		limiter: newClientRateLimiter(cfg.RateLimit, cfg.RateBurst),
	}

	mux := http.NewServeMux()

	// Read endpoints
	mux.HandleFunc("/root", s.rateLimited(s.handleGetRoot))
	mux.HandleFunc("/claims", s.rateLimited(s.handleListClaims))
	mux.HandleFunc("/claims/", s.rateLimited(s.handleGetClaim))

	// Claim endpoints
	mux.HandleFunc("/can_claim", s.rateLimited(s.handleCanClaim))
	mux.HandleFunc("/claim", s.rateLimited(s.handleClaim))

	// Health is never rate limited
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// Start starts the HTTP server
func (s *Server) Start() error {
	go func() {
		s.logger.Sugar().Infow("Starting HTTP server", "port", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Sugar().Errorw("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the HTTP server down
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// GetHandler returns the HTTP handler (for testing)
func (s *Server) GetHandler() http.Handler {
	return s.httpServer.Handler
}
