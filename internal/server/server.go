// Package server exposes the engine over a JSON HTTP API. One wallet,
// one server: the API is an operational surface for the desk, not a
// multi-tenant service.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"hermes/internal/domain/option"
	"hermes/internal/domain/trade"
	"hermes/internal/services/approval"
	"hermes/internal/services/desk"
	"hermes/internal/services/executor"
	"hermes/internal/services/greeks"
	"hermes/internal/services/router"
	"hermes/pkg/logger"
)

// SubmissionStore lists persisted submission records
type SubmissionStore interface {
	ListRecent(ctx context.Context, limit int64) ([]*trade.Submission, error)
}

// Deps are the services the API fronts
type Deps struct {
	Router      *router.Service
	Desk        *desk.Service
	Approvals   *approval.Service
	Executor    *executor.Service
	Greeks      *greeks.Service
	Submissions SubmissionStore
	Watchlist   []*option.Terms
}

// Server serves the trading API
type Server struct {
	deps  Deps
	watch map[common.Address]*option.Terms
	http  *http.Server
	log   *logger.Logger
}

// New builds the server and its routes
func New(addr string, deps Deps) *Server {
	s := &Server{
		deps:  deps,
		watch: make(map[common.Address]*option.Terms, len(deps.Watchlist)),
		log:   logger.Get().With("component", "server"),
	}
	for _, t := range deps.Watchlist {
		s.watch[t.Address] = t
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/options", s.handleListOptions).Methods("GET")
	api.HandleFunc("/selection", s.handleSelect).Methods("POST")
	api.HandleFunc("/selection", s.handleGetSelection).Methods("GET")
	api.HandleFunc("/selection", s.handleClearSelection).Methods("DELETE")
	api.HandleFunc("/route", s.handleRoute).Methods("POST")
	api.HandleFunc("/trade", s.handleTrade).Methods("POST")
	api.HandleFunc("/approve", s.handleApprove).Methods("POST")
	api.HandleFunc("/submissions", s.handleListSubmissions).Methods("GET")
	api.HandleFunc("/greeks/{option}", s.handleGreeks).Methods("GET")

	s.http = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s
}

// Start serves until the listener fails or Shutdown is called
func (s *Server) Start() error {
	s.log.Infow("API server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// resolveOption maps an address to watched option terms
func (s *Server) resolveOption(addr common.Address) (*option.Terms, bool) {
	t, ok := s.watch[addr]
	return t, ok
}
