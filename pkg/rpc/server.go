// Package rpc implements a read-only JSON-RPC 2.0 server over a metadata
// ledger. Accounts are only ever looked up by address, directly or derived
// from a program and seed; there is no scan or filter query.
//
// Supported methods:
//   - Account: getAccountInfo, getBalance, getMultipleAccounts
//   - Metadata: getMetadata, getBuffer
//   - Ledger: getSlot, getLedgerDigest, getSignaturesForAddress
//   - Node: getHealth, getVersion, getMinimumBalanceForRentExemption
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fortiblox/x1-metadata/internal/types"
	"github.com/fortiblox/x1-metadata/pkg/accounts"
	"github.com/fortiblox/x1-metadata/pkg/journal"
	"github.com/fortiblox/x1-metadata/pkg/svm"
)

// Config holds RPC server configuration.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// MaxRequestSize bounds the request body; batches share the limit.
	MaxRequestSize int64

	// EnableCORS answers browser preflights. An empty AllowedOrigins
	// allows every origin.
	EnableCORS     bool
	AllowedOrigins []string

	LogRequests bool

	// Rent prices getMinimumBalanceForRentExemption. It should match the
	// runtime that writes the ledger.
	Rent svm.Rent
}

// DefaultConfig returns a default RPC server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8899",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxRequestSize: 50 * 1024,
		EnableCORS:     true,
		Rent:           svm.DefaultRent(),
	}
}

// History answers per-address transaction queries. *journal.Journal
// implements it.
type History interface {
	ByAccount(pubkey types.Pubkey, limit int) ([]*journal.Entry, error)
}

// Server is the JSON-RPC 2.0 server.
type Server struct {
	config Config

	accountsDB accounts.DB
	history    History

	healthy atomic.Bool

	server   *http.Server
	handlers map[string]handlerFunc

	mu      sync.RWMutex
	running bool
}

// handlerFunc is a JSON-RPC method handler.
type handlerFunc func(params json.RawMessage) (interface{}, *RPCError)

// New creates a new RPC server. history may be nil.
func New(config Config, accountsDB accounts.DB, history History) *Server {
	s := &Server{
		config:     config,
		accountsDB: accountsDB,
		history:    history,
		handlers:   make(map[string]handlerFunc),
	}
	s.healthy.Store(true)
	s.registerHandlers()
	return s
}

func (s *Server) registerHandlers() {
	s.handlers["getAccountInfo"] = s.getAccountInfo
	s.handlers["getBalance"] = s.getBalance
	s.handlers["getMultipleAccounts"] = s.getMultipleAccounts

	s.handlers["getMetadata"] = s.getMetadata
	s.handlers["getBuffer"] = s.getBuffer

	s.handlers["getSlot"] = s.getSlot
	s.handlers["getLedgerDigest"] = s.getLedgerDigest
	s.handlers["getSignaturesForAddress"] = s.getSignaturesForAddress

	s.handlers["getHealth"] = s.getHealth
	s.handlers["getVersion"] = s.getVersion
	s.handlers["getMinimumBalanceForRentExemption"] = s.getMinimumBalanceForRentExemption
}

// Start serves requests until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.server = &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	log.Printf("[RPC] Server starting on %s", s.config.Addr)

	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop stops the RPC server.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.running = false
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Handler returns the HTTP handler serving JSON-RPC requests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRPC)
	return s.corsMiddleware(mux)
}

// SetHealthy sets the server health status.
func (s *Server) SetHealthy(healthy bool) {
	s.healthy.Store(healthy)
}

// IsHealthy returns the current health status.
func (s *Server) IsHealthy() bool {
	return s.healthy.Load()
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	if !s.config.EnableCORS {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			allowed := len(s.config.AllowedOrigins) == 0
			for _, allowedOrigin := range s.config.AllowedOrigins {
				if allowedOrigin == origin || allowedOrigin == "*" {
					allowed = true
					break
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
				w.Header().Set("Access-Control-Max-Age", "3600")
			}
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType != "" && contentType != "application/json" {
		s.writeJSON(w, Response{JSONRPC: JSONRPCVersion, Error: ErrInvalidRequest})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxRequestSize))
	if err != nil {
		s.writeJSON(w, Response{JSONRPC: JSONRPCVersion, Error: ErrParseError})
		return
	}

	if len(body) > 0 && body[0] == '[' {
		var requests []Request
		if err := json.Unmarshal(body, &requests); err != nil {
			s.writeJSON(w, Response{JSONRPC: JSONRPCVersion, Error: ErrParseError})
			return
		}
		if len(requests) == 0 {
			s.writeJSON(w, Response{JSONRPC: JSONRPCVersion, Error: ErrInvalidRequest})
			return
		}
		responses := make([]Response, len(requests))
		for i := range requests {
			responses[i] = s.serve(&requests[i])
		}
		s.writeJSON(w, responses)
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeJSON(w, Response{JSONRPC: JSONRPCVersion, Error: ErrParseError})
		return
	}
	s.writeJSON(w, s.serve(&req))
}

// serve answers one request.
func (s *Server) serve(req *Request) Response {
	resp := Response{JSONRPC: JSONRPCVersion, ID: req.ID}
	if req.JSONRPC != JSONRPCVersion {
		resp.Error = ErrInvalidRequest
		return resp
	}
	if s.config.LogRequests {
		log.Printf("[RPC] %s id=%v", req.Method, req.ID)
	}
	resp.Result, resp.Error = s.dispatch(req.Method, req.Params)
	return resp
}

func (s *Server) dispatch(method string, params json.RawMessage) (interface{}, *RPCError) {
	handler, ok := s.handlers[method]
	if !ok {
		return nil, errorf(MethodNotFound, "Method not found: %s", method)
	}
	return handler(params)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[RPC] Failed to write response: %v", err)
	}
}
