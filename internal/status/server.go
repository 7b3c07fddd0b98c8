// Package status serves the operator status endpoint: a synchronous JSON
// view of the scheduler, typically bound to loopback.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"marketsched/internal/scheduler"
)

type Config struct {
	Enabled bool
	Address string
}

func (c Config) withDefaults() Config {
	if c.Address == "" {
		c.Address = "127.0.0.1:8723"
	}
	return c
}

// Server manages the lifecycle of the status HTTP listener.
type Server struct {
	mu       sync.Mutex
	log      zerolog.Logger
	snapshot func() scheduler.Snapshot
	srv      *http.Server
	ln       net.Listener
	addr     string
}

func New(snapshot func() scheduler.Snapshot, log zerolog.Logger) *Server {
	return &Server{
		log:      log.With().Str("comp", "status").Logger(),
		snapshot: snapshot,
	}
}

// Apply starts or stops the listener according to cfg.
func (s *Server) Apply(ctx context.Context, cfg Config) {
	cfg = cfg.withDefaults()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !cfg.Enabled {
		s.stopLocked(ctx)
		return
	}
	if s.srv != nil && s.addr == cfg.Address {
		return
	}
	s.stopLocked(ctx)
	s.startLocked(cfg)
}

// Addr returns the bound address, empty when not listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(ctx)
}

func (s *Server) startLocked(cfg Config) {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	srv := &http.Server{Addr: cfg.Address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	ln, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		s.log.Warn().Str("addr", cfg.Address).Err(err).Msg("status listen failed")
		return
	}

	s.srv = srv
	s.ln = ln
	s.addr = ln.Addr().String()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn().Err(err).Msg("status server exited")
		}
	}()
	s.log.Info().Str("addr", s.addr).Msg("status server listening")
}

func (s *Server) stopLocked(ctx context.Context) {
	if s.srv == nil {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(sctx); err != nil {
		_ = s.srv.Close()
	}
	s.srv = nil
	s.ln = nil
	s.addr = ""
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.snapshot()); err != nil {
		s.log.Warn().Err(err).Msg("status encode failed")
	}
}
