// Package api serves the registration HTTP API: CRUD over registered posts,
// the trigger-kind label table, health and metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	logx "postbot/pkg/logx"
)

// Config controls the HTTP listener.
//
// Security: binding to a non-loopback address requires Token unless
// AllowInsecure is set.
type Config struct {
	Enabled        bool
	Addr           string
	Token          string
	AllowInsecure  bool
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	Pprof          bool
}

const defaultAddr = "127.0.0.1:8080"

// Server owns the listener. Reconfigure starts, stops or restarts it.
type Server struct {
	deps Deps
	log  logx.Logger

	mu       sync.Mutex
	cfg      Config
	ln       net.Listener
	srv      *http.Server
	stopDone chan struct{}
}

func NewServer(cfg Config, deps Deps, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{cfg: cfg, deps: deps, log: log}
}

// Addr returns the bound address, or "" when stopped.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Reconfigure applies cfg, restarting the listener only when needed. Safe to
// call during hot reload.
func (s *Server) Reconfigure(ctx context.Context, cfg Config) error {
	s.mu.Lock()
	prev := s.cfg
	running := s.srv != nil
	s.cfg = cfg
	s.mu.Unlock()

	switch {
	case !cfg.Enabled:
		if running {
			s.Stop(ctx)
		}
		return nil
	case !running:
		return s.Start(ctx)
	case needsRestart(prev, cfg):
		s.Stop(ctx)
		return s.Start(ctx)
	}
	return nil
}

func needsRestart(a, b Config) bool {
	return a.Addr != b.Addr ||
		a.Token != b.Token ||
		a.AllowInsecure != b.AllowInsecure ||
		a.Pprof != b.Pprof ||
		a.ReadTimeout != b.ReadTimeout ||
		a.WriteTimeout != b.WriteTimeout ||
		!slices.Equal(a.AllowedOrigins, b.AllowedOrigins)
}

// Start listens and serves in the background. It is a no-op when already
// running or disabled.
func (s *Server) Start(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.srv != nil {
			s.mu.Unlock()
			return nil
		}
		// A stop in progress still owns the port.
		if s.stopDone != nil {
			done := s.stopDone
			s.mu.Unlock()
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		cur := s.cfg
		s.mu.Unlock()

		if !cur.Enabled {
			return nil
		}
		addr := strings.TrimSpace(cur.Addr)
		if addr == "" {
			addr = defaultAddr
		}
		if cur.Token == "" && !isLoopbackAddr(addr) {
			if !cur.AllowInsecure {
				return fmt.Errorf("http: non-loopback addr %q requires a token or allow_insecure", addr)
			}
			s.log.Warn("http api running without token on non-loopback addr (insecure)", logx.String("addr", addr))
		}

		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("http listen %s: %w", addr, err)
		}
		srv := &http.Server{
			Handler:           NewRouter(cur, s.deps, s.log),
			ReadTimeout:       cur.ReadTimeout,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      cur.WriteTimeout,
			IdleTimeout:       60 * time.Second,
		}

		s.mu.Lock()
		s.ln = ln
		s.srv = srv
		s.mu.Unlock()

		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("http server stopped with error", logx.Err(err))
			}
		}()
		s.log.Info("http api started",
			logx.String("addr", ln.Addr().String()),
			logx.Bool("token_set", cur.Token != ""),
			logx.Bool("pprof", cur.Pprof),
		)
		return nil
	}
}

// Stop shuts the server down, bounded by ctx.
func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.srv == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	srv := s.srv
	s.srv = nil
	s.ln = nil
	s.mu.Unlock()

	go func() {
		defer close(done)
		if err := srv.Shutdown(ctx); err != nil {
			_ = srv.Close()
		}
		s.mu.Lock()
		s.stopDone = nil
		s.mu.Unlock()
		s.log.Info("http api stopped")
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		// All interfaces.
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
