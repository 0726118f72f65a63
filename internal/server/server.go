// Package server implements the per-port Instruction Server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/chaseai/chaseai/internal/audit"
	"github.com/chaseai/chaseai/internal/errs"
	"github.com/chaseai/chaseai/internal/generator"
	"github.com/chaseai/chaseai/internal/instruction"
	"github.com/chaseai/chaseai/internal/model"
	"github.com/chaseai/chaseai/internal/prompt"
)

// Contexts is the part of the Context Manager a server reads.
type Contexts interface {
	GetContext(port uint16) (model.InstructionContext, bool)
	CreateSession(scope []string) instruction.Session
}

// Renderer produces configuration documents for GET /config.
type Renderer interface {
	Render(f generator.Format, cfg *model.NetworkConfig) (string, error)
}

// Deps are the collaborators shared by every server in a pool.
type Deps struct {
	Contexts Contexts
	Renderer Renderer
	Prompter prompt.Prompter
	// Config returns the current network configuration. Nil means defaults.
	Config func() *model.NetworkConfig
	// Audit receives one entry per /verify decision. Optional.
	Audit  audit.Recorder
	Logger *zap.Logger
}

// Server answers instruction and verification requests on one binding.
type Server struct {
	binding model.Binding
	deps    Deps
	log     *zap.Logger
	srv     *http.Server

	readyOnce sync.Once
	ready     chan struct{}

	mu      sync.Mutex
	ln      net.Listener
	done    chan struct{}
	drained chan struct{}
	started bool
	stopped bool
	stopErr error
}

// New creates a server for b. It does not bind until Start.
func New(b model.Binding, deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if deps.Config == nil {
		deps.Config = model.DefaultNetworkConfig
	}
	s := &Server{
		binding: b,
		deps:    deps,
		log:     log.With(zap.Uint16("port", b.Port), zap.String("role", string(b.Role))),
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
		drained: make(chan struct{}),
	}
	s.srv = &http.Server{
		Handler: s.routes(),
		ConnState: func(_ net.Conn, state http.ConnState) {
			if state == http.StateNew {
				s.readyOnce.Do(func() { close(s.ready) })
			}
		},
	}
	return s
}

// Binding returns the binding this server was created for.
func (s *Server) Binding() model.Binding {
	return s.binding
}

// Handler returns the router, for use without a listener.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start binds the listener and serves on a background goroutine.
// A bind failure is returned immediately as a BIND error.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errs.Newf(errs.CodeInternal, "server on %s already started", s.binding.Addr())
	}

	ln, err := net.Listen("tcp", s.binding.Addr())
	if err != nil {
		return errs.Wrap(errs.CodeBind, err, fmt.Sprintf("failed to listen on %s", s.binding.Addr()))
	}
	s.ln = ln
	s.started = true

	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("serve failed", zap.Error(err))
		}
	}()

	s.log.Info("instruction server started", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.binding.Addr()
}

// Ready is closed once the first connection has been accepted.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Stop stops accepting and returns once the accept loop has exited or
// ctx ends. In-flight requests, including a pending /verify prompt, keep
// running until they finish; Wait blocks on them. Repeated calls return
// the first result.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return s.stopErr
	}
	s.stopped = true

	if !s.started {
		close(s.drained)
		return nil
	}

	go func() {
		defer close(s.drained)
		if err := s.srv.Shutdown(context.Background()); err != nil {
			s.log.Warn("drain failed", zap.Error(err))
		}
		s.log.Info("instruction server drained")
	}()

	select {
	case <-s.done:
		s.log.Info("instruction server stopped")
	case <-ctx.Done():
		s.stopErr = fmt.Errorf("stop server on %s: %w", s.binding.Addr(), ctx.Err())
	}
	return s.stopErr
}

// Drained is closed once Stop was called and every in-flight request has
// finished.
func (s *Server) Drained() <-chan struct{} {
	return s.drained
}

// Wait blocks until every in-flight request has finished. If ctx ends
// first the remaining connections are closed and the context error is
// returned. Wait must follow Stop.
func (s *Server) Wait(ctx context.Context) error {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if !stopped {
		return errs.Newf(errs.CodeInternal, "server on %s is not stopped", s.binding.Addr())
	}

	select {
	case <-s.drained:
		return nil
	case <-ctx.Done():
	}
	s.srv.Close()
	<-s.drained
	return fmt.Errorf("drain server on %s: %w", s.binding.Addr(), ctx.Err())
}
