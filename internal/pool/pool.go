// Package pool keeps the set of running Instruction Servers in line with
// the enabled port bindings.
package pool

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chaseai/chaseai/internal/model"
	"github.com/chaseai/chaseai/internal/server"
)

// DefaultStopTimeout bounds how long Reconcile waits for a removed
// server to stop accepting.
const DefaultStopTimeout = 5 * time.Second

// Server is a startable, stoppable listener for one binding. Stop halts
// accepts; requests already in flight finish on their own and Wait
// blocks until they have.
type Server interface {
	Start() error
	Stop(ctx context.Context) error
	Wait(ctx context.Context) error
	Drained() <-chan struct{}
	Binding() model.Binding
}

// Factory builds a server for a binding.
type Factory func(model.Binding) Server

// ServerFactory builds Instruction Servers sharing deps.
func ServerFactory(deps server.Deps) Factory {
	return func(b model.Binding) Server {
		return server.New(b, deps)
	}
}

// Result reports what a Reconcile call changed.
type Result struct {
	Started []uint16
	Stopped []uint16
	Failed  map[uint16]error
}

// Changed reports whether any server was started or stopped.
func (r Result) Changed() bool {
	return len(r.Started) > 0 || len(r.Stopped) > 0
}

// Pool maps ports to running servers.
type Pool struct {
	mu          sync.Mutex
	servers     map[uint16]Server
	draining    []Server
	factory     Factory
	log         *zap.Logger
	stopTimeout time.Duration
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the pool logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.log = l
		}
	}
}

// WithStopTimeout bounds how long Reconcile waits for a removed server
// to stop accepting.
func WithStopTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.stopTimeout = d
		}
	}
}

// New creates an empty pool.
func New(factory Factory, opts ...Option) *Pool {
	p := &Pool{
		servers:     make(map[uint16]Server),
		factory:     factory,
		log:         zap.NewNop(),
		stopTimeout: DefaultStopTimeout,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Reconcile starts servers for enabled bindings that are not running and
// stops running servers whose port is no longer enabled. A server whose
// address or role changed is restarted. Start failures are logged and
// that port is left out; they never abort the rest of the pass.
func (p *Pool) Reconcile(ctx context.Context, cfg *model.NetworkConfig) Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	res := Result{Failed: make(map[uint16]error)}

	target := make(map[uint16]model.Binding)
	for _, b := range cfg.EnabledBindings() {
		target[b.Port] = b
	}

	var stale []uint16
	for port, srv := range p.servers {
		want, ok := target[port]
		if !ok || !sameListener(srv.Binding(), want) {
			stale = append(stale, port)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i] < stale[j] })

	stopCtx, cancel := context.WithTimeout(ctx, p.stopTimeout)
	p.stopLocked(stopCtx, stale)
	cancel()
	res.Stopped = stale

	ports := make([]uint16, 0, len(target))
	for port := range target {
		if _, running := p.servers[port]; !running {
			ports = append(ports, port)
		}
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i] < ports[j] })

	for _, port := range ports {
		srv := p.factory(target[port])
		if err := srv.Start(); err != nil {
			p.log.Warn("server start failed, port omitted", zap.Uint16("port", port), zap.Error(err))
			res.Failed[port] = err
			continue
		}
		p.servers[port] = srv
		res.Started = append(res.Started, port)
	}

	p.log.Info("pool reconciled",
		zap.Int("running", len(p.servers)),
		zap.Int("started", len(res.Started)),
		zap.Int("stopped", len(res.Stopped)),
		zap.Int("failed", len(res.Failed)))
	return res
}

func sameListener(a, b model.Binding) bool {
	return a.Addr() == b.Addr() && a.Role == b.Role
}

// stopLocked stops the given ports concurrently and drops them from the
// map. Stopped servers stay on the draining list until their in-flight
// requests finish.
func (p *Pool) stopLocked(ctx context.Context, ports []uint16) error {
	p.pruneDrainedLocked()

	var g errgroup.Group
	for _, port := range ports {
		srv := p.servers[port]
		delete(p.servers, port)
		p.draining = append(p.draining, srv)
		g.Go(func() error {
			if err := srv.Stop(ctx); err != nil {
				p.log.Warn("server stop failed", zap.Uint16("port", port), zap.Error(err))
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func (p *Pool) pruneDrainedLocked() {
	kept := p.draining[:0]
	for _, srv := range p.draining {
		select {
		case <-srv.Drained():
		default:
			kept = append(kept, srv)
		}
	}
	clear(p.draining[len(kept):])
	p.draining = kept
}

// Shutdown stops every running server, then waits for in-flight requests
// on every stopped server, including ones removed earlier by Reconcile.
// Connections still open when ctx ends are closed. It returns the first
// error.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ports := make([]uint16, 0, len(p.servers))
	for port := range p.servers {
		ports = append(ports, port)
	}
	err := p.stopLocked(ctx, ports)

	var g errgroup.Group
	for _, srv := range p.draining {
		g.Go(func() error { return srv.Wait(ctx) })
	}
	if waitErr := g.Wait(); err == nil {
		err = waitErr
	}
	p.draining = nil

	p.log.Info("pool shut down", zap.Int("stopped", len(ports)))
	return err
}

// Count returns the number of running servers.
func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.servers)
}

// Has reports whether a server is running on port.
func (p *Pool) Has(port uint16) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.servers[port]
	return ok
}

// Ports returns the running ports in ascending order.
func (p *Pool) Ports() []uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]uint16, 0, len(p.servers))
	for port := range p.servers {
		out = append(out, port)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
