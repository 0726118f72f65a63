// Package app wires the control plane together and runs its event loop.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chaseai/chaseai/internal/audit"
	"github.com/chaseai/chaseai/internal/config"
	"github.com/chaseai/chaseai/internal/generator"
	"github.com/chaseai/chaseai/internal/instruction"
	"github.com/chaseai/chaseai/internal/model"
	"github.com/chaseai/chaseai/internal/pool"
	"github.com/chaseai/chaseai/internal/prompt"
	"github.com/chaseai/chaseai/internal/server"
	"github.com/chaseai/chaseai/internal/store"
)

// Defaults for the event loop.
const (
	DefaultPruneInterval   = time.Minute
	DefaultShutdownTimeout = 10 * time.Second
)

// Options configure New.
type Options struct {
	Dir      string
	Driver   string
	Version  string
	Prompter prompt.Prompter
	// PrompterName selects a built-in prompter when Prompter is nil.
	PrompterName string
	NoAudit      bool
	Logger       *zap.Logger
}

// App owns the control plane state for one process.
type App struct {
	paths   config.Paths
	log     *zap.Logger
	store   store.Store
	manager *instruction.Manager
	gen     *generator.Generator
	pool    *pool.Pool
	audit   *audit.Log

	mu  sync.RWMutex
	cfg *model.NetworkConfig

	changes chan *model.NetworkConfig
}

// New opens the store, loads contexts and configuration, and prepares
// an idle pool. Nothing listens until Run or Apply.
func New(opts Options) (*App, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	dir := opts.Dir
	if dir == "" {
		dir = config.Dir()
	}
	paths := config.PathsIn(dir, opts.Driver)

	cfg, err := config.Load(paths.Network)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(opts.Driver, paths.Contexts)
	if err != nil {
		return nil, fmt.Errorf("open context store: %w", err)
	}

	a := &App{
		paths:   paths,
		log:     log,
		store:   st,
		gen:     generator.New(opts.Version),
		cfg:     cfg,
		changes: make(chan *model.NetworkConfig, 1),
	}

	a.manager, err = instruction.NewManager(st, instruction.WithLogger(log.Named("contexts")))
	if err != nil {
		a.Close()
		return nil, err
	}

	p := opts.Prompter
	if p == nil {
		p, err = prompt.New(opts.PrompterName, paths.Approvals)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	deps := server.Deps{
		Contexts: a.manager,
		Renderer: a.gen,
		Prompter: p,
		Config:   a.Config,
		Logger:   log.Named("server"),
	}
	if !opts.NoAudit {
		a.audit, err = audit.Open(paths.AuditLog)
		if err != nil {
			a.Close()
			return nil, err
		}
		deps.Audit = a.audit
	}

	a.pool = pool.New(pool.ServerFactory(deps), pool.WithLogger(log.Named("pool")))
	return a, nil
}

// Paths returns the files this app uses.
func (a *App) Paths() config.Paths {
	return a.paths
}

// Manager returns the Context Manager.
func (a *App) Manager() *instruction.Manager {
	return a.manager
}

// Pool returns the Server Pool.
func (a *App) Pool() *pool.Pool {
	return a.pool
}

// Generator returns the document generator.
func (a *App) Generator() *generator.Generator {
	return a.gen
}

// Config returns a copy of the current network configuration.
func (a *App) Config() *model.NetworkConfig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg.Clone()
}

// Apply makes cfg current and reconciles the pool against it.
func (a *App) Apply(ctx context.Context, cfg *model.NetworkConfig) pool.Result {
	a.mu.Lock()
	a.cfg = cfg.Clone()
	a.mu.Unlock()
	return a.pool.Reconcile(ctx, cfg)
}

// Notify queues cfg for the event loop. A newer pending config replaces
// an older one.
func (a *App) Notify(cfg *model.NetworkConfig) {
	for {
		select {
		case a.changes <- cfg:
			return
		default:
		}
		select {
		case <-a.changes:
		default:
		}
	}
}

// Run reconciles the current configuration, then reacts to config file
// changes and prunes expired sessions until ctx is cancelled. On return
// every server has been stopped.
func (a *App) Run(ctx context.Context) error {
	res := a.Apply(ctx, a.Config())
	a.log.Info("control plane started",
		zap.Uint16s("ports", a.pool.Ports()),
		zap.Int("failed", len(res.Failed)))

	if err := os.MkdirAll(a.paths.Dir, 0700); err != nil {
		a.shutdown()
		return fmt.Errorf("create config directory: %w", err)
	}
	cfgWatcher, err := config.NewWatcher(a.paths.Network, a.Notify, a.log.Named("config"))
	if err != nil {
		a.shutdown()
		return err
	}
	ctxWatcher, err := config.WatchFile(a.paths.Contexts, a.reloadContexts, a.log.Named("contexts"))
	if err != nil {
		cfgWatcher.Close()
		a.shutdown()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return cfgWatcher.Run(gctx) })
	g.Go(func() error { return ctxWatcher.Run(gctx) })
	g.Go(func() error { return a.loop(gctx) })

	err = g.Wait()
	if shutdownErr := a.shutdown(); err == nil {
		err = shutdownErr
	}
	return err
}

func (a *App) loop(ctx context.Context) error {
	ticker := time.NewTicker(DefaultPruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case cfg := <-a.changes:
			res := a.Apply(ctx, cfg)
			if res.Changed() || len(res.Failed) > 0 {
				a.log.Info("bindings changed",
					zap.Uint16s("started", res.Started),
					zap.Uint16s("stopped", res.Stopped),
					zap.Uint16s("running", a.pool.Ports()))
			}
		case <-ticker.C:
			if n := a.manager.PruneSessions(); n > 0 {
				a.log.Debug("expired sessions pruned", zap.Int("count", n))
			}
		}
	}
}

// reloadContexts picks up context edits made by the chaseai CLI.
func (a *App) reloadContexts() {
	if err := a.manager.Reload(); err != nil {
		a.log.Warn("context reload failed", zap.Error(err))
	}
}

func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	return a.pool.Shutdown(ctx)
}

// Close releases the store and audit log.
func (a *App) Close() error {
	var errs []error
	if c, ok := a.store.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if a.audit != nil {
		errs = append(errs, a.audit.Close())
	}
	return errors.Join(errs...)
}
