// Package instruction owns the in-memory port to context mapping and the
// approval session table.
package instruction

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chaseai/chaseai/internal/errs"
	"github.com/chaseai/chaseai/internal/model"
	"github.com/chaseai/chaseai/internal/store"
)

// Manager holds contexts keyed by port. Every mutation is persisted
// before it is visible to readers. One mutex guards contexts and sessions.
type Manager struct {
	mu       sync.Mutex
	contexts store.Contexts
	sessions map[string]Session
	store    store.Store
	log      *zap.Logger
	now      func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithClock overrides time.Now for session expiry.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager loads every context from s.
func NewManager(s store.Store, opts ...Option) (*Manager, error) {
	m := &Manager{
		sessions: make(map[string]Session),
		store:    s,
		log:      zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	contexts, err := s.LoadAll()
	if err != nil {
		return nil, errs.Wrap(errs.CodePersistence, err, "load contexts")
	}
	m.contexts = m.validLoaded(contexts)
	m.log.Debug("contexts loaded", zap.Int("count", len(m.contexts)))
	return m, nil
}

// validLoaded drops stored contexts that fail validation, so a hand-edited
// store never serves them.
func (m *Manager) validLoaded(contexts store.Contexts) store.Contexts {
	out := make(store.Contexts, len(contexts))
	for port, c := range contexts {
		if err := c.Validate(); err != nil {
			m.log.Warn("skipping invalid stored context", zap.Uint16("port", port), zap.Error(err))
			continue
		}
		out[port] = c
	}
	return out
}

// SetContext binds ctx to port. The port must have an enabled binding in
// cfg and ctx must validate. On persistence failure the previous value
// is restored.
func (m *Manager) SetContext(port uint16, ctx model.InstructionContext, cfg *model.NetworkConfig) error {
	if err := cfg.CheckBound(port); err != nil {
		return err
	}
	if err := ctx.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	prev, had := m.contexts[port]
	m.contexts[port] = ctx.Clone()
	if err := m.store.SaveAll(m.snapshotLocked()); err != nil {
		if had {
			m.contexts[port] = prev
		} else {
			delete(m.contexts, port)
		}
		return errs.Wrap(errs.CodePersistence, err, "save contexts")
	}

	m.log.Info("context set", zap.Uint16("port", port), zap.String("system", ctx.System), zap.String("role", ctx.Role))
	return nil
}

// GetContext returns the context bound to port.
func (m *Manager) GetContext(port uint16) (model.InstructionContext, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.contexts[port]
	if !ok {
		return model.InstructionContext{}, false
	}
	return c.Clone(), true
}

// DeleteContext removes port's context. Absent ports are a no-op.
func (m *Manager) DeleteContext(port uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := m.contexts[port]
	if !ok {
		return nil
	}
	delete(m.contexts, port)
	if err := m.store.SaveAll(m.snapshotLocked()); err != nil {
		m.contexts[port] = prev
		return errs.Wrap(errs.CodePersistence, err, "save contexts")
	}

	m.log.Info("context deleted", zap.Uint16("port", port))
	return nil
}

// ListContexts returns a snapshot ordered by port.
func (m *Manager) ListContexts() []model.PortContext {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.PortContext, 0, len(m.contexts))
	for port, c := range m.contexts {
		out = append(out, model.PortContext{Port: port, Context: c.Clone()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Port < out[j].Port })
	return out
}

func (m *Manager) snapshotLocked() store.Contexts {
	out := make(store.Contexts, len(m.contexts))
	for port, c := range m.contexts {
		out[port] = c
	}
	return out
}

// Reload replaces the in-memory contexts with the store's contents, so
// edits made by another process become visible. Sessions are kept.
func (m *Manager) Reload() error {
	contexts, err := m.store.LoadAll()
	if err != nil {
		return errs.Wrap(errs.CodePersistence, err, "reload contexts")
	}
	contexts = m.validLoaded(contexts)

	m.mu.Lock()
	m.contexts = contexts
	m.mu.Unlock()

	m.log.Debug("contexts reloaded", zap.Int("count", len(contexts)))
	return nil
}
