package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/chaseai/chaseai/internal/model"
)

// DefaultDebounce is the quiet period after the last write before reloading.
const DefaultDebounce = 100 * time.Millisecond

// Watcher calls onChange once a watched file has been quiet for the
// debounce interval.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	debounce time.Duration
	onChange func()
	log      *zap.Logger
}

// WatchFile watches path's directory so atomic replacements are seen.
func WatchFile(path string, onChange func(), log *zap.Logger) (*Watcher, error) {
	if log == nil {
		log = zap.NewNop()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", filepath.Dir(path), err)
	}

	return &Watcher{
		watcher:  w,
		path:     filepath.Clean(path),
		debounce: DefaultDebounce,
		onChange: onChange,
		log:      log,
	}, nil
}

// NewWatcher watches the network configuration at path. onChange
// receives each configuration that loads cleanly; bad edits are logged
// and skipped.
func NewWatcher(path string, onChange func(*model.NetworkConfig), log *zap.Logger) (*Watcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	return WatchFile(path, func() {
		cfg, err := Load(path)
		if err != nil {
			log.Warn("config reload failed", zap.String("path", path), zap.Error(err))
			return
		}
		log.Info("config reloaded", zap.String("path", path), zap.Int("bindings", len(cfg.PortBindings)))
		onChange(cfg)
	}, log)
}

// SetDebounce overrides the debounce interval. Call before Run.
func (w *Watcher) SetDebounce(d time.Duration) {
	if d > 0 {
		w.debounce = d
	}
}

// Close releases the watcher without running it.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// Run delivers changes until ctx is cancelled. It closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.onChange()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("file watcher error", zap.Error(err))
		}
	}
}
