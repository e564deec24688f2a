package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Loader loads, validates, and caches config state, keeping the last good
// configuration when a reload fails.
type Loader struct {
	path string

	mu   sync.Mutex
	last atomic.Pointer[File]
}

// NewLoader wires a loader for path.
func NewLoader(path string) (*Loader, error) {
	if path == "" {
		return nil, fmt.Errorf("config: path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve path: %w", err)
	}
	return &Loader{path: abs}, nil
}

// Path returns the absolute config file path.
func (l *Loader) Path() string { return l.path }

// Last returns the most recent valid configuration.
func (l *Loader) Last() (*File, bool) {
	cfg := l.last.Load()
	if cfg == nil {
		return nil, false
	}
	return cfg, true
}

// Load parses and validates the file, caching the result.
func (l *Loader) Load() (*File, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	raw, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", l.path, err)
	}
	cfg := &File{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", l.path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l.last.Store(cfg)
	return cfg, nil
}

// Reload refreshes the configuration, keeping the last good state on error.
func (l *Loader) Reload() (*File, error) {
	prev, _ := l.Last()
	cfg, err := l.Load()
	if err != nil {
		if prev != nil {
			return prev, fmt.Errorf("config: reload failed, keeping last good config: %w", err)
		}
		return nil, err
	}
	return cfg, nil
}

// Watch reloads the file on filesystem changes until ctx is cancelled.
// onChange is invoked with each successfully reloaded config. The model
// catalog itself is fixed at process start; watching serves the mutable
// sections (search, integrations).
func (l *Loader) Watch(ctx context.Context, log *zap.Logger, onChange func(*File)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: start watcher: %w", err)
	}
	// Watch the directory: editors replace files on save, which drops a
	// watch registered on the file itself.
	if err := watcher.Add(filepath.Dir(l.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("config: watch %s: %w", filepath.Dir(l.path), err)
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != l.path {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				cfg, err := l.Reload()
				if err != nil {
					log.Warn("config reload failed", zap.Error(err))
					continue
				}
				log.Info("config reloaded", zap.String("path", l.path))
				if onChange != nil {
					onChange(cfg)
				}
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("config watcher error", zap.Error(werr))
			}
		}
	}()
	return nil
}
