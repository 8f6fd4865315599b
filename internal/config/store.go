package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 250 * time.Millisecond

// Store holds the current Config. Readers take a snapshot with Current and keep
// using it for the whole call; Replace swaps in a new object atomically.
type Store struct {
	path    string
	current atomic.Pointer[Config]
	logger  *zap.Logger

	mu        sync.Mutex
	listeners []func(*Config)
}

// NewStore wraps an already loaded config. path may be empty when reloads are not wanted.
func NewStore(path string, cfg *Config, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{path: path, logger: logger}
	s.current.Store(cfg)
	return s
}

// Current returns the active configuration snapshot.
func (s *Store) Current() *Config {
	return s.current.Load()
}

// Path returns the file backing the store.
func (s *Store) Path() string {
	return s.path
}

// OnReplace registers fn to run after every successful Replace.
func (s *Store) OnReplace(fn func(*Config)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Replace installs cfg as the active configuration.
func (s *Store) Replace(cfg *Config) {
	s.current.Store(cfg)

	s.mu.Lock()
	listeners := append([]func(*Config){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(cfg)
	}
}

// Reload re-reads the backing file. On error the active config is left untouched.
func (s *Store) Reload() (*Config, error) {
	if s.path == "" {
		return nil, fmt.Errorf("config store has no backing file")
	}
	cfg, err := Load(s.path)
	if err != nil {
		return nil, err
	}
	s.Replace(cfg)
	s.logger.Info("config reloaded",
		zap.String("path", s.path),
		zap.Int("models", len(cfg.Models)),
		zap.Int("upstreams", len(cfg.Upstreams)),
	)
	return cfg, nil
}

// Watch reloads the config whenever its file changes, until ctx is done.
// The parent directory is watched so editors that replace the file by rename are seen.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return fmt.Errorf("config store has no backing file")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	absPath, err := filepath.Abs(s.path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("failed to watch %q: %w", filepath.Dir(absPath), err)
	}
	s.logger.Info("config watcher started", zap.String("path", absPath))

	var (
		timer   *time.Timer
		timerMu sync.Mutex
	)
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			timerMu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(defaultDebounce, func() {
				if _, err := s.Reload(); err != nil {
					s.logger.Error("config reload failed, keeping previous config", zap.Error(err))
				}
			})
			timerMu.Unlock()
		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			s.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}
