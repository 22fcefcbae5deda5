package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"liquidity-engine/infrastructure/logger"
)

// WatchConfig controls the hot-reload watcher.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Cooldown time.Duration `yaml:"cooldown"`
}

// DefaultWatchConfig enables watching with a 5s cooldown.
func DefaultWatchConfig() WatchConfig {
	return WatchConfig{Enabled: true, Cooldown: 5 * time.Second}
}

// Watcher re-reads the config file on change and hands the validated result
// to the update callback. A file that fails to parse or validate is ignored;
// the running configuration stays in effect.
type Watcher struct {
	cfg  WatchConfig
	path string
	fsw  *fsnotify.Watcher
	log  *logger.Logger

	mu         sync.Mutex
	lastReload time.Time
}

// NewWatcher creates a watcher for path.
func NewWatcher(path string, cfg WatchConfig, log *logger.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Watcher{cfg: cfg, path: path, fsw: fsw, log: log}, nil
}

// Start begins watching; onUpdate receives each successfully reloaded config.
func (w *Watcher) Start(ctx context.Context, onUpdate func(AppConfig)) error {
	if !w.cfg.Enabled {
		return nil
	}
	if err := w.fsw.Add(w.path); err != nil {
		return fmt.Errorf("watch config file: %w", err)
	}
	go w.watch(ctx, onUpdate)
	return nil
}

// Close stops the watcher.
func (w *Watcher) Close() error { return w.fsw.Close() }

func (w *Watcher) watch(ctx context.Context, onUpdate func(AppConfig)) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.handleChange(onUpdate)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleChange(onUpdate func(AppConfig)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if time.Since(w.lastReload) < w.cfg.Cooldown {
		return
	}
	cfg, err := LoadWithEnvOverrides(w.path)
	if err != nil {
		w.log.Warn("config reload rejected", zap.Error(err))
		return
	}
	w.lastReload = time.Now()
	w.log.Info("config reloaded", zap.String("path", w.path))
	if onUpdate != nil {
		onUpdate(cfg)
	}
}
