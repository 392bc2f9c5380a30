package config

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 250 * time.Millisecond

// Watcher serves the current configuration snapshot and reloads it when
// the file changes on disk. A reload that fails to parse or validate is
// logged and discarded; the previous snapshot stays in service.
type Watcher struct {
	path    string
	logger  *slog.Logger
	current atomic.Pointer[Config]

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closeMu sync.Mutex
}

// NewWatcher loads the file once and returns a watcher primed with that
// snapshot. Call Watch to start following changes.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:   path,
		logger: logger.With("component", "config", "path", path),
	}
	w.current.Store(cfg)
	return w, nil
}

// Current returns the active snapshot. Never nil.
func (w *Watcher) Current() *Config {
	return w.current.Load()
}

// Watch follows the config file until the context ends or Close is
// called. Editors that replace the file (rename + create) are handled
// by watching the file path itself and rearming after each event.
func (w *Watcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.path); err != nil {
		fw.Close()
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w.closeMu.Lock()
	w.watcher = fw
	w.cancel = cancel
	w.closeMu.Unlock()

	w.wg.Add(1)
	go w.loop(watchCtx, fw)
	return nil
}

// Close stops watching. The last snapshot remains available.
func (w *Watcher) Close() error {
	w.closeMu.Lock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	fw := w.watcher
	w.watcher = nil
	w.closeMu.Unlock()

	if fw != nil {
		_ = fw.Close()
	}
	w.wg.Wait()
	return nil
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher) {
	defer w.wg.Done()

	var mu sync.Mutex
	var timer *time.Timer
	scheduleReload := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(reloadDebounce, w.reload)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				if event.Op&(fsnotify.Rename|fsnotify.Remove) != 0 {
					// Atomic-save editors drop the watch with the old inode.
					_ = fw.Add(w.path)
				}
				scheduleReload()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watch error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("config reload failed, keeping previous snapshot", "error", err)
		return
	}
	w.current.Store(cfg)
	w.logger.Info("config reloaded",
		"providers", len(cfg.Providers),
		"mcp_servers", len(cfg.MCPServers))
}
