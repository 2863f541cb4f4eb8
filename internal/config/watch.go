package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the store when its file is edited by something else.
type Watcher struct {
	store *Store
	fsw   *fsnotify.Watcher
	log   *slog.Logger
}

// Watch starts watching the directory that holds the store's file. Watching
// the directory keeps working across atomic rename-into-place writes.
func Watch(store *Store, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(store.Path())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create config directory: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	return &Watcher{store: store, fsw: fsw, log: logger}, nil
}

// Run processes file events until ctx ends.
func (w *Watcher) Run(ctx context.Context) error {
	name := filepath.Clean(w.store.Path())
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != name || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			cfg, err := Load(name)
			if err != nil {
				w.log.Warn("ignoring invalid config edit", "path", name, "err", err)
				continue
			}
			if w.store.Reload(cfg) {
				w.log.Info("config reloaded", "path", name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("config watcher error", "err", err)
		}
	}
}

func (w *Watcher) Close() error {
	return w.fsw.Close()
}
