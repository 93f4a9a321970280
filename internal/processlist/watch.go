package processlist

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the registry file at path whenever it is written, created or
// renamed into place, and passes every successfully loaded registry to
// onReload. The parent directory is watched so atomic replacement by Save
// is seen. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, logger *slog.Logger, onReload func(*ProcessList)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	target := filepath.Clean(path)
	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}
	logger = logger.With("component", "processlist-watch", "path", target)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			pl, err := Load(target)
			if err != nil {
				logger.Warn("reload failed", "error", err)
				continue
			}
			if !pl.OK() {
				continue
			}
			logger.Info("process list reloaded", "op", ev.Op.String(), "processes", len(pl.Names()))
			onReload(pl)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", "error", err)
		}
	}
}
