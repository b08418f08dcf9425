package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 500 * time.Millisecond

// Watch reloads the catalog whenever a catalog file in its directory changes.
// It blocks until ctx is cancelled.
func (c *Catalog) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create catalog watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(c.dir); err != nil {
		return fmt.Errorf("watch catalog dir: %w", err)
	}

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !isCatalogFile(event.Name) || !isContentChange(event.Op) {
				continue
			}
			pending = time.After(reloadDebounce)
		case <-pending:
			pending = nil
			if err := c.Reload(); err != nil {
				slog.Warn("catalog_reload_failed", "dir", c.dir, "error", err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("catalog_watch_error", "dir", c.dir, "error", err)
		}
	}
}

func isContentChange(op fsnotify.Op) bool {
	switch {
	case op&fsnotify.Create == fsnotify.Create:
		return true
	case op&fsnotify.Write == fsnotify.Write:
		return true
	case op&fsnotify.Remove == fsnotify.Remove:
		return true
	case op&fsnotify.Rename == fsnotify.Rename:
		return true
	default:
		return false
	}
}
