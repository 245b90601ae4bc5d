package valves

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// reloadDebounce coalesces the event bursts editors produce on save.
const reloadDebounce = 200 * time.Millisecond

// Watch reloads the store's file defaults whenever the file at path changes,
// blocking until ctx is cancelled. load reads and parses the file; a failed
// load or an invalid layer keeps the previous defaults in effect.
func Watch(ctx context.Context, path string, store *Store, load func() (map[string]string, error), logger *zap.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the parent directory: editors often replace the file via
	// rename, which silently drops a watch placed on the file itself.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	base := filepath.Base(path)
	debounce := time.NewTimer(reloadDebounce)
	if !debounce.Stop() {
		<-debounce.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			debounce.Reset(reloadDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("valve watcher error", zap.Error(err))

		case <-debounce.C:
			defaults, err := load()
			if err != nil {
				logger.Warn("valve defaults reload failed, keeping previous",
					zap.String("path", path), zap.Error(err))
				continue
			}
			if err := store.SetFileDefaults(defaults); err != nil {
				logger.Warn("valve defaults rejected, keeping previous",
					zap.String("path", path), zap.Error(err))
				continue
			}
			logger.Info("valve defaults reloaded", zap.String("path", path))
		}
	}
}
