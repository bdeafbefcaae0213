package zonestore

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// SeedCallback is called after a watcher-driven re-seed wrote changes.
type SeedCallback func(changed int)

// WatchSeed re-applies the seed file whenever it is written or replaced,
// until ctx is cancelled. The parent directory is watched so that editors
// that save via rename are handled. Bursts of events are debounced.
func WatchSeed(ctx context.Context, db *DB, seedPath string, logger *slog.Logger, cb SeedCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	abs, err := filepath.Abs(seedPath)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	logger.Info("seed watcher: started", slog.String("path", abs))

	var debounce *time.Timer
	var debounceCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			logger.Info("seed watcher: stopped")
			return nil

		case <-debounceCh:
			debounceCh = nil
			changed, err := SeedFile(ctx, db, abs, logger)
			if err != nil {
				logger.Warn("seed watcher: reseed failed", slog.String("error", err.Error()))
				continue
			}
			logger.Info("seed watcher: reseeded", slog.Int("changed", changed))
			if changed > 0 && cb != nil {
				cb(changed)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(200 * time.Millisecond)
			} else {
				debounce.Reset(200 * time.Millisecond)
			}
			debounceCh = debounce.C

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("seed watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
