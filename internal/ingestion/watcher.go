package ingestion

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Benny93/fedgraph/internal/ctxlog"
	"github.com/Benny93/fedgraph/internal/storage"
)

// DefaultDebounce is the time between the last archive change and the
// re-import.
const DefaultDebounce = 2 * time.Second

// ImportFunc receives the outcome of every import WatchFederation runs.
type ImportFunc func(result *PipelineResult, err error)

// WatchFederation imports the archive once, then re-imports it whenever it
// changes on disk. Changes are batched until the archive has been quiet for
// the debounce period. Blocks until the context is cancelled.
func WatchFederation(ctx context.Context, archivePath string, store storage.StorageBackend, opts Options, onImport ImportFunc) error {
	logger := ctxlog.FromContext(ctx)

	absPath, err := filepath.Abs(archivePath)
	if err != nil {
		return fmt.Errorf("resolving archive path: %w", err)
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if opts.Name == "" {
		opts.Name = FederationName(absPath)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	// The directory is watched so that editors replacing the file by rename
	// keep being observed.
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("setting up watcher: %w", err)
	}

	runImport := func() {
		_, result, err := RunPipeline(ctx, absPath, store, opts, nil)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("import failed", "archive", absPath, "error", err)
		}
		if onImport != nil {
			onImport(result, err)
		}
	}

	runImport()

	batchTimer := time.NewTimer(debounce)
	batchTimer.Stop() // Don't start yet
	pending := false

	logger.Info("watching archive", "archive", absPath, "debounce", debounce)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isArchiveEvent(event, absPath) {
				continue
			}
			pending = true
			batchTimer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", "error", err)

		case <-batchTimer.C:
			if !pending {
				continue
			}
			pending = false
			logger.Info("archive changed, re-importing", "archive", absPath)
			runImport()
		}
	}
}

// isArchiveEvent checks if an event touches the watched archive with a
// content change.
func isArchiveEvent(event fsnotify.Event, absPath string) bool {
	if filepath.Clean(event.Name) != absPath {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create)
}
