package upsert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const (
	watchDebounce = 500 * time.Millisecond
	watchSweep    = 200 * time.Millisecond
)

// Watcher applies vector batch files as they land in a directory.
// Writers are expected to finish a file and leave it alone; rapid
// successive writes are debounced.
type Watcher struct {
	processor *Processor
	logger    *zap.Logger

	dir       string
	doneDir   string
	failedDir string
}

// NewWatcher creates a Watcher for dir. Processed files move to
// doneDir or failedDir.
func NewWatcher(processor *Processor, dir, doneDir, failedDir string, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		processor: processor,
		logger:    logger,
		dir:       dir,
		doneDir:   doneDir,
		failedDir: failedDir,
	}
}

// Run watches the directory until the context is cancelled. Files
// already present at startup are processed first.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("upsert: creating watch dir %s: %w", w.dir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("upsert: creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("upsert: watching %s: %w", w.dir, err)
	}

	if err := w.processExisting(ctx); err != nil {
		return err
	}

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(watchSweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
				continue
			}
			if !strings.HasSuffix(event.Name, ".jsonl") {
				continue
			}
			pending[event.Name] = time.Now()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch error", zap.Error(err))
		case <-ticker.C:
			now := time.Now()
			for path, last := range pending {
				if now.Sub(last) < watchDebounce {
					continue
				}
				delete(pending, path)
				// Process failures are logged and the file moved
				// aside; the watcher keeps running.
				_ = w.processor.ProcessFile(ctx, path, w.doneDir, w.failedDir)
			}
		}
	}
}

func (w *Watcher) processExisting(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("upsert: reading %s: %w", w.dir, err)
	}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		_ = w.processor.ProcessFile(ctx, filepath.Join(w.dir, entry.Name()), w.doneDir, w.failedDir)
	}
	return nil
}
