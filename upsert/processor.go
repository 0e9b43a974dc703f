// Package upsert loads embedded vector batches and applies them to the
// search index. Batches arrive as JSONL files, either dropped into a
// watched directory or staged under a pending/ prefix in object
// storage.
package upsert

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/haowjy/ragstream-go/blobstore"
	"github.com/haowjy/ragstream-go/embed"
)

// Indexer applies embedded vectors to the search index.
type Indexer interface {
	Upsert(ctx context.Context, vectors []embed.Vector) error
}

// Processor applies vector batch files to an Indexer.
type Processor struct {
	index  Indexer
	logger *zap.Logger
}

// NewProcessor creates a Processor. A nil logger is replaced with a
// no-op logger.
func NewProcessor(index Indexer, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{index: index, logger: logger}
}

// ProcessReader decodes one JSONL batch and upserts it. Returns the
// number of vectors applied.
func (p *Processor) ProcessReader(ctx context.Context, r io.Reader) (int, error) {
	vectors, err := embed.ReadJSONL(r)
	if err != nil {
		return 0, fmt.Errorf("upsert: %w", err)
	}
	if len(vectors) == 0 {
		return 0, nil
	}
	if err := p.index.Upsert(ctx, vectors); err != nil {
		return 0, fmt.Errorf("upsert: applying %d vectors: %w", len(vectors), err)
	}
	return len(vectors), nil
}

// ProcessFile applies one batch file, then moves it to doneDir on
// success or failedDir on error.
func (p *Processor) ProcessFile(ctx context.Context, path, doneDir, failedDir string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("upsert: opening %s: %w", path, err)
	}
	count, procErr := p.ProcessReader(ctx, f)
	f.Close()

	if procErr != nil {
		p.logger.Error("batch failed",
			zap.String("file", path),
			zap.Error(procErr),
		)
		if err := moveFile(path, failedDir); err != nil {
			p.logger.Error("could not move failed batch", zap.String("file", path), zap.Error(err))
		}
		return procErr
	}

	p.logger.Info("batch applied",
		zap.String("file", path),
		zap.Int("vectors", count),
	)
	return moveFile(path, doneDir)
}

func moveFile(path, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("upsert: creating %s: %w", dir, err)
	}
	dst := filepath.Join(dir, filepath.Base(path))
	if err := os.Rename(path, dst); err != nil {
		return fmt.Errorf("upsert: moving %s to %s: %w", path, dir, err)
	}
	return nil
}

// ProcessPending applies every batch under pendingPrefix in the object
// store, moving each to donePrefix or failedPrefix. Returns the total
// number of vectors applied. Individual batch failures are recorded
// and do not stop the sweep.
func (p *Processor) ProcessPending(ctx context.Context, store blobstore.Store, pendingPrefix, donePrefix, failedPrefix string) (int, error) {
	objects, err := store.List(ctx, pendingPrefix)
	if err != nil {
		return 0, fmt.Errorf("upsert: listing pending batches: %w", err)
	}

	total := 0
	for _, obj := range objects {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		if !strings.HasSuffix(obj.Key, ".jsonl") {
			continue
		}

		count, procErr := p.processObject(ctx, store, obj.Key)
		dstPrefix := donePrefix
		if procErr != nil {
			p.logger.Error("pending batch failed", zap.String("key", obj.Key), zap.Error(procErr))
			dstPrefix = failedPrefix
		} else {
			total += count
			p.logger.Info("pending batch applied", zap.String("key", obj.Key), zap.Int("vectors", count))
		}

		dst := dstPrefix + strings.TrimPrefix(obj.Key, pendingPrefix)
		if err := store.Move(ctx, obj.Key, dst); err != nil {
			return total, fmt.Errorf("upsert: moving %s: %w", obj.Key, err)
		}
	}
	return total, nil
}

func (p *Processor) processObject(ctx context.Context, store blobstore.Store, key string) (int, error) {
	rc, err := store.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("upsert: reading %s: %w", key, err)
	}
	defer rc.Close()
	return p.ProcessReader(ctx, rc)
}
