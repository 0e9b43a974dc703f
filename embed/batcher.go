package embed

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/haowjy/ragstream-go/ingest"
)

const (
	defaultQueueSize     = 1000
	defaultFlushSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// BatchSink receives embedded vectors ready for indexing.
type BatchSink interface {
	WriteBatch(ctx context.Context, vectors []Vector) error
}

// Batcher accumulates chunks and embeds them in batches, flushing when
// enough chunks are queued or the flush interval elapses.
type Batcher struct {
	engine   Engine
	sink     BatchSink
	logger   *zap.Logger
	in       chan ingest.Chunk
	flushLen int
	interval time.Duration
}

// BatcherOption configures a Batcher.
type BatcherOption func(*Batcher)

// WithFlushSize sets the chunk count that triggers an immediate flush.
func WithFlushSize(n int) BatcherOption {
	return func(b *Batcher) {
		if n > 0 {
			b.flushLen = n
		}
	}
}

// WithFlushInterval sets how long a partial batch may wait before it
// is flushed anyway.
func WithFlushInterval(d time.Duration) BatcherOption {
	return func(b *Batcher) {
		if d > 0 {
			b.interval = d
		}
	}
}

// WithQueueSize sets the pending chunk queue capacity.
func WithQueueSize(n int) BatcherOption {
	return func(b *Batcher) {
		if n > 0 {
			b.in = make(chan ingest.Chunk, n)
		}
	}
}

// WithBatcherLogger sets the logger. Defaults to a no-op logger.
func WithBatcherLogger(logger *zap.Logger) BatcherOption {
	return func(b *Batcher) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBatcher creates a Batcher. Call Run to start processing and Close
// when no more chunks will be added.
func NewBatcher(engine Engine, sink BatchSink, opts ...BatcherOption) *Batcher {
	b := &Batcher{
		engine:   engine,
		sink:     sink,
		logger:   zap.NewNop(),
		in:       make(chan ingest.Chunk, defaultQueueSize),
		flushLen: defaultFlushSize,
		interval: defaultFlushInterval,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Add queues a chunk for embedding. Blocks when the queue is full
// until Run drains it or the context is cancelled.
func (b *Batcher) Add(ctx context.Context, c ingest.Chunk) error {
	select {
	case b.in <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close signals that no more chunks will be added. Run flushes the
// remaining batch and returns.
func (b *Batcher) Close() {
	close(b.in)
}

// Run processes queued chunks until Close is called or the context is
// cancelled. Pending chunks are flushed before returning. A failed
// flush is logged and its batch dropped; the loop keeps running.
func (b *Batcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	batch := make([]ingest.Chunk, 0, b.flushLen)
	for {
		select {
		case c, ok := <-b.in:
			if !ok {
				b.flushDropOnError(ctx, batch)
				return nil
			}
			batch = append(batch, c)
			if len(batch) >= b.flushLen {
				b.flushDropOnError(ctx, batch)
				batch = batch[:0]
				ticker.Reset(b.interval)
			}
		case <-ticker.C:
			b.flushDropOnError(ctx, batch)
			batch = batch[:0]
		case <-ctx.Done():
			b.flushDropOnError(context.WithoutCancel(ctx), batch)
			return ctx.Err()
		}
	}
}

// flushDropOnError flushes the batch, logging and discarding it on
// failure so one backend outage does not stop the loop.
func (b *Batcher) flushDropOnError(ctx context.Context, batch []ingest.Chunk) {
	if err := b.flush(ctx, batch); err != nil {
		b.logger.Error("dropping failed embedding batch",
			zap.Int("count", len(batch)),
			zap.Error(err),
		)
	}
}

func (b *Batcher) flush(ctx context.Context, batch []ingest.Chunk) error {
	if len(batch) == 0 {
		return nil
	}

	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}

	embeddings, err := b.engine.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed: batch of %d chunks: %w", len(batch), err)
	}
	if len(embeddings) != len(batch) {
		return fmt.Errorf("embed: got %d embeddings for %d chunks", len(embeddings), len(batch))
	}

	vectors := make([]Vector, len(batch))
	for i, c := range batch {
		vectors[i] = NewVector(c, embeddings[i])
	}

	if err := b.sink.WriteBatch(ctx, vectors); err != nil {
		return fmt.Errorf("embed: writing batch of %d vectors: %w", len(vectors), err)
	}

	b.logger.Info("flushed embedding batch",
		zap.Int("count", len(vectors)),
		zap.String("engine", b.engine.Name()),
	)
	return nil
}
