package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/haowjy/ragstream-go/blobstore"
	"github.com/haowjy/ragstream-go/embed"
	"github.com/haowjy/ragstream-go/ingest"
	"github.com/haowjy/ragstream-go/store"
)

// ingestConcurrency bounds parallel file reads during ingestion.
const ingestConcurrency = 4

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Chunk, embed, and index documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runIngest(ctx, args)
	},
}

func runIngest(ctx context.Context, paths []string) error {
	index, err := store.Open(cfg.IndexPath, cfg.Dimensions, store.WithIndexLogger(logger))
	if err != nil {
		return err
	}
	defer index.Close()

	// Documents are embedded for retrieval indexing.
	embedder, err := embed.NewGenAIEngine(ctx, cfg.GeminiAPIKey, cfg.EmbedModel, "RETRIEVAL_DOCUMENT")
	if err != nil {
		return err
	}

	bucket := cfg.S3Bucket
	if bucket == "" {
		bucket = "local"
	}

	// With a blob store configured, batches are staged under the
	// pending prefix for the serve-side upsert sweep; otherwise they go
	// straight into the index.
	blobs, err := newBlobStore(ctx)
	if err != nil {
		return err
	}
	var sink embed.BatchSink = index
	if blobs != nil {
		sink = embed.NewBlobSink(blobs, pendingPrefix)
		logger.Info("staging vector batches", zap.String("prefix", pendingPrefix))
	}

	batcher := embed.NewBatcher(embedder, sink, embed.WithBatcherLogger(logger))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return batcher.Run(ctx)
	})

	files := make(chan string)
	g.Go(func() error {
		defer close(files)
		for _, path := range paths {
			select {
			case files <- path:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	readers, readCtx := errgroup.WithContext(ctx)
	readers.SetLimit(ingestConcurrency)
	g.Go(func() error {
		defer batcher.Close()
		for path := range files {
			path := path
			readers.Go(func() error {
				return ingestFile(readCtx, batcher, blobs, bucket, path)
			})
		}
		return readers.Wait()
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("ingest complete", zap.Int("files", len(paths)))
	return nil
}

func ingestFile(ctx context.Context, batcher *embed.Batcher, blobs blobstore.Store, bucket, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	chunks := ingest.ChunkDocument(bucket, path, string(data))
	if len(chunks) == 0 {
		logger.Warn("no chunks produced", zap.String("file", path))
		return nil
	}

	if blobs != nil {
		var buf bytes.Buffer
		if err := ingest.WriteJSONL(&buf, chunks); err != nil {
			return err
		}
		key := processedPrefix + chunks[0].DocID + ".jsonl"
		if err := blobs.Put(ctx, key, &buf); err != nil {
			return fmt.Errorf("saving processed chunks %s: %w", key, err)
		}
	}

	for _, c := range chunks {
		if err := batcher.Add(ctx, c); err != nil {
			return err
		}
	}

	logger.Info("document chunked",
		zap.String("file", path),
		zap.String("doc_id", chunks[0].DocID),
		zap.String("language", chunks[0].Language),
		zap.Int("chunks", len(chunks)),
	)
	return nil
}
