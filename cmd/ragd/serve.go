package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/haowjy/ragstream-go/blobstore"
	"github.com/haowjy/ragstream-go/embed"
	"github.com/haowjy/ragstream-go/generate"
	"github.com/haowjy/ragstream-go/prompt"
	"github.com/haowjy/ragstream-go/ragapi"
	"github.com/haowjy/ragstream-go/store"
	"github.com/haowjy/ragstream-go/upsert"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the query API server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func runServe(ctx context.Context) error {
	if cfg.AuthToken == "" {
		return fmt.Errorf("RAGD_AUTH_TOKEN is required")
	}

	index, err := store.Open(cfg.IndexPath, cfg.Dimensions, store.WithIndexLogger(logger))
	if err != nil {
		return err
	}
	defer index.Close()

	// Questions are embedded as retrieval queries.
	embedder, err := embed.NewGenAIEngine(ctx, cfg.GeminiAPIKey, cfg.EmbedModel, "RETRIEVAL_QUERY")
	if err != nil {
		return err
	}

	engine, err := newGenerateEngine(ctx)
	if err != nil {
		return err
	}

	blobs, err := newBlobStore(ctx)
	if err != nil {
		return err
	}

	templates := prompt.NewCache(index, prompt.WithCacheLogger(logger))
	server := ragapi.NewServer(
		embedder, engine, index, templates, blobs,
		ragapi.SharedSecretVerifier{Secret: cfg.AuthToken},
		ragapi.WithModel(cfg.GenerateModel),
		ragapi.WithMaxTokens(cfg.MaxTokens),
		ragapi.WithServerLogger(logger),
	)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("serving query API", zap.String("addr", cfg.Addr), zap.String("engine", engine.Name()))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	processor := upsert.NewProcessor(index, logger)

	if blobs != nil {
		g.Go(func() error {
			count, err := processor.ProcessPending(ctx, blobs, pendingPrefix, donePrefix, failedPrefix)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("pending batch sweep failed", zap.Error(err))
				return nil
			}
			if count > 0 {
				logger.Info("applied staged vector batches", zap.Int("vectors", count))
			}
			return nil
		})
	}

	if cfg.WatchDir != "" {
		watcher := upsert.NewWatcher(processor, cfg.WatchDir, cfg.WatchDir+"/done", cfg.WatchDir+"/failed", logger)
		g.Go(func() error {
			err := watcher.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shut down cleanly")
	return nil
}

func newGenerateEngine(ctx context.Context) (generate.Engine, error) {
	switch cfg.GenerateProvider {
	case "gemini":
		return generate.NewGeminiEngine(ctx, cfg.GeminiAPIKey, cfg.GenerateModel)
	case "anthropic":
		return generate.NewAnthropicEngine(cfg.AnthropicAPIKey, cfg.GenerateModel)
	case "lorem":
		return generate.NewLoremEngine(), nil
	default:
		return nil, fmt.Errorf("unknown generate provider %q (use gemini, anthropic, or lorem)", cfg.GenerateProvider)
	}
}

func newBlobStore(ctx context.Context) (blobstore.Store, error) {
	switch {
	case cfg.S3Bucket != "":
		return blobstore.NewS3Store(ctx, blobstore.S3Config{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			UsePathStyle: cfg.S3PathStyle,
		})
	case cfg.BlobDir != "":
		return blobstore.NewLocalStore(cfg.BlobDir)
	default:
		return nil, nil
	}
}
