package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config is read from RAGD_* environment variables, optionally seeded
// from a .env file in the working directory.
type Config struct {
	// Addr is the serve listen address.
	Addr string
	// IndexPath is the SQLite index database file.
	IndexPath string
	// Dimensions must match the embedding model.
	Dimensions int

	// AuthToken is the shared secret accepted by the API.
	AuthToken string

	// EmbedModel is the Gemini embedding model.
	EmbedModel string
	// GeminiAPIKey authenticates embedding and Gemini generation.
	GeminiAPIKey string

	// GenerateProvider selects the answer engine: gemini, anthropic,
	// or lorem.
	GenerateProvider string
	// GenerateModel overrides the engine's default model.
	GenerateModel string
	// AnthropicAPIKey authenticates Anthropic generation.
	AnthropicAPIKey string
	// MaxTokens caps generated answers.
	MaxTokens int

	// WatchDir, when set, enables the vector batch watcher.
	WatchDir string

	// S3Bucket, when set, selects the S3 blob store for documents and
	// staged vector batches.
	S3Bucket     string
	S3Region     string
	S3Endpoint   string
	S3PathStyle  bool
	// BlobDir selects the local filesystem blob store instead.
	BlobDir string

	// ServerURL is the query subcommand's target; it authenticates with
	// AuthToken.
	ServerURL string
}

// Blob store key prefixes for chunk output and staged vector batches.
const (
	processedPrefix = "processed/"
	pendingPrefix   = "vectors/pending/"
	donePrefix      = "vectors/done/"
	failedPrefix    = "vectors/failed/"
)

// LoadConfig reads configuration from the environment.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Addr:             envOr("RAGD_ADDR", ":8080"),
		IndexPath:        envOr("RAGD_INDEX_PATH", "ragd.db"),
		AuthToken:        os.Getenv("RAGD_AUTH_TOKEN"),
		EmbedModel:       os.Getenv("RAGD_EMBED_MODEL"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GenerateProvider: envOr("RAGD_GENERATE_PROVIDER", "gemini"),
		GenerateModel:    os.Getenv("RAGD_GENERATE_MODEL"),
		AnthropicAPIKey:  os.Getenv("ANTHROPIC_API_KEY"),
		WatchDir:         os.Getenv("RAGD_WATCH_DIR"),
		S3Bucket:         os.Getenv("RAGD_S3_BUCKET"),
		S3Region:         os.Getenv("RAGD_S3_REGION"),
		S3Endpoint:       os.Getenv("RAGD_S3_ENDPOINT"),
		BlobDir:          os.Getenv("RAGD_BLOB_DIR"),
		ServerURL:        envOr("RAGD_SERVER_URL", "http://localhost:8080"),
	}

	var err error
	if cfg.Dimensions, err = envInt("RAGD_EMBED_DIMENSIONS", 768); err != nil {
		return Config{}, err
	}
	if cfg.MaxTokens, err = envInt("RAGD_MAX_TOKENS", 2048); err != nil {
		return Config{}, err
	}
	cfg.S3PathStyle = os.Getenv("RAGD_S3_PATH_STYLE") == "true"

	if cfg.GenerateProvider == "lorem" && cfg.GenerateModel == "" {
		cfg.GenerateModel = "lorem-fast"
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
