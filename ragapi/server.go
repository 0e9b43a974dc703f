// Package ragapi serves the retrieval-augmented query API: question
// answering over the document index with incremental event-stream
// responses, document upload URLs, and prompt management.
package ragapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/haowjy/ragstream-go/blobstore"
	"github.com/haowjy/ragstream-go/embed"
	"github.com/haowjy/ragstream-go/generate"
	"github.com/haowjy/ragstream-go/ingest"
	"github.com/haowjy/ragstream-go/prompt"
	"github.com/haowjy/ragstream-go/store"
)

const (
	defaultMaxResults  = 5
	defaultTemperature = 0.7
	presignTTL         = 30 * time.Minute
)

// Searcher is the slice of the index the server needs.
type Searcher interface {
	Search(ctx context.Context, embedding []float32, limit int) ([]store.Neighbor, error)
	GetChunk(ctx context.Context, chunkID string) (ingest.Chunk, error)
	Ping(ctx context.Context) error
}

// Templates serves the active prompt template.
type Templates interface {
	Get(ctx context.Context) (prompt.Template, error)
	Reload(ctx context.Context) (prompt.Template, error)
}

// Server is the RAG query API.
type Server struct {
	embedder  embed.Engine
	engine    generate.Engine
	index     Searcher
	templates Templates
	blobs     blobstore.Store
	verifier  TokenVerifier
	logger    *zap.Logger

	model     string
	maxTokens int
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithModel sets the generation model passed to the engine.
func WithModel(model string) ServerOption {
	return func(s *Server) { s.model = model }
}

// WithMaxTokens caps generated answer length.
func WithMaxTokens(n int) ServerOption {
	return func(s *Server) { s.maxTokens = n }
}

// WithServerLogger sets the logger. Defaults to a no-op logger.
func WithServerLogger(logger *zap.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer assembles the API from its collaborators. blobs may be nil
// when document uploads are disabled.
func NewServer(embedder embed.Engine, engine generate.Engine, index Searcher, templates Templates, blobs blobstore.Store, verifier TokenVerifier, opts ...ServerOption) *Server {
	s := &Server{
		embedder:  embedder,
		engine:    engine,
		index:     index,
		templates: templates,
		blobs:     blobs,
		verifier:  verifier,
		logger:    zap.NewNop(),
		maxTokens: 2048,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /query", s.authed(s.handleQuery))
	mux.HandleFunc("POST /documents", s.authed(s.handleDocuments))
	mux.HandleFunc("POST /reload-prompts", s.authed(s.handleReloadPrompts))
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	return mux
}

// authed wraps a handler with bearer token verification. The resolved
// user ID is passed through the request context.
func (s *Server) authed(next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		userID, err := s.verifier.Verify(r.Context(), token)
		if err != nil {
			s.logger.Warn("auth failed", zap.Error(err))
			s.writeError(w, http.StatusUnauthorized, "Invalid authentication")
			return
		}
		next(w, r, userID)
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

// writeError emits a JSON error body in the {"detail": ...} shape.
func (s *Server) writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("writing response", zap.Error(err))
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.index.Ping(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleReloadPrompts(w http.ResponseWriter, r *http.Request, _ string) {
	tmpl, err := s.templates.Reload(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"version": tmpl.Version})
}
