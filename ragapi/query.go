package ragapi

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	ragstream "github.com/haowjy/ragstream-go"
	"github.com/haowjy/ragstream-go/generate"
	"github.com/haowjy/ragstream-go/ingest"
)

// noResultsAnswer is returned when the index has nothing relevant.
const noResultsAnswer = "I couldn't find any relevant information in the knowledge base for your question."

// sourceChunk pairs a retrieved chunk with its relevance score.
type sourceChunk struct {
	chunk ingest.Chunk
	score float64
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request, userID string) {
	var req ragstream.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	if req.MaxResults <= 0 {
		req.MaxResults = defaultMaxResults
	}
	if req.Temperature == 0 {
		req.Temperature = defaultTemperature
	}

	ctx := r.Context()

	embedding, err := s.embedder.Embed(ctx, req.Question)
	if err != nil {
		s.logger.Error("embedding question failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "embedding failed")
		return
	}

	neighbors, err := s.index.Search(ctx, embedding, req.MaxResults)
	if err != nil {
		s.logger.Error("vector search failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	tmpl, err := s.templates.Get(ctx)
	if err != nil {
		s.logger.Error("loading prompt template failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "prompt template unavailable")
		return
	}

	// Relevance is 1 - cosine distance. Chunks missing from the store
	// are dropped rather than failing the query.
	var chunks []sourceChunk
	for _, n := range neighbors {
		c, err := s.index.GetChunk(ctx, n.ChunkID)
		if err != nil {
			s.logger.Warn("skipping unknown chunk", zap.String("chunk_id", n.ChunkID), zap.Error(err))
			continue
		}
		chunks = append(chunks, sourceChunk{chunk: c, score: 1 - n.Distance})
	}

	if len(chunks) == 0 {
		stream, ok := newEventStream(w)
		if !ok {
			s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
			return
		}
		stream.send(ragstream.Frame{Chunk: noResultsAnswer})
		stream.send(ragstream.Frame{Done: true, PromptVersion: tmpl.Version})
		return
	}

	contextParts := make([]string, len(chunks))
	sources := make([]ragstream.Source, len(chunks))
	for i, sc := range chunks {
		contextParts[i] = fmt.Sprintf("[Source: %s]\n%s", sc.chunk.SourceURI, sc.chunk.Text)
		sources[i] = ragstream.Source{URI: sc.chunk.SourceURI, Score: sc.score}
	}
	promptText := tmpl.Render(strings.Join(contextParts, "\n\n"), req.Question)

	questionHash := md5.Sum([]byte(req.Question))
	s.logger.Info("rag query",
		zap.String("user_id", userID),
		zap.String("question_hash", hex.EncodeToString(questionHash[:])),
		zap.Int("chunks_retrieved", len(chunks)),
		zap.String("prompt_version", tmpl.Version),
	)

	// Generation must be started before the response is committed so a
	// start failure still surfaces as a real 500.
	events, err := s.engine.Stream(ctx, &generate.Request{
		Prompt:      promptText,
		Model:       s.model,
		Temperature: req.Temperature,
		MaxTokens:   s.maxTokens,
	})
	if err != nil {
		s.logger.Error("generation failed to start", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "generation failed")
		return
	}

	stream, ok := newEventStream(w)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	var full strings.Builder
	for event := range events {
		if event.Err != nil {
			// The stream is already open; all we can do is stop
			// without a terminal frame.
			s.logger.Error("generation failed mid-stream", zap.Error(event.Err))
			return
		}
		full.WriteString(event.Text)
		if !stream.send(ragstream.Frame{Chunk: event.Text}) {
			return
		}
	}

	stream.send(ragstream.Frame{
		Done:          true,
		Sources:       sources,
		PromptVersion: tmpl.Version,
	})

	// Rough cost accounting: 4 chars per token.
	estimatedTokens := (len(promptText) + full.Len()) / 4
	s.logger.Info("llm generation complete",
		zap.String("user_id", userID),
		zap.Int("estimated_tokens", estimatedTokens),
		zap.Float64("cost_usd", float64(estimatedTokens)*0.000007),
	)
}

// eventStream writes newline-delimited data: frames with immediate
// flushing.
type eventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	logger  *zap.Logger
	failed  bool
}

func newEventStream(w http.ResponseWriter) (*eventStream, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &eventStream{w: w, flusher: flusher}, true
}

// send writes one frame. Returns false once the client is gone.
func (es *eventStream) send(frame ragstream.Frame) bool {
	if es.failed {
		return false
	}
	data, err := json.Marshal(frame)
	if err != nil {
		es.failed = true
		return false
	}
	if _, err := fmt.Fprintf(es.w, "data: %s\n\n", data); err != nil {
		es.failed = true
		return false
	}
	es.flusher.Flush()
	return true
}
