// Package ragstream is the client for the streaming RAG query API.
//
// The server answers a query as a text event stream: newline-delimited
// records prefixed with "data: ", each carrying a JSON frame with either
// an incremental answer fragment or the terminal marker with the final
// source list and prompt version. The client consumes that stream
// incrementally and makes partial results observable as they arrive
// rather than only at completion.
package ragstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Doer abstracts the HTTP transport so tests can substitute their own.
// *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client issues streaming queries against a RAG query endpoint.
//
// A Client is safe for concurrent use; each StreamQuery call owns its
// accumulator and reader loop and shares nothing with other calls except
// the transport and the token provider.
type Client struct {
	baseURL string
	http    Doer
	tokens  TokenProvider
	mode    DecodeMode
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the transport. Default is http.DefaultClient.
func WithHTTPClient(d Doer) Option {
	return func(c *Client) { c.http = d }
}

// WithDecodeMode selects the line-decoding strategy. Default is
// DecodeBuffered.
func WithDecodeMode(m DecodeMode) Option {
	return func(c *Client) { c.mode = m }
}

// WithLogger sets the logger used for recoverable stream anomalies
// (malformed records, frames after the terminal frame). Default is a
// no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client for the query API rooted at baseURL.
func NewClient(baseURL string, tokens TokenProvider, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    http.DefaultClient,
		tokens:  tokens,
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// QueryRequest is the body of a streaming query.
type QueryRequest struct {
	Question    string  `json:"question"`
	MaxResults  int     `json:"max_results,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// StreamEvent is one update from a streaming query.
// Each event carries a snapshot, the terminal result, or an error.
type StreamEvent struct {
	// Snapshot is the accumulated state after an applied fragment
	// (nil if result/error).
	Snapshot *Snapshot

	// Result is the completed outcome, sent at most once when the
	// terminal frame arrives (nil until then).
	Result *QueryResult

	// Error is a terminal stream failure, sent at most once
	// (nil if successful).
	Error error
}

// StreamQuery issues the query and consumes the response stream.
//
// Failures that occur before any frame can be applied — token
// acquisition, request construction, transport errors, a non-success
// status, a missing body — are returned synchronously and the
// accumulator is never touched. On success the returned channel emits a
// Snapshot after every applied fragment, a Result when the terminal
// frame arrives, and an Error for a mid-stream transport failure; it is
// closed when the stream ends. The call is finite and not restartable;
// the client performs no retry of any kind.
//
// Usage:
//
//	events, err := client.StreamQuery(ctx, req)
//	if err != nil { return err }
//	for event := range events {
//	  if event.Error != nil { handle error }
//	  if event.Snapshot != nil { render partial answer }
//	  if event.Result != nil { render sources }
//	}
func (c *Client) StreamQuery(ctx context.Context, req *QueryRequest) (<-chan StreamEvent, error) {
	resp, err := c.open(ctx, req)
	if err != nil {
		return nil, err
	}

	events := make(chan StreamEvent, 10) // Buffered to prevent blocking

	go func() {
		defer close(events)
		defer resp.Body.Close()

		acc := newAccumulator()
		if err := c.readStream(ctx, resp.Body, acc, events); err != nil {
			acc.fail(err)
			events <- StreamEvent{Error: err}
			return
		}
		acc.finish()
	}()

	return events, nil
}

// Query is the blocking variant of StreamQuery: it drains the stream and
// returns the completed result. If the stream ends without a terminal
// frame, the result carries whatever text was accumulated with empty
// sources and version.
func (c *Client) Query(ctx context.Context, req *QueryRequest) (*QueryResult, error) {
	events, err := c.StreamQuery(ctx, req)
	if err != nil {
		return nil, err
	}

	var result QueryResult
	var last *Snapshot
	for event := range events {
		if event.Error != nil {
			return nil, event.Error
		}
		if event.Snapshot != nil {
			last = event.Snapshot
		}
		if event.Result != nil {
			result = *event.Result
		}
	}
	if result.Answer == "" && last != nil {
		result.Answer = last.Text
	}
	return &result, nil
}

// open sends the request and validates that the response is streamable.
func (c *Client) open(ctx context.Context, req *QueryRequest) (*http.Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, &TokenError{Err: err}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("ragstream: encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/query", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ragstream: building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ragstream: request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, newStatusError(resp)
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		if resp.Body != nil {
			resp.Body.Close()
		}
		return nil, ErrStreamUnsupported
	}

	return resp, nil
}

// readStream runs the read loop: pull lines, parse frames, apply them to
// the accumulator, emit events. Returns only transport-level errors;
// malformed records are logged and skipped.
func (c *Client) readStream(ctx context.Context, body io.Reader, acc *Accumulator, events chan<- StreamEvent) error {
	dec := newLineDecoder(c.mode, body)

	for {
		line, err := dec.NextLine()
		if err != nil && err != io.EOF {
			return fmt.Errorf("ragstream: reading stream: %w", err)
		}

		// The residual line delivered with io.EOF still gets processed:
		// content with no trailing newline is valid.
		if line != "" {
			c.applyLine(line, acc, events)
		}

		if err == io.EOF {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// applyLine parses one complete line and folds the frame into the
// accumulator. One malformed record must not abort the stream.
func (c *Client) applyLine(line string, acc *Accumulator, events chan<- StreamEvent) {
	if !strings.HasPrefix(line, framePrefix) {
		return
	}
	payload := strings.TrimPrefix(line, framePrefix)

	var frame Frame
	if err := json.Unmarshal([]byte(payload), &frame); err != nil {
		c.logger.Warn("dropping malformed stream record", zap.Error(err))
		return
	}

	if acc.done {
		c.logger.Warn("ignoring frame after terminal record")
		return
	}

	if frame.Chunk != "" {
		acc.appendChunk(frame.Chunk)
		snap := acc.Snapshot()
		events <- StreamEvent{Snapshot: &snap}
	}

	if frame.Done {
		acc.complete(frame.Sources, frame.PromptVersion)
		result := acc.Result()
		events <- StreamEvent{Result: &result}
	}
}

// statusErrorBodyLimit caps how much of an error response body is kept.
const statusErrorBodyLimit = 2048

func newStatusError(resp *http.Response) *StatusError {
	var body string
	if resp.Body != nil {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, statusErrorBodyLimit))
		body = strings.TrimSpace(string(b))
	}
	return &StatusError{
		StatusCode: resp.StatusCode,
		Body:       body,
		Err:        sentinelForStatus(resp.StatusCode),
	}
}
