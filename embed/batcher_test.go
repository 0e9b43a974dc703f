package embed

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haowjy/ragstream-go/ingest"
)

// fakeEngine derives a deterministic vector from text length.
type fakeEngine struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (e *fakeEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *fakeEngine) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.fail {
		return nil, fmt.Errorf("embed backend down")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (e *fakeEngine) Dimensions() int { return 2 }
func (e *fakeEngine) Name() string    { return "fake" }

func (e *fakeEngine) setFail(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fail = v
}

func (e *fakeEngine) attempts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type memorySink struct {
	mu      sync.Mutex
	batches [][]Vector
}

func (s *memorySink) WriteBatch(_ context.Context, vectors []Vector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := make([]Vector, len(vectors))
	copy(batch, vectors)
	s.batches = append(s.batches, batch)
	return nil
}

func (s *memorySink) all() []Vector {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Vector
	for _, b := range s.batches {
		out = append(out, b...)
	}
	return out
}

func testChunk(i int) ingest.Chunk {
	return ingest.Chunk{
		DocID:      "doc",
		ChunkID:    fmt.Sprintf("doc_%d", i),
		SourceURI:  "s3://bucket/file.txt",
		Text:       fmt.Sprintf("chunk number %d", i),
		Language:   "en",
		ChunkIndex: i,
	}
}

func TestBatcher_FlushesAtBatchSize(t *testing.T) {
	engine := &fakeEngine{}
	sink := &memorySink{}
	b := NewBatcher(engine, sink, WithFlushSize(5), WithFlushInterval(time.Hour))

	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background()) }()

	for i := 0; i < 12; i++ {
		require.NoError(t, b.Add(context.Background(), testChunk(i)))
	}
	b.Close()
	require.NoError(t, <-done)

	vectors := sink.all()
	require.Len(t, vectors, 12)
	// Two full batches plus the remainder at close.
	assert.Len(t, sink.batches, 3)
	assert.Equal(t, "doc_0", vectors[0].ID)
	assert.Equal(t, "s3://bucket/file.txt", vectors[0].Metadata.SourceURI)
}

func TestBatcher_FlushesOnInterval(t *testing.T) {
	engine := &fakeEngine{}
	sink := &memorySink{}
	b := NewBatcher(engine, sink, WithFlushSize(100), WithFlushInterval(20*time.Millisecond))

	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background()) }()

	require.NoError(t, b.Add(context.Background(), testChunk(0)))

	assert.Eventually(t, func() bool {
		return len(sink.all()) == 1
	}, time.Second, 5*time.Millisecond)

	b.Close()
	require.NoError(t, <-done)
}

func TestBatcher_FlushesRemainderOnClose(t *testing.T) {
	engine := &fakeEngine{}
	sink := &memorySink{}
	b := NewBatcher(engine, sink, WithFlushSize(50), WithFlushInterval(time.Hour))

	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background()) }()

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Add(context.Background(), testChunk(i)))
	}
	b.Close()
	require.NoError(t, <-done)

	assert.Len(t, sink.all(), 3)
}

func TestBatcher_FlushFailureDropsBatchAndContinues(t *testing.T) {
	engine := &fakeEngine{fail: true}
	sink := &memorySink{}
	b := NewBatcher(engine, sink, WithFlushSize(2), WithFlushInterval(time.Hour))

	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background()) }()

	// First batch fails at the engine and is dropped.
	require.NoError(t, b.Add(context.Background(), testChunk(0)))
	require.NoError(t, b.Add(context.Background(), testChunk(1)))
	assert.Eventually(t, func() bool { return engine.attempts() >= 1 }, time.Second, time.Millisecond)

	// Backend recovers; the next batch goes through.
	engine.setFail(false)
	require.NoError(t, b.Add(context.Background(), testChunk(2)))
	require.NoError(t, b.Add(context.Background(), testChunk(3)))

	b.Close()
	require.NoError(t, <-done)

	vectors := sink.all()
	require.Len(t, vectors, 2)
	assert.Equal(t, "doc_2", vectors[0].ID)
	assert.Equal(t, "doc_3", vectors[1].ID)
}

func TestBatcher_ContextCancelFlushesPending(t *testing.T) {
	engine := &fakeEngine{}
	sink := &memorySink{}
	b := NewBatcher(engine, sink, WithFlushSize(50), WithFlushInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	require.NoError(t, b.Add(ctx, testChunk(0)))
	require.NoError(t, b.Add(ctx, testChunk(1)))

	// Give Run a moment to drain the queue into its batch.
	assert.Eventually(t, func() bool { return len(b.in) == 0 }, time.Second, time.Millisecond)
	cancel()

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, sink.all(), 2)
}

func TestCosineSimilarity(t *testing.T) {
	got, err := CosineSimilarity([]float32{1, 0}, []float32{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got, 1e-9)

	got, err = CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, got, 1e-9)

	_, err = CosineSimilarity([]float32{1}, []float32{1, 2})
	assert.Error(t, err)

	got, err = CosineSimilarity([]float32{0, 0}, []float32{1, 2})
	require.NoError(t, err)
	assert.Zero(t, got)
}
