package ragstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

// fakeTransport returns a canned response whose body is delivered in
// exactly the chunks the test specifies.
type fakeTransport struct {
	status  int
	chunks  []string
	body    io.ReadCloser // overrides chunks when set
	lastReq *http.Request
}

func (f *fakeTransport) Do(req *http.Request) (*http.Response, error) {
	f.lastReq = req
	body := f.body
	if body == nil {
		raw := make([][]byte, len(f.chunks))
		for i, c := range f.chunks {
			raw[i] = []byte(c)
		}
		body = io.NopCloser(&chunkReader{chunks: raw})
	}
	status := f.status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{StatusCode: status, Body: body}, nil
}

func collect(t *testing.T, events <-chan StreamEvent) (snaps []Snapshot, result *QueryResult, err error) {
	t.Helper()
	for event := range events {
		if event.Error != nil {
			if err != nil {
				t.Fatal("error event delivered more than once")
			}
			err = event.Error
		}
		if event.Snapshot != nil {
			snaps = append(snaps, *event.Snapshot)
		}
		if event.Result != nil {
			if result != nil {
				t.Fatal("result event delivered more than once")
			}
			r := *event.Result
			result = &r
		}
	}
	return snaps, result, err
}

func streamWith(t *testing.T, transport *fakeTransport, mode DecodeMode) ([]Snapshot, *QueryResult, error) {
	t.Helper()
	client := NewClient("http://rag.test", StaticTokenProvider("tok"),
		WithHTTPClient(transport), WithDecodeMode(mode))
	events, err := client.StreamQuery(context.Background(), &QueryRequest{Question: "q"})
	if err != nil {
		t.Fatalf("StreamQuery failed: %v", err)
	}
	return collect(t, events)
}

func TestStreamQuery_AccumulatesAcrossChunkBoundaries(t *testing.T) {
	// Stream split mid-line and mid-record across transport chunks.
	transport := &fakeTransport{chunks: []string{
		"data: {\"chunk\":\"Hel",
		"lo\"}\ndata: {\"chunk\":\" world\"}\n",
		"data: {\"done\":true,\"sources\":[{\"uri\":\"doc1\",\"score\":0.9}],\"prompt_version\":\"v1\"}\n",
	}}

	for _, mode := range []DecodeMode{DecodeBuffered, DecodeManual} {
		snaps, result, err := streamWith(t, &fakeTransport{chunks: transport.chunks}, mode)
		if err != nil {
			t.Fatalf("mode %d: stream error: %v", mode, err)
		}
		if result == nil {
			t.Fatalf("mode %d: no result delivered", mode)
		}

		if result.Answer != "Hello world" {
			t.Errorf("answer = %q, want %q", result.Answer, "Hello world")
		}
		if len(result.Sources) != 1 || result.Sources[0].URI != "doc1" || result.Sources[0].Score != 0.9 {
			t.Errorf("sources = %+v, want [{doc1 0.9}]", result.Sources)
		}
		if result.PromptVersion != "v1" {
			t.Errorf("prompt version = %q, want %q", result.PromptVersion, "v1")
		}

		// Snapshots grow monotonically, one per fragment.
		if len(snaps) != 2 {
			t.Fatalf("got %d snapshots, want 2", len(snaps))
		}
		if snaps[0].Text != "Hello" || snaps[1].Text != "Hello world" {
			t.Errorf("snapshot texts = %q, %q", snaps[0].Text, snaps[1].Text)
		}
		for i := 1; i < len(snaps); i++ {
			if len(snaps[i].Text) < len(snaps[i-1].Text) {
				t.Errorf("snapshot %d text shrank", i)
			}
		}
	}
}

func TestStreamQuery_MalformedRecordIsSkipped(t *testing.T) {
	transport := &fakeTransport{chunks: []string{
		"data: {\"chunk\":\"a\"}\n",
		"data: {not json\n",
		"data: {\"chunk\":\"b\"}\ndata: {\"done\":true}\n",
	}}

	snaps, result, err := streamWith(t, transport, DecodeBuffered)
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if result == nil || result.Answer != "ab" {
		t.Fatalf("result = %+v, want answer %q", result, "ab")
	}
	if len(snaps) != 2 {
		t.Errorf("got %d snapshots, want 2", len(snaps))
	}
}

func TestStreamQuery_TerminalWithoutSourcesKeepsDefaults(t *testing.T) {
	transport := &fakeTransport{chunks: []string{
		"data: {\"chunk\":\"x\"}\ndata: {\"done\":true}\n",
	}}

	_, result, err := streamWith(t, transport, DecodeBuffered)
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if result == nil {
		t.Fatal("no result delivered")
	}
	if len(result.Sources) != 0 {
		t.Errorf("sources = %+v, want empty", result.Sources)
	}
	if result.PromptVersion != "" {
		t.Errorf("prompt version = %q, want empty", result.PromptVersion)
	}
}

func TestStreamQuery_FramesAfterTerminalAreIgnored(t *testing.T) {
	transport := &fakeTransport{chunks: []string{
		"data: {\"chunk\":\"keep\"}\ndata: {\"done\":true,\"prompt_version\":\"v2\"}\ndata: {\"chunk\":\"drop\"}\n",
	}}

	snaps, result, err := streamWith(t, transport, DecodeBuffered)
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if result == nil || result.Answer != "keep" {
		t.Fatalf("result = %+v, want answer %q", result, "keep")
	}
	for _, s := range snaps {
		if strings.Contains(s.Text, "drop") {
			t.Errorf("fragment after terminal frame was applied: %q", s.Text)
		}
	}
}

func TestStreamQuery_FragmentAndTerminalOnSameFrame(t *testing.T) {
	transport := &fakeTransport{chunks: []string{
		"data: {\"chunk\":\"tail\",\"done\":true,\"prompt_version\":\"v3\"}\n",
	}}

	snaps, result, err := streamWith(t, transport, DecodeBuffered)
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if result == nil || result.Answer != "tail" || result.PromptVersion != "v3" {
		t.Fatalf("result = %+v, want answer %q version %q", result, "tail", "v3")
	}
	if len(snaps) != 1 || snaps[0].Text != "tail" {
		t.Errorf("snapshots = %+v, want one with text %q", snaps, "tail")
	}
}

func TestStreamQuery_NoTrailingNewlineOnLastRecord(t *testing.T) {
	transport := &fakeTransport{chunks: []string{
		"data: {\"chunk\":\"a\"}\ndata: {\"done\":true}",
	}}

	for _, mode := range []DecodeMode{DecodeBuffered, DecodeManual} {
		_, result, err := streamWith(t, &fakeTransport{chunks: transport.chunks}, mode)
		if err != nil {
			t.Fatalf("mode %d: stream error: %v", mode, err)
		}
		if result == nil || result.Answer != "a" {
			t.Fatalf("mode %d: result = %+v, want answer %q", mode, result, "a")
		}
	}
}

func TestStreamQuery_NonSuccessStatus(t *testing.T) {
	tests := []struct {
		status   int
		sentinel error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrUnauthorized},
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusInternalServerError, ErrServerUnavailable},
		{http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		transport := &fakeTransport{
			status: tt.status,
			body:   io.NopCloser(strings.NewReader(`{"detail":"nope"}`)),
		}
		client := NewClient("http://rag.test", StaticTokenProvider("tok"), WithHTTPClient(transport))

		events, err := client.StreamQuery(context.Background(), &QueryRequest{Question: "q"})
		if events != nil {
			t.Errorf("status %d: expected nil channel", tt.status)
		}
		var statusErr *StatusError
		if !errors.As(err, &statusErr) {
			t.Fatalf("status %d: error = %v, want StatusError", tt.status, err)
		}
		if statusErr.StatusCode != tt.status {
			t.Errorf("status code = %d, want %d", statusErr.StatusCode, tt.status)
		}
		if tt.sentinel != nil && !errors.Is(err, tt.sentinel) {
			t.Errorf("status %d: error does not wrap sentinel %v", tt.status, tt.sentinel)
		}
	}
}

func TestStreamQuery_MissingBody(t *testing.T) {
	transport := &fakeTransport{body: http.NoBody}
	client := NewClient("http://rag.test", StaticTokenProvider("tok"), WithHTTPClient(transport))

	_, err := client.StreamQuery(context.Background(), &QueryRequest{Question: "q"})
	if !errors.Is(err, ErrStreamUnsupported) {
		t.Fatalf("error = %v, want ErrStreamUnsupported", err)
	}
}

func TestStreamQuery_TokenProviderFailure(t *testing.T) {
	cause := errors.New("idp unreachable")
	provider := TokenProviderFunc(func(context.Context) (string, error) {
		return "", cause
	})
	client := NewClient("http://rag.test", provider, WithHTTPClient(&fakeTransport{}))

	_, err := client.StreamQuery(context.Background(), &QueryRequest{Question: "q"})
	var tokenErr *TokenError
	if !errors.As(err, &tokenErr) {
		t.Fatalf("error = %v, want TokenError", err)
	}
	if !errors.Is(err, cause) {
		t.Error("TokenError does not wrap the provider error")
	}
}

func TestStreamQuery_SendsBearerToken(t *testing.T) {
	transport := &fakeTransport{chunks: []string{"data: {\"done\":true}\n"}}
	client := NewClient("http://rag.test", StaticTokenProvider("secret"), WithHTTPClient(transport))

	events, err := client.StreamQuery(context.Background(), &QueryRequest{Question: "q"})
	if err != nil {
		t.Fatalf("StreamQuery failed: %v", err)
	}
	collect(t, events)

	got := transport.lastReq.Header.Get("Authorization")
	if got != "Bearer secret" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer secret")
	}
	if accept := transport.lastReq.Header.Get("Accept"); accept != "text/event-stream" {
		t.Errorf("Accept = %q, want %q", accept, "text/event-stream")
	}
}

func TestStreamQuery_EmptyTokenOmitsHeader(t *testing.T) {
	transport := &fakeTransport{chunks: []string{"data: {\"done\":true}\n"}}
	client := NewClient("http://rag.test", StaticTokenProvider(""), WithHTTPClient(transport))

	events, err := client.StreamQuery(context.Background(), &QueryRequest{Question: "q"})
	if err != nil {
		t.Fatalf("StreamQuery failed: %v", err)
	}
	collect(t, events)

	if got := transport.lastReq.Header.Get("Authorization"); got != "" {
		t.Errorf("Authorization = %q, want unset", got)
	}
}

func TestQuery_Blocking(t *testing.T) {
	transport := &fakeTransport{chunks: []string{
		"data: {\"chunk\":\"full \"}\ndata: {\"chunk\":\"answer\"}\ndata: {\"done\":true,\"prompt_version\":\"v1\"}\n",
	}}
	client := NewClient("http://rag.test", StaticTokenProvider("tok"), WithHTTPClient(transport))

	result, err := client.Query(context.Background(), &QueryRequest{Question: "q"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if result.Answer != "full answer" {
		t.Errorf("answer = %q, want %q", result.Answer, "full answer")
	}
	if result.PromptVersion != "v1" {
		t.Errorf("prompt version = %q, want %q", result.PromptVersion, "v1")
	}
}

func TestQuery_StreamEndsWithoutTerminalFrame(t *testing.T) {
	transport := &fakeTransport{chunks: []string{
		"data: {\"chunk\":\"partial\"}\n",
	}}
	client := NewClient("http://rag.test", StaticTokenProvider("tok"), WithHTTPClient(transport))

	result, err := client.Query(context.Background(), &QueryRequest{Question: "q"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if result.Answer != "partial" {
		t.Errorf("answer = %q, want %q", result.Answer, "partial")
	}
	if len(result.Sources) != 0 || result.PromptVersion != "" {
		t.Errorf("result = %+v, want empty sources and version", result)
	}
}
