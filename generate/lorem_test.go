package generate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLoremEngine_Name(t *testing.T) {
	engine := NewLoremEngine()
	if engine.Name() != "lorem" {
		t.Errorf("expected engine name 'lorem', got '%s'", engine.Name())
	}
}

func TestLoremEngine_SupportsModel(t *testing.T) {
	engine := NewLoremEngine()

	tests := []struct {
		model    string
		expected bool
	}{
		{"lorem-fast", true},
		{"lorem-slow", true},
		{"lorem-cutoff", true},
		{"claude-3", false},
		{"gemini-2.0-flash", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			if got := engine.SupportsModel(tt.model); got != tt.expected {
				t.Errorf("SupportsModel(%q) = %v, want %v", tt.model, got, tt.expected)
			}
		})
	}
}

func TestLoremEngine_Generate(t *testing.T) {
	engine := NewLoremEngine()

	answer, err := engine.Generate(context.Background(), &Request{
		Prompt:    "What is an IEP?",
		Model:     "lorem-fast",
		MaxTokens: 30,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if answer == "" {
		t.Fatal("answer is empty")
	}
	if words := len(strings.Fields(answer)); words != 30 {
		t.Errorf("expected 30 words, got %d", words)
	}
}

func TestLoremEngine_GenerateRejectsUnknownModel(t *testing.T) {
	engine := NewLoremEngine()

	_, err := engine.Generate(context.Background(), &Request{Model: "gpt-4"})
	if err == nil {
		t.Fatal("expected error for unsupported model")
	}
	if !errors.Is(err, ErrInvalidModel) {
		t.Errorf("expected ErrInvalidModel, got %v", err)
	}

	var modelErr *ModelError
	if !errors.As(err, &modelErr) {
		t.Fatalf("expected *ModelError, got %T", err)
	}
	if modelErr.Model != "gpt-4" {
		t.Errorf("expected model 'gpt-4' in error, got '%s'", modelErr.Model)
	}
}

func TestLoremEngine_Stream(t *testing.T) {
	engine := NewLoremEngine()

	events, err := engine.Stream(context.Background(), &Request{
		Prompt:    "question",
		Model:     "lorem-fast",
		MaxTokens: 10,
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	var sb strings.Builder
	count := 0
	for event := range events {
		if event.Err != nil {
			t.Fatalf("unexpected stream error: %v", event.Err)
		}
		sb.WriteString(event.Text)
		count++
	}

	if count == 0 {
		t.Fatal("no events received")
	}
	if sb.Len() == 0 {
		t.Fatal("no text accumulated")
	}
}

func TestLoremEngine_StreamCutoff(t *testing.T) {
	engine := NewLoremEngine()

	events, err := engine.Stream(context.Background(), &Request{
		Model:     "lorem-fast-cutoff",
		MaxTokens: 20,
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	count := 0
	for event := range events {
		if event.Err != nil {
			t.Fatalf("unexpected stream error: %v", event.Err)
		}
		count++
	}

	// Cutoff models stop at half the token budget.
	if count > 10 {
		t.Errorf("expected at most 10 events for cutoff model, got %d", count)
	}
}

func TestLoremEngine_StreamCancellation(t *testing.T) {
	engine := NewLoremEngine()

	ctx, cancel := context.WithCancel(context.Background())
	events, err := engine.Stream(ctx, &Request{
		Model:     "lorem-slow",
		MaxTokens: 100,
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	// Read one event, then cancel.
	<-events
	cancel()

	var streamErr error
	deadline := time.After(5 * time.Second)
	for {
		select {
		case event, ok := <-events:
			if !ok {
				if streamErr == nil {
					t.Fatal("stream closed without error after cancellation")
				}
				if !errors.Is(streamErr, context.Canceled) {
					t.Errorf("expected context.Canceled, got %v", streamErr)
				}
				return
			}
			if event.Err != nil {
				streamErr = event.Err
			}
		case <-deadline:
			t.Fatal("stream did not terminate after cancellation")
		}
	}
}
