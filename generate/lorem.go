package generate

import (
	"context"
	"strings"
	"time"

	loremgen "github.com/bozaro/golorem"
)

// LoremEngine is a mock engine that generates lorem ipsum text. Used
// for development and tests without real API keys.
//
// Model names control behavior:
//   - lorem-fast: 30 words/second
//   - lorem-medium: 10 words/second
//   - lorem-slow: 2 words/second
//   - any model containing "cutoff" stops at the token budget
type LoremEngine struct {
	generator *loremgen.Lorem
}

// NewLoremEngine creates a lorem ipsum engine.
func NewLoremEngine() *LoremEngine {
	return &LoremEngine{generator: loremgen.New()}
}

func (e *LoremEngine) Name() string {
	return "lorem"
}

// SupportsModel returns true if the model name starts with "lorem-".
func (e *LoremEngine) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "lorem-")
}

func streamDelay(model string) time.Duration {
	switch {
	case strings.Contains(model, "slow"):
		return 500 * time.Millisecond
	case strings.Contains(model, "fast"):
		return 33 * time.Millisecond
	default:
		return 100 * time.Millisecond
	}
}

func (e *LoremEngine) targetWords(req *Request) int {
	// 1 token is roughly one word for mock purposes.
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return 60
}

func (e *LoremEngine) validate(req *Request) error {
	if !e.SupportsModel(req.Model) {
		return &ModelError{
			Model:  req.Model,
			Engine: e.Name(),
			Reason: "model must start with 'lorem-'",
			Err:    ErrInvalidModel,
		}
	}
	return nil
}

// Generate produces the complete mock answer.
func (e *LoremEngine) Generate(ctx context.Context, req *Request) (string, error) {
	if err := e.validate(req); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.generateWords(e.targetWords(req)), nil
}

// Stream produces the mock answer word by word with a model-dependent
// delay.
func (e *LoremEngine) Stream(ctx context.Context, req *Request) (<-chan Event, error) {
	if err := e.validate(req); err != nil {
		return nil, err
	}

	target := e.targetWords(req)
	cutoff := strings.Contains(req.Model, "cutoff")
	delay := streamDelay(req.Model)

	words := strings.Fields(e.generateWords(target))
	events := make(chan Event, streamBuffer)

	go func() {
		defer close(events)

		sent := 0
		for _, word := range words {
			if cutoff && sent >= target/2 {
				return
			}
			select {
			case events <- Event{Text: word + " "}:
			case <-ctx.Done():
				events <- Event{Err: ctx.Err()}
				return
			}
			sent++

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				events <- Event{Err: ctx.Err()}
				return
			}
		}
	}()
	return events, nil
}

func (e *LoremEngine) generateWords(target int) string {
	var sb strings.Builder
	count := 0
	for count < target {
		sentence := e.generator.Sentence(5, 15)
		sb.WriteString(sentence)
		sb.WriteString(" ")
		count += len(strings.Fields(sentence))
	}
	words := strings.Fields(sb.String())
	if len(words) > target {
		words = words[:target]
	}
	return strings.Join(words, " ")
}
