package generate

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultAnthropicModel     = "claude-3-5-haiku-latest"
	defaultAnthropicMaxTokens = 4096
)

// AnthropicEngine generates answers with the Anthropic API.
type AnthropicEngine struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicEngine creates an Anthropic engine. model is used when
// requests leave Model empty.
func NewAnthropicEngine(apiKey, model string) (*AnthropicEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("generate: Anthropic API key is required")
	}
	if model == "" {
		model = defaultAnthropicModel
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicEngine{client: &client, model: model}, nil
}

func (e *AnthropicEngine) Name() string {
	return fmt.Sprintf("anthropic:%s", e.model)
}

func (e *AnthropicEngine) SupportsModel(model string) bool {
	return model == "" || strings.HasPrefix(model, "claude-")
}

func (e *AnthropicEngine) buildParams(req *Request) (anthropic.MessageNewParams, error) {
	model := req.Model
	if model == "" {
		model = e.model
	}
	if !e.SupportsModel(model) {
		return anthropic.MessageNewParams{}, &ModelError{
			Model:  model,
			Engine: e.Name(),
			Reason: "model must start with 'claude-'",
			Err:    ErrInvalidModel,
		}
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens == 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.Temperature != 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	return params, nil
}

// Generate produces the complete answer in one call.
func (e *AnthropicEngine) Generate(ctx context.Context, req *Request) (string, error) {
	params, err := e.buildParams(req)
	if err != nil {
		return "", err
	}

	message, err := e.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("generate: Anthropic call failed: %w", err)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(text.Text)
		}
	}
	return sb.String(), nil
}

// Stream produces the answer incrementally.
func (e *AnthropicEngine) Stream(ctx context.Context, req *Request) (<-chan Event, error) {
	params, err := e.buildParams(req)
	if err != nil {
		return nil, err
	}

	events := make(chan Event, streamBuffer)
	go func() {
		defer close(events)

		stream := e.client.Messages.NewStreaming(ctx, params)
		for stream.Next() {
			event := stream.Current()
			deltaEvent, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok || deltaEvent.Delta.Type != "text_delta" {
				continue
			}
			select {
			case events <- Event{Text: deltaEvent.Delta.Text}:
			case <-ctx.Done():
				events <- Event{Err: ctx.Err()}
				return
			}
		}
		if err := stream.Err(); err != nil {
			events <- Event{Err: fmt.Errorf("generate: Anthropic stream failed: %w", err)}
		}
	}()
	return events, nil
}
