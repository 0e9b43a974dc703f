package generate

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiEngine generates answers with the Google Gemini API.
type GeminiEngine struct {
	client *genai.Client
	model  string
}

// NewGeminiEngine creates a Gemini engine. model is used when requests
// leave Model empty.
func NewGeminiEngine(ctx context.Context, apiKey, model string) (*GeminiEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("generate: Gemini API key is required")
	}
	if model == "" {
		model = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("generate: creating Gemini client: %w", err)
	}
	return &GeminiEngine{client: client, model: model}, nil
}

func (e *GeminiEngine) Name() string {
	return fmt.Sprintf("gemini:%s", e.model)
}

func (e *GeminiEngine) SupportsModel(model string) bool {
	return model == "" || strings.HasPrefix(model, "gemini-")
}

func (e *GeminiEngine) resolve(req *Request) (string, *genai.GenerateContentConfig, []*genai.Content, error) {
	model := req.Model
	if model == "" {
		model = e.model
	}
	if !e.SupportsModel(model) {
		return "", nil, nil, &ModelError{
			Model:  model,
			Engine: e.Name(),
			Reason: "model must start with 'gemini-'",
			Err:    ErrInvalidModel,
		}
	}

	config := &genai.GenerateContentConfig{}
	if req.Temperature != 0 {
		temp := float32(req.Temperature)
		config.Temperature = &temp
	}
	if req.MaxTokens != 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}

	contents := []*genai.Content{
		genai.NewContentFromText(req.Prompt, genai.RoleUser),
	}
	return model, config, contents, nil
}

// Generate produces the complete answer in one call.
func (e *GeminiEngine) Generate(ctx context.Context, req *Request) (string, error) {
	model, config, contents, err := e.resolve(req)
	if err != nil {
		return "", err
	}

	resp, err := e.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return "", fmt.Errorf("generate: Gemini call failed: %w", err)
	}
	return resp.Text(), nil
}

// Stream produces the answer incrementally.
func (e *GeminiEngine) Stream(ctx context.Context, req *Request) (<-chan Event, error) {
	model, config, contents, err := e.resolve(req)
	if err != nil {
		return nil, err
	}

	events := make(chan Event, streamBuffer)
	go func() {
		defer close(events)

		for resp, err := range e.client.Models.GenerateContentStream(ctx, model, contents, config) {
			if err != nil {
				events <- Event{Err: fmt.Errorf("generate: Gemini stream failed: %w", err)}
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			select {
			case events <- Event{Text: text}:
			case <-ctx.Done():
				events <- Event{Err: ctx.Err()}
				return
			}
		}
	}()
	return events, nil
}
