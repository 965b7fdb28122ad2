package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// openaiBaseURL is a var to allow test overrides via httptest.
var openaiBaseURL = "https://api.openai.com/v1"

// OpenAIBaseURL returns the current OpenAI API base URL.
func OpenAIBaseURL() string { return openaiBaseURL }

// SetOpenAIBaseURL overrides the OpenAI API base URL.
// Intended for use in tests only.
func SetOpenAIBaseURL(u string) { openaiBaseURL = u }

type openaiProvider struct {
	model  string
	client *openai.Client
}

func newOpenAIProvider(model, apiKey string) *openaiProvider {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = openaiBaseURL
	cfg.HTTPClient = sharedHTTPClient
	return &openaiProvider{model: model, client: openai.NewClientWithConfig(cfg)}
}

func (p *openaiProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	model := p.model
	if req.Model != "" {
		model = req.Model
	}

	// Only include system message when non-empty to avoid unnecessary token usage.
	var messages []openai.ChatCompletionMessage
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt})

	body := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
	}
	if req.MaxTokens > 0 {
		body.MaxTokens = req.MaxTokens
	}
	if req.JSON {
		body.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := p.client.CreateChatCompletion(ctx, body)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("openai: %s: %s", apiErr.Type, apiErr.Message)
		}
		return nil, fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty choices in response")
	}

	return &Response{
		Content: resp.Choices[0].Message.Content,
		Model:   fmt.Sprintf("openai:%s", resp.Model),
	}, nil
}
