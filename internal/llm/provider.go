package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// sharedHTTPClient is used by all providers. Batch deadlines come from the
// caller's context; the client timeout only bounds a stuck connection.
var sharedHTTPClient = &http.Client{
	Timeout: 5 * time.Minute,
}

// defaultMaxTokens is the fallback when Request.MaxTokens is not set.
const defaultMaxTokens = 4096

// Request is one completion call: a system prompt carrying the authoring
// rules and a user prompt carrying one requirement.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
	MaxTokens    int
	// Model overrides the provider's configured model when non-empty.
	Model string
	// JSON asks the provider to answer with a single JSON object.
	JSON bool
}

// DefaultTemperature keeps story JSON stable while allowing slight variation.
const DefaultTemperature = 0.2

// Response holds the result of an LLM completion call.
type Response struct {
	Content string
	Model   string // actual model used, echoed back for meta
}

// Provider is a completion backend. Implementations must be safe for
// concurrent use; a batch of requests is issued at once.
type Provider interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// ErrMissingKey is returned when a provider's API key variable is unset.
var ErrMissingKey = errors.New("API key not set")

// keyEnv names the environment variable holding each provider's API key.
var keyEnv = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
}

// ParseModel splits "provider:model" and checks the provider is known.
func ParseModel(providerModel string) (provider, model string, err error) {
	provider, model, ok := strings.Cut(providerModel, ":")
	if !ok || provider == "" || model == "" {
		return "", "", fmt.Errorf("invalid model format %q: expected provider:model (e.g. openai:gpt-4o-mini)", providerModel)
	}
	if _, known := keyEnv[provider]; !known {
		return "", "", fmt.Errorf("unknown provider %q: supported providers are anthropic, openai", provider)
	}
	return provider, model, nil
}

// NewProvider returns the Provider for a "provider:model" string, e.g.
// "openai:gpt-4o-mini" or "anthropic:claude-sonnet-4-6". The API key is read
// from the environment now, so a missing key fails before any document work.
func NewProvider(providerModel string) (Provider, error) {
	provider, model, err := ParseModel(providerModel)
	if err != nil {
		return nil, err
	}
	env := keyEnv[provider]
	apiKey := os.Getenv(env)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s environment variable not set", ErrMissingKey, env)
	}
	if provider == "anthropic" {
		return &anthropicProvider{model: model, apiKey: apiKey}, nil
	}
	return newOpenAIProvider(model, apiKey), nil
}

// truncate limits a string to maxLen runes, appending "..." if truncated.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
