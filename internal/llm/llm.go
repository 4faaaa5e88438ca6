// Package llm is the model gateway: the only code that talks to a
// language-model service over the network.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrServiceUnavailable is matched by errors returned once the retry budget
// for a call is exhausted.
var ErrServiceUnavailable = errors.New("model service unavailable")

// ServiceUnavailableError records how many attempts were made before giving up.
type ServiceUnavailableError struct {
	Provider string
	Attempts int
	Err      error
}

func (e *ServiceUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable after %d attempt(s): %v", e.Provider, e.Attempts, e.Err)
}

func (e *ServiceUnavailableError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrServiceUnavailable) true.
func (e *ServiceUnavailableError) Is(target error) bool { return target == ErrServiceUnavailable }

// StatusError is a non-2xx response from a provider, normalized across SDKs.
type StatusError struct {
	Provider string
	Code     int
	Message  string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d", e.Provider, e.Code)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Code, e.Message)
}

// GenerateOptions are passed through to a provider for one request.
type GenerateOptions struct {
	JSON        bool
	Temperature float64
	MaxTokens   int
}

// Provider sends a single prompt to one model service. Implementations must
// not retry on their own; the Gateway owns the retry policy.
type Provider interface {
	Name() string
	Model() string
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// Invoker is the gateway surface the pipeline components depend on.
type Invoker interface {
	Invoke(ctx context.Context, prompt string, expectJSON bool, temperature float64) (string, error)
	Model() string
}

// Provider names accepted in configuration.
const (
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Config selects and tunes a provider and the gateway wrapped around it.
type Config struct {
	Provider       string
	Model          string
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxTokens      int
}

// DefaultConfig targets a local Ollama server.
func DefaultConfig() Config {
	return Config{
		Provider:       ProviderOllama,
		Model:          defaultOllamaModel,
		Timeout:        240 * time.Second,
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		MaxTokens:      4096,
	}
}

// NewProvider builds the provider named by cfg.Provider.
func NewProvider(ctx context.Context, cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "", ProviderOllama:
		return NewOllamaProvider(cfg)
	case ProviderAnthropic:
		return NewAnthropicProvider(cfg)
	case ProviderGemini:
		return NewGeminiProvider(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}
