package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

const defaultOllamaModel = "gemma2:9b"

// OllamaProvider talks to a local or remote Ollama server.
type OllamaProvider struct {
	client *api.Client
	model  string
}

// NewOllamaProvider creates a provider. An empty BaseURL falls back to
// OLLAMA_HOST and then to the Ollama default.
func NewOllamaProvider(cfg Config) (*OllamaProvider, error) {
	var client *api.Client
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid ollama base url %q: %w", cfg.BaseURL, err)
		}
		client = api.NewClient(u, http.DefaultClient)
	} else {
		var err error
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
	}

	model := cfg.Model
	if model == "" {
		model = defaultOllamaModel
	}
	return &OllamaProvider{client: client, model: model}, nil
}

func (o *OllamaProvider) Name() string  { return ProviderOllama }
func (o *OllamaProvider) Model() string { return o.model }

// Generate runs a single non-streaming generate request.
func (o *OllamaProvider) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:  o.model,
		Prompt: prompt,
		Stream: &stream,
		Options: map[string]any{
			"temperature": opts.Temperature,
		},
	}
	if opts.JSON {
		req.Format = json.RawMessage(`"json"`)
	}
	if opts.MaxTokens > 0 {
		req.Options["num_predict"] = opts.MaxTokens
	}

	var sb strings.Builder
	err := o.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		sb.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", o.normalize(err)
	}
	return sb.String(), nil
}

func (o *OllamaProvider) normalize(err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		msg := statusErr.ErrorMessage
		if msg == "" {
			msg = statusErr.Status
		}
		return &StatusError{Provider: ProviderOllama, Code: statusErr.StatusCode, Message: msg}
	}
	return err
}
