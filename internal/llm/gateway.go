package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/untoldecay/projectlog/internal/audit"
)

// Gateway wraps a Provider with a per-request timeout, the shared retry
// policy, JSON fence stripping and best-effort audit logging.
type Gateway struct {
	provider  Provider
	policy    RetryPolicy
	timeout   time.Duration
	maxTokens int
	recorder  *audit.Recorder
	log       *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option { return func(g *Gateway) { g.policy = p } }

// WithTimeout sets the per-attempt request timeout.
func WithTimeout(d time.Duration) Option { return func(g *Gateway) { g.timeout = d } }

// WithMaxTokens caps the response length requested from the provider.
func WithMaxTokens(n int) Option { return func(g *Gateway) { g.maxTokens = n } }

// WithRecorder enables prompt/response audit logging.
func WithRecorder(r *audit.Recorder) Option { return func(g *Gateway) { g.recorder = r } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(g *Gateway) { g.log = l } }

// NewGateway returns a gateway around p.
func NewGateway(p Provider, opts ...Option) *Gateway {
	g := &Gateway{
		provider:  p,
		policy:    DefaultRetryPolicy(),
		timeout:   DefaultConfig().Timeout,
		maxTokens: DefaultConfig().MaxTokens,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.log == nil {
		g.log = slog.New(slog.DiscardHandler)
	}
	return g
}

// NewGatewayFromConfig builds the provider named in cfg and wraps it.
func NewGatewayFromConfig(ctx context.Context, cfg Config, opts ...Option) (*Gateway, error) {
	p, err := NewProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	policy := DefaultRetryPolicy()
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialBackoff > 0 {
		policy.InitialBackoff = cfg.InitialBackoff
	}
	if cfg.MaxBackoff > 0 {
		policy.MaxBackoff = cfg.MaxBackoff
	}
	base := []Option{WithRetryPolicy(policy)}
	if cfg.Timeout > 0 {
		base = append(base, WithTimeout(cfg.Timeout))
	}
	if cfg.MaxTokens > 0 {
		base = append(base, WithMaxTokens(cfg.MaxTokens))
	}
	return NewGateway(p, append(base, opts...)...), nil
}

// Model returns "<provider>/<model>" for provenance records.
func (g *Gateway) Model() string {
	return g.provider.Name() + "/" + g.provider.Model()
}

// Invoke sends prompt to the model. Each attempt runs under the gateway
// timeout and is detached from ctx cancellation so an in-flight request is
// never cut off; ctx is only consulted between attempts.
func (g *Gateway) Invoke(ctx context.Context, prompt string, expectJSON bool, temperature float64) (string, error) {
	start := time.Now()
	opts := GenerateOptions{JSON: expectJSON, Temperature: temperature, MaxTokens: g.maxTokens}

	var resp string
	attempts, err := g.policy.Do(ctx, func() error {
		reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
		defer cancel()
		out, err := g.provider.Generate(reqCtx, prompt, opts)
		if err != nil {
			g.log.Debug("model call failed", "provider", g.provider.Name(), "error", err)
			return err
		}
		resp = out
		return nil
	})

	if err == nil && expectJSON {
		resp = StripFences(resp)
	}
	err = g.classify(ctx, attempts, err)

	g.record(prompt, resp, expectJSON, temperature, attempts, time.Since(start), err)
	if err != nil {
		return "", err
	}
	return resp, nil
}

func (g *Gateway) classify(ctx context.Context, attempts int, err error) error {
	if err == nil {
		return nil
	}
	var exhausted *exhaustedError
	switch {
	case errors.As(err, &exhausted):
		return &ServiceUnavailableError{Provider: g.provider.Name(), Attempts: attempts, Err: exhausted.err}
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return fmt.Errorf("model call cancelled: %w", err)
	default:
		return fmt.Errorf("non-retryable model error: %w", err)
	}
}

func (g *Gateway) record(prompt, resp string, expectJSON bool, temp float64, attempts int, d time.Duration, err error) {
	if g.recorder == nil {
		return
	}
	e := &audit.Entry{
		Kind:       "llm_call",
		Provider:   g.provider.Name(),
		Model:      g.provider.Model(),
		Prompt:     prompt,
		Response:   resp,
		Attempts:   attempts,
		ExpectJSON: expectJSON,
		DurationMS: d.Milliseconds(),
		Temp:       temp,
	}
	if err != nil {
		e.Error = err.Error()
	}
	g.recorder.Record(e)
}

// StripFences removes markdown code fences a model may wrap around JSON.
// Only the fence markers and surrounding whitespace are removed.
func StripFences(s string) string {
	t := strings.TrimSpace(s)
	if strings.HasPrefix(t, "```") {
		t = t[3:]
		line, rest, found := strings.Cut(t, "\n")
		switch {
		case found && isInfoString(line):
			t = rest
		case !found:
			t = trimInlineInfo(t)
		}
	}
	t = strings.TrimSpace(t)
	if strings.HasSuffix(t, "```") {
		t = t[:len(t)-3]
	}
	return strings.TrimSpace(t)
}

func isInfoString(s string) bool {
	s = strings.TrimSpace(s)
	for _, r := range s {
		if !isInfoRune(r) {
			return false
		}
	}
	return true
}

// trimInlineInfo drops a "json" tag on a single-line fence such as
// ```json{"a":1}```. Anything else after the fence is payload and is kept.
func trimInlineInfo(t string) string {
	if len(t) < 4 || !strings.EqualFold(t[:4], "json") {
		return t
	}
	rest := strings.TrimLeft(t[4:], " \t")
	if strings.HasPrefix(rest, "{") || strings.HasPrefix(rest, "[") {
		return rest
	}
	return t
}

func isInfoRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_'
}
