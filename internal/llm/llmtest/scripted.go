// Package llmtest provides a scripted model provider for tests.
package llmtest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/untoldecay/projectlog/internal/llm"
)

// Reply is one scripted response. If Err is set it is returned instead of Text.
type Reply struct {
	Text string
	Err  error
}

// Rule answers prompts containing Match. Rules are checked in order; the
// first match wins. A rule with Times > 0 is used at most Times times.
type Rule struct {
	Match string
	Reply Reply
	Times int

	used int
}

// Call is a recorded request.
type Call struct {
	Prompt string
	Opts   llm.GenerateOptions
}

// Provider is an llm.Provider that replays canned replies. It is safe for
// concurrent use.
type Provider struct {
	mu       sync.Mutex
	queue    []Reply
	rules    []*Rule
	fallback *Reply
	calls    []Call
	model    string
}

// ErrUnscripted is returned when no queued reply or rule matches a prompt.
var ErrUnscripted = errors.New("llmtest: no scripted reply")

// New returns an empty scripted provider.
func New() *Provider { return &Provider{model: "scripted"} }

// Queue appends replies consumed in FIFO order before any rule is consulted.
func (p *Provider) Queue(replies ...Reply) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, replies...)
	return p
}

// QueueText is shorthand for queueing successful replies.
func (p *Provider) QueueText(texts ...string) *Provider {
	for _, t := range texts {
		p.Queue(Reply{Text: t})
	}
	return p
}

// On adds a substring rule.
func (p *Provider) On(match string, reply Reply) *Provider {
	return p.OnTimes(match, reply, 0)
}

// OnTimes adds a substring rule that is used at most n times (0 = unlimited).
func (p *Provider) OnTimes(match string, reply Reply, n int) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rules = append(p.rules, &Rule{Match: match, Reply: reply, Times: n})
	return p
}

// Default sets the reply used when nothing else matches.
func (p *Provider) Default(reply Reply) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fallback = &reply
	return p
}

func (p *Provider) Name() string  { return "llmtest" }
func (p *Provider) Model() string { return p.model }

// Generate returns the next scripted reply for prompt.
func (p *Provider) Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error) {
	p.mu.Lock()
	p.calls = append(p.calls, Call{Prompt: prompt, Opts: opts})
	reply, ok := p.next(prompt)
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !ok {
		return "", ErrUnscripted
	}
	if reply.Err != nil {
		return "", reply.Err
	}
	return reply.Text, nil
}

func (p *Provider) next(prompt string) (Reply, bool) {
	if len(p.queue) > 0 {
		r := p.queue[0]
		p.queue = p.queue[1:]
		return r, true
	}
	for _, rule := range p.rules {
		if rule.Times > 0 && rule.used >= rule.Times {
			continue
		}
		if strings.Contains(prompt, rule.Match) {
			rule.used++
			return rule.Reply, true
		}
	}
	if p.fallback != nil {
		return *p.fallback, true
	}
	return Reply{}, false
}

// Calls returns a copy of the recorded requests.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallCount returns the number of Generate calls so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// Gateway wraps p in an llm.Gateway with no backoff so tests stay fast.
func Gateway(p llm.Provider, opts ...llm.Option) *llm.Gateway {
	policy := llm.DefaultRetryPolicy()
	policy.InitialBackoff = 0
	base := []llm.Option{llm.WithRetryPolicy(policy)}
	return llm.NewGateway(p, append(base, opts...)...)
}
