package completion

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/orbit-cli/orbit/pkg/config"
	"github.com/orbit-cli/orbit/pkg/conversation"
)

// Turn is one flattened message of conversation history.
type Turn struct {
	Role    conversation.Role
	Content string
}

type Request struct {
	Mode  conversation.Mode
	Turns []Turn
}

type Response struct {
	Content string
	Model   string
}

// Completer produces the assistant's next turn for a conversation.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

var defaultPrompts = map[conversation.Mode]string{
	conversation.ModeChat: "You are Orbit, a helpful assistant in a terminal chat. " +
		"Answer clearly and concisely; use Markdown sparingly since replies are shown in a terminal.",
	conversation.ModeTool: "You are Orbit in tool mode. When a task would benefit from a command-line tool, " +
		"name the tool, show the exact invocation and explain its output. Do not claim to have run anything.",
	conversation.ModeAgent: "You are Orbit in agent mode. Break the user's goal into numbered steps, " +
		"state your plan before acting, work through the steps one at a time and summarize what remains.",
}

// SystemPrompt returns the prompt for mode, preferring a configured override.
func SystemPrompt(mode conversation.Mode, overrides map[string]string) string {
	if p, ok := overrides[string(mode)]; ok && p != "" {
		return p
	}
	return defaultPrompts[mode]
}

// New builds the completer named by cfg.Provider.
func New(cfg config.Completion, log *zap.SugaredLogger) (Completer, error) {
	switch cfg.Provider {
	case "", "anthropic":
		return NewAnthropic(cfg, log)
	default:
		return nil, fmt.Errorf("unsupported completion provider %q", cfg.Provider)
	}
}

type timeoutCompleter struct {
	next    Completer
	timeout time.Duration
}

// WithTimeout bounds every call to next. A non-positive timeout returns next unchanged.
func WithTimeout(next Completer, timeout time.Duration) Completer {
	if timeout <= 0 {
		return next
	}
	return &timeoutCompleter{next: next, timeout: timeout}
}

func (t *timeoutCompleter) Complete(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Complete(ctx, req)
}
