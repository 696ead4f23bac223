package completion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/orbit-cli/orbit/pkg/config"
	"github.com/orbit-cli/orbit/pkg/conversation"
	"github.com/orbit-cli/orbit/pkg/version"
)

const defaultMaxTokens = 1024

// Anthropic completes conversations through the Anthropic Messages API.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	prompts   map[string]string
	log       *zap.SugaredLogger
}

func NewAnthropic(cfg config.Completion, log *zap.SugaredLogger, opts ...option.RequestOption) (*Anthropic, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	key := cfg.APIKey
	if key == "" {
		env := cfg.APIKeyEnv
		if env == "" {
			env = "ANTHROPIC_API_KEY"
		}
		key = strings.TrimSpace(os.Getenv(env))
	}
	if key == "" {
		return nil, errors.New("anthropic api key is not configured")
	}
	if cfg.Model == "" {
		return nil, errors.New("completion model is required")
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithHeader("User-Agent", version.UserAgent("orbit-server")),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	reqOpts = append(reqOpts, opts...)

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Anthropic{
		client:    anthropic.NewClient(reqOpts...),
		model:     cfg.Model,
		maxTokens: maxTokens,
		prompts:   cfg.SystemPrompts,
		log:       log,
	}, nil
}

func (a *Anthropic) Complete(ctx context.Context, req Request) (*Response, error) {
	params, err := a.buildParams(req)
	if err != nil {
		return nil, err
	}
	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic messages: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return nil, fmt.Errorf("anthropic returned no text (stop reason %q)", msg.StopReason)
	}
	a.log.Debugw("Completion finished", "model", msg.Model, "stopReason", msg.StopReason,
		"inputTokens", msg.Usage.InputTokens, "outputTokens", msg.Usage.OutputTokens)
	return &Response{Content: b.String(), Model: string(msg.Model)}, nil
}

// buildParams maps history onto the Messages API: system turns join the
// system prompt, tool turns are sent as user text, and consecutive turns of
// the same role are merged so roles alternate.
func (a *Anthropic) buildParams(req Request) (anthropic.MessageNewParams, error) {
	system := []string{SystemPrompt(req.Mode, a.prompts)}

	type group struct {
		assistant bool
		texts     []string
	}
	var groups []group
	for _, turn := range req.Turns {
		text := turn.Content
		assistant := false
		switch turn.Role {
		case conversation.RoleSystem:
			system = append(system, text)
			continue
		case conversation.RoleAssistant:
			assistant = true
		case conversation.RoleTool:
			text = "[tool] " + text
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		if n := len(groups); n > 0 && groups[n-1].assistant == assistant {
			groups[n-1].texts = append(groups[n-1].texts, text)
			continue
		}
		groups = append(groups, group{assistant: assistant, texts: []string{text}})
	}
	// The API requires the first message to come from the user.
	for len(groups) > 0 && groups[0].assistant {
		groups = groups[1:]
	}
	if len(groups) == 0 {
		return anthropic.MessageNewParams{}, errors.New("conversation has no user message to answer")
	}

	messages := make([]anthropic.MessageParam, 0, len(groups))
	for _, g := range groups {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(g.texts))
		for _, t := range g.texts {
			blocks = append(blocks, anthropic.NewTextBlock(t))
		}
		if g.assistant {
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))
		} else {
			messages = append(messages, anthropic.NewUserMessage(blocks...))
		}
	}

	return anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: strings.Join(system, "\n\n")}},
		Messages:  messages,
	}, nil
}
