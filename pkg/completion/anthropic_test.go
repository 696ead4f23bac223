package completion

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/orbit-cli/orbit/pkg/config"
	"github.com/orbit-cli/orbit/pkg/conversation"
)

type capturedRequest struct {
	Model     string `json:"model"`
	MaxTokens int64  `json:"max_tokens"`
	System    []struct {
		Text string `json:"text"`
	} `json:"system"`
	Messages []struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"messages"`
}

func newAnthropicServer(t *testing.T, status int, reply string) (*httptest.Server, *capturedRequest, *int32) {
	t.Helper()
	var captured capturedRequest
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/v1/messages" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = io.WriteString(w, `{"type":"error","error":{"type":"overloaded_error","message":"busy"}}`)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":            "msg_1",
			"type":          "message",
			"role":          "assistant",
			"model":         "claude-test",
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
			"content":       []map[string]any{{"type": "text", "text": reply}},
			"usage":         map[string]any{"input_tokens": 10, "output_tokens": 3},
		})
	}))
	t.Cleanup(server.Close)
	return server, &captured, &calls
}

func newTestAnthropic(t *testing.T, baseURL string) *Anthropic {
	t.Helper()
	a, err := NewAnthropic(config.Completion{
		APIKey:    "test-key",
		Model:     "claude-test",
		MaxTokens: 256,
		BaseURL:   baseURL,
	}, zaptest.NewLogger(t).Sugar(), option.WithMaxRetries(0))
	require.NoError(t, err)
	return a
}

func TestAnthropicComplete(t *testing.T) {
	server, captured, _ := newAnthropicServer(t, http.StatusOK, "Hello from the model")
	a := newTestAnthropic(t, server.URL)

	resp, err := a.Complete(context.Background(), Request{
		Mode: conversation.ModeAgent,
		Turns: []Turn{
			{Role: conversation.RoleSystem, Content: "Project: orbit"},
			{Role: conversation.RoleUser, Content: "first"},
			{Role: conversation.RoleUser, Content: "second"},
			{Role: conversation.RoleAssistant, Content: "answer"},
			{Role: conversation.RoleTool, Content: "exit 0"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello from the model", resp.Content)
	assert.Equal(t, "claude-test", resp.Model)

	assert.Equal(t, "claude-test", captured.Model)
	assert.Equal(t, int64(256), captured.MaxTokens)
	require.Len(t, captured.System, 1)
	assert.Contains(t, captured.System[0].Text, "agent mode")
	assert.Contains(t, captured.System[0].Text, "Project: orbit")

	require.Len(t, captured.Messages, 3, "consecutive user turns are merged")
	assert.Equal(t, "user", captured.Messages[0].Role)
	require.Len(t, captured.Messages[0].Content, 2)
	assert.Equal(t, "first", captured.Messages[0].Content[0].Text)
	assert.Equal(t, "second", captured.Messages[0].Content[1].Text)
	assert.Equal(t, "assistant", captured.Messages[1].Role)
	assert.Equal(t, "user", captured.Messages[2].Role)
	assert.Equal(t, "[tool] exit 0", captured.Messages[2].Content[0].Text)
}

func TestAnthropicComplete_UpstreamError(t *testing.T) {
	server, _, calls := newAnthropicServer(t, http.StatusServiceUnavailable, "")
	a := newTestAnthropic(t, server.URL)

	_, err := a.Complete(context.Background(), Request{
		Mode:  conversation.ModeChat,
		Turns: []Turn{{Role: conversation.RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestAnthropicComplete_NoUserTurn(t *testing.T) {
	server, _, calls := newAnthropicServer(t, http.StatusOK, "unused")
	a := newTestAnthropic(t, server.URL)

	_, err := a.Complete(context.Background(), Request{
		Mode:  conversation.ModeChat,
		Turns: []Turn{{Role: conversation.RoleAssistant, Content: "hello?"}},
	})
	require.Error(t, err)
	assert.Zero(t, atomic.LoadInt32(calls))
}

func TestNewAnthropic_RequiresKey(t *testing.T) {
	t.Setenv("ORBIT_TEST_MISSING_KEY", "")
	_, err := NewAnthropic(config.Completion{APIKeyEnv: "ORBIT_TEST_MISSING_KEY", Model: "m"}, nil)
	require.Error(t, err)

	t.Setenv("ORBIT_TEST_KEY", "from-env")
	a, err := NewAnthropic(config.Completion{APIKeyEnv: "ORBIT_TEST_KEY", Model: "m"}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(defaultMaxTokens), a.maxTokens)
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(config.Completion{Provider: "oracle"}, nil)
	require.Error(t, err)
}

func TestSystemPrompt(t *testing.T) {
	for _, m := range conversation.Modes {
		assert.NotEmpty(t, SystemPrompt(m, nil), "mode %s", m)
	}
	assert.Equal(t, "custom", SystemPrompt(conversation.ModeChat, map[string]string{"chat": "custom"}))
	assert.NotEqual(t, SystemPrompt(conversation.ModeChat, nil), SystemPrompt(conversation.ModeTool, nil))
}
