package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/orbit-cli/orbit/pkg/conversation"
)

type ConversationService struct {
	client *Client
}

func (c *Client) Conversations() *ConversationService {
	return &ConversationService{client: c}
}

type SendRequest struct {
	ConversationID string               `json:"conversationId,omitempty"`
	Mode           conversation.Mode    `json:"mode"`
	Content        conversation.Content `json:"content"`
}

// Exchange is the server's answer to a send or resume.
type Exchange struct {
	Conversation conversation.Conversation `json:"conversation"`
	UserMessage  *conversation.Message     `json:"userMessage,omitempty"`
	Reply        *conversation.Message     `json:"reply,omitempty"`
}

// IsCompletionFailure reports whether err is the server saying the completion
// backend failed after the user message was stored. The conversation id to
// resume is returned alongside.
func IsCompletionFailure(err error) (string, bool) {
	var herr *HTTPError
	if errors.As(err, &herr) && herr.StatusCode == http.StatusBadGateway {
		return herr.Details, true
	}
	return "", false
}

func conversationPath(id string) string {
	return "api/conversations/" + url.PathEscape(id)
}

func (s *ConversationService) List(ctx context.Context) ([]conversation.Summary, error) {
	var out []conversation.Summary
	if err := s.client.do(ctx, http.MethodGet, "api/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ConversationService) Get(ctx context.Context, id string) (*conversation.Thread, error) {
	var out conversation.Thread
	if err := s.client.do(ctx, http.MethodGet, conversationPath(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *ConversationService) Create(ctx context.Context, mode conversation.Mode, title string) (*conversation.Conversation, error) {
	body := map[string]string{"mode": string(mode)}
	if title != "" {
		body["title"] = title
	}
	var out conversation.Conversation
	if err := s.client.do(ctx, http.MethodPost, "api/conversations", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *ConversationService) Rename(ctx context.Context, id, title string) (*conversation.Conversation, error) {
	var out conversation.Conversation
	if err := s.client.do(ctx, http.MethodPatch, conversationPath(id), map[string]string{"title": title}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *ConversationService) Delete(ctx context.Context, id string) error {
	return s.client.do(ctx, http.MethodDelete, conversationPath(id), nil, nil)
}

func (s *ConversationService) Send(ctx context.Context, req SendRequest) (*Exchange, error) {
	var out Exchange
	if err := s.client.do(ctx, http.MethodPost, "api/conversations/messages", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Resume asks for a reply to a conversation whose last message went unanswered.
func (s *ConversationService) Resume(ctx context.Context, id string) (*Exchange, error) {
	var out Exchange
	if err := s.client.do(ctx, http.MethodPost, conversationPath(id)+"/resume", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
