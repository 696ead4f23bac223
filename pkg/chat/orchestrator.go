package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/orbit-cli/orbit/pkg/completion"
	"github.com/orbit-cli/orbit/pkg/conversation"
	"github.com/orbit-cli/orbit/pkg/metrics"
)

var (
	// ErrCompletionFailed wraps any completion backend failure. The user's
	// message is already stored when it is returned.
	ErrCompletionFailed = errors.New("completion failed")
	// ErrNothingToResume is returned by Resume when the last stored message is
	// not a user turn.
	ErrNothingToResume = errors.New("conversation has no unanswered user message")
	ErrEmptyMessage    = errors.New("message content is empty")
	ErrEmptyTitle      = errors.New("title must not be empty")
)

// ConversationStore is the subset of conversation.Store used by the orchestrator.
type ConversationStore interface {
	CreateConversation(ctx context.Context, userID string, mode conversation.Mode, title string) (*conversation.Conversation, error)
	FindConversation(ctx context.Context, userID, conversationID string) (*conversation.Conversation, error)
	GetOrCreateConversation(ctx context.Context, userID, conversationID string, mode conversation.Mode) (*conversation.Thread, error)
	AddMessage(ctx context.Context, conversationID string, role conversation.Role, content conversation.Content) (*conversation.Message, error)
	GetMessages(ctx context.Context, conversationID string) ([]conversation.Message, error)
	GetUserConversations(ctx context.Context, userID string) ([]conversation.Summary, error)
	DeleteConversation(ctx context.Context, conversationID, userID string) (int64, error)
	UpdateTitle(ctx context.Context, conversationID, title string) (*conversation.Conversation, error)
}

// Exchange is the result of one round trip. Reply is nil when the completion
// failed after the user message was stored.
type Exchange struct {
	Conversation conversation.Conversation `json:"conversation"`
	UserMessage  *conversation.Message     `json:"userMessage,omitempty"`
	Reply        *conversation.Message     `json:"reply,omitempty"`
}

type Orchestrator struct {
	store     ConversationStore
	completer completion.Completer
	log       *zap.SugaredLogger
}

func NewOrchestrator(store ConversationStore, completer completion.Completer, log *zap.SugaredLogger) *Orchestrator {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Orchestrator{store: store, completer: completer, log: log}
}

// Send appends content as a user turn to the conversation (created when
// conversationID is empty or not owned by userID), asks the completer for a
// reply over the full history and stores that reply.
func (o *Orchestrator) Send(ctx context.Context, userID, conversationID string, mode conversation.Mode, content conversation.Content) (*Exchange, error) {
	if content.IsEmpty() {
		return nil, ErrEmptyMessage
	}
	thread, err := o.store.GetOrCreateConversation(ctx, userID, conversationID, mode)
	if err != nil {
		return nil, err
	}
	if len(thread.Messages) == 0 && thread.ID != conversationID {
		metrics.ConversationsCreated.WithLabelValues(string(thread.Mode)).Inc()
	}

	userMsg, err := o.store.AddMessage(ctx, thread.ID, conversation.RoleUser, content)
	if err != nil {
		return nil, err
	}
	metrics.MessagesStored.WithLabelValues(string(thread.Mode), string(conversation.RoleUser)).Inc()

	ex := &Exchange{Conversation: thread.Conversation, UserMessage: userMsg}
	reply, err := o.complete(ctx, thread.Conversation)
	if err != nil {
		return ex, err
	}
	ex.Reply = reply
	return ex, nil
}

// Resume answers the trailing user message of a conversation whose previous
// completion failed.
func (o *Orchestrator) Resume(ctx context.Context, userID, conversationID string) (*Exchange, error) {
	conv, err := o.store.FindConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	msgs, err := o.store.GetMessages(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 || msgs[len(msgs)-1].Role != conversation.RoleUser {
		return nil, ErrNothingToResume
	}
	last := msgs[len(msgs)-1]
	ex := &Exchange{Conversation: *conv, UserMessage: &last}
	reply, err := o.completeHistory(ctx, *conv, msgs)
	if err != nil {
		return ex, err
	}
	ex.Reply = reply
	return ex, nil
}

func (o *Orchestrator) complete(ctx context.Context, conv conversation.Conversation) (*conversation.Message, error) {
	msgs, err := o.store.GetMessages(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	return o.completeHistory(ctx, conv, msgs)
}

func (o *Orchestrator) completeHistory(ctx context.Context, conv conversation.Conversation, msgs []conversation.Message) (*conversation.Message, error) {
	mode := string(conv.Mode)
	start := time.Now()
	resp, err := o.completer.Complete(ctx, completion.Request{Mode: conv.Mode, Turns: Flatten(msgs)})
	metrics.CompletionDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	if err == nil && strings.TrimSpace(resp.Content) == "" {
		err = errors.New("empty reply")
	}
	if err != nil {
		metrics.CompletionRequests.WithLabelValues(mode, "error").Inc()
		o.log.Warnw("Completion failed, user message kept for retry", "conversation", conv.ID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrCompletionFailed, err)
	}
	metrics.CompletionRequests.WithLabelValues(mode, "ok").Inc()

	reply, err := o.store.AddMessage(ctx, conv.ID, conversation.RoleAssistant, conversation.Text(resp.Content))
	if err != nil {
		return nil, err
	}
	metrics.MessagesStored.WithLabelValues(mode, string(conversation.RoleAssistant)).Inc()
	return reply, nil
}

// Flatten converts stored history into completion turns. Structured content
// is sent as its JSON text.
func Flatten(msgs []conversation.Message) []completion.Turn {
	turns := make([]completion.Turn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, completion.Turn{Role: m.Role, Content: m.Content.String()})
	}
	return turns
}

func (o *Orchestrator) Create(ctx context.Context, userID string, mode conversation.Mode, title string) (*conversation.Conversation, error) {
	conv, err := o.store.CreateConversation(ctx, userID, mode, title)
	if err != nil {
		return nil, err
	}
	metrics.ConversationsCreated.WithLabelValues(string(conv.Mode)).Inc()
	return conv, nil
}

// Get returns the user's conversation with its messages.
func (o *Orchestrator) Get(ctx context.Context, userID, conversationID string) (*conversation.Thread, error) {
	conv, err := o.store.FindConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	msgs, err := o.store.GetMessages(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	return &conversation.Thread{Conversation: *conv, Messages: msgs}, nil
}

func (o *Orchestrator) List(ctx context.Context, userID string) ([]conversation.Summary, error) {
	return o.store.GetUserConversations(ctx, userID)
}

// Rename checks that userID owns the conversation before changing its title;
// the store's UpdateTitle does not.
func (o *Orchestrator) Rename(ctx context.Context, userID, conversationID, title string) (*conversation.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	if _, err := o.store.FindConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	return o.store.UpdateTitle(ctx, conversationID, title)
}

// Delete removes the user's conversation. A conversation owned by someone
// else is reported as not found.
func (o *Orchestrator) Delete(ctx context.Context, userID, conversationID string) error {
	n, err := o.store.DeleteConversation(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if n == 0 {
		return conversation.ErrNotFound
	}
	metrics.ConversationsDeleted.Inc()
	return nil
}
