package conversation

import (
	"fmt"
	"time"
)

// Mode selects the completion behaviour of a conversation. It never changes
// after creation.
type Mode string

const (
	ModeChat  Mode = "chat"
	ModeTool  Mode = "tool"
	ModeAgent Mode = "agent"
)

// Modes lists every supported mode in menu order.
var Modes = []Mode{ModeChat, ModeTool, ModeAgent}

func (m Mode) Valid() bool {
	switch m {
	case ModeChat, ModeTool, ModeAgent:
		return true
	}
	return false
}

// ParseMode validates a user supplied mode name.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
	return m, nil
}

// DefaultTitle is the title given to conversations created without one.
func DefaultTitle(m Mode) string {
	return fmt.Sprintf("New %s conversation", m)
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	}
	return false
}

type Conversation struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	UserID    string    `gorm:"column:user_id" json:"userId"`
	Mode      Mode      `gorm:"column:mode" json:"mode"`
	Title     string    `gorm:"column:title" json:"title"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime:false" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime:false" json:"updatedAt"`
}

func (Conversation) TableName() string { return "conversations" }

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Role           Role      `json:"role"`
	Content        Content   `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
	// Seq breaks ties between messages sharing a timestamp.
	Seq int64 `json:"seq"`
}

// Thread is a conversation together with its ordered messages.
type Thread struct {
	Conversation
	Messages []Message `json:"messages"`
}

// Summary is a conversation with a preview of its most recent message.
type Summary struct {
	Conversation
	LastMessage *Message `json:"lastMessage,omitempty"`
}

// messageRow is the persisted form of Message.
type messageRow struct {
	Seq            int64       `gorm:"column:seq;primaryKey;autoIncrement"`
	ID             string      `gorm:"column:id"`
	ConversationID string      `gorm:"column:conversation_id"`
	Role           Role        `gorm:"column:role"`
	Content        string      `gorm:"column:content"`
	ContentKind    ContentKind `gorm:"column:content_kind"`
	CreatedAt      time.Time   `gorm:"column:created_at;autoCreateTime:false"`
}

func (messageRow) TableName() string { return "messages" }

func (r messageRow) toMessage() Message {
	return Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		Role:           r.Role,
		Content:        decodeStored(r.ContentKind, r.Content),
		CreatedAt:      r.CreatedAt.UTC(),
		Seq:            r.Seq,
	}
}
