package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store persists conversations and their messages. Every read and delete is
// scoped to the owning user except UpdateTitle, which callers must guard.
type Store struct {
	db    *gorm.DB
	log   *zap.SugaredLogger
	now   func() time.Time
	newID func() string
}

type Option func(*Store)

// WithClock overrides the time source used for created_at and updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithIDGenerator overrides how conversation and message ids are minted.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		s.newID = fn
	}
}

func NewStore(db *gorm.DB, log *zap.SugaredLogger, opts ...Option) *Store {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Store{
		db:    db,
		log:   log,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// timestamp returns the current time in UTC at the precision every supported
// database can round-trip.
func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// CreateConversation inserts a new conversation. An empty title becomes
// "New <mode> conversation".
func (s *Store) CreateConversation(ctx context.Context, userID string, mode Mode, title string) (*Conversation, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle(mode)
	}
	now := s.timestamp()
	conv := &Conversation{
		ID:        s.newID(),
		UserID:    userID,
		Mode:      mode,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(conv).Error; err != nil {
		return nil, storageErr("create conversation", err)
	}
	s.log.Debugw("Created conversation", "conversation", conv.ID, "user", userID, "mode", mode)
	return conv, nil
}

// FindConversation returns the conversation if it exists and belongs to userID.
func (s *Store) FindConversation(ctx context.Context, userID, conversationID string) (*Conversation, error) {
	var convs []Conversation
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", conversationID, userID).
		Limit(1).
		Find(&convs).Error
	if err != nil {
		return nil, storageErr("find conversation", err)
	}
	if len(convs) == 0 {
		return nil, ErrNotFound
	}
	conv := convs[0]
	normalize(&conv)
	return &conv, nil
}

// GetOrCreateConversation resumes the user's conversation when conversationID
// names one they own and starts a new one otherwise.
func (s *Store) GetOrCreateConversation(ctx context.Context, userID, conversationID string, mode Mode) (*Thread, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	if conversationID != "" {
		conv, err := s.FindConversation(ctx, userID, conversationID)
		switch {
		case err == nil:
			msgs, err := s.GetMessages(ctx, conv.ID)
			if err != nil {
				return nil, err
			}
			return &Thread{Conversation: *conv, Messages: msgs}, nil
		case !errors.Is(err, ErrNotFound):
			return nil, err
		}
		s.log.Debugw("Conversation not found for user, starting a new one", "conversation", conversationID, "user", userID)
	}
	conv, err := s.CreateConversation(ctx, userID, mode, "")
	if err != nil {
		return nil, err
	}
	return &Thread{Conversation: *conv, Messages: []Message{}}, nil
}

// AddMessage appends a message. Its created_at never precedes the previous
// message's, so (created_at, seq) order matches append order even when the
// clock steps backwards.
func (s *Store) AddMessage(ctx context.Context, conversationID string, role Role, content Content) (*Message, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	kind, body := content.encode()

	var msg Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var convs []Conversation
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", conversationID).
			Limit(1).
			Find(&convs).Error
		if err != nil {
			return storageErr("add message", err)
		}
		if len(convs) == 0 {
			return ErrNotFound
		}

		createdAt := s.timestamp()
		var last []messageRow
		err = tx.Where("conversation_id = ?", conversationID).
			Order("created_at DESC, seq DESC").
			Limit(1).
			Find(&last).Error
		if err != nil {
			return storageErr("add message", err)
		}
		if len(last) > 0 && last[0].CreatedAt.After(createdAt) {
			createdAt = last[0].CreatedAt.UTC()
		}

		row := messageRow{
			ID:             s.newID(),
			ConversationID: conversationID,
			Role:           role,
			Content:        body,
			ContentKind:    kind,
			CreatedAt:      createdAt,
		}
		if err := tx.Create(&row).Error; err != nil {
			return storageErr("add message", err)
		}
		err = tx.Model(&Conversation{}).
			Where("id = ?", conversationID).
			Update("updated_at", createdAt).Error
		if err != nil {
			return storageErr("add message", err)
		}
		msg = row.toMessage()
		return nil
	})
	if err != nil {
		return nil, txErr("add message", err)
	}
	return &msg, nil
}

// GetMessages returns the conversation's messages oldest first.
func (s *Store) GetMessages(ctx context.Context, conversationID string) ([]Message, error) {
	var rows []messageRow
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, seq ASC").
		Find(&rows).Error
	if err != nil {
		return nil, storageErr("get messages", err)
	}
	msgs := make([]Message, 0, len(rows))
	for _, r := range rows {
		msgs = append(msgs, r.toMessage())
	}
	return msgs, nil
}

// GetUserConversations lists the user's conversations, most recently active
// first, each with its latest message as a preview.
func (s *Store) GetUserConversations(ctx context.Context, userID string) ([]Summary, error) {
	var convs []Conversation
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC, id ASC").
		Find(&convs).Error
	if err != nil {
		return nil, storageErr("list conversations", err)
	}
	summaries := make([]Summary, 0, len(convs))
	if len(convs) == 0 {
		return summaries, nil
	}

	ids := make([]string, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.ID)
	}
	var rows []messageRow
	err = s.db.WithContext(ctx).
		Where("conversation_id IN ?", ids).
		Where("seq = (SELECT m2.seq FROM messages m2 WHERE m2.conversation_id = messages.conversation_id ORDER BY m2.created_at DESC, m2.seq DESC LIMIT 1)").
		Find(&rows).Error
	if err != nil {
		return nil, storageErr("list conversations", err)
	}
	latest := make(map[string]Message, len(rows))
	for _, r := range rows {
		latest[r.ConversationID] = r.toMessage()
	}

	for _, c := range convs {
		normalize(&c)
		sum := Summary{Conversation: c}
		if m, ok := latest[c.ID]; ok {
			sum.LastMessage = &m
		}
		summaries = append(summaries, sum)
	}
	return summaries, nil
}

// DeleteConversation removes the conversation and its messages if userID owns
// it. It returns the number of conversations deleted, so zero means the id was
// unknown or belongs to someone else.
func (s *Store) DeleteConversation(ctx context.Context, conversationID, userID string) (int64, error) {
	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owned int64
		err := tx.Model(&Conversation{}).
			Where("id = ? AND user_id = ?", conversationID, userID).
			Count(&owned).Error
		if err != nil {
			return storageErr("delete conversation", err)
		}
		if owned == 0 {
			return nil
		}
		if err := tx.Where("conversation_id = ?", conversationID).Delete(&messageRow{}).Error; err != nil {
			return storageErr("delete conversation", err)
		}
		res := tx.Where("id = ? AND user_id = ?", conversationID, userID).Delete(&Conversation{})
		if res.Error != nil {
			return storageErr("delete conversation", res.Error)
		}
		deleted = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, txErr("delete conversation", err)
	}
	if deleted > 0 {
		s.log.Debugw("Deleted conversation", "conversation", conversationID, "user", userID)
	}
	return deleted, nil
}

// UpdateTitle renames a conversation by id alone. It does not check
// ownership; callers must have resolved the conversation for the user first.
func (s *Store) UpdateTitle(ctx context.Context, conversationID, title string) (*Conversation, error) {
	res := s.db.WithContext(ctx).
		Model(&Conversation{}).
		Where("id = ?", conversationID).
		Updates(map[string]any{"title": title, "updated_at": s.timestamp()})
	if res.Error != nil {
		return nil, storageErr("update title", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	var conv Conversation
	if err := s.db.WithContext(ctx).Where("id = ?", conversationID).Take(&conv).Error; err != nil {
		return nil, storageErr("update title", err)
	}
	normalize(&conv)
	return &conv, nil
}

func normalize(c *Conversation) {
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
}
