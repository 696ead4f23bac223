package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/orbit-cli/orbit/pkg/config"
	"github.com/orbit-cli/orbit/pkg/metrics"
)

// maxTokenLength bounds what is sent to the database; real tokens are far shorter.
const maxTokenLength = 512

// ErrUnauthenticated covers unknown, expired and malformed tokens alike.
var ErrUnauthenticated = errors.New("unauthenticated")

// StorageError wraps a database failure during resolution. It is never
// reported as ErrUnauthenticated.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("session storage: %v", e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

// User mirrors the identity provider's users table.
type User struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	Name      string    `gorm:"column:name" json:"name"`
	Email     string    `gorm:"column:email" json:"email"`
	Image     *string   `gorm:"column:image" json:"image,omitempty"`
	CreatedAt time.Time `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updatedAt"`
}

func (User) TableName() string { return "users" }

// Session mirrors the identity provider's sessions table.
type Session struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	Token     string    `gorm:"column:token" json:"-"`
	UserID    string    `gorm:"column:user_id" json:"userId"`
	ExpiresAt time.Time `gorm:"column:expires_at" json:"expiresAt"`
	CreatedAt time.Time `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updatedAt"`
	User      User      `gorm:"foreignKey:UserID" json:"-"`
}

func (Session) TableName() string { return "sessions" }

// Identity is a resolved, unexpired session and its user. The token itself is
// never serialized.
type Identity struct {
	Session Session `json:"session"`
	User    User    `json:"user"`
}

// Resolver maps bearer tokens and session cookies to identities. It only
// reads; sessions are created and extended by the identity provider.
type Resolver struct {
	db         *gorm.DB
	log        *zap.SugaredLogger
	now        func() time.Time
	cookieName string
}

type Option func(*Resolver)

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		r.now = now
	}
}

func WithCookieName(name string) Option {
	return func(r *Resolver) {
		if name != "" {
			r.cookieName = name
		}
	}
}

func NewResolver(db *gorm.DB, log *zap.SugaredLogger, opts ...Option) *Resolver {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	r := &Resolver{
		db:         db,
		log:        log,
		now:        time.Now,
		cookieName: config.DefaultSessionCookieName,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve looks up token exactly as given. Matching is case-sensitive and
// surrounding whitespace is not trimmed.
func (r *Resolver) Resolve(ctx context.Context, token string) (*Identity, error) {
	if !wellFormed(token) {
		metrics.SessionLookups.WithLabelValues("unauthenticated").Inc()
		return nil, ErrUnauthenticated
	}

	var sessions []Session
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("token = ?", token).
		Limit(1).
		Find(&sessions).Error
	if err != nil {
		metrics.SessionLookups.WithLabelValues("error").Inc()
		return nil, &StorageError{Err: err}
	}
	if len(sessions) == 0 {
		metrics.SessionLookups.WithLabelValues("unauthenticated").Inc()
		return nil, ErrUnauthenticated
	}
	sess := sessions[0]

	// The comparison guards against collations that fold case.
	if subtle.ConstantTimeCompare([]byte(sess.Token), []byte(token)) != 1 ||
		!r.now().Before(sess.ExpiresAt) ||
		sess.User.ID == "" {
		metrics.SessionLookups.WithLabelValues("unauthenticated").Inc()
		return nil, ErrUnauthenticated
	}

	metrics.SessionLookups.WithLabelValues("ok").Inc()
	sess.ExpiresAt = sess.ExpiresAt.UTC()
	return &Identity{Session: sess, User: sess.User}, nil
}

// FromBearer resolves a token passed explicitly, as in /api/me/:access_token.
func (r *Resolver) FromBearer(ctx context.Context, token string) (*Identity, error) {
	return r.Resolve(ctx, token)
}

// FromRequest resolves the credentials a request carries: the session cookie
// first, then an Authorization bearer header. The first one that resolves wins.
func (r *Resolver) FromRequest(ctx context.Context, req *http.Request) (*Identity, error) {
	candidates := make([]string, 0, 2)
	if c, err := req.Cookie(r.cookieName); err == nil && c.Value != "" {
		candidates = append(candidates, cookieToken(c.Value))
	}
	if token, ok := bearerToken(req.Header.Get("Authorization")); ok {
		candidates = append(candidates, token)
	}

	for _, token := range candidates {
		id, err := r.Resolve(ctx, token)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, ErrUnauthenticated) {
			return nil, err
		}
	}
	return nil, ErrUnauthenticated
}

func wellFormed(token string) bool {
	if token == "" || len(token) > maxTokenLength {
		return false
	}
	return strings.TrimSpace(token) == token
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return token, true
}

// cookieToken extracts the session token from a cookie value. Signed cookies
// are "<token>.<signature>", url-encoded.
func cookieToken(value string) string {
	if unescaped, err := url.QueryUnescape(value); err == nil {
		value = unescaped
	}
	token, _, _ := strings.Cut(value, ".")
	return token
}
