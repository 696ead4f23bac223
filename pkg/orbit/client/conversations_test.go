package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/orbit-cli/orbit/pkg/api"
	"github.com/orbit-cli/orbit/pkg/chat"
	"github.com/orbit-cli/orbit/pkg/completion"
	"github.com/orbit-cli/orbit/pkg/config"
	"github.com/orbit-cli/orbit/pkg/conversation"
	"github.com/orbit-cli/orbit/pkg/orbit/auth"
	"github.com/orbit-cli/orbit/pkg/session"
	"github.com/orbit-cli/orbit/pkg/store/storetest"
)

type scriptedCompleter struct {
	mu  sync.Mutex
	err error
}

func (s *scriptedCompleter) Complete(_ context.Context, req completion.Request) (*completion.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	last := req.Turns[len(req.Turns)-1]
	return &completion.Response{Content: "echo: " + last.Content}, nil
}

func (s *scriptedCompleter) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// newOrbitServer runs the real HTTP stack over an in-memory database.
func newOrbitServer(t *testing.T) (*httptest.Server, *scriptedCompleter) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := storetest.Open(t)
	storetest.SeedUser(t, db, "u1", "Ada", "ada@example.com")
	storetest.SeedUser(t, db, "u2", "Grace", "grace@example.com")
	storetest.SeedSession(t, db, "u1", "ada-token", time.Now().Add(time.Hour))
	storetest.SeedSession(t, db, "u2", "grace-token", time.Now().Add(time.Hour))

	log := zaptest.NewLogger(t)
	completer := &scriptedCompleter{}
	resolver := session.NewResolver(db.DB, log.Sugar())
	orchestrator := chat.NewOrchestrator(conversation.NewStore(db.DB, log.Sugar()), completer, log.Sugar())

	cfg := config.Defaults()
	cfg.Frontend.AllowedOrigins = nil
	s := api.NewServer(log, cfg, true, db)
	require.NoError(t, s.RegisterAll([]api.APIController{
		api.NewMeController(log.Sugar(), resolver, nil),
		chat.NewConversationController(log.Sugar(), orchestrator, resolver.Middleware(), nil),
	}))
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv, completer
}

func newClientFor(t *testing.T, srv *httptest.Server, token string) *Client {
	t.Helper()
	c, err := New(WithServer(srv.URL), WithToken(token))
	require.NoError(t, err)
	return c
}

func TestLookupSession(t *testing.T) {
	srv, _ := newOrbitServer(t)
	c := newClientFor(t, srv, "")
	ctx := context.Background()

	user, err := c.LookupSession(ctx, "ada-token")
	require.NoError(t, err)
	assert.Equal(t, &auth.User{ID: "u1", Name: "Ada", Email: "ada@example.com"}, user)

	_, err = c.LookupSession(ctx, "garbage")
	require.ErrorIs(t, err, auth.ErrUnauthenticated)

	_, err = c.LookupSession(ctx, "")
	require.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestConversations_Lifecycle(t *testing.T) {
	srv, _ := newOrbitServer(t)
	ada := newClientFor(t, srv, "ada-token").Conversations()
	ctx := context.Background()

	ex, err := ada.Send(ctx, SendRequest{Mode: conversation.ModeTool, Content: conversation.Text("hi")})
	require.NoError(t, err)
	assert.Equal(t, "New tool conversation", ex.Conversation.Title)
	require.NotNil(t, ex.Reply)
	assert.Equal(t, "echo: hi", ex.Reply.Content.String())
	id := ex.Conversation.ID

	ex, err = ada.Send(ctx, SendRequest{ConversationID: id, Mode: conversation.ModeTool, Content: conversation.Text("again")})
	require.NoError(t, err)
	assert.Equal(t, id, ex.Conversation.ID)

	thread, err := ada.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, thread.Messages, 4)
	assert.Equal(t, conversation.RoleUser, thread.Messages[0].Role)
	assert.Equal(t, "again", thread.Messages[2].Content.String())

	renamed, err := ada.Rename(ctx, id, "Shell tricks")
	require.NoError(t, err)
	assert.Equal(t, "Shell tricks", renamed.Title)

	created, err := ada.Create(ctx, conversation.ModeChat, "")
	require.NoError(t, err)
	assert.Equal(t, "New chat conversation", created.Title)

	list, err := ada.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, ada.Delete(ctx, created.ID))
	_, err = ada.Get(ctx, created.ID)
	assert.ErrorIs(t, err, conversation.ErrNotFound)
}

func TestConversations_IsolatedPerUser(t *testing.T) {
	srv, _ := newOrbitServer(t)
	ctx := context.Background()
	ada := newClientFor(t, srv, "ada-token").Conversations()
	grace := newClientFor(t, srv, "grace-token").Conversations()

	conv, err := ada.Create(ctx, conversation.ModeChat, "private")
	require.NoError(t, err)

	_, err = grace.Get(ctx, conv.ID)
	assert.ErrorIs(t, err, conversation.ErrNotFound)
	assert.ErrorIs(t, grace.Delete(ctx, conv.ID), conversation.ErrNotFound)

	_, err = ada.Get(ctx, conv.ID)
	assert.NoError(t, err)
}

func TestConversations_CompletionFailureThenResume(t *testing.T) {
	srv, completer := newOrbitServer(t)
	ada := newClientFor(t, srv, "ada-token").Conversations()
	ctx := context.Background()

	completer.setErr(errors.New("upstream down"))
	_, err := ada.Send(ctx, SendRequest{Mode: conversation.ModeChat, Content: conversation.Text("hello")})
	id, ok := IsCompletionFailure(err)
	require.True(t, ok, "err = %v", err)
	require.NotEmpty(t, id)

	completer.setErr(nil)
	ex, err := ada.Resume(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "echo: hello", ex.Reply.Content.String())

	_, err = ada.Resume(ctx, id)
	var herr *HTTPError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, 409, herr.StatusCode)
}

func TestConversations_Unauthenticated(t *testing.T) {
	srv, _ := newOrbitServer(t)
	_, err := newClientFor(t, srv, "").Conversations().List(context.Background())
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}
