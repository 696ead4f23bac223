package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/orbit-cli/orbit/pkg/conversation"
	"github.com/orbit-cli/orbit/pkg/orbit/auth"
	"github.com/orbit-cli/orbit/pkg/orbit/client"
)

func TestFormatError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "denied", err: fmt.Errorf("login: %w", auth.ErrAuthorizationDenied), want: "login was denied; run `orbit login` again"},
		{name: "expired", err: auth.ErrGrantExpired, want: "code expired; run `orbit login` again"},
		{name: "unauthenticated", err: auth.ErrUnauthenticated, want: "not logged in; run `orbit login`"},
		{name: "http 401", err: &client.HTTPError{StatusCode: http.StatusUnauthorized, Message: "No active session"}, want: "not logged in; run `orbit login`"},
		{name: "not found", err: &client.HTTPError{StatusCode: http.StatusNotFound, Message: "conversation not found"}, want: "conversation not found"},
		{name: "plain not found", err: conversation.ErrNotFound, want: "conversation not found"},
		{name: "cancelled", err: context.Canceled, want: "cancelled"},
		{
			name: "completion failure",
			err:  &client.HTTPError{StatusCode: http.StatusBadGateway, Message: "completion backend failed", Details: "c-1"},
			want: "the assistant did not reply; your message was saved, run `orbit conversations resume c-1` to try again",
		},
		{
			name: "completion failure without id",
			err:  &client.HTTPError{StatusCode: http.StatusBadGateway},
			want: "the assistant did not reply; try again",
		},
		{name: "server error", err: &auth.ServerError{StatusCode: 400, Code: "invalid_client", Description: "unknown client"}, want: "authorization server rejected the request: unknown client"},
		{name: "server error no description", err: &auth.ServerError{StatusCode: 500, Code: "server_error"}, want: "authorization server error (status 500): server_error"},
		{name: "network", err: &auth.NetworkError{Op: "poll", Err: errors.New("connection refused")}, want: "cannot reach the authorization server: connection refused"},
		{name: "other http", err: &client.HTTPError{StatusCode: http.StatusConflict, Message: "nothing to resume"}, want: "orbit-server: nothing to resume"},
		{
			name: "transport",
			err:  fmt.Errorf("GET api/me: %w", &url.Error{Op: "Get", URL: "http://localhost:3005/api/me", Err: errors.New("connection refused")}),
			want: "cannot reach http://localhost:3005/api/me: connection refused",
		},
		{name: "fallback", err: errors.New("boom"), want: "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatError(tt.err))
		})
	}
}
