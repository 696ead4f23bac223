package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/orbit-cli/orbit/pkg/conversation"
	"github.com/orbit-cli/orbit/pkg/orbit/auth"
	"github.com/orbit-cli/orbit/pkg/orbit/client"
)

// FormatError renders err as the single line the CLI prints on failure.
func FormatError(err error) string {
	if err == nil {
		return ""
	}
	if id, ok := client.IsCompletionFailure(err); ok {
		if id == "" {
			return "the assistant did not reply; try again"
		}
		return fmt.Sprintf("the assistant did not reply; your message was saved, run `orbit conversations resume %s` to try again", id)
	}

	var (
		netErr    *auth.NetworkError
		serverErr *auth.ServerError
		httpErr   *client.HTTPError
		urlErr    *url.Error
	)
	switch {
	case errors.Is(err, auth.ErrAuthorizationDenied):
		return "login was denied; run `orbit login` again"
	case errors.Is(err, auth.ErrGrantExpired):
		return "code expired; run `orbit login` again"
	case errors.Is(err, auth.ErrUnauthenticated):
		return "not logged in; run `orbit login`"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, conversation.ErrNotFound):
		return "conversation not found"
	case errors.As(err, &serverErr):
		if serverErr.Description != "" {
			return fmt.Sprintf("authorization server rejected the request: %s", serverErr.Description)
		}
		return serverErr.Error()
	case errors.As(err, &netErr):
		return fmt.Sprintf("cannot reach the authorization server: %v", netErr.Err)
	case errors.As(err, &httpErr):
		return fmt.Sprintf("orbit-server: %s", httpErr.Message)
	case errors.As(err, &urlErr):
		return fmt.Sprintf("cannot reach %s: %v", urlErr.URL, urlErr.Err)
	}
	return err.Error()
}
