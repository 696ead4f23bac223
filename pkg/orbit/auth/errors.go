package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthorizationDenied is returned when the user rejects the device code.
	ErrAuthorizationDenied = errors.New("authorization denied")
	// ErrGrantExpired is returned once the device code can no longer be redeemed.
	ErrGrantExpired = errors.New("device code expired")
	// ErrUnauthenticated means there is no usable credential, or the server rejected it.
	ErrUnauthenticated = errors.New("not logged in")
	// ErrNoCredential is returned by a TokenStore that holds nothing.
	ErrNoCredential = errors.New("no stored credential")
)

// NetworkError wraps a transport failure talking to the authorization server.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ServerError is an error response from the authorization server.
type ServerError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *ServerError) Error() string {
	msg := fmt.Sprintf("authorization server error (status %d)", e.StatusCode)
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Description != "" {
		msg += ": " + e.Description
	}
	return msg
}
