// Package session resolves session tokens issued by the identity provider
// into users, from either a session cookie or a bearer token.
package session
