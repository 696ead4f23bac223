// Package chat drives a conversation round trip: it stores the user's turn,
// asks the completion backend for a reply and stores that reply. It also
// exposes the conversations HTTP API.
package chat
