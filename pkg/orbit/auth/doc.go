// Package auth implements the orbit CLI login: the OAuth device authorization
// grant driven by a small state machine, and the local credential store backed
// by a file or the OS keychain.
package auth
