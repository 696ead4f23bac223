// Package ratelimit provides per-IP and per-user token-bucket rate limiting
// middleware for Gin, with automatic stale-entry cleanup.
package ratelimit
