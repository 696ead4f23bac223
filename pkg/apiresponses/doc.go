// Package apiresponses provides the JSON error envelope and response helpers
// shared by orbit-server handlers.
package apiresponses
