// Package system holds request-scoped logging helpers for orbit-server.
package system
