// Package config handles orbit-server configuration loading from YAML files,
// covering the HTTP listener, database, completion backend and session cookie.
package config
