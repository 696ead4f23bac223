// Package store owns the orbit-server database handle and its schema
// migrations for sqlite and postgres.
package store
