// Package storetest opens throwaway in-memory databases for tests.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/orbit-cli/orbit/pkg/config"
	"github.com/orbit-cli/orbit/pkg/store"
)

// Open returns a migrated in-memory sqlite store that is closed when the test ends.
func Open(t testing.TB) *store.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:orbit-%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	s, err := store.Open(context.Background(), config.Database{
		Driver: config.DriverSQLite,
		DSN:    dsn,
	}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// SeedUser inserts a user row the way the identity provider would.
func SeedUser(t testing.TB, s *store.Store, id, name, email string) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, s.DB.Exec(
		"INSERT INTO users (id, name, email, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		id, name, email, now, now).Error)
}

// SeedSession inserts a session row for an existing user.
func SeedSession(t testing.TB, s *store.Store, userID, token string, expiresAt time.Time) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, s.DB.Exec(
		"INSERT INTO sessions (id, token, user_id, expires_at, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		uuid.NewString(), token, userID, expiresAt.UTC(), now, now).Error)
}
