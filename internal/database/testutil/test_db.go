// Package testutil provides throwaway databases for package tests.
package testutil

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/accountd/internal/database"
)

// Option adjusts how MustOpenTestDB prepares the database.
type Option func(*options)

type options struct {
	migrate bool
}

// WithAutoMigrate creates the users and verification_tokens tables.
func WithAutoMigrate() Option {
	return func(o *options) { o.migrate = true }
}

// MustOpenTestDB opens an in-memory SQLite database private to the calling test and
// closes it on cleanup. Databases are named with a random id so parallel tests in one
// process never share rows through the shared cache.
func MustOpenTestDB(t testing.TB, opts ...Option) *gorm.DB {
	t.Helper()

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	db, err := database.Open(database.Config{
		Driver: "sqlite",
		DSN:    "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=1",
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if o.migrate {
		require.NoError(t, database.Migrate(db))
	}
	return db
}
