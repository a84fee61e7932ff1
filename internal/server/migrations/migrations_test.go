package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations_Embedded(t *testing.T) {
	names, err := fs.Glob(Migrations, "*.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{"00001_accounts.sql", "00002_sessions.sql", "00003_audit_logs.sql"}, names)

	for _, name := range names {
		b, err := fs.ReadFile(Migrations, name)
		require.NoError(t, err)
		body := string(b)
		assert.True(t, strings.HasPrefix(body, "-- +goose Up"), name)
		assert.Contains(t, body, "-- +goose Down", name)
	}
}

func TestMigrations_ProtectAdmins(t *testing.T) {
	b, err := fs.ReadFile(Migrations, "00001_accounts.sql")
	require.NoError(t, err)
	assert.Contains(t, string(b), "accounts_username_lower_idx")
	assert.Contains(t, string(b), "accounts_email_lower_idx")
	assert.Contains(t, string(b), "admin accounts cannot be deleted")
}
