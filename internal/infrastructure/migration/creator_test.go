package migration

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/erp/stockledger/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"add settlements index", "add_settlements_index"},
		{"Add-Batch-Expiry", "add_batch_expiry"},
		{"ADD_BATCH_EXPIRY", "add_batch_expiry"},
		{"add__batch__expiry", "add_batch_expiry"},
		{"Add Column 123", "add_column_123"},
		{"   spaces   ", "spaces"},
		{"special!@#$chars", "specialchars"},
		{"trailing_", "trailing"},
		{"_leading", "leading"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeName(tt.input))
		})
	}
}

func TestCreateMigration(t *testing.T) {
	dir := t.TempDir()

	mf, err := CreateMigration(dir, "add batch expiry", "Index batches by expiry date")
	require.NoError(t, err)
	assert.Equal(t, "000001", mf.Version)
	assert.Equal(t, filepath.Join(dir, "000001_add_batch_expiry.up.sql"), mf.UpPath)
	assert.Equal(t, filepath.Join(dir, "000001_add_batch_expiry.down.sql"), mf.DownPath)

	upContent, err := os.ReadFile(mf.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(upContent), "add batch expiry")
	assert.Contains(t, string(upContent), "Index batches by expiry date")

	downContent, err := os.ReadFile(mf.DownPath)
	require.NoError(t, err)
	assert.Contains(t, string(downContent), "Rollback")

	t.Run("numbers follow the highest version", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "000007_manual.up.sql"), []byte("--"), 0o644))

		next, err := CreateMigration(dir, "next", "")
		require.NoError(t, err)
		assert.Equal(t, "000008", next.Version)
		assert.True(t, strings.HasSuffix(next.UpPath, "000008_next.up.sql"))
	})

	t.Run("rejects an empty name", func(t *testing.T) {
		_, err := CreateMigration(dir, "!!!", "")
		assert.Error(t, err)
	})
}

func TestCreateMigration_CreatesDirectory(t *testing.T) {
	nestedPath := filepath.Join(t.TempDir(), "nested", "migrations")

	_, err := CreateMigration(nestedPath, "test", "test migration")
	require.NoError(t, err)

	info, err := os.Stat(nestedPath)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestListMigrations(t *testing.T) {
	tests := []struct {
		name     string
		fsys     fstest.MapFS
		expected []string
	}{
		{
			name: "sorted pairs",
			fsys: fstest.MapFS{
				"000002_add_index.up.sql":   {},
				"000002_add_index.down.sql": {},
				"000001_init.up.sql":        {},
				"000001_init.down.sql":      {},
			},
			expected: []string{"000001_init", "000002_add_index"},
		},
		{
			name:     "empty",
			fsys:     fstest.MapFS{},
			expected: []string{},
		},
		{
			name: "ignores other files and directories",
			fsys: fstest.MapFS{
				"000001_init.up.sql":  {},
				"README.md":           {},
				"embed.go":            {},
				"subdir.up.sql/x.sql": {},
			},
			expected: []string{"000001_init"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			names, err := ListMigrations(tt.fsys)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, names)
		})
	}
}

func TestListMigrations_NonexistentDirectory(t *testing.T) {
	names, err := ListMigrations(os.DirFS("/nonexistent/path/to/migrations"))
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestListMigrations_Embedded(t *testing.T) {
	names, err := ListMigrations(migrations.FS)
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "000001_create_ledger_tables", names[0])
}
