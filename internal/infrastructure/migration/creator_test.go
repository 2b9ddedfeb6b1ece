package migration

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/erp/invoicing/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"add ledger index", "add_ledger_index"},
		{"Add-Ledger-Index", "add_ledger_index"},
		{"ADD__LEDGER__INDEX", "add_ledger_index"},
		{"   spaces   ", "spaces"},
		{"special!@#$chars", "specialchars"},
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
	t.Run("writes a matching pair", func(t *testing.T) {
		dir := t.TempDir()

		mf, err := CreateMigration(dir, "add payment method index", "Index payments by method")
		require.NoError(t, err)
		assert.Len(t, mf.Version, 14)

		upBase := strings.TrimSuffix(filepath.Base(mf.UpPath), ".up.sql")
		downBase := strings.TrimSuffix(filepath.Base(mf.DownPath), ".down.sql")
		assert.Equal(t, upBase, downBase)
		assert.Equal(t, mf.Version+"_add_payment_method_index", upBase)

		up, err := os.ReadFile(mf.UpPath)
		require.NoError(t, err)
		assert.Contains(t, string(up), "Index payments by method")

		down, err := os.ReadFile(mf.DownPath)
		require.NoError(t, err)
		assert.Contains(t, string(down), "Rollback")
	})

	t.Run("rejects an empty name", func(t *testing.T) {
		_, err := CreateMigration(t.TempDir(), "!!!", "")
		assert.Error(t, err)
	})

	t.Run("listed after creation", func(t *testing.T) {
		dir := t.TempDir()
		mf, err := CreateMigration(dir, "first", "")
		require.NoError(t, err)

		names, err := ListMigrations(os.DirFS(dir))
		require.NoError(t, err)
		assert.Equal(t, []string{mf.Version + "_first"}, names)
	})
}

func TestListMigrations(t *testing.T) {
	t.Run("sorted up migrations only", func(t *testing.T) {
		src := fstest.MapFS{
			"002_b.up.sql":   {},
			"002_b.down.sql": {},
			"001_a.up.sql":   {},
			"001_a.down.sql": {},
			"README.md":      {},
		}
		names, err := ListMigrations(src)
		require.NoError(t, err)
		assert.Equal(t, []string{"001_a", "002_b"}, names)
	})

	t.Run("embedded schema", func(t *testing.T) {
		names, err := ListMigrations(migrations.FS)
		require.NoError(t, err)
		assert.Equal(t, []string{
			"20261001090000_create_invoices",
			"20261001090100_create_invoice_records",
		}, names)
	})
}
