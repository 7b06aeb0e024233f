package migration

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/erp/retailcore/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"add shift notes":        "add_shift_notes",
		"Add-Shift-Notes":        "add_shift_notes",
		"add__shift__notes":      "add_shift_notes",
		"Add Index 123":          "add_index_123",
		"   spaces   ":           "spaces",
		"special!@#$chars":       "specialchars",
		"_leading and trailing_": "leading_and_trailing",
		"café batches":           "caf_batches",
		"":                       "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Slug(in), "input %q", in)
	}
}

func TestScaffold(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "migrations")
	now := time.Date(2026, 4, 2, 13, 4, 5, 0, time.UTC)

	up, down, err := Scaffold(dir, "Add shift notes", "free-text notes on shifts", now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "20260402130405_add_shift_notes.up.sql"), up)
	assert.Equal(t, filepath.Join(dir, "20260402130405_add_shift_notes.down.sql"), down)

	body, err := os.ReadFile(up)
	require.NoError(t, err)
	assert.Contains(t, string(body), "-- Add shift notes")
	assert.Contains(t, string(body), "free-text notes on shifts")

	_, _, err = Scaffold(dir, "Add shift notes", "", now)
	assert.Error(t, err, "existing files are not overwritten")

	_, _, err = Scaffold(dir, "!!!", "", now)
	assert.Error(t, err)

	set, err := List(os.DirFS(dir))
	require.NoError(t, err)
	require.Len(t, set, 1)
	assert.True(t, set[0].HasDown)
}

func TestList(t *testing.T) {
	fsys := fstest.MapFS{
		"20260301090200_create_accounting.up.sql":   {},
		"20260301090200_create_accounting.down.sql": {},
		"20260301090000_create_catalog.up.sql":      {},
		"20260301090000_create_catalog.down.sql":    {},
		"20260301090100_create_stock.up.sql":        {},
		"README.md":                                 {},
		"embed.go":                                  {},
		"subdir.up.sql/x.sql":                       {},
	}
	set, err := List(fsys)
	require.NoError(t, err)

	var bases []string
	for _, m := range set {
		bases = append(bases, m.Base())
	}
	assert.Equal(t, []string{
		"20260301090000_create_catalog",
		"20260301090100_create_stock",
		"20260301090200_create_accounting",
	}, bases)
	assert.False(t, set[1].HasDown)
	assert.Equal(t, uint64(20260301090100), set[1].Version)
	assert.Equal(t, "create_stock", set[1].Name)
}

func TestList_MissingDirectory(t *testing.T) {
	set, err := List(os.DirFS(filepath.Join(t.TempDir(), "absent")))
	require.NoError(t, err)
	assert.Empty(t, set)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		files   []string
		wantErr string
	}{
		{"complete pairs", []string{"000001_init.up.sql", "000001_init.down.sql", "000002_stock.up.sql", "000002_stock.down.sql"}, ""},
		{"missing down file", []string{"000001_init.up.sql"}, "000001_init has no down file"},
		{"duplicate version", []string{"000001_init.up.sql", "000001_init.down.sql", "000001_other.up.sql", "000001_other.down.sql"}, "share version 1"},
		{"missing version prefix", []string{"init.up.sql", "init.down.sql"}, "want <version>_<name>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := fstest.MapFS{}
			for _, f := range tt.files {
				fsys[f] = &fstest.MapFile{}
			}
			err := Validate(fsys)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	require.NoError(t, Validate(migrations.FS))

	set, err := List(migrations.FS)
	require.NoError(t, err)
	require.NotEmpty(t, set)
	assert.Equal(t, "20260301090000_create_catalog", set[0].Base())

	var schema strings.Builder
	for _, m := range set {
		data, err := fs.ReadFile(migrations.FS, m.Base()+".up.sql")
		require.NoError(t, err)
		schema.Write(data)
	}
	for _, table := range []string{
		"catalog_items", "customers",
		"stock_ledger_entries", "unit_stocks", "batch_stocks", "stock_summaries",
		"accounts", "account_transactions",
		"sale_documents", "sale_line_items", "sale_service_lines", "sale_payments", "warranty_records",
		"shifts", "shift_cash_entries", "shift_sales",
		"operations", "discrepancy_logs", "outbox_events",
	} {
		assert.Contains(t, schema.String(), "CREATE TABLE IF NOT EXISTS "+table+" (", "table %s", table)
	}
}
