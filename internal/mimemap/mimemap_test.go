package mimemap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultTranslatesKnownTypes(t *testing.T) {
	table, err := Default()
	require.NoError(t, err)

	export, ext, ok := table.Translate("application/vnd.google-apps.document")
	require.True(t, ok)
	require.Equal(t, ".docx", ext)
	require.Equal(t, "application/vnd.openxmlformats-officedocument.wordprocessingml.document", export)
	require.True(t, table.IsNative("application/vnd.google-apps.document"))
}

func TestTranslateUnknownMIME(t *testing.T) {
	table, err := Default()
	require.NoError(t, err)

	_, _, ok := table.Translate("text/plain")
	require.False(t, ok)
	require.False(t, table.IsNative("text/plain"))
}

func TestLoadWritesDefaultsWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "types.yaml")

	table, err := Load(path)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err, "Load should have written the default table to disk")

	_, ext, ok := table.Translate("application/vnd.google-apps.spreadsheet")
	require.True(t, ok)
	require.Equal(t, ".xlsx", ext)
}

func TestLoadMergesUserEntriesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "types.yaml")
	custom := "application/vnd.google-apps.document:\n  export: text/markdown\n  ext: .md\n"
	require.NoError(t, os.WriteFile(path, []byte(custom), 0644))

	table, err := Load(path)
	require.NoError(t, err)

	export, ext, ok := table.Translate("application/vnd.google-apps.document")
	require.True(t, ok)
	require.Equal(t, "text/markdown", export)
	require.Equal(t, ".md", ext)

	// Entries the user file doesn't mention still fall back to defaults.
	_, ext, ok = table.Translate("application/vnd.google-apps.spreadsheet")
	require.True(t, ok)
	require.Equal(t, ".xlsx", ext)
}

func TestTranslateOnNilTable(t *testing.T) {
	var table *Table
	_, _, ok := table.Translate("application/vnd.google-apps.document")
	require.False(t, ok)
}
