package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	err := os.WriteFile(path, []byte("cacheDir: /some/directory\nlog: warn\n"), 0644)
	assert.NoError(t, err)

	conf := LoadConfig(path)
	assert.Equal(t, "/some/directory", conf.CacheDir)
	assert.Equal(t, "warn", conf.LogLevel)
	// Fields the file doesn't mention still fall back to defaults.
	assert.Equal(t, filepath.Join(DefaultAppDir(), "credentials.json"), conf.CredentialsFile)
}

func TestLoadNonexistentConfig(t *testing.T) {
	t.Parallel()

	conf := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))

	defaults := defaultConfig()
	assert.Equal(t, defaults.CacheDir, conf.CacheDir)
	assert.Equal(t, "info", conf.LogLevel)
}

func TestLoadUnparseableConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	err := os.WriteFile(path, []byte(": not valid yaml :::"), 0644)
	assert.NoError(t, err)

	conf := LoadConfig(path)
	assert.Equal(t, "info", conf.LogLevel)
}
