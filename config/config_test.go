package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults without a file", func(t *testing.T) {
		cfg, err := Load(t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, "memory", cfg.Database.Driver)
		assert.Equal(t, "json", cfg.Serializer)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Equal(t, "en-US", cfg.DefaultLocale)
	})

	t.Run("yaml overlay", func(t *testing.T) {
		dir := t.TempDir()
		overlay := []byte("database:\n  driver: postgres\n  url: postgres://localhost/portal\nlog:\n  level: debug\n")
		require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), overlay, 0o644))

		cfg, err := Load(dir)
		require.NoError(t, err)
		assert.Equal(t, "postgres", cfg.Database.Driver)
		assert.Equal(t, "postgres://localhost/portal", cfg.Database.URL)
		assert.Equal(t, "debug", cfg.Log.Level)
	})

	t.Run("environment wins over the file", func(t *testing.T) {
		dir := t.TempDir()
		overlay := []byte("log:\n  level: debug\n")
		require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), overlay, 0o644))
		t.Setenv("PORTAL_LOG_LEVEL", "warn")

		cfg, err := Load(dir)
		require.NoError(t, err)
		assert.Equal(t, "warn", cfg.Log.Level)
	})

	t.Run("postgres requires a url", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("database:\n  driver: postgres\n"), 0o644))

		_, err := Load(dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.url")
	})

	t.Run("unknown serializer is rejected", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("PORTAL_SERIALIZER", "xml")

		_, err := Load(dir)
		require.Error(t, err)
	})

	t.Run("save round-trips", func(t *testing.T) {
		dir := t.TempDir()
		cfg, err := Load(dir)
		require.NoError(t, err)
		cfg.DefaultLocale = "fr-FR"
		require.NoError(t, cfg.Save(dir))

		loaded, err := Load(dir)
		require.NoError(t, err)
		assert.Equal(t, "fr-FR", loaded.DefaultLocale)
	})
}
