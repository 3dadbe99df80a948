package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "NbPicture.config")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.FileExists(t, path)
	assert.Equal(t, 8089, cfg.Server.Port)
	assert.Equal(t, filepath.Join(dir, "data", "images"), cfg.Storage.ImagesDirectory)
	assert.Equal(t, "uuid", cfg.Widgets.IDScheme)
	assert.Nil(t, cfg.GetMediaQueries())

	again, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Widgets, again.Widgets)
	assert.Equal(t, cfg.Storage, again.Storage)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "NbPicture.config")
	content := `<?xml version="1.0" encoding="UTF-8"?>
<NbPicture>
  <Server>
    <Port>9000</Port>
    <BindAddress>127.0.0.1</BindAddress>
  </Server>
  <Storage>
    <DefinitionsDirectory>/srv/defs</DefinitionsDirectory>
  </Storage>
  <Widgets>
    <MaxWidgets>5</MaxWidgets>
    <ResizeDebounceMs>150</ResizeDebounceMs>
    <IDScheme>counter</IDScheme>
    <Touch>true</Touch>
  </Widgets>
  <MediaQueries>
    <Query name="large">(min-width: 1000px)</Query>
    <Query name="small">(max-width: 999px)</Query>
  </MediaQueries>
</NbPicture>`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.GetServerAddr())
	assert.Equal(t, "/srv/defs", cfg.Storage.DefinitionsDirectory)
	assert.Equal(t, filepath.Join(dir, "data"), cfg.Storage.DataDirectory, "missing elements keep defaults")
	assert.Equal(t, 5, cfg.Widgets.MaxWidgets)
	assert.Equal(t, 150*time.Millisecond, cfg.Widgets.ResizeDebounce())
	assert.True(t, cfg.Widgets.Touch)
	assert.Equal(t, map[string]string{
		"large": "(min-width: 1000px)",
		"small": "(max-width: 999px)",
	}, cfg.GetMediaQueries())
}

func TestLoadConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "NbPicture.config")
	require.NoError(t, os.WriteFile(path, []byte("<NbPicture><Server>"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestEnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PORT", "7000")
	t.Setenv("DATA_DIR", filepath.Join(dir, "var"))
	t.Setenv("DEFINITIONS_DIR", filepath.Join(dir, "defs"))

	cfg, err := LoadConfig(filepath.Join(dir, "NbPicture.config"))
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, filepath.Join(dir, "var", "images"), cfg.Storage.ImagesDirectory)
	assert.Equal(t, filepath.Join(dir, "defs"), cfg.Storage.DefinitionsDirectory)
}

func TestWidgetDurations(t *testing.T) {
	w := WidgetsConfig{IdleTimeoutMinutes: 2}
	assert.Equal(t, 2*time.Minute, w.IdleTimeout())
	assert.Equal(t, 5*time.Minute, w.CleanupInterval())

	w.CleanupIntervalMinutes = 1
	assert.Equal(t, time.Minute, w.CleanupInterval())
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.resolvePaths(dir)

	require.NoError(t, cfg.EnsureDirectories())
	assert.DirExists(t, filepath.Join(dir, "data", "images"))
	assert.DirExists(t, filepath.Join(dir, "data", "definitions"))
}
