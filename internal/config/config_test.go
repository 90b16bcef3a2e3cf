package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)
	for _, key := range []string{
		"SAPTIVA_API_KEY", "SAPTIVA_BASE_URL", "COPILOTOS_API_URL", "COPILOTOS_API_TOKEN",
		"COPILOTOS_MODEL", "COPILOTOS_DB", "COPILOTOS_TOOLS_FILE", "COPILOTOS_LOG_LEVEL", "COPILOTOS_LOG_FILE",
	} {
		t.Setenv(key, "")
	}
	return dir
}

func TestLoadDefaults(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultBaseURL, cfg.Saptiva.BaseURL)
	assert.Equal(t, DefaultAPIURL, cfg.API.URL)
	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, filepath.Join(dir, AppName, "copilotos.db"), cfg.DBPath)
	assert.Equal(t, filepath.Join(dir, AppName, "tools.yaml"), cfg.ToolsFile)
	assert.ErrorIs(t, cfg.Validate(), ErrMissingAPIKey)
}

func TestLoadFromEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("SAPTIVA_API_KEY", "sk-test")
	t.Setenv("COPILOTOS_MODEL", "Saptiva Cortex")
	t.Setenv("COPILOTOS_DB", "/tmp/chats.db")
	t.Setenv("COPILOTOS_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.Saptiva.APIKey)
	assert.Equal(t, "Saptiva Cortex", cfg.Model)
	assert.Equal(t, "/tmp/chats.db", cfg.DBPath)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}
