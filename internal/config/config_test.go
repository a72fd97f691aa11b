package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locie/comepos-fetcher/internal/core"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(core.ConfigEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv(core.UsernameEnvVar, "")
	t.Setenv(core.PasswordEnvVar, "")
	t.Setenv(core.BaseURLEnvVar, "")
	t.Setenv(core.StoreEnvVar, "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, core.DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, core.MaxRowsPerRequest, cfg.MaxRows)
	assert.NotEmpty(t, cfg.StorePath)

	assert.Error(t, cfg.Validate())
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"username: file-user\npassword: file-pass\nstore: /tmp/file-store.db\nmax_rows: 500\n",
	), 0o644))

	t.Setenv(core.ConfigEnvVar, path)
	t.Setenv(core.UsernameEnvVar, "env-user")
	t.Setenv(core.PasswordEnvVar, "")
	t.Setenv(core.BaseURLEnvVar, "")
	t.Setenv(core.StoreEnvVar, "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "env-user", cfg.Username, "env wins over file")
	assert.Equal(t, "file-pass", cfg.Password, "file wins over defaults")
	assert.Equal(t, "/tmp/file-store.db", cfg.StorePath)
	assert.Equal(t, 500, cfg.MaxRows)

	assert.NoError(t, cfg.Validate())
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("username: [unclosed"), 0o644))
	t.Setenv(core.ConfigEnvVar, path)

	_, err := Load()
	assert.Error(t, err)
}
