package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitConfigToPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	require.NoError(t, InitConfigToPath(path, false))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// The sample must load cleanly once the required fields are filled in.
	t.Setenv("PAPERDROP_SERVER_HOST_KEY", "/tmp/host_key")
	t.Setenv("PAPERDROP_S3_BUCKET", "sample")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2222, cfg.Server.Port)
	assert.Equal(t, "users", cfg.Users.BasePath)
	assert.True(t, cfg.Users.CreateDefaultSubdirs)
	assert.False(t, cfg.API.Enabled)
}

func TestInitConfigRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, InitConfigToPath(path, false))

	err := InitConfigToPath(path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	assert.NoError(t, InitConfigToPath(path, true))
}
