package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperdrop/paperdrop/internal/bytesize"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

const minimalConfig = `
server:
  host_key: /etc/paperdrop/host_key
s3:
  bucket: paperdrop-test
`

func TestLoadMinimalConfig(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/etc/paperdrop/host_key", cfg.Server.HostKey)
	assert.Equal(t, "paperdrop-test", cfg.S3.Bucket)

	// Everything else falls back to defaults.
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 2222, cfg.Server.Port)
	assert.Equal(t, 100, cfg.Server.MaxConnections)
	assert.Equal(t, 60*time.Second, cfg.Server.IdleTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "users", cfg.Users.BasePath)
	assert.Equal(t, []string{"invoices", "ledgers"}, cfg.Users.DefaultSubdirs)
	assert.True(t, cfg.Users.CreateDefaultSubdirs)
	assert.Equal(t, 100*bytesize.MiB, cfg.Uploads.MaxFileSize)
	assert.Equal(t, 10, cfg.Uploads.MaxDirectoryDepth)
	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.False(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.API.Enabled)
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
  format: json
server:
  host: 0.0.0.0
  port: 2200
  max_connections: 5
  host_key: /tmp/key
  idle_timeout: 90s
  shutdown_timeout: 5s
users:
  base_path: tenants
  default_subdirs: [ledgers]
  allowed_paths:
    alice: ["/", "/ledgers", "/shared"]
s3:
  bucket: prod-bucket
  region: eu-west-1
  endpoint: http://localhost:4566
  force_path_style: true
uploads:
  max_file_size: 5MiB
  max_directory_depth: 4
metrics:
  enabled: true
  port: 9100
api:
  enabled: true
  port: 8081
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 2200, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Server.MaxConnections)
	assert.Equal(t, 90*time.Second, cfg.Server.IdleTimeout)
	assert.Equal(t, "tenants", cfg.Users.BasePath)
	assert.Equal(t, []string{"ledgers"}, cfg.Users.DefaultSubdirs)
	assert.Equal(t, []string{"/", "/ledgers", "/shared"}, cfg.Users.AllowedPaths["alice"])
	assert.Equal(t, "eu-west-1", cfg.S3.Region)
	assert.Equal(t, "http://localhost:4566", cfg.S3.Endpoint)
	assert.True(t, cfg.S3.ForcePathStyle)
	assert.Equal(t, 5*bytesize.MiB, cfg.Uploads.MaxFileSize)
	assert.Equal(t, 4, cfg.Uploads.MaxDirectoryDepth)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9100, cfg.Metrics.Port)
	assert.True(t, cfg.API.Enabled)
	assert.Equal(t, 8081, cfg.API.Port)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 2222, cfg.Server.Port)
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("PAPERDROP_SERVER_PORT", "2345")
	t.Setenv("PAPERDROP_S3_REGION", "ap-south-1")

	path := writeConfig(t, minimalConfig)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2345, cfg.Server.Port)
	assert.Equal(t, "ap-south-1", cfg.S3.Region)
}

func TestLoadEnvironmentOverrideEmptyDefault(t *testing.T) {
	t.Setenv("PAPERDROP_S3_ENDPOINT", "http://localhost:4566")

	path := writeConfig(t, minimalConfig)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:4566", cfg.S3.Endpoint)
}

func TestLoadMissingFileAppliesEnvironment(t *testing.T) {
	t.Setenv("PAPERDROP_SERVER_PORT", "2400")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 2400, cfg.Server.Port)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: noisy
server:
  host_key: /tmp/key
s3:
  bucket: b
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation")
}

func TestMustLoadMissingExplicitFile(t *testing.T) {
	_, err := MustLoad(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "paperdrop init")
}

func TestSaveConfigRoundTrip(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.HostKey = "/tmp/host_key"
	cfg.S3.Bucket = "round-trip"

	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	require.NoError(t, SaveConfig(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.S3.Bucket, loaded.S3.Bucket)
	assert.Equal(t, cfg.Server.HostKey, loaded.Server.HostKey)
	assert.Equal(t, cfg.Uploads.MaxFileSize, loaded.Uploads.MaxFileSize)
}
