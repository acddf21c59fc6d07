package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// sampleConfig is the commented configuration template written by
// "paperdrop init". It mirrors the defaults; the two settings without
// defaults (the host key path and the bucket) are spelled out so a new
// deployment knows exactly what it must fill in.
const sampleConfig = `# paperdrop configuration
#
# Every setting can also be supplied through the environment with the
# PAPERDROP_ prefix, e.g. PAPERDROP_SERVER_PORT=2200.

logging:
  # DEBUG, INFO, WARN, ERROR
  level: INFO
  # text or json
  format: text
  # stdout, stderr, or a file path
  output: stdout

server:
  host: 127.0.0.1
  port: 2222
  # Maximum concurrent client connections; 0 means unlimited.
  max_connections: 100
  # Path to the SSH host key PEM. Generate one with "paperdrop keygen".
  host_key: ""
  # How long a user may stay quiet before the idle event fires.
  idle_timeout: 60s
  # How long graceful shutdown waits for active sessions to drain.
  shutdown_timeout: 30s

users:
  # Bucket prefix user homes live under.
  base_path: users
  # Folders provisioned inside each new home.
  default_subdirs: [invoices, ledgers]
  create_default_subdirs: true
  # Per-user path allow-lists. Users not listed here may access their
  # whole home.
  # allowed_paths:
  #   alice: ["/", "/ledgers"]

s3:
  # The bucket must already exist; paperdrop will not create it.
  bucket: ""
  region: us-east-1
  # Set the endpoint for S3-compatible stores (MinIO, LocalStack).
  # endpoint: http://localhost:4566
  # force_path_style: true
  # Credentials may also come from the standard AWS environment.
  # access_key_id: ""
  # secret_access_key: ""

uploads:
  # Advisory size limit; larger uploads are logged but not refused.
  max_file_size: 100MiB
  max_directory_depth: 10

metrics:
  enabled: false
  port: 9090

api:
  enabled: false
  port: 8080
`

// InitConfig writes the sample configuration to the default location and
// returns the path it wrote. Refuses to overwrite unless force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes the sample configuration to an explicit path.
func InitConfigToPath(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// 0600: the file may carry S3 credentials.
	if err := os.WriteFile(path, []byte(sampleConfig), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
