package commands

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"

	"github.com/paperdrop/paperdrop/pkg/config"
)

var (
	keygenOutput string
	keygenRSA    int
	keygenForce  bool
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an SSH host key",
	Long: `Generate a private host key for the SFTP server.

The key is written as an OpenSSH PEM file readable only by the current
user. Point server.host_key at it in the configuration file.

By default an ed25519 key is generated; use --rsa to generate an RSA key
instead.

Examples:
  # Generate an ed25519 key at the default location
  paperdrop keygen

  # Generate a 4096-bit RSA key at a custom path
  paperdrop keygen --rsa 4096 --output /etc/paperdrop/host_key`,
	RunE: runKeygen,
}

func init() {
	keygenCmd.Flags().StringVarP(&keygenOutput, "output", "o", "", "Output path (default: $XDG_CONFIG_HOME/paperdrop/host_key)")
	keygenCmd.Flags().IntVar(&keygenRSA, "rsa", 0, "Generate an RSA key with the given bit size instead of ed25519")
	keygenCmd.Flags().BoolVar(&keygenForce, "force", false, "Overwrite an existing key file")
}

func runKeygen(cmd *cobra.Command, args []string) error {
	path := keygenOutput
	if path == "" {
		path = filepath.Join(config.GetConfigDir(), "host_key")
	}

	if _, err := os.Stat(path); err == nil && !keygenForce {
		return fmt.Errorf("key file already exists at %s (use --force to overwrite)", path)
	}

	var (
		key     any
		keyKind string
	)
	if keygenRSA > 0 {
		if keygenRSA < 2048 {
			return fmt.Errorf("RSA keys smaller than 2048 bits are not accepted")
		}
		rsaKey, err := rsa.GenerateKey(rand.Reader, keygenRSA)
		if err != nil {
			return fmt.Errorf("failed to generate RSA key: %w", err)
		}
		key = rsaKey
		keyKind = fmt.Sprintf("rsa-%d", keygenRSA)
	} else {
		_, edKey, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return fmt.Errorf("failed to generate ed25519 key: %w", err)
		}
		key = edKey
		keyKind = "ed25519"
	}

	block, err := ssh.MarshalPrivateKey(key, "paperdrop host key")
	if err != nil {
		return fmt.Errorf("failed to encode key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}

	fmt.Printf("Host key (%s) written to: %s\n", keyKind, path)
	fmt.Println("\nSet it in your configuration:")
	fmt.Println("  server:")
	fmt.Printf("    host_key: %s\n", path)

	return nil
}
