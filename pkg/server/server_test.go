package server

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/paperdrop/paperdrop/internal/logger"
	"github.com/paperdrop/paperdrop/pkg/auth"
	"github.com/paperdrop/paperdrop/pkg/config"
	"github.com/paperdrop/paperdrop/pkg/store/memory"
)

func init() {
	logger.InitWithWriter(io.Discard, "ERROR", "text", false)
}

func writeHostKey(t *testing.T) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "host_key")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0600))
	return path
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.GetDefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.HostKey = writeHostKey(t)
	cfg.Server.ShutdownTimeout = time.Second
	cfg.S3.Bucket = "unused-in-tests"
	return cfg
}

func TestNewWithStoreMissingHostKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.HostKey = ""

	_, err := NewWithStore(cfg, memory.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "paperdrop keygen")
}

func TestNewWithStoreUnreadableHostKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.HostKey = filepath.Join(t.TempDir(), "missing")

	_, err := NewWithStore(cfg, memory.New())
	require.Error(t, err)
}

func TestServeAndShutdown(t *testing.T) {
	cfg := testConfig(t)
	st := memory.New()
	require.NoError(t, st.Put(context.Background(), auth.CredentialKey("alice", "secret"), nil, ""))

	srv, err := NewWithStore(cfg, st)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	addr := srv.SFTPAddr()
	require.NotEmpty(t, addr)

	// A real SSH handshake against the running adapter.
	conn, err := ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            "alice",
		Auth:            []ssh.AuthMethod{ssh.Password("secret")},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	})
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServeRejectsBadCredentials(t *testing.T) {
	cfg := testConfig(t)
	srv, err := NewWithStore(cfg, memory.New())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	_, err = ssh.Dial("tcp", srv.SFTPAddr(), &ssh.ClientConfig{
		User:            "mallory",
		Auth:            []ssh.AuthMethod{ssh.Password("wrong")},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	})
	require.Error(t, err)
}
