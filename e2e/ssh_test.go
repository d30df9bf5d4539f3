//go:build e2e

package e2e

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/fgeck/gosvn-backup/internal/models"
	"github.com/fgeck/gosvn-backup/internal/services/ssh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backupHostShutdownConfig reads the backup host from TEST_SSH_* and skips when it is not set.
func backupHostShutdownConfig(t *testing.T) models.SSHShutdownConfig {
	t.Helper()

	host, keyPath := os.Getenv("TEST_SSH_HOST"), os.Getenv("TEST_SSH_KEY_PATH")
	if host == "" || keyPath == "" {
		t.Skip("TEST_SSH_HOST and TEST_SSH_KEY_PATH must be set")
	}

	cfg := models.SSHShutdownConfig{
		Host:          host,
		Port:          22,
		Username:      "root",
		KeyPath:       keyPath,
		OS:            os.Getenv("TEST_SSH_OS"),
		ShutdownDelay: 60, // still cancellable on the host with shutdown -c
	}
	if user := os.Getenv("TEST_SSH_USER"); user != "" {
		cfg.Username = user
	}
	if p := os.Getenv("TEST_SSH_PORT"); p != "" {
		port, err := strconv.Atoi(p)
		require.NoError(t, err)
		cfg.Port = port
	}
	return cfg
}

// An unreachable backup host is reported in the result and bounded by ctx.
func TestShutdownUnreachableHost_E2E(t *testing.T) {
	cfg := backupHostShutdownConfig(t)
	cfg.Host = "192.168.255.254"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	result, err := ssh.New(testLogger()).Shutdown(ctx, cfg)

	require.NoError(t, err)
	assert.False(t, result.CommandRun)
	assert.Error(t, result.Error)
	assert.Less(t, time.Since(start), 30*time.Second)
}

// WARNING: schedules a real shutdown of the backup host.
func TestShutdownBackupHost_E2E(t *testing.T) {
	if os.Getenv("TEST_SSH_SHUTDOWN_ENABLED") != "true" {
		t.Skip("TEST_SSH_SHUTDOWN_ENABLED is not true")
	}
	cfg := backupHostShutdownConfig(t)

	result, err := ssh.New(testLogger()).Shutdown(context.Background(), cfg)

	require.NoError(t, err)
	assert.True(t, result.CommandRun)
	assert.NoError(t, result.Error)
}
