package ssh

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/fgeck/gosvn-backup/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// Mock implementations.
type mockSSHSession struct {
	combinedOutputFunc func(cmd string) ([]byte, error)
}

func (m *mockSSHSession) CombinedOutput(cmd string) ([]byte, error) {
	if m.combinedOutputFunc != nil {
		return m.combinedOutputFunc(cmd)
	}
	return []byte(""), nil
}

func (m *mockSSHSession) Close() error {
	return nil
}

type mockSSHClient struct {
	newSessionFunc func() (SSHSession, error)
	closed         bool
}

func (m *mockSSHClient) NewSession() (SSHSession, error) {
	if m.newSessionFunc != nil {
		return m.newSessionFunc()
	}
	return &mockSSHSession{}, nil
}

func (m *mockSSHClient) Close() error {
	m.closed = true
	return nil
}

type mockClientFactory struct {
	newClientFunc func(network, addr string, config *ssh.ClientConfig) (SSHClient, error)
}

func (m *mockClientFactory) NewClient(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
	if m.newClientFunc != nil {
		return m.newClientFunc(network, addr, config)
	}
	return &mockSSHClient{}, nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// generateTestKey returns an OpenSSH encoded ed25519 private key.
func generateTestKey(t *testing.T) []byte {
	t.Helper()

	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	pemBlock, err := ssh.MarshalPrivateKey(privateKey, "")
	require.NoError(t, err)

	return pem.EncodeToMemory(pemBlock)
}

func testConfig(t *testing.T) models.SSHShutdownConfig {
	return models.SSHShutdownConfig{
		Host:          "nas.local",
		Port:          22,
		Username:      "backup",
		PrivateKey:    generateTestKey(t),
		ShutdownDelay: 1,
	}
}

func TestShutdown_Success(t *testing.T) {
	var capturedAddr, capturedUser, capturedCommand string
	client := &mockSSHClient{
		newSessionFunc: func() (SSHSession, error) {
			return &mockSSHSession{
				combinedOutputFunc: func(cmd string) ([]byte, error) {
					capturedCommand = cmd
					return []byte("Shutdown scheduled"), nil
				},
			}, nil
		},
	}
	factory := &mockClientFactory{
		newClientFunc: func(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
			capturedAddr = addr
			capturedUser = config.User
			return client, nil
		},
	}

	svc := NewWithClientFactory(testLogger(), factory)
	result, err := svc.Shutdown(context.Background(), testConfig(t))

	require.NoError(t, err)
	assert.Nil(t, result.Error)
	assert.True(t, result.CommandRun)
	assert.Equal(t, "Shutdown scheduled", result.Output)
	assert.Equal(t, "nas.local:22", capturedAddr)
	assert.Equal(t, "backup", capturedUser)
	assert.Equal(t, "sudo shutdown -h +1", capturedCommand)
	assert.True(t, client.closed)
}

func TestShutdown_KeyFromFile(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(keyPath, generateTestKey(t), 0o600))

	cfg := testConfig(t)
	cfg.PrivateKey = nil
	cfg.KeyPath = keyPath

	svc := NewWithClientFactory(testLogger(), &mockClientFactory{})
	result, err := svc.Shutdown(context.Background(), cfg)

	require.NoError(t, err)
	assert.Nil(t, result.Error)
	assert.True(t, result.CommandRun)
}

func TestShutdown_NoPrivateKey(t *testing.T) {
	svc := NewWithClientFactory(testLogger(), &mockClientFactory{})

	result, err := svc.Shutdown(context.Background(), models.SSHShutdownConfig{Host: "nas.local", Port: 22})

	require.NoError(t, err)
	assert.False(t, result.CommandRun)
	assert.ErrorContains(t, result.Error, "no private key")
}

func TestShutdown_InvalidKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.PrivateKey = []byte("not a key")

	svc := NewWithClientFactory(testLogger(), &mockClientFactory{})
	result, err := svc.Shutdown(context.Background(), cfg)

	require.NoError(t, err)
	assert.ErrorContains(t, result.Error, "failed to parse private key")
}

func TestShutdown_ConnectionFailed(t *testing.T) {
	factory := &mockClientFactory{
		newClientFunc: func(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
			return nil, errors.New("connection refused")
		},
	}

	svc := NewWithClientFactory(testLogger(), factory)
	result, err := svc.Shutdown(context.Background(), testConfig(t))

	require.NoError(t, err)
	assert.False(t, result.CommandRun)
	assert.ErrorContains(t, result.Error, "failed to connect")
}

func TestShutdown_SessionFailed(t *testing.T) {
	factory := &mockClientFactory{
		newClientFunc: func(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
			return &mockSSHClient{
				newSessionFunc: func() (SSHSession, error) {
					return nil, errors.New("session creation failed")
				},
			}, nil
		},
	}

	svc := NewWithClientFactory(testLogger(), factory)
	result, err := svc.Shutdown(context.Background(), testConfig(t))

	require.NoError(t, err)
	assert.False(t, result.CommandRun)
	assert.ErrorContains(t, result.Error, "failed to create session")
}

func TestShutdown_CommandErrorIsTolerated(t *testing.T) {
	factory := &mockClientFactory{
		newClientFunc: func(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
			return &mockSSHClient{
				newSessionFunc: func() (SSHSession, error) {
					return &mockSSHSession{
						combinedOutputFunc: func(cmd string) ([]byte, error) {
							return nil, errors.New("connection reset by peer")
						},
					}, nil
				},
			}, nil
		},
	}

	svc := NewWithClientFactory(testLogger(), factory)
	result, err := svc.Shutdown(context.Background(), testConfig(t))

	require.NoError(t, err)
	assert.True(t, result.CommandRun)
	assert.Nil(t, result.Error)
}

func TestShutdownCommand(t *testing.T) {
	tests := []struct {
		os    string
		delay int
		want  string
	}{
		{"linux", 0, "sudo shutdown -h now"},
		{"linux", 5, "sudo shutdown -h +5"},
		{"", 2, "sudo shutdown -h +2"},
		{"windows", 0, "shutdown /s /t 60"},
		{"windows", 2, "shutdown /s /t 120"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ShutdownCommand(tt.os, tt.delay))
	}
}
