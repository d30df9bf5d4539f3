//go:build e2e

package e2e

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fgeck/gosvn-backup/internal/models"
	"github.com/fgeck/gosvn-backup/internal/services/wol"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// Mock implementations for E2E tests
type mockWOLClient struct{}

func (m *mockWOLClient) Wake(broadcastIP string, mac net.HardwareAddr) error {
	return nil
}

func TestWOL_WithHTTPTarget_E2E(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	svc := wol.NewWithClients(testLogger(), &mockWOLClient{}, server.Client())

	result, err := svc.Wake(context.Background(), models.WOLConfig{
		MACAddress:    "AA:BB:CC:DD:EE:FF",
		BroadcastIP:   "255.255.255.255",
		PollURL:       server.URL,
		Timeout:       5 * time.Second,
		PollInterval:  100 * time.Millisecond,
		StabilizeWait: 100 * time.Millisecond,
	})

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	assert.True(t, result.TargetReady)
	assert.Nil(t, result.Error)
	assert.GreaterOrEqual(t, result.WaitDuration, 100*time.Millisecond)
}

func TestWOL_DelayedTarget_E2E(t *testing.T) {
	// drop the first connections as a host that is still booting would
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) < 3 {
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				_ = conn.Close()
			}
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	svc := wol.NewWithClients(testLogger(), &mockWOLClient{}, server.Client())

	result, err := svc.Wake(context.Background(), models.WOLConfig{
		MACAddress:   "AA:BB:CC:DD:EE:FF",
		BroadcastIP:  "255.255.255.255",
		PollURL:      server.URL,
		Timeout:      5 * time.Second,
		PollInterval: 50 * time.Millisecond,
	})

	require.NoError(t, err)
	assert.True(t, result.TargetReady)
	assert.Nil(t, result.Error)
	assert.GreaterOrEqual(t, requests.Load(), int32(3))
}

func TestWOL_TargetNeverReady_E2E(t *testing.T) {
	// nothing listens on a closed server
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	svc := wol.NewWithClients(testLogger(), &mockWOLClient{}, &http.Client{Timeout: time.Second})

	result, err := svc.Wake(context.Background(), models.WOLConfig{
		MACAddress:   "AA:BB:CC:DD:EE:FF",
		BroadcastIP:  "255.255.255.255",
		PollURL:      url,
		Timeout:      200 * time.Millisecond,
		PollInterval: 50 * time.Millisecond,
	})

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	assert.False(t, result.TargetReady)
	assert.ErrorContains(t, result.Error, "timeout")
}

// RealWOL tests - only run if explicitly configured
func TestRealWOL_E2E(t *testing.T) {
	mac := os.Getenv("TEST_WOL_MAC")
	if mac == "" {
		t.Skip("TEST_WOL_MAC not set")
	}

	pollURL := os.Getenv("TEST_WOL_POLL_URL")

	svc := wol.New(testLogger())

	result, err := svc.Wake(context.Background(), models.WOLConfig{
		MACAddress:    mac,
		BroadcastIP:   "255.255.255.255",
		PollURL:       pollURL,
		Timeout:       5 * time.Minute,
		PollInterval:  10 * time.Second,
		StabilizeWait: 10 * time.Second,
	})

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	if pollURL != "" {
		assert.True(t, result.TargetReady)
	}
}
