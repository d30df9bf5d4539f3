package wol

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/fgeck/gosvn-backup/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockWOLClient struct {
	wakeFunc func(broadcastIP string, mac net.HardwareAddr) error
}

func (m *mockWOLClient) Wake(broadcastIP string, mac net.HardwareAddr) error {
	if m.wakeFunc != nil {
		return m.wakeFunc(broadcastIP, mac)
	}
	return nil
}

type mockHTTPClient struct {
	doFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	if m.doFunc != nil {
		return m.doFunc(req)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("")),
	}, nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func TestWake_NoPollURL(t *testing.T) {
	var capturedMAC net.HardwareAddr
	var capturedBroadcastIP string

	wolClient := &mockWOLClient{
		wakeFunc: func(broadcastIP string, mac net.HardwareAddr) error {
			capturedMAC = mac
			capturedBroadcastIP = broadcastIP
			return nil
		},
	}

	svc := NewWithClients(testLogger(), wolClient, nil)
	result, err := svc.Wake(context.Background(), models.WOLConfig{
		MACAddress:  "AA:BB:CC:DD:EE:FF",
		BroadcastIP: "192.168.1.255",
	})

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	assert.True(t, result.TargetReady)
	assert.Nil(t, result.Error)

	expectedMAC, _ := net.ParseMAC("AA:BB:CC:DD:EE:FF")
	assert.Equal(t, expectedMAC, capturedMAC)
	assert.Equal(t, "192.168.1.255", capturedBroadcastIP)
}

func TestWake_InvalidMAC(t *testing.T) {
	svc := NewWithClients(testLogger(), &mockWOLClient{}, nil)

	result, err := svc.Wake(context.Background(), models.WOLConfig{MACAddress: "nas"})

	require.NoError(t, err)
	assert.False(t, result.PacketSent)
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "invalid MAC address")
}

func TestWake_SendFailed(t *testing.T) {
	wolClient := &mockWOLClient{
		wakeFunc: func(broadcastIP string, mac net.HardwareAddr) error {
			return errors.New("network unreachable")
		},
	}

	svc := NewWithClients(testLogger(), wolClient, nil)
	result, err := svc.Wake(context.Background(), models.WOLConfig{MACAddress: "AA:BB:CC:DD:EE:FF"})

	require.NoError(t, err)
	assert.False(t, result.PacketSent)
	assert.ErrorContains(t, result.Error, "network unreachable")
}

func TestWake_PollUntilReady(t *testing.T) {
	calls := 0
	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			calls++
			if calls < 3 {
				return nil, errors.New("connection refused")
			}
			return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(""))}, nil
		},
	}

	svc := NewWithClients(testLogger(), &mockWOLClient{}, httpClient)
	result, err := svc.Wake(context.Background(), models.WOLConfig{
		MACAddress:   "AA:BB:CC:DD:EE:FF",
		BroadcastIP:  "255.255.255.255",
		PollURL:      "http://nas.local",
		Timeout:      5 * time.Second,
		PollInterval: 10 * time.Millisecond,
	})

	require.NoError(t, err)
	assert.Nil(t, result.Error)
	assert.True(t, result.TargetReady)
	assert.Equal(t, 3, calls)
}

func TestWake_PollTimeout(t *testing.T) {
	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("connection refused")
		},
	}

	svc := NewWithClients(testLogger(), &mockWOLClient{}, httpClient)
	result, err := svc.Wake(context.Background(), models.WOLConfig{
		MACAddress:   "AA:BB:CC:DD:EE:FF",
		PollURL:      "http://nas.local",
		Timeout:      50 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
	})

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	assert.False(t, result.TargetReady)
	assert.ErrorContains(t, result.Error, "timeout waiting for backup host")
}

func TestWake_NonPositivePollInterval(t *testing.T) {
	for _, interval := range []time.Duration{0, -time.Second} {
		svc := NewWithClients(testLogger(), &mockWOLClient{}, &mockHTTPClient{})
		result, err := svc.Wake(context.Background(), models.WOLConfig{
			MACAddress:   "AA:BB:CC:DD:EE:FF",
			PollURL:      "http://nas.local",
			Timeout:      time.Second,
			PollInterval: interval,
		})

		require.NoError(t, err)
		assert.True(t, result.PacketSent)
		assert.False(t, result.TargetReady)
		assert.ErrorContains(t, result.Error, "poll interval must be positive")
	}
}
