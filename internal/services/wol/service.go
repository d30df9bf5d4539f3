// Package wol wakes the host serving the backup root before a run.
package wol

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/fgeck/gosvn-backup/internal/models"
	"github.com/mdlayher/wol"
	"github.com/rs/zerolog"
)

// Service defines the interface for Wake-on-LAN operations.
type Service interface {
	Wake(ctx context.Context, cfg models.WOLConfig) (*models.WOLResult, error)
}

// Client wraps the wol library for mocking.
type Client interface {
	Wake(broadcastIP string, mac net.HardwareAddr) error
}

// HTTPClient allows mocking HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DefaultClient sends magic packets with mdlayher/wol.
type DefaultClient struct{}

// Wake sends a magic packet to mac through the discard port of broadcastIP.
func (c *DefaultClient) Wake(broadcastIP string, mac net.HardwareAddr) error {
	ip := net.ParseIP(broadcastIP)
	if ip == nil {
		return fmt.Errorf("invalid broadcast IP: %s", broadcastIP)
	}

	client, err := wol.NewClient()
	if err != nil {
		return fmt.Errorf("failed to create WOL client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if err := client.Wake(net.JoinHostPort(ip.String(), "9"), mac); err != nil {
		return fmt.Errorf("failed to send WOL packet: %w", err)
	}
	return nil
}

// Impl implements the WOL Service interface.
type Impl struct {
	wolClient  Client
	httpClient HTTPClient
	logger     zerolog.Logger
}

// New creates a new WOL service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		wolClient:  &DefaultClient{},
		httpClient: &http.Client{Timeout: 5 * time.Second},
		logger:     logger,
	}
}

// NewWithClients creates a new WOL service with custom clients (for testing).
func NewWithClients(logger zerolog.Logger, wolClient Client, httpClient HTTPClient) *Impl {
	return &Impl{
		wolClient:  wolClient,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Wake sends the magic packet and, when PollURL is set, waits until the host answers.
func (s *Impl) Wake(ctx context.Context, cfg models.WOLConfig) (*models.WOLResult, error) {
	result := &models.WOLResult{}
	start := time.Now()
	done := func(err error) (*models.WOLResult, error) {
		result.WaitDuration = time.Since(start)
		result.Error = err
		return result, nil
	}

	mac, err := net.ParseMAC(cfg.MACAddress)
	if err != nil {
		return done(fmt.Errorf("invalid MAC address %q: %w", cfg.MACAddress, err))
	}

	if err := s.wolClient.Wake(cfg.BroadcastIP, mac); err != nil {
		return done(err)
	}
	result.PacketSent = true
	s.logger.Info().Str("mac", cfg.MACAddress).Str("broadcast", cfg.BroadcastIP).Msg("WOL packet sent")

	if cfg.PollURL == "" {
		result.TargetReady = true
		return done(nil)
	}

	if err := s.poll(ctx, cfg); err != nil {
		return done(err)
	}

	if cfg.StabilizeWait > 0 {
		s.logger.Debug().Dur("wait", cfg.StabilizeWait).Msg("waiting for backup host to settle")
		select {
		case <-ctx.Done():
			return done(ctx.Err())
		case <-time.After(cfg.StabilizeWait):
		}
	}

	result.TargetReady = true
	return done(nil)
}

// poll requests PollURL every PollInterval until anything answers or Timeout passes.
func (s *Impl) poll(ctx context.Context, cfg models.WOLConfig) error {
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", cfg.PollInterval)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.PollURL, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := s.httpClient.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			return nil
		}
		s.logger.Debug().Err(err).Str("url", cfg.PollURL).Msg("backup host not ready yet")

		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for backup host at %s: %w", cfg.PollURL, ctx.Err())
		case <-ticker.C:
		}
	}
}
