// Package notify reports the outcome of a backup run to the configured channels.
package notify

import (
	"context"
	"fmt"

	"github.com/fgeck/gosvn-backup/internal/models"
	"github.com/fgeck/gosvn-backup/internal/services/telegram"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

// Service defines the interface for run notifications.
type Service interface {
	Send(ctx context.Context, cfg models.NotifyConfig, msg models.Notification) error
}

// EmailSender sends a notification by email.
type EmailSender interface {
	Send(ctx context.Context, cfg models.EmailConfig, msg models.Notification) error
}

// Impl fans a notification out to every configured channel.
type Impl struct {
	email    EmailSender
	telegram telegram.Service
	logger   zerolog.Logger
}

// New creates a notifier backed by SMTP and the Telegram bot API.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		email:    NewEmail(logger),
		telegram: telegram.New(logger),
		logger:   logger,
	}
}

// NewWithSenders creates a notifier with custom senders (for testing).
func NewWithSenders(logger zerolog.Logger, email EmailSender, telegramSvc telegram.Service) *Impl {
	return &Impl{
		email:    email,
		telegram: telegramSvc,
		logger:   logger,
	}
}

// Send delivers msg to every configured channel. A failing channel does not
// keep the others from being tried; all errors are returned together.
func (s *Impl) Send(ctx context.Context, cfg models.NotifyConfig, msg models.Notification) error {
	var err error

	if cfg.Email != nil {
		if sendErr := s.email.Send(ctx, *cfg.Email, msg); sendErr != nil {
			s.logger.Warn().Err(sendErr).Msg("email notification failed")
			err = multierr.Append(err, sendErr)
		}
	}

	if cfg.Telegram != nil {
		result, sendErr := s.telegram.SendNotification(ctx, *cfg.Telegram, msg)
		switch {
		case sendErr != nil:
			err = multierr.Append(err, fmt.Errorf("telegram: %w", sendErr))
		case result.Error != nil:
			s.logger.Warn().Err(result.Error).Msg("telegram notification failed")
			err = multierr.Append(err, fmt.Errorf("telegram: %w", result.Error))
		}
	}

	return err
}
