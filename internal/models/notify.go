package models

import "time"

// EmailConfig holds SMTP notification configuration.
type EmailConfig struct {
	SMTPHost string
	SMTPPort int
	Username string // optional, enables PLAIN auth
	Password string
	From     string
	To       []string
}

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// Notification describes the outcome of a run for the notifiers.
type Notification struct {
	Success        bool
	RunID          string
	Host           string
	RepositoryRoot string
	BackupRoot     string
	StartTime      time.Time
	Duration       time.Duration

	Succeeded int
	Skipped   int
	Failed    int

	// Per-repository failure messages, keyed by repository name.
	Failures map[string]string

	// Set when the run failed before or outside of the repository fan-out.
	ErrorMessage string
}

// TelegramResult holds the result of a Telegram notification.
type TelegramResult struct {
	MessageSent bool
	Error       error
}
