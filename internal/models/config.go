// Package models contains the data structures used throughout gosvn-backup.
package models

// BackupConfig holds the complete configuration for a backup run.
type BackupConfig struct {
	RepositoryRoot string
	BackupRoot     string
	Threads        int
	Compress       bool
	Verify         bool
	History        int      // entries to keep per repository, <= 0 keeps everything
	Skip           []string // repository names, compared case-insensitively
	SvnPath        string   // directory holding svnadmin/svnlook, empty uses $PATH

	Notify      NotifyConfig
	Metrics     MetricsConfig
	Schedule    ScheduleConfig
	WOL         *WOLConfig         // nil if not configured
	SSHShutdown *SSHShutdownConfig // nil if not configured
}

// NotifyConfig holds notification settings.
type NotifyConfig struct {
	OnSuccess bool
	Email     *EmailConfig    // nil if not configured
	Telegram  *TelegramConfig // nil if not configured
}

// Enabled reports whether at least one notifier is configured.
func (c NotifyConfig) Enabled() bool {
	return c.Email != nil || c.Telegram != nil
}

// MetricsConfig defines where run metrics are written.
type MetricsConfig struct {
	TextfilePath string // empty disables metrics
}

// ScheduleConfig holds the cron expression used by the schedule command.
type ScheduleConfig struct {
	Cron string // six fields, seconds first
}
