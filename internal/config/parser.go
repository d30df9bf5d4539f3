// Package config provides configuration file parsing.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fgeck/gosvn-backup/internal/models"
	"github.com/robfig/cron/v3"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// CronParser parses schedule.cron expressions: six fields, seconds first.
var CronParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"repository-root": "repository_root",
	"backup-root":     "backup_root",
	"threads":         "threads",
	"compress":        "compress",
	"verify":          "verify",
	"history":         "history",
	"skip":            "skip",
	"svn-path":        "svn_path",
}

// Parser handles configuration file parsing.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new configuration parser.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetDefault("threads", runtime.NumCPU())
	return &Parser{v: v}
}

// BindFlags lets command line flags override values from the config file.
// Only flags that were set on the command line take precedence.
func (p *Parser) BindFlags(fs *pflag.FlagSet) error {
	for flag, key := range flagKeys {
		f := fs.Lookup(flag)
		if f == nil {
			continue
		}
		if err := p.v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding flag %s: %w", flag, err)
		}
	}
	return nil
}

// Load builds the configuration from bound flags and defaults only.
func (p *Parser) Load() (*models.BackupConfig, error) {
	return p.parse()
}

// LoadFile loads configuration from a file path.
func (p *Parser) LoadFile(path string) (*models.BackupConfig, error) {
	p.v.SetConfigFile(path)

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.parse()
}

// LoadReader loads configuration from a reader (useful for testing).
func (p *Parser) LoadReader(content string) (*models.BackupConfig, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse()
}

//nolint:gocognit,gocyclo // parsing config requires checking many fields
func (p *Parser) parse() (*models.BackupConfig, error) {
	cfg := &models.BackupConfig{
		RepositoryRoot: expandPath(p.v.GetString("repository_root")),
		BackupRoot:     expandPath(p.v.GetString("backup_root")),
		Threads:        p.v.GetInt("threads"),
		Compress:       p.v.GetBool("compress"),
		Verify:         p.v.GetBool("verify"),
		History:        p.v.GetInt("history"),
		Skip:           splitList(p.v.GetStringSlice("skip")),
		SvnPath:        expandPath(p.v.GetString("svn_path")),
	}

	cfg.Notify.OnSuccess = p.v.GetBool("notify.on_success")

	// Parse optional email notification config.
	if p.v.IsSet("notify.email") {
		cfg.Notify.Email = &models.EmailConfig{
			SMTPHost: p.v.GetString("notify.email.smtp_host"),
			SMTPPort: p.v.GetInt("notify.email.smtp_port"),
			Username: p.expandEnv(p.v.GetString("notify.email.username")),
			Password: p.expandEnv(p.v.GetString("notify.email.password")),
			From:     p.v.GetString("notify.email.from"),
			To:       splitList(p.v.GetStringSlice("notify.email.to")),
		}

		if cfg.Notify.Email.SMTPHost == "" {
			return nil, errors.New("notify.email.smtp_host is required when email is configured")
		}
		if len(cfg.Notify.Email.To) == 0 {
			return nil, errors.New("notify.email.to is required when email is configured")
		}
		if cfg.Notify.Email.SMTPPort == 0 {
			cfg.Notify.Email.SMTPPort = 25
		}
		if cfg.Notify.Email.From == "" {
			hostname, err := os.Hostname()
			if err != nil {
				hostname = "localhost"
			}
			cfg.Notify.Email.From = "svnbackup@" + hostname
		}
	}

	// Parse optional Telegram config.
	if p.v.IsSet("notify.telegram") {
		cfg.Notify.Telegram = &models.TelegramConfig{
			BotToken: p.expandEnv(p.v.GetString("notify.telegram.bot_token")),
			ChatID:   p.expandEnv(p.v.GetString("notify.telegram.chat_id")),
		}

		if cfg.Notify.Telegram.BotToken == "" {
			return nil, errors.New("notify.telegram.bot_token is required when telegram is configured")
		}
		if cfg.Notify.Telegram.ChatID == "" {
			return nil, errors.New("notify.telegram.chat_id is required when telegram is configured")
		}
	}

	cfg.Metrics.TextfilePath = expandPath(p.v.GetString("metrics.textfile_path"))
	cfg.Schedule.Cron = p.v.GetString("schedule.cron")

	// Parse optional WOL config.
	if p.v.IsSet("wol") { //nolint:nestif // config parsing with defaults
		cfg.WOL = &models.WOLConfig{
			MACAddress:    p.v.GetString("wol.mac_address"),
			BroadcastIP:   p.v.GetString("wol.broadcast_ip"),
			PollURL:       p.v.GetString("wol.poll_url"),
			Timeout:       p.v.GetDuration("wol.timeout"),
			PollInterval:  p.v.GetDuration("wol.poll_interval"),
			StabilizeWait: p.v.GetDuration("wol.stabilize_wait"),
		}

		if cfg.WOL.MACAddress == "" {
			return nil, errors.New("wol.mac_address is required when wol is configured")
		}

		if cfg.WOL.BroadcastIP == "" {
			cfg.WOL.BroadcastIP = "255.255.255.255"
		}
		if cfg.WOL.Timeout == 0 {
			cfg.WOL.Timeout = 5 * time.Minute
		}
		if cfg.WOL.PollInterval == 0 {
			cfg.WOL.PollInterval = 10 * time.Second
		}
		if cfg.WOL.StabilizeWait == 0 {
			cfg.WOL.StabilizeWait = 10 * time.Second
		}
	}

	// Parse optional SSH shutdown config.
	if p.v.IsSet("ssh_shutdown") { //nolint:nestif // config parsing with defaults
		cfg.SSHShutdown = &models.SSHShutdownConfig{
			Host:          p.v.GetString("ssh_shutdown.host"),
			Port:          p.v.GetInt("ssh_shutdown.port"),
			Username:      p.v.GetString("ssh_shutdown.username"),
			KeyPath:       expandPath(p.v.GetString("ssh_shutdown.key_path")),
			ShutdownDelay: p.v.GetInt("ssh_shutdown.shutdown_delay"),
			OS:            p.v.GetString("ssh_shutdown.os"),
		}

		if cfg.SSHShutdown.Host == "" {
			return nil, errors.New("ssh_shutdown.host is required when ssh_shutdown is configured")
		}
		if cfg.SSHShutdown.Port == 0 {
			cfg.SSHShutdown.Port = 22
		}
		if cfg.SSHShutdown.Username == "" {
			cfg.SSHShutdown.Username = "root"
		}
		if cfg.SSHShutdown.KeyPath == "" {
			return nil, errors.New("ssh_shutdown.key_path is required when ssh_shutdown is configured")
		}
		if !p.v.IsSet("ssh_shutdown.shutdown_delay") {
			cfg.SSHShutdown.ShutdownDelay = 1
		}
		if cfg.SSHShutdown.OS == "" {
			cfg.SSHShutdown.OS = "linux"
		}
		validOS := map[string]bool{"linux": true, "windows": true}
		if !validOS[cfg.SSHShutdown.OS] {
			return nil, errors.New("ssh_shutdown.os must be one of: linux, windows")
		}
	}

	return cfg, nil
}

// expandEnv expands environment variables in the format ${VAR} or $VAR.
func (p *Parser) expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// expandPath expands environment variables and a leading "~/".
func expandPath(s string) string {
	s = os.ExpandEnv(s)
	if rest, ok := strings.CutPrefix(s, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return s
}

// splitList flattens values that hold several items separated by ',', ';' or '|'.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, item := range strings.FieldsFunc(v, func(r rune) bool {
			return r == ',' || r == ';' || r == '|'
		}) {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

// Validate performs validation on the loaded configuration.
func Validate(cfg *models.BackupConfig) error {
	if cfg == nil {
		return errors.New("configuration is nil")
	}

	if cfg.RepositoryRoot == "" {
		return errors.New("repository_root is required")
	}

	if cfg.BackupRoot == "" {
		return errors.New("backup_root is required")
	}

	if cfg.Threads < 0 {
		return fmt.Errorf("threads must not be negative, got %d", cfg.Threads)
	}

	if cfg.WOL != nil {
		switch {
		case cfg.WOL.Timeout <= 0:
			return fmt.Errorf("wol.timeout must be positive, got %s", cfg.WOL.Timeout)
		case cfg.WOL.PollInterval <= 0:
			return fmt.Errorf("wol.poll_interval must be positive, got %s", cfg.WOL.PollInterval)
		case cfg.WOL.StabilizeWait < 0:
			return fmt.Errorf("wol.stabilize_wait must not be negative, got %s", cfg.WOL.StabilizeWait)
		}
	}

	if cfg.Schedule.Cron != "" {
		if _, err := CronParser.Parse(cfg.Schedule.Cron); err != nil {
			return fmt.Errorf("schedule.cron is invalid: %w", err)
		}
	}

	return nil
}
