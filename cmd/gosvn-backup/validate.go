package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fgeck/gosvn-backup/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long:  `Validate the configuration file and flags without executing any backup operations.`,
	RunE:  validateConfig,
}

func init() {
	addBackupFlags(validateCmd.Flags())
}

func validateConfig(cmd *cobra.Command, args []string) error {
	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			log.Error().Str("file", configFile).Msg("config file not found")
			return fmt.Errorf("config file not found: %s", configFile)
		}
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	printSummary(cfg)
	return nil
}

func printSummary(cfg *models.BackupConfig) {
	fmt.Println("Configuration is valid!")
	fmt.Println()
	fmt.Println("Summary:")
	fmt.Printf("  Repository root: %s\n", cfg.RepositoryRoot)
	fmt.Printf("  Backup root: %s\n", cfg.BackupRoot)
	fmt.Printf("  Threads: %d\n", cfg.Threads)
	fmt.Printf("  Verify: %v\n", cfg.Verify)
	fmt.Printf("  Compress: %v\n", cfg.Compress)
	if cfg.History > 0 {
		fmt.Printf("  History: %d\n", cfg.History)
	} else {
		fmt.Println("  History: unlimited")
	}
	if len(cfg.Skip) > 0 {
		fmt.Printf("  Skip: %s\n", strings.Join(cfg.Skip, ", "))
	}
	if cfg.SvnPath != "" {
		fmt.Printf("  SVN tools: %s\n", cfg.SvnPath)
	}
	fmt.Println()
	fmt.Println("Optional Features:")
	fmt.Printf("  Wake-on-LAN: %v\n", cfg.WOL != nil)
	fmt.Printf("  SSH Shutdown: %v\n", cfg.SSHShutdown != nil)
	fmt.Printf("  Email: %v\n", cfg.Notify.Email != nil)
	fmt.Printf("  Telegram: %v\n", cfg.Notify.Telegram != nil)
	fmt.Printf("  Metrics: %v\n", cfg.Metrics.TextfilePath != "")
	fmt.Printf("  Schedule: %v\n", cfg.Schedule.Cron != "")

	if cfg.WOL != nil {
		fmt.Println()
		fmt.Println("WOL Configuration:")
		fmt.Printf("  MAC Address: %s\n", cfg.WOL.MACAddress)
		fmt.Printf("  Broadcast IP: %s\n", cfg.WOL.BroadcastIP)
		if cfg.WOL.PollURL != "" {
			fmt.Printf("  Poll URL: %s\n", cfg.WOL.PollURL)
		}
	}

	if cfg.SSHShutdown != nil {
		fmt.Println()
		fmt.Println("SSH Shutdown Configuration:")
		fmt.Printf("  Host: %s\n", cfg.SSHShutdown.Host)
		fmt.Printf("  Port: %d\n", cfg.SSHShutdown.Port)
		fmt.Printf("  Username: %s\n", cfg.SSHShutdown.Username)
		fmt.Printf("  OS: %s\n", cfg.SSHShutdown.OS)
		fmt.Printf("  Shutdown Delay: %d minute(s)\n", cfg.SSHShutdown.ShutdownDelay)
	}

	if cfg.Notify.Enabled() {
		fmt.Println()
		fmt.Println("Notifications:")
		fmt.Printf("  On success: %v\n", cfg.Notify.OnSuccess)
		if cfg.Notify.Email != nil {
			fmt.Printf("  Email: %s:%d -> %s\n", cfg.Notify.Email.SMTPHost, cfg.Notify.Email.SMTPPort, strings.Join(cfg.Notify.Email.To, ", "))
		}
		if cfg.Notify.Telegram != nil {
			fmt.Printf("  Telegram chat: %s (bot token configured)\n", cfg.Notify.Telegram.ChatID)
		}
	}

	if cfg.Metrics.TextfilePath != "" {
		fmt.Println()
		fmt.Printf("Metrics textfile: %s\n", cfg.Metrics.TextfilePath)
	}

	if cfg.Schedule.Cron != "" {
		fmt.Println()
		fmt.Printf("Schedule: %s\n", cfg.Schedule.Cron)
	}
}
