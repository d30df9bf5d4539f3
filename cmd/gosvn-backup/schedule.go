package main

import (
	"errors"
	"sync"

	"github.com/fgeck/gosvn-backup/internal/config"
	"github.com/fgeck/gosvn-backup/internal/services/runner"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run backups on the configured cron schedule",
	Long: `Stay in the foreground and run the backup workflow whenever schedule.cron
fires (six fields, seconds first, e.g. "0 0 2 * * *"). A run that is still in
progress when the next one is due is not started twice. SIGINT or SIGTERM stops
the scheduler after the current run has finished or been cancelled.`,
	RunE: scheduleBackups,
}

func init() {
	addBackupFlags(scheduleCmd.Flags())
}

func scheduleBackups(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Schedule.Cron == "" {
		log.Error().Msg("schedule.cron is required for the schedule command")
		return errors.New("schedule.cron is not configured")
	}
	cmd.SilenceUsage = true

	ctx, cancel := signalContext()
	defer cancel()

	runnerSvc := runner.New(log.Logger)
	var running sync.Mutex

	c := cron.New(cron.WithParser(config.CronParser))
	_, err = c.AddFunc(cfg.Schedule.Cron, func() {
		if !running.TryLock() {
			log.Warn().Msg("previous backup still running, skipping this run")
			return
		}
		defer running.Unlock()

		// failures are logged and notified by the runner
		_, _ = runnerSvc.Run(ctx, *cfg)
	})
	if err != nil {
		return err
	}

	c.Start()
	for _, entry := range c.Entries() {
		log.Info().Str("cron", cfg.Schedule.Cron).Time("next", entry.Next).Msg("scheduler started")
	}

	<-ctx.Done()
	log.Info().Msg("stopping scheduler")
	<-c.Stop().Done()

	return nil
}
