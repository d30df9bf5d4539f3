package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fgeck/gosvn-backup/internal/config"
	"github.com/fgeck/gosvn-backup/internal/models"
	"github.com/fgeck/gosvn-backup/internal/services/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Back up all repositories once",
	Long: `Back up every repository below the repository root:
1. Wake-on-LAN (if configured)
2. For each repository, in parallel up to --threads:
   resolve youngest revision, skip if already backed up,
   verify (--verify), hotcopy, compress (--compress), prune (--history)
3. SSH shutdown (if configured)
4. Write metrics and send notifications (if configured)

If the repository root is itself a repository, only that repository is backed up.
Flags override values from the config file.`,
	Example: `  gosvn-backup run -r /var/svn -b /mnt/backup/svn -t 4 -z -n 7
  gosvn-backup run -c /etc/gosvn-backup.yaml --skip temp,scratch`,
	RunE: runBackup,
}

func init() {
	addBackupFlags(runCmd.Flags())
}

// addBackupFlags registers the flags that override backup settings.
func addBackupFlags(fs *pflag.FlagSet) {
	fs.StringP("repository-root", "r", "", "directory holding the repositories, or a single repository")
	fs.StringP("backup-root", "b", "", "directory receiving the backups")
	fs.IntP("threads", "t", 0, "number of repositories backed up concurrently (default: number of CPUs)")
	fs.BoolP("compress", "z", false, "compress each backup into a zip archive")
	fs.Bool("verify", false, "run svnadmin verify before copying")
	fs.IntP("history", "n", 0, "number of backups to keep per repository (0 keeps all)")
	fs.StringSliceP("skip", "s", nil, "repository names to skip (comma separated)")
	fs.String("svn-path", "", "directory containing svnadmin and svnlook")
}

// loadConfig reads the optional config file, applies flag overrides and validates the result.
func loadConfig(cmd *cobra.Command) (*models.BackupConfig, error) {
	parser := config.NewParser()
	if err := parser.BindFlags(cmd.Flags()); err != nil {
		return nil, err
	}

	var (
		cfg *models.BackupConfig
		err error
	)
	if configFile != "" {
		cfg, err = parser.LoadFile(configFile)
	} else {
		cfg, err = parser.Load()
	}
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("failed to load config")
		return nil, err
	}

	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return nil, err
	}

	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Warn().Str("signal", sig.String()).Msg("received signal, shutting down")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

func runBackup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	log.Info().
		Str("config", configFile).
		Str("repository_root", cfg.RepositoryRoot).
		Str("backup_root", cfg.BackupRoot).
		Msg("configuration loaded")

	ctx, cancel := signalContext()
	defer cancel()

	runnerSvc := runner.New(log.Logger)
	if _, err := runnerSvc.Run(ctx, *cfg); err != nil {
		log.Error().Err(err).Msg("backup failed")
		return err
	}

	log.Info().Msg("backup completed successfully")
	return nil
}
