package main

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "dev"

	// Configuration flags.
	configFile string
	verbose    bool
	quiet      bool
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "gosvn-backup",
	Short: "Hot-copy backups of Subversion repositories",
	Long: `gosvn-backup backs up every Subversion repository below a root directory:
  - svnadmin hotcopy into <backup_root>/<repository>/v<revision>
  - optional svnadmin verify before copying
  - optional zip compression of each copy
  - retention of the newest N backups per repository
  - email and Telegram notifications, Prometheus textfile metrics
  - Wake-on-LAN and SSH shutdown of the backup host

Repositories whose youngest revision is already backed up are skipped, so
the tool can be run as often as needed from cron, a systemd timer or the
built-in schedule command.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose (debug) output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "enable quiet mode (errors only)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output logs in JSON format")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(scheduleCmd)
}

// setupLogging sends logs to stderr so that stdout stays free for command output.
func setupLogging() {
	log.Logger = newLogger(os.Stderr, jsonOutput)
	zerolog.SetGlobalLevel(logLevel(quiet, verbose))
}

func newLogger(w io.Writer, asJSON bool) zerolog.Logger {
	if !asJSON {
		console := zerolog.ConsoleWriter{Out: w, TimeFormat: time.DateTime}
		console.FormatLevel = func(i interface{}) string {
			s, _ := i.(string)
			return strings.ToUpper(s)
		}
		w = console
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

// logLevel picks the global level; quiet wins over verbose.
func logLevel(quiet, verbose bool) zerolog.Level {
	switch {
	case quiet:
		return zerolog.ErrorLevel
	case verbose:
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
