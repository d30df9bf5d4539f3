// Package metrics exports the outcome of a backup run as a Prometheus textfile
// for the node_exporter textfile collector.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fgeck/gosvn-backup/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Service defines the interface for metrics export.
type Service interface {
	Write(cfg models.MetricsConfig, result *models.RunResult) error
}

// Impl implements the metrics Service interface.
type Impl struct {
	logger zerolog.Logger
}

// New creates a new metrics service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{logger: logger}
}

type runCollector struct {
	lastRun       prometheus.Gauge
	duration      prometheus.Gauge
	success       prometheus.Gauge
	repositories  *prometheus.GaugeVec
	repoDurations *prometheus.GaugeVec
}

func newRunCollector(reg prometheus.Registerer) *runCollector {
	c := &runCollector{
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "svnbackup_last_run_timestamp_seconds",
			Help: "Start time of the last backup run",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "svnbackup_last_run_duration_seconds",
			Help: "Duration of the last backup run",
		}),
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "svnbackup_last_run_success",
			Help: "1 if the last backup run finished without errors",
		}),
		repositories: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "svnbackup_repositories",
			Help: "Repositories processed by the last backup run",
		}, []string{"status"}),
		repoDurations: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "svnbackup_repository_duration_seconds",
			Help: "Time spent backing up each repository in the last run",
		}, []string{"repository"}),
	}
	reg.MustRegister(c.lastRun, c.duration, c.success, c.repositories, c.repoDurations)
	return c
}

func (c *runCollector) observe(result *models.RunResult) {
	c.lastRun.Set(float64(result.StartTime.Unix()))
	c.duration.Set(result.Duration.Seconds())
	if result.Error == nil {
		c.success.Set(1)
	}

	for _, status := range []models.OutcomeStatus{models.OutcomeSucceeded, models.OutcomeSkipped, models.OutcomeFailed} {
		c.repositories.WithLabelValues(string(status)).Set(float64(result.Count(status)))
	}
	for _, o := range result.Outcomes {
		c.repoDurations.WithLabelValues(o.Repository).Set(o.Duration.Seconds())
	}
}

// Write renders result into cfg.TextfilePath. The file is replaced atomically.
func (s *Impl) Write(cfg models.MetricsConfig, result *models.RunResult) error {
	if cfg.TextfilePath == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.TextfilePath), 0o755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}

	reg := prometheus.NewRegistry()
	newRunCollector(reg).observe(result)

	if err := prometheus.WriteToTextfile(cfg.TextfilePath, reg); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}

	s.logger.Debug().Str("path", cfg.TextfilePath).Msg("metrics written")
	return nil
}
