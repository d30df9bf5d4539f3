// Package runner orchestrates the backup workflow.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fgeck/gosvn-backup/internal/metrics"
	"github.com/fgeck/gosvn-backup/internal/models"
	"github.com/fgeck/gosvn-backup/internal/services/backup"
	"github.com/fgeck/gosvn-backup/internal/services/notify"
	"github.com/fgeck/gosvn-backup/internal/services/ssh"
	"github.com/fgeck/gosvn-backup/internal/services/svn"
	"github.com/fgeck/gosvn-backup/internal/services/wol"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Service defines the interface for the backup runner.
type Service interface {
	Run(ctx context.Context, cfg models.BackupConfig) (*models.RunResult, error)
}

// Impl implements the runner Service interface.
type Impl struct {
	svnSvc     svn.Service
	backupSvc  backup.Service
	wolSvc     wol.Service
	sshSvc     ssh.Service
	notifySvc  notify.Service
	metricsSvc metrics.Service
	logger     zerolog.Logger
}

// New creates a new runner service.
func New(logger zerolog.Logger) *Impl {
	svnSvc := svn.New(logger)
	return &Impl{
		svnSvc:     svnSvc,
		backupSvc:  backup.New(logger, svnSvc),
		wolSvc:     wol.New(logger),
		sshSvc:     ssh.New(logger),
		notifySvc:  notify.New(logger),
		metricsSvc: metrics.New(logger),
		logger:     logger,
	}
}

// NewWithServices creates a new runner service with custom services (for testing).
func NewWithServices(
	logger zerolog.Logger,
	svnSvc svn.Service,
	backupSvc backup.Service,
	wolSvc wol.Service,
	sshSvc ssh.Service,
	notifySvc notify.Service,
	metricsSvc metrics.Service,
) *Impl {
	return &Impl{
		svnSvc:     svnSvc,
		backupSvc:  backupSvc,
		wolSvc:     wolSvc,
		sshSvc:     sshSvc,
		notifySvc:  notifySvc,
		metricsSvc: metricsSvc,
		logger:     logger,
	}
}

// Run executes the complete backup workflow. The returned result is never nil.
func (s *Impl) Run(ctx context.Context, cfg models.BackupConfig) (*models.RunResult, error) {
	result := &models.RunResult{
		ID:        uuid.NewString(),
		StartTime: time.Now(),
	}
	logger := s.logger.With().Str("run_id", result.ID).Logger()

	logger.Info().
		Str("repository_root", cfg.RepositoryRoot).
		Str("backup_root", cfg.BackupRoot).
		Int("threads", cfg.Threads).
		Msg("backup starting")

	defer func() {
		result.Duration = time.Since(result.StartTime)
		s.writeMetrics(logger, cfg, result)
		if cfg.Notify.Enabled() && (result.Error != nil || cfg.Notify.OnSuccess) {
			s.sendNotification(ctx, logger, cfg, result)
		}
	}()

	// Step 1: wake the backup host (if configured)
	if cfg.WOL != nil {
		if err := s.runWOL(ctx, logger, cfg.WOL); err != nil {
			result.Error = err
			return result, err
		}
	}

	// Step 2: back up every repository
	runErr := s.backupAll(ctx, logger, cfg, result)

	// Step 3: shut the backup host down (if configured), whatever the outcome
	if cfg.SSHShutdown != nil {
		if err := s.runSSHShutdown(ctx, logger, cfg.SSHShutdown); err != nil {
			runErr = multierr.Append(runErr, err)
		}
	}

	result.Error = runErr
	if runErr != nil {
		logger.Error().
			Err(runErr).
			Int("failed", result.Count(models.OutcomeFailed)).
			Dur("duration", time.Since(result.StartTime)).
			Msg("backup finished with errors")
		return result, runErr
	}

	logger.Info().
		Int("succeeded", result.Count(models.OutcomeSucceeded)).
		Int("skipped", result.Count(models.OutcomeSkipped)).
		Dur("duration", time.Since(result.StartTime)).
		Msg("backup complete")

	return result, nil
}

// backupAll resolves the run mode and dispatches the repositories to the worker.
func (s *Impl) backupAll(ctx context.Context, logger zerolog.Logger, cfg models.BackupConfig, result *models.RunResult) error {
	root, err := filepath.Abs(cfg.RepositoryRoot)
	if err != nil {
		return fmt.Errorf("resolving repository root: %w", err)
	}

	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", models.ErrRepositoryRootMissing, cfg.RepositoryRoot)
	}

	if err := os.MkdirAll(cfg.BackupRoot, 0o750); err != nil {
		return fmt.Errorf("creating backup root: %w", err)
	}

	// the root itself is a repository
	if s.svnSvc.IsRepository(root) {
		outcome := s.backupOne(ctx, cfg, models.RepositoryRef{Name: filepath.Base(root), Path: root})
		result.Outcomes = []models.RepositoryOutcome{outcome}
		return outcome.Error
	}

	// otherwise every subdirectory is a candidate
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("listing repository root: %w", err)
	}

	var repos []models.RepositoryRef
	for _, e := range entries {
		if e.IsDir() {
			repos = append(repos, models.RepositoryRef{Name: e.Name(), Path: filepath.Join(root, e.Name())})
		}
	}
	logger.Debug().Int("candidates", len(repos)).Msg("backing up repository root")

	outcomes, failures := s.dispatch(ctx, logger, cfg, repos)
	result.Outcomes = outcomes

	if agg := models.NewAggregateError(failures...); agg != nil {
		return agg
	}
	return nil
}

// dispatch backs up repos with at most cfg.Threads workers. A failing
// repository never stops the others.
func (s *Impl) dispatch(
	ctx context.Context,
	logger zerolog.Logger,
	cfg models.BackupConfig,
	repos []models.RepositoryRef,
) ([]models.RepositoryOutcome, []error) {
	threads := cfg.Threads
	if threads < 1 {
		threads = 1
	}

	// each worker owns its slot
	outcomes := make([]models.RepositoryOutcome, len(repos))
	var failed failureSet

	var g errgroup.Group
	g.SetLimit(threads)

	for i, repo := range repos {
		i, repo := i, repo
		g.Go(func() error {
			outcome := s.backupOne(ctx, cfg, repo)
			if outcome.Status == models.OutcomeFailed {
				failed.add(outcome.Error)
				logger.Error().Err(outcome.Error).Str("repository", repo.Name).Msg("an error occurred backing up repository")
			}
			outcomes[i] = outcome
			return nil
		})
	}
	_ = g.Wait()

	return outcomes, failed.all()
}

// backupOne shields the pool from a panicking worker and from a cancelled run.
func (s *Impl) backupOne(ctx context.Context, cfg models.BackupConfig, repo models.RepositoryRef) (outcome models.RepositoryOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = models.RepositoryOutcome{
				Repository: repo.Name,
				Status:     models.OutcomeFailed,
				Error:      &models.BackupError{Repository: repo.Name, Step: "worker", Err: fmt.Errorf("panic: %v", r)},
			}
		}
	}()

	if err := ctx.Err(); err != nil {
		return models.RepositoryOutcome{
			Repository: repo.Name,
			Status:     models.OutcomeFailed,
			Error:      &models.BackupError{Repository: repo.Name, Step: models.StepResolve, Err: err},
		}
	}

	return s.backupSvc.BackupOne(ctx, cfg, repo)
}

// failureSet collects repository failures from concurrent workers.
type failureSet struct {
	mu  sync.Mutex
	err error
}

func (f *failureSet) add(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = multierr.Append(f.err, err)
}

func (f *failureSet) all() []error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return multierr.Errors(f.err)
}

func (s *Impl) runWOL(ctx context.Context, logger zerolog.Logger, cfg *models.WOLConfig) error {
	logger.Info().
		Str("mac", cfg.MACAddress).
		Str("target", cfg.PollURL).
		Msg("waking backup host")

	result, err := s.wolSvc.Wake(ctx, *cfg)
	if err != nil {
		return fmt.Errorf("WOL failed: %w", err)
	}
	if result.Error != nil {
		return fmt.Errorf("WOL failed: %w", result.Error)
	}
	if !result.TargetReady && cfg.PollURL != "" {
		return errors.New("backup host did not become ready after WOL")
	}

	logger.Info().
		Bool("target_ready", result.TargetReady).
		Dur("wait_duration", result.WaitDuration).
		Msg("backup host is awake")

	return nil
}

func (s *Impl) runSSHShutdown(ctx context.Context, logger zerolog.Logger, cfg *models.SSHShutdownConfig) error {
	result, err := s.sshSvc.Shutdown(ctx, *cfg)
	if err != nil {
		return fmt.Errorf("SSH shutdown failed: %w", err)
	}
	if result.Error != nil {
		// the connection may drop once the shutdown starts
		if !result.CommandRun {
			return fmt.Errorf("SSH shutdown failed: %w", result.Error)
		}
		logger.Warn().Err(result.Error).Str("output", result.Output).Msg("shutdown command returned error (may be expected)")
	}

	logger.Info().Str("host", cfg.Host).Msg("backup host shutdown requested")
	return nil
}

func (s *Impl) writeMetrics(logger zerolog.Logger, cfg models.BackupConfig, result *models.RunResult) {
	if cfg.Metrics.TextfilePath == "" {
		return
	}
	if err := s.metricsSvc.Write(cfg.Metrics, result); err != nil {
		logger.Error().Err(err).Str("path", cfg.Metrics.TextfilePath).Msg("failed to write metrics")
	}
}

func (s *Impl) sendNotification(ctx context.Context, logger zerolog.Logger, cfg models.BackupConfig, result *models.RunResult) {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}

	msg := models.Notification{
		Success:        result.Error == nil,
		RunID:          result.ID,
		Host:           host,
		RepositoryRoot: cfg.RepositoryRoot,
		BackupRoot:     cfg.BackupRoot,
		StartTime:      result.StartTime,
		Duration:       result.Duration,
		Succeeded:      result.Count(models.OutcomeSucceeded),
		Skipped:        result.Count(models.OutcomeSkipped),
		Failed:         result.Count(models.OutcomeFailed),
	}

	if result.Error != nil {
		msg.ErrorMessage = result.Error.Error()
		msg.Failures = map[string]string{}
		for _, o := range result.Outcomes {
			if o.Status == models.OutcomeFailed && o.Error != nil {
				msg.Failures[o.Repository] = o.Error.Error()
			}
		}
	}

	// a cancelled run still gets its notification out
	sendCtx := context.WithoutCancel(ctx)
	if err := s.notifySvc.Send(sendCtx, cfg.Notify, msg); err != nil {
		logger.Error().Err(err).Msg("failed to send notification")
		return
	}

	logger.Info().Msg("notification sent")
}
