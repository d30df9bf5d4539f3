// Package backup runs the backup pipeline for a single repository.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fgeck/gosvn-backup/internal/models"
	"github.com/fgeck/gosvn-backup/internal/services/archive"
	"github.com/fgeck/gosvn-backup/internal/services/retention"
	"github.com/fgeck/gosvn-backup/internal/services/svn"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// workSuffix marks in-progress copies. Names carrying it are never revision
// tags, so they are neither found by the existing entry check nor pruned.
const workSuffix = ".tmp-"

// Service defines the interface for backing up one repository.
type Service interface {
	BackupOne(ctx context.Context, cfg models.BackupConfig, repo models.RepositoryRef) models.RepositoryOutcome
}

// Impl implements the backup Service interface.
type Impl struct {
	svnSvc       svn.Service
	packer       archive.Packer
	retentionSvc retention.Service
	logger       zerolog.Logger
}

// New creates a new backup service.
func New(logger zerolog.Logger, svnSvc svn.Service) *Impl {
	return &Impl{
		svnSvc:       svnSvc,
		packer:       archive.New(logger),
		retentionSvc: retention.New(logger),
		logger:       logger,
	}
}

// NewWithServices creates a new backup service with custom services (for testing).
func NewWithServices(
	logger zerolog.Logger,
	svnSvc svn.Service,
	packer archive.Packer,
	retentionSvc retention.Service,
) *Impl {
	return &Impl{
		svnSvc:       svnSvc,
		packer:       packer,
		retentionSvc: retentionSvc,
		logger:       logger,
	}
}

// BackupOne runs skip check, revision lookup, existing entry check, verify,
// hotcopy, compression and pruning for repo, in that order.
//
//nolint:gocognit,gocyclo // backup pipeline has multiple steps by design
func (s *Impl) BackupOne(ctx context.Context, cfg models.BackupConfig, repo models.RepositoryRef) models.RepositoryOutcome {
	start := time.Now()
	logger := s.logger.With().Str("repository", repo.Name).Logger()
	outcome := models.RepositoryOutcome{Repository: repo.Name}

	skip := func(reason string) models.RepositoryOutcome {
		outcome.Status = models.OutcomeSkipped
		outcome.Reason = reason
		outcome.Duration = time.Since(start)
		return outcome
	}
	fail := func(err *models.BackupError) models.RepositoryOutcome {
		logger.Error().
			Err(err.Err).
			Str("step", err.Step).
			Int("exit_code", err.ExitCode).
			Str("stderr", strings.TrimSpace(err.Stderr)).
			Msg("repository backup failed")
		outcome.Status = models.OutcomeFailed
		outcome.Error = err
		outcome.Duration = time.Since(start)
		return outcome
	}

	// Step 1: skip list
	if Skipped(cfg.Skip, repo.Name) {
		logger.Info().Msg("skipping repository, it is in the skip list")
		return skip(models.SkipReasonListed)
	}

	// Step 2: resolve revision
	tag, ok, err := s.svnSvc.Youngest(ctx, repo.Path, cfg.SvnPath)
	if err != nil {
		return fail(&models.BackupError{Repository: repo.Name, Step: models.StepResolve, Err: err})
	}
	if !ok {
		return skip(models.SkipReasonNotRepository)
	}
	outcome.Revision = tag

	// Step 3: already backed up?
	repoBackupPath := filepath.Join(cfg.BackupRoot, repo.Name)
	revPath := filepath.Join(repoBackupPath, string(tag))
	zipPath := revPath + models.ArchiveExt

	if exists(revPath) || exists(zipPath) {
		logger.Info().Str("revision", string(tag)).Msg("skipping revision, it already exists")
		return skip(models.SkipReasonExists)
	}

	if err := os.MkdirAll(repoBackupPath, 0o750); err != nil {
		return fail(&models.BackupError{
			Repository: repo.Name,
			Step:       models.StepHotcopy,
			Err:        fmt.Errorf("failed to create backup directory: %w", err),
		})
	}

	// Step 4: verify (if enabled)
	if cfg.Verify {
		result, err := s.svnSvc.Verify(ctx, repo.Path, cfg.SvnPath)
		if err != nil {
			return fail(&models.BackupError{Repository: repo.Name, Step: models.StepVerify, Err: err})
		}
		if result.ExitCode != 0 {
			return fail(&models.BackupError{
				Repository: repo.Name,
				Step:       models.StepVerify,
				ExitCode:   result.ExitCode,
				Stderr:     result.Stderr,
				Err:        errors.New("repository failed verification"),
			})
		}
		logger.Info().Dur("duration", result.Duration).Msg("verify succeeded")
	}

	// Step 5: hotcopy into a work directory no other invocation uses
	workPath := fmt.Sprintf("%s%s%s", revPath, workSuffix, uuid.NewString())
	logger.Info().Str("revision", string(tag)).Msg("backing up revision")
	result, err := s.svnSvc.Hotcopy(ctx, repo.Path, workPath, cfg.SvnPath)
	if err == nil && result.ExitCode != 0 {
		err = errors.New("hotcopy exited with an error")
	}
	if err != nil {
		discard(logger, workPath)
		backupErr := &models.BackupError{Repository: repo.Name, Step: models.StepHotcopy, Err: err}
		if result != nil {
			backupErr.ExitCode = result.ExitCode
			backupErr.Stderr = result.Stderr
		}
		return fail(backupErr)
	}
	logger.Info().Str("path", workPath).Dur("duration", result.Duration).Msg("hotcopy complete")

	// Step 6: compress (if enabled) and publish under the revision tag
	if cfg.Compress {
		if err := s.packer.Pack(ctx, workPath, zipPath); err != nil {
			// keep the uncompressed copy
			if pubErr := publish(workPath, revPath); pubErr != nil {
				discard(logger, workPath)
			}
			return fail(&models.BackupError{Repository: repo.Name, Step: models.StepCompress, Err: err})
		}
		if err := os.RemoveAll(workPath); err != nil {
			return fail(&models.BackupError{
				Repository: repo.Name,
				Step:       models.StepCompress,
				Err:        fmt.Errorf("failed to remove uncompressed copy: %w", err),
			})
		}
		outcome.Artifact = zipPath
		outcome.Compressed = true
		logger.Info().Str("path", zipPath).Msg("compression complete")
	} else {
		if err := publish(workPath, revPath); err != nil {
			discard(logger, workPath)
			if exists(revPath) {
				logger.Info().Str("revision", string(tag)).Msg("revision was backed up by another run")
				return skip(models.SkipReasonExists)
			}
			return fail(&models.BackupError{
				Repository: repo.Name,
				Step:       models.StepHotcopy,
				Err:        fmt.Errorf("failed to move copy into place: %w", err),
			})
		}
		outcome.Artifact = revPath
	}

	// Step 7: prune
	pruned, err := s.retentionSvc.Prune(repoBackupPath, cfg.History)
	if err != nil {
		return fail(&models.BackupError{Repository: repo.Name, Step: models.StepPrune, Err: err})
	}
	if pruned != nil {
		outcome.Pruned = pruned.Removed()
	}

	outcome.Status = models.OutcomeSucceeded
	outcome.Duration = time.Since(start)

	logger.Info().
		Str("revision", string(tag)).
		Int("pruned", outcome.Pruned).
		Dur("duration", outcome.Duration).
		Msg("repository backup complete")

	return outcome
}

// Skipped reports whether name matches an entry of the skip list, ignoring case.
func Skipped(skip []string, name string) bool {
	for _, s := range skip {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return true
		}
	}
	return false
}

// publish moves a finished copy to its revision path. It fails if the
// revision path already exists.
func publish(workPath, revPath string) error {
	if exists(revPath) {
		return fmt.Errorf("%s already exists", revPath)
	}
	return os.Rename(workPath, revPath)
}

// discard removes a work directory owned by this invocation.
func discard(logger zerolog.Logger, workPath string) {
	if err := os.RemoveAll(workPath); err != nil {
		logger.Warn().Err(err).Str("path", workPath).Msg("failed to remove partial copy")
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
