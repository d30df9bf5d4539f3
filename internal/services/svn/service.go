// Package svn wraps the svnadmin and svnlook command line tools.
package svn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fgeck/gosvn-backup/internal/models"
	"github.com/rs/zerolog"
)

// Tool names.
const (
	Admin = "svnadmin"
	Look  = "svnlook"
)

// Service defines the interface for repository administration operations.
type Service interface {
	IsRepository(path string) bool
	Youngest(ctx context.Context, repoPath, toolPath string) (models.RevisionTag, bool, error)
	Verify(ctx context.Context, repoPath, toolPath string) (*models.ToolResult, error)
	Hotcopy(ctx context.Context, repoPath, destPath, toolPath string) (*models.ToolResult, error)
}

// CommandExecutor allows mocking exec.Command in tests.
type CommandExecutor interface {
	Run(ctx context.Context, name string, args ...string) (*models.ToolResult, error)
}

// DefaultExecutor is the default command executor using os/exec.
type DefaultExecutor struct{}

// Run executes a command and captures stdout and stderr separately.
// A non-zero exit is reported through ExitCode; the error is set only when
// the process could not be run at all.
func (e *DefaultExecutor) Run(ctx context.Context, name string, args ...string) (*models.ToolResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result := &models.ToolResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		result.ExitCode = -1
		return result, fmt.Errorf("running %s: %w", name, err)
	}

	return result, nil
}

// Impl implements the Service interface.
type Impl struct {
	executor CommandExecutor
	logger   zerolog.Logger
}

// New creates a new svn service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		executor: &DefaultExecutor{},
		logger:   logger,
	}
}

// NewWithExecutor creates a new svn service with a custom executor (for testing).
func NewWithExecutor(logger zerolog.Logger, executor CommandExecutor) *Impl {
	return &Impl{
		executor: executor,
		logger:   logger,
	}
}

// toolName resolves a tool inside the optional override directory.
func toolName(toolPath, name string) string {
	if toolPath == "" {
		return name
	}
	return filepath.Join(toolPath, name)
}

// IsRepository reports whether path has the on-disk layout of a repository.
func (s *Impl) IsRepository(path string) bool {
	format, err := os.Stat(filepath.Join(path, "format"))
	if err != nil || format.IsDir() {
		return false
	}
	db, err := os.Stat(filepath.Join(path, "db"))
	return err == nil && db.IsDir()
}

// Youngest returns the tag of the latest revision of the repository at repoPath.
// It returns false, without an error, when the output is not a revision number,
// which is how directories that are not repositories show up.
func (s *Impl) Youngest(ctx context.Context, repoPath, toolPath string) (models.RevisionTag, bool, error) {
	name := filepath.Base(repoPath)

	result, err := s.executor.Run(ctx, toolName(toolPath, Look), "youngest", repoPath)
	if err != nil {
		return "", false, fmt.Errorf("svnlook youngest: %w", err)
	}

	if stderr := strings.TrimSpace(result.Stderr); stderr != "" {
		s.logger.Info().Str("repository", name).Msg(stderr)
	}

	rev, err := strconv.ParseInt(strings.TrimSpace(result.Stdout), 10, 64)
	if err != nil || rev < 0 {
		s.logger.Warn().Str("repository", name).Msg("not a repository")
		if stdout := strings.TrimSpace(result.Stdout); stdout != "" {
			s.logger.Info().Str("repository", name).Msg(stdout)
		}
		return "", false, nil
	}

	s.logger.Debug().Str("repository", name).Int64("revision", rev).Msg("resolved youngest revision")
	return models.NewRevisionTag(rev), true, nil
}

// Verify runs svnadmin verify against the repository.
func (s *Impl) Verify(ctx context.Context, repoPath, toolPath string) (*models.ToolResult, error) {
	s.logger.Info().Str("path", repoPath).Msg("verifying repository")

	result, err := s.executor.Run(ctx, toolName(toolPath, Admin), "verify", "--quiet", repoPath)
	if err != nil {
		return nil, fmt.Errorf("svnadmin verify: %w", err)
	}

	s.logger.Debug().
		Str("path", repoPath).
		Int("exit_code", result.ExitCode).
		Dur("duration", result.Duration).
		Msg("verify finished")

	return result, nil
}

// Hotcopy copies the repository at repoPath into destPath.
func (s *Impl) Hotcopy(ctx context.Context, repoPath, destPath, toolPath string) (*models.ToolResult, error) {
	s.logger.Info().Str("path", repoPath).Str("dest", destPath).Msg("running hotcopy")

	result, err := s.executor.Run(ctx, toolName(toolPath, Admin), "hotcopy", repoPath, destPath)
	if err != nil {
		return nil, fmt.Errorf("svnadmin hotcopy: %w", err)
	}

	if stderr := strings.TrimSpace(result.Stderr); stderr != "" {
		s.logger.Info().Str("path", repoPath).Msg(stderr)
	}

	s.logger.Debug().
		Str("path", repoPath).
		Int("exit_code", result.ExitCode).
		Dur("duration", result.Duration).
		Msg("hotcopy finished")

	return result, nil
}
