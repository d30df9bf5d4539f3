// Package retention removes old backup entries from a repository's backup directory.
package retention

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/fgeck/gosvn-backup/internal/models"
	"github.com/rs/zerolog"
)

// Service defines the interface for retention operations.
type Service interface {
	Prune(dir string, keep int) (*models.PruneResult, error)
}

// Impl implements the retention Service interface.
type Impl struct {
	logger zerolog.Logger
}

// New creates a new retention service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{logger: logger}
}

// Prune keeps the newest keep entries of dir and deletes the rest.
// Directory entries and zip entries are counted separately and ordered by
// the revision their name carries. keep <= 0 disables pruning.
func (s *Impl) Prune(dir string, keep int) (*models.PruneResult, error) {
	result := &models.PruneResult{}
	if keep <= 0 {
		return result, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return result, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var dirs, archives []string
	for _, e := range entries {
		switch {
		case e.IsDir():
			if _, ok := models.ParseRevisionTag(e.Name()); ok {
				dirs = append(dirs, e.Name())
			}
		case e.Type().IsRegular() && models.IsArchiveName(e.Name()):
			archives = append(archives, e.Name())
		}
	}

	for _, name := range oldest(dirs, keep) {
		path := filepath.Join(dir, name)
		if err := os.RemoveAll(path); err != nil {
			return result, fmt.Errorf("failed to remove backup %s: %w", path, err)
		}
		result.RemovedDirs = append(result.RemovedDirs, path)
		s.logger.Info().Str("path", path).Msg("removed backup")
	}

	for _, name := range oldest(archives, keep) {
		path := filepath.Join(dir, name)
		if err := os.Remove(path); err != nil {
			return result, fmt.Errorf("failed to remove backup %s: %w", path, err)
		}
		result.RemovedArchives = append(result.RemovedArchives, path)
		s.logger.Info().Str("path", path).Msg("removed backup")
	}

	return result, nil
}

// oldest returns the names beyond the newest keep, oldest first.
func oldest(names []string, keep int) []string {
	if len(names) <= keep {
		return nil
	}
	slices.SortFunc(names, func(a, b string) int {
		return cmp.Compare(revision(a), revision(b))
	})
	return names[:len(names)-keep]
}

func revision(name string) int64 {
	rev, _ := models.ParseRevisionTag(strings.TrimSuffix(name, models.ArchiveExt))
	return rev
}
