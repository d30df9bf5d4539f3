package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// revisionTagWidth is the zero-padded width of a revision number inside a tag.
const revisionTagWidth = 7

// ArchiveExt is the file extension of compressed backup entries.
const ArchiveExt = ".zip"

// RepositoryRef identifies a directory that is, or may be, a repository.
type RepositoryRef struct {
	Name string
	Path string
}

// RevisionTag names a backup entry, e.g. "v0000042".
// Tags of revisions below 10^7 sort lexically in numeric order.
type RevisionTag string

// NewRevisionTag renders a revision number as a tag.
func NewRevisionTag(rev int64) RevisionTag {
	return RevisionTag(fmt.Sprintf("v%0*d", revisionTagWidth, rev))
}

// ParseRevisionTag returns the revision encoded in name.
func ParseRevisionTag(name string) (int64, bool) {
	if len(name) < revisionTagWidth+1 || name[0] != 'v' {
		return 0, false
	}
	digits := name[1:]
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	rev, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return rev, true
}

// IsArchiveName reports whether name is "<tag>.zip".
func IsArchiveName(name string) bool {
	base, ok := strings.CutSuffix(name, ArchiveExt)
	if !ok {
		return false
	}
	_, ok = ParseRevisionTag(base)
	return ok
}

// OutcomeStatus is the tri-state result of backing up one repository.
type OutcomeStatus string

// Outcome statuses.
const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeSkipped   OutcomeStatus = "skipped"
	OutcomeFailed    OutcomeStatus = "failed"
)

// Skip reasons.
const (
	SkipReasonListed        = "in skip list"
	SkipReasonNotRepository = "not a repository"
	SkipReasonExists        = "already backed up"
)

// RepositoryOutcome holds the result of the per-repository pipeline.
type RepositoryOutcome struct {
	Repository string
	Status     OutcomeStatus
	Reason     string // set when skipped
	Revision   RevisionTag
	Artifact   string // path of the produced entry
	Compressed bool
	Pruned     int
	Duration   time.Duration
	Error      error // set when failed
}

// RunResult holds the aggregate of one backup invocation.
type RunResult struct {
	ID        string
	StartTime time.Time
	Duration  time.Duration
	Outcomes  []RepositoryOutcome
	Error     error
}

// Count returns the number of outcomes with the given status.
func (r *RunResult) Count(status OutcomeStatus) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// ToolResult holds the captured result of one external tool invocation.
type ToolResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// PruneResult holds the result of a retention pass.
type PruneResult struct {
	RemovedDirs     []string
	RemovedArchives []string
}

// Removed returns the total number of deleted entries.
func (r *PruneResult) Removed() int {
	return len(r.RemovedDirs) + len(r.RemovedArchives)
}
