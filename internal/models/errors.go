package models

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// ErrRepositoryRootMissing is returned when the repository root does not exist.
var ErrRepositoryRootMissing = errors.New("repository root does not exist")

// Pipeline steps reported in BackupError.
const (
	StepResolve  = "resolve"
	StepVerify   = "verify"
	StepHotcopy  = "hotcopy"
	StepCompress = "compress"
	StepPrune    = "prune"
)

// BackupError describes an unrecoverable failure while backing up one repository.
type BackupError struct {
	Repository string
	Step       string
	ExitCode   int    // tool exit code, 0 if the step did not run a tool
	Stderr     string // captured tool stderr
	Err        error
}

func (e *BackupError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "repository %s: %s failed", e.Repository, e.Step)
	if e.ExitCode != 0 {
		fmt.Fprintf(&b, " (exit code %d)", e.ExitCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		fmt.Fprintf(&b, ": %s", s)
	}
	return b.String()
}

func (e *BackupError) Unwrap() error {
	return e.Err
}

// AggregateError combines the failures of several repositories.
type AggregateError struct {
	err error
}

// NewAggregateError combines errs, dropping nils. It returns nil if none remain.
func NewAggregateError(errs ...error) *AggregateError {
	combined := multierr.Combine(errs...)
	if combined == nil {
		return nil
	}
	return &AggregateError{err: combined}
}

// Errors returns the individual failures.
func (e *AggregateError) Errors() []error {
	return multierr.Errors(e.err)
}

func (e *AggregateError) Error() string {
	errs := e.Errors()
	var b strings.Builder
	fmt.Fprintf(&b, "%d repositories failed", len(errs))
	for _, err := range errs {
		b.WriteString("\n  - ")
		b.WriteString(err.Error())
	}
	return b.String()
}

func (e *AggregateError) Unwrap() []error {
	return e.Errors()
}
