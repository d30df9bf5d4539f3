package metrics

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fgeck/gosvn-backup/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testResult(err error) *models.RunResult {
	return &models.RunResult{
		ID:        "run-1",
		StartTime: time.Unix(1700000000, 0),
		Duration:  90 * time.Second,
		Error:     err,
		Outcomes: []models.RepositoryOutcome{
			{Repository: "alpha", Status: models.OutcomeSucceeded, Duration: 2500 * time.Millisecond},
			{Repository: "beta", Status: models.OutcomeSkipped, Duration: 0},
			{Repository: "gamma", Status: models.OutcomeFailed, Duration: 4 * time.Second},
		},
	}
}

func TestWrite_Textfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "textfile", "svnbackup.prom")
	svc := New(testLogger())

	require.NoError(t, svc.Write(models.MetricsConfig{TextfilePath: path}, testResult(errors.New("1 repositories failed"))))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, "svnbackup_last_run_timestamp_seconds 1.7e+09")
	assert.Contains(t, out, "svnbackup_last_run_duration_seconds 90")
	assert.Contains(t, out, "svnbackup_last_run_success 0")
	assert.Contains(t, out, `svnbackup_repositories{status="succeeded"} 1`)
	assert.Contains(t, out, `svnbackup_repositories{status="skipped"} 1`)
	assert.Contains(t, out, `svnbackup_repositories{status="failed"} 1`)
	assert.Contains(t, out, `svnbackup_repository_duration_seconds{repository="alpha"} 2.5`)
	assert.Contains(t, out, `svnbackup_repository_duration_seconds{repository="gamma"} 4`)
}

func TestWrite_Success(t *testing.T) {
	path := filepath.Join(t.TempDir(), "svnbackup.prom")
	svc := New(testLogger())

	require.NoError(t, svc.Write(models.MetricsConfig{TextfilePath: path}, testResult(nil)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "svnbackup_last_run_success 1")
}

func TestWrite_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "svnbackup.prom")
	svc := New(testLogger())

	require.NoError(t, svc.Write(models.MetricsConfig{TextfilePath: path}, testResult(nil)))
	require.NoError(t, svc.Write(models.MetricsConfig{TextfilePath: path}, &models.RunResult{StartTime: time.Unix(1700000000, 0)}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `repository="alpha"`)
}

func TestWrite_Disabled(t *testing.T) {
	svc := New(testLogger())
	assert.NoError(t, svc.Write(models.MetricsConfig{}, testResult(nil)))
}
