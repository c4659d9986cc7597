package service

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetentionRemovesOldRunLogs(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, RunLogDir)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, name := range []string{"2026-01-01.log", "2026-03-01.log", "2026-03-09.log", "notes.txt", "bad-name.log"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	job := NewRetentionJob([]string{root, filepath.Join(root, "missing")}, 30, nullLogger())
	job.now = func() time.Time { return time.Date(2026, 3, 10, 8, 0, 0, 0, time.Local) }

	assert.Equal(t, 1, job.Run())
	_, err := os.Stat(filepath.Join(dir, "2026-01-01.log"))
	assert.True(t, os.IsNotExist(err))
	for _, keep := range []string{"2026-03-01.log", "2026-03-09.log", "notes.txt", "bad-name.log"} {
		_, err := os.Stat(filepath.Join(dir, keep))
		assert.NoError(t, err, keep)
	}
}

func TestRetentionDisabled(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, RunLogDir)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2000-01-01.log"), []byte("x"), 0o644))

	assert.Zero(t, NewRetentionJob([]string{root}, 0, nullLogger()).Run())
}

func TestRetentionSchedule(t *testing.T) {
	c := cron.New()
	_, err := NewRetentionJob(nil, 30, nullLogger()).Schedule(c, "0 3 * * *")
	assert.NoError(t, err)
	assert.Len(t, c.Entries(), 1)

	_, err = NewRetentionJob(nil, 30, nullLogger()).Schedule(c, "every tuesday")
	assert.Error(t, err)
}
