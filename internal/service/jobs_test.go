package service

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ForkIt369/ragpipe/internal/models"
	"github.com/ForkIt369/ragpipe/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestJobManager_StageProgression(t *testing.T) {
	m := NewJobManager(nil)
	job := m.Create("doc1")

	assert.Equal(t, models.StagePending, job.Stage)
	assert.Equal(t, 0, job.Progress)

	stages := []struct {
		stage models.JobStage
		floor int
	}{
		{models.StageExtracting, 0},
		{models.StageChunking, 10},
		{models.StageEmbedding, 30},
		{models.StageIndexing, 90},
	}
	for _, s := range stages {
		require.NoError(t, m.SetStage(job.ID, s.stage))
		got, ok := m.GetJob(job.ID)
		require.True(t, ok)
		assert.Equal(t, s.stage, got.Stage)
		assert.Equal(t, s.floor, got.Progress, "progress floor for %s", s.stage)
	}

	require.NoError(t, m.Complete(job.ID))
	got, _ := m.GetJob(job.ID)
	assert.Equal(t, models.StageCompleted, got.Stage)
	assert.Equal(t, 100, got.Progress)
	assert.NotNil(t, got.CompletedAt)
}

func TestJobManager_TerminalJobsImmutable(t *testing.T) {
	m := NewJobManager(nil)

	job := m.Create("doc1")
	require.NoError(t, m.Complete(job.ID))
	assert.Error(t, m.SetStage(job.ID, models.StageEmbedding))
	assert.Error(t, m.Fail(job.ID, errors.New("late failure")))

	// A retry is a fresh record; the old one keeps its terminal state.
	retry := m.Create("doc1")
	assert.NotEqual(t, job.ID, retry.ID)
	latest, ok := m.Get("doc1")
	require.True(t, ok)
	assert.Equal(t, retry.ID, latest.ID)

	old, ok := m.GetJob(job.ID)
	require.True(t, ok)
	assert.Equal(t, models.StageCompleted, old.Stage)
}

func TestJobManager_ProgressMonotone(t *testing.T) {
	m := NewJobManager(nil)
	job := m.Create("doc1")
	require.NoError(t, m.SetStage(job.ID, models.StageEmbedding))

	m.UpdateProgress(job.ID, models.StageEmbedding, 2, 4)
	got, _ := m.GetJob(job.ID)
	assert.Equal(t, 60, got.Progress) // 30 + 60*(2/4)

	// A stale lower update must not move progress backward.
	m.UpdateProgress(job.ID, models.StageEmbedding, 1, 4)
	got, _ = m.GetJob(job.ID)
	assert.Equal(t, 60, got.Progress)

	// Within-stage progress never crosses into the next stage's range.
	m.UpdateProgress(job.ID, models.StageEmbedding, 9, 4)
	got, _ = m.GetJob(job.ID)
	assert.Equal(t, 90, got.Progress)
}

func TestJobManager_FailRecordsError(t *testing.T) {
	m := NewJobManager(nil)
	job := m.Create("doc1")
	require.NoError(t, m.SetStage(job.ID, models.StageEmbedding))

	require.NoError(t, m.Fail(job.ID, errors.New("provider down")))

	got, _ := m.GetJob(job.ID)
	assert.Equal(t, models.StageError, got.Stage)
	assert.Equal(t, "provider down", got.Error)
	assert.NotNil(t, got.CompletedAt)
	// The failing stage's progress is preserved, not reset.
	assert.Equal(t, 30, got.Progress)
}

func TestJobManager_Events(t *testing.T) {
	m := NewJobManager(nil)
	events := m.Events()

	job := m.Create("doc1")
	require.NoError(t, m.SetStage(job.ID, models.StageExtracting))
	require.NoError(t, m.SetStage(job.ID, models.StageChunking))

	var stages []models.JobStage
	for i := 0; i < 3; i++ {
		select {
		case ev := <-events:
			assert.Equal(t, job.ID, ev.JobID)
			assert.Equal(t, "doc1", ev.DocumentID)
			stages = append(stages, ev.Stage)
		default:
			t.Fatal("expected buffered stage event")
		}
	}
	assert.Equal(t, []models.JobStage{
		models.StagePending, models.StageExtracting, models.StageChunking,
	}, stages)
}

func TestJobManager_Cancel(t *testing.T) {
	m := NewJobManager(nil)
	job := m.Create("doc1")

	called := false
	m.RegisterCancel(job.ID, func() { called = true })

	assert.True(t, m.Cancel("doc1"))
	assert.True(t, called)

	assert.False(t, m.Cancel("unknown-doc"))
}

func TestJobManager_RestoreMarksInterruptedJobsFailed(t *testing.T) {
	st := openTestStore(t)

	m := NewJobManager(st)
	running := m.Create("doc1")
	require.NoError(t, m.SetStage(running.ID, models.StageEmbedding))
	finished := m.Create("doc2")
	require.NoError(t, m.Complete(finished.ID))

	// Simulate a fresh process over the same store.
	m2 := NewJobManager(st)
	require.NoError(t, m2.Restore())

	got, ok := m2.Get("doc1")
	require.True(t, ok)
	assert.Equal(t, models.StageError, got.Stage)
	assert.Contains(t, got.Error, "interrupted")

	got, ok = m2.Get("doc2")
	require.True(t, ok)
	assert.Equal(t, models.StageCompleted, got.Stage)
}
