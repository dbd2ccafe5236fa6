package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fishset/fishdedup/config"
	"github.com/fishset/fishdedup/models"
)

// fishDir writes a.jpg, an identical a_copy.jpg and an unrelated b.jpg.
func fishDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "a.jpg"), noiseImage(1))
	copyFile(t, filepath.Join(dir, "a.jpg"), filepath.Join(dir, "a_copy.jpg"))
	writeImage(t, filepath.Join(dir, "b.jpg"), noiseImage(2))
	return dir
}

func testOptions(mode string) RunOptions {
	return OptionsFromConfig(config.Default(), mode)
}

func TestPipelineReport(t *testing.T) {
	dir := fishDir(t)

	report, err := NewPipeline(nil, false).Run(dir, testOptions(models.ModeReport), nil)
	require.NoError(t, err)

	assert.NotEmpty(t, report.ID)
	assert.Equal(t, 3, report.TotalImages)
	assert.Equal(t, 3, report.Fingerprinted)
	assert.Equal(t, 2, report.UniqueCount)
	assert.Equal(t, 1, report.DuplicateCount)
	assert.Equal(t, "greedy", report.Strategy)
	assert.Equal(t, [][]string{
		{filepath.Join(dir, "a.jpg"), filepath.Join(dir, "a_copy.jpg")},
		{filepath.Join(dir, "b.jpg")},
	}, members(report.Groups))
	assert.Nil(t, report.Deletion)
	assert.False(t, report.FinishedAt.Before(report.StartedAt))

	for _, name := range []string{"a.jpg", "a_copy.jpg", "b.jpg"} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
}

func TestPipelineEmptyDirectory(t *testing.T) {
	report, err := NewPipeline(nil, false).Run(t.TempDir(), testOptions(models.ModeReport), nil)
	require.NoError(t, err)

	assert.Zero(t, report.TotalImages)
	assert.NotNil(t, report.Groups)
	assert.Empty(t, report.Groups)
	assert.Equal(t, "No images found.\n", FormatSummary(report))
}

func TestPipelineDeleteDryRun(t *testing.T) {
	dir := fishDir(t)
	opts := testOptions(models.ModeDelete)
	opts.DryRun = true

	report, err := NewPipeline(nil, false).Run(dir, opts, nil)
	require.NoError(t, err)

	require.Equal(t, []models.DuplicatePair{{
		Keep:   filepath.Join(dir, "a.jpg"),
		Delete: filepath.Join(dir, "a_copy.jpg"),
	}}, report.Pairs)
	require.NotNil(t, report.Deletion)
	assert.True(t, report.Deletion.DryRun)
	assert.Zero(t, report.Deletion.Removed)
	assert.FileExists(t, filepath.Join(dir, "a_copy.jpg"))
	assert.Contains(t, FormatDeletion(report), "KEEP: a.jpg  DELETE: a_copy.jpg\n")
	assert.Contains(t, FormatDeletion(report), "Dry-run finished. 1 duplicates would be deleted.")
}

func TestPipelineDeleteExecute(t *testing.T) {
	dir := fishDir(t)
	opts := testOptions(models.ModeDelete)
	opts.DryRun = false

	report, err := NewPipeline(nil, false).Run(dir, opts, nil)
	require.NoError(t, err)

	require.NotNil(t, report.Deletion)
	assert.Equal(t, 1, report.Deletion.Removed)
	assert.Positive(t, report.Deletion.ReclaimedBytes)
	assert.NoFileExists(t, filepath.Join(dir, "a_copy.jpg"))
	assert.FileExists(t, filepath.Join(dir, "a.jpg"))
	assert.FileExists(t, filepath.Join(dir, "b.jpg"))

	// A second pass finds nothing left to delete.
	again, err := NewPipeline(nil, false).Run(dir, opts, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, again.TotalImages)
	assert.Zero(t, again.DuplicateCount)
	assert.Empty(t, again.Pairs)
}

func TestPipelineSkipsUnreadableImages(t *testing.T) {
	dir := fishDir(t)
	bad := filepath.Join(dir, "broken.png")
	require.NoError(t, os.WriteFile(bad, []byte("truncated"), 0o644))

	report, err := NewPipeline(nil, false).Run(dir, testOptions(models.ModeReport), nil)
	require.NoError(t, err)

	assert.Equal(t, 4, report.TotalImages)
	assert.Equal(t, 3, report.Fingerprinted)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, bad, report.Skipped[0].Path)
	assert.Equal(t, 2, report.UniqueCount)
	assert.Contains(t, FormatSummary(report), "Skipped (unreadable): 1\n")
}

func TestPipelineRejectsBadInput(t *testing.T) {
	p := NewPipeline(nil, false)

	_, err := p.Run(filepath.Join(t.TempDir(), "missing"), testOptions(models.ModeReport), nil)
	assert.ErrorIs(t, err, os.ErrNotExist)

	opts := testOptions(models.ModeReport)
	opts.Threshold = 150
	_, err = p.Run(t.TempDir(), opts, nil)
	assert.ErrorIs(t, err, ErrInvalidThreshold)

	opts = testOptions(models.ModeReport)
	opts.Strategy = "kmeans"
	_, err = p.Run(t.TempDir(), opts, nil)
	assert.ErrorIs(t, err, ErrUnknownStrategy)

	opts = testOptions("archive")
	_, err = p.Run(t.TempDir(), opts, nil)
	assert.Error(t, err)

	opts = testOptions(models.ModeReport)
	opts.HashSize = 5
	_, err = p.Run(t.TempDir(), opts, nil)
	assert.Error(t, err)
}

func TestPipelineProgressEvents(t *testing.T) {
	dir := fishDir(t)

	events := make(chan ProgressEvent)
	var got []ProgressEvent
	drained := make(chan struct{})
	go func() {
		for ev := range events {
			got = append(got, ev)
		}
		close(drained)
	}()

	_, err := NewPipeline(nil, false).Run(dir, testOptions(models.ModeReport), events)
	close(events)
	<-drained
	require.NoError(t, err)

	require.NotEmpty(t, got)
	assert.Equal(t, StageScanning, got[0].Stage)
	assert.Equal(t, StageComplete, got[len(got)-1].Stage)

	var hashed int64
	stages := make(map[string]bool)
	for _, ev := range got {
		stages[ev.Stage] = true
		if ev.Stage == StageHashing && ev.Done > hashed {
			hashed = ev.Done
		}
	}
	assert.Equal(t, int64(3), hashed)
	assert.True(t, stages[StageGrouping])
	assert.False(t, stages[StageDeleting])
}

func TestPipelineUnionFindStrategy(t *testing.T) {
	dir := fishDir(t)
	opts := testOptions(models.ModeReport)
	opts.Strategy = config.StrategyUnionFind

	report, err := NewPipeline(nil, false).Run(dir, opts, nil)
	require.NoError(t, err)
	assert.Equal(t, "unionfind", report.Strategy)
	assert.Equal(t, 2, report.UniqueCount)
}

func TestPipelineCacheAndHistory(t *testing.T) {
	dir := fishDir(t)
	storage := newTestStorage(t)
	p := NewPipeline(storage, true)

	first, err := p.Run(dir, testOptions(models.ModeReport), nil)
	require.NoError(t, err)
	assert.Zero(t, first.CacheHits)

	second, err := p.Run(dir, testOptions(models.ModeReport), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, second.CacheHits)
	assert.Equal(t, members(first.Groups), members(second.Groups))

	// A rewritten file is hashed again.
	writeImage(t, filepath.Join(dir, "b.jpg"), noiseImage(4))
	third, err := p.Run(dir, testOptions(models.ModeReport), nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, third.CacheHits, 2)

	runs, err := storage.ListRuns(10)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestPipelineWithoutCacheStillRecordsHistory(t *testing.T) {
	storage := newTestStorage(t)
	p := NewPipeline(storage, false)

	opts := testOptions(models.ModeReport)
	opts.ID = "fixed-id"
	report, err := p.Run(fishDir(t), opts, nil)
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", report.ID)
	assert.Zero(t, report.CacheHits)

	runs, err := storage.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "fixed-id", runs[0].ID)
	assert.Equal(t, 1, runs[0].DuplicateCount)
}
