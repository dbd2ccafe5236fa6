package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fishset/fishdedup/models"
)

func TestPlanDeletions(t *testing.T) {
	groups := []models.Group{
		{Members: []string{"a", "a2", "a3"}},
		{Members: []string{"b"}},
		{Members: []string{"c", "c2"}},
	}

	pairs := PlanDeletions(groups)

	assert.Equal(t, []models.DuplicatePair{
		{Keep: "a", Delete: "a2"},
		{Keep: "a", Delete: "a3"},
		{Keep: "c", Delete: "c2"},
	}, pairs)

	assert.Empty(t, PlanDeletions([]models.Group{{Members: []string{"solo"}}}))
	assert.Empty(t, PlanDeletions(nil))
}

func TestDeleteDuplicatesDryRun(t *testing.T) {
	dir := t.TempDir()
	keep := filepath.Join(dir, "keep.png")
	dup := filepath.Join(dir, "dup.png")
	touch(t, keep)
	touch(t, dup)

	called := false
	res := DeleteDuplicates([]models.DuplicatePair{{Keep: keep, Delete: dup}}, true, func(int, int) { called = true })

	assert.True(t, res.DryRun)
	assert.Equal(t, 1, res.Planned)
	assert.Zero(t, res.Removed)
	assert.False(t, called)
	assert.FileExists(t, dup)
	assert.FileExists(t, keep)
}

func TestDeleteDuplicatesExecute(t *testing.T) {
	dir := t.TempDir()
	keep := filepath.Join(dir, "keep.png")
	dup := filepath.Join(dir, "dup.png")
	touch(t, keep)
	require.NoError(t, os.WriteFile(dup, make([]byte, 1024), 0o644))
	missing := filepath.Join(dir, "gone.png")

	var steps []int
	res := DeleteDuplicates([]models.DuplicatePair{
		{Keep: keep, Delete: missing},
		{Keep: keep, Delete: dup},
	}, false, func(done, total int) {
		assert.Equal(t, 2, total)
		steps = append(steps, done)
	})

	assert.False(t, res.DryRun)
	assert.Equal(t, 2, res.Planned)
	assert.Equal(t, 1, res.Removed)
	assert.Equal(t, int64(1024), res.ReclaimedBytes)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, missing, res.Failures[0].Path)
	assert.Equal(t, []int{1, 2}, steps)

	assert.NoFileExists(t, dup)
	assert.FileExists(t, keep)
}
