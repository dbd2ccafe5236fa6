package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fishset/fishdedup/models"
)

func sampleReport(mode string) *models.RunReport {
	return &models.RunReport{
		Mode:        mode,
		Threshold:   96,
		TotalImages: 3,
		Groups: []models.Group{
			{Members: []string{"/crops/a.jpg", "/crops/a_copy.jpg"}},
			{Members: []string{"/crops/b.jpg"}},
		},
		UniqueCount:    2,
		DuplicateCount: 1,
	}
}

func TestFormatSummary(t *testing.T) {
	assert.Equal(t, "No images found.\n", FormatSummary(&models.RunReport{}))

	assert.Equal(t,
		"==== SUMMARY ====\n"+
			"Total images: 3\n"+
			"Unique after grouping (≥96%): 2\n"+
			"Duplicates detected: 1\n",
		FormatSummary(sampleReport(models.ModeReport)))

	r := sampleReport(models.ModeDelete)
	r.Threshold = 96.5
	r.Skipped = []models.SkippedImage{{Path: "/crops/bad.png", Error: "decode"}}
	out := FormatSummary(r)
	assert.Contains(t, out, "==== SUMMARY BEFORE DELETION ====\n")
	assert.Contains(t, out, "Skipped (unreadable): 1\n")
	assert.Contains(t, out, "(≥96.5%)")
}

func TestFormatGroups(t *testing.T) {
	assert.Equal(t,
		"Group 1 (2 images):\n  /crops/a.jpg\n  /crops/a_copy.jpg\n",
		FormatGroups(sampleReport(models.ModeReport)))

	assert.Equal(t, "No duplicate groups.\n", FormatGroups(&models.RunReport{}))
}

func TestFormatDeletion(t *testing.T) {
	r := sampleReport(models.ModeDelete)
	assert.Empty(t, FormatDeletion(r))

	r.Pairs = PlanDeletions(r.Groups)
	r.Deletion = &models.DeletionResult{DryRun: true, Planned: 1}
	assert.Equal(t,
		"\nDry-run mode: showing duplicates (kept -> deleted):\n"+
			"KEEP: a.jpg  DELETE: a_copy.jpg\n"+
			"\nDry-run finished. 1 duplicates would be deleted.\n",
		FormatDeletion(r))

	r.Deletion = &models.DeletionResult{Planned: 1, Removed: 1, ReclaimedBytes: 2048}
	assert.Equal(t, "\nDeleted 1 of 1 duplicate files (2.0 kB reclaimed).\n", FormatDeletion(r))

	r.Deletion = &models.DeletionResult{Planned: 1, Failures: []models.DeletionFailure{{Path: "/crops/a_copy.jpg", Error: "permission denied"}}}
	assert.Contains(t, FormatDeletion(r), "Failed to delete /crops/a_copy.jpg: permission denied\n")

	none := &models.RunReport{Mode: models.ModeDelete, Deletion: &models.DeletionResult{DryRun: true}}
	assert.Equal(t, "No duplicates found. Nothing to delete.\n", FormatDeletion(none))
}

func TestFormatRunsTable(t *testing.T) {
	assert.Equal(t, "No runs recorded.", FormatRunsTable(nil))

	out := FormatRunsTable([]models.RunRecord{{
		ID:          "run-1",
		Directory:   "/crops",
		Mode:        models.ModeDelete,
		DryRun:      true,
		Threshold:   96,
		TotalImages: 3,
		StartedAt:   time.Now().Add(-time.Hour),
	}})
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "dry-run")
	assert.Contains(t, out, "/crops")
	assert.Contains(t, out, "1 hour ago")
}
