package services

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/fishset/fishdedup/models"
)

// FormatSummary renders the human-readable run summary.
func FormatSummary(r *models.RunReport) string {
	if r.TotalImages == 0 {
		return "No images found.\n"
	}

	var b strings.Builder
	if r.Mode == models.ModeDelete {
		b.WriteString("==== SUMMARY BEFORE DELETION ====\n")
	} else {
		b.WriteString("==== SUMMARY ====\n")
	}
	fmt.Fprintf(&b, "Total images: %d\n", r.TotalImages)
	if len(r.Skipped) > 0 {
		fmt.Fprintf(&b, "Skipped (unreadable): %d\n", len(r.Skipped))
	}
	fmt.Fprintf(&b, "Unique after grouping (≥%g%%): %d\n", r.Threshold, r.UniqueCount)
	fmt.Fprintf(&b, "Duplicates detected: %d\n", r.DuplicateCount)
	return b.String()
}

// FormatGroups lists every duplicate group, one member per line.
func FormatGroups(r *models.RunReport) string {
	dups := r.DuplicateGroups()
	if len(dups) == 0 {
		return "No duplicate groups.\n"
	}

	var b strings.Builder
	for i, g := range dups {
		fmt.Fprintf(&b, "Group %d (%d images):\n", i+1, len(g.Members))
		for _, m := range g.Members {
			fmt.Fprintf(&b, "  %s\n", m)
		}
	}
	return b.String()
}

// FormatDeletion renders the outcome of the delete step.
func FormatDeletion(r *models.RunReport) string {
	if r.Deletion == nil {
		return ""
	}
	if len(r.Pairs) == 0 {
		return "No duplicates found. Nothing to delete.\n"
	}

	var b strings.Builder
	if r.Deletion.DryRun {
		b.WriteString("\nDry-run mode: showing duplicates (kept -> deleted):\n")
		for _, p := range r.Pairs {
			fmt.Fprintf(&b, "KEEP: %s  DELETE: %s\n", filepath.Base(p.Keep), filepath.Base(p.Delete))
		}
		fmt.Fprintf(&b, "\nDry-run finished. %d duplicates would be deleted.\n", len(r.Pairs))
		return b.String()
	}

	fmt.Fprintf(&b, "\nDeleted %d of %d duplicate files (%s reclaimed).\n",
		r.Deletion.Removed, r.Deletion.Planned, humanize.Bytes(uint64(r.Deletion.ReclaimedBytes)))
	for _, f := range r.Deletion.Failures {
		fmt.Fprintf(&b, "Failed to delete %s: %s\n", f.Path, f.Error)
	}
	return b.String()
}

// FormatRunsTable formats run history as a human-readable table.
func FormatRunsTable(runs []models.RunRecord) string {
	if len(runs) == 0 {
		return "No runs recorded."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%-36s %-8s %-8s %-7s %-7s %-7s %-10s %-14s %s\n",
		"ID", "Mode", "Thresh", "Images", "Unique", "Dups", "Removed", "Started", "Directory")
	fmt.Fprintf(&b, "%s\n", strings.Repeat("-", 130))
	for _, r := range runs {
		mode := r.Mode
		if r.Mode == models.ModeDelete && r.DryRun {
			mode = "dry-run"
		}
		fmt.Fprintf(&b, "%-36s %-8s %-8g %-7d %-7d %-7d %-10s %-14s %s\n",
			r.ID, mode, r.Threshold, r.TotalImages, r.UniqueCount, r.DuplicateCount,
			fmt.Sprintf("%d/%s", r.Removed, humanize.Bytes(uint64(r.ReclaimedBytes))),
			humanize.Time(r.StartedAt), r.Directory)
	}
	return b.String()
}
