package services

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/fishset/fishdedup/models"
)

// PlanDeletions keeps the first member of every duplicate group and marks the
// rest for deletion. The choice is positional, not based on image quality.
func PlanDeletions(groups []models.Group) []models.DuplicatePair {
	var pairs []models.DuplicatePair
	for _, g := range groups {
		if !g.IsDuplicate() {
			continue
		}
		keep := g.Members[0]
		for _, dup := range g.Members[1:] {
			pairs = append(pairs, models.DuplicatePair{Keep: keep, Delete: dup})
		}
	}
	return pairs
}

// DeleteDuplicates removes every delete candidate from disk. In dry-run mode
// nothing is touched. A failed removal is logged and recorded; the remaining
// candidates are still processed. progress, if set, is called after each pair.
func DeleteDuplicates(pairs []models.DuplicatePair, dryRun bool, progress func(done, total int)) *models.DeletionResult {
	res := &models.DeletionResult{DryRun: dryRun, Planned: len(pairs)}
	if dryRun {
		return res
	}

	for i, p := range pairs {
		var size int64
		if info, err := os.Stat(p.Delete); err == nil {
			size = info.Size()
		}

		if err := os.Remove(p.Delete); err != nil {
			log.WithFields(log.Fields{"path": p.Delete, "error": err}).Warn("failed to delete duplicate")
			res.Failures = append(res.Failures, models.DeletionFailure{Path: p.Delete, Error: err.Error()})
		} else {
			log.WithFields(log.Fields{"path": p.Delete, "kept": p.Keep}).Debug("deleted duplicate")
			res.Removed++
			res.ReclaimedBytes += size
		}

		if progress != nil {
			progress(i+1, len(pairs))
		}
	}
	return res
}
