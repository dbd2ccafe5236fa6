package models

import "time"

const (
	ModeReport = "report"
	ModeDelete = "delete"
)

// Group is a set of image paths considered duplicates of one another.
// Members keep insertion order; the first member is the one kept on delete.
type Group struct {
	Members []string `json:"members"`
}

func (g Group) IsDuplicate() bool {
	return len(g.Members) > 1
}

type SkippedImage struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

type DuplicatePair struct {
	Keep   string `json:"keep"`
	Delete string `json:"delete"`
}

type DeletionFailure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

type DeletionResult struct {
	DryRun         bool              `json:"dry_run"`
	Planned        int               `json:"planned"`
	Removed        int               `json:"removed"`
	ReclaimedBytes int64             `json:"reclaimed_bytes"`
	Failures       []DeletionFailure `json:"failures,omitempty"`
}

type RunReport struct {
	ID             string          `json:"id"`
	Directory      string          `json:"directory"`
	Mode           string          `json:"mode"`
	Threshold      float64         `json:"threshold"`
	Strategy       string          `json:"strategy"`
	HashSize       int             `json:"hash_size"`
	TotalImages    int             `json:"total_images"`
	Fingerprinted  int             `json:"fingerprinted"`
	CacheHits      int             `json:"cache_hits"`
	Skipped        []SkippedImage  `json:"skipped,omitempty"`
	Groups         []Group         `json:"groups"`
	UniqueCount    int             `json:"unique_count"`
	DuplicateCount int             `json:"duplicate_count"`
	Pairs          []DuplicatePair `json:"pairs,omitempty"`
	Deletion       *DeletionResult `json:"deletion,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
}

// DuplicateGroups returns only the groups with more than one member.
func (r *RunReport) DuplicateGroups() []Group {
	var out []Group
	for _, g := range r.Groups {
		if g.IsDuplicate() {
			out = append(out, g)
		}
	}
	return out
}

// RunRecord is the flattened form of a RunReport kept in run history.
type RunRecord struct {
	ID             string    `json:"id"`
	Directory      string    `json:"directory"`
	Mode           string    `json:"mode"`
	DryRun         bool      `json:"dry_run"`
	Threshold      float64   `json:"threshold"`
	Strategy       string    `json:"strategy"`
	TotalImages    int       `json:"total_images"`
	UniqueCount    int       `json:"unique_count"`
	DuplicateCount int       `json:"duplicate_count"`
	Removed        int       `json:"removed"`
	ReclaimedBytes int64     `json:"reclaimed_bytes"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

type RunRequest struct {
	Directory string   `json:"directory"`
	Threshold *float64 `json:"threshold,omitempty"`
	Strategy  string   `json:"strategy,omitempty"`
	HashSize  int      `json:"hash_size,omitempty"`
	Delete    bool     `json:"delete"`
	DryRun    *bool    `json:"dry_run,omitempty"`
}

type RunResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

type SettingsResponse struct {
	Settings map[string]any `json:"settings"`
	Defaults map[string]any `json:"defaults"`
}

type SettingsUpdateRequest struct {
	Settings map[string]any `json:"settings"`
}
