package services

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/fishset/fishdedup/config"
	"github.com/fishset/fishdedup/models"
)

const (
	StageScanning = "scanning"
	StageHashing  = "hashing"
	StageGrouping = "grouping"
	StageDeleting = "deleting"
	StageComplete = "complete"
	StageError    = "error"
)

type ProgressEvent struct {
	Stage   string `json:"stage"`
	Done    int64  `json:"done"`
	Total   int64  `json:"total"`
	Message string `json:"message"`
}

// RunOptions controls one dedup run over one directory.
type RunOptions struct {
	// ID names the run; a new UUID is generated when empty.
	ID         string
	Mode       string
	Threshold  float64
	HashSize   int
	Strategy   string
	Extensions []string
	DryRun     bool
}

func OptionsFromConfig(cfg *config.AppConfig, mode string) RunOptions {
	return RunOptions{
		Mode:       mode,
		Threshold:  cfg.Dedup.Threshold,
		HashSize:   cfg.Dedup.HashSize,
		Strategy:   cfg.Dedup.Strategy,
		Extensions: cfg.Dedup.Extensions,
		DryRun:     cfg.Dedup.DryRun,
	}
}

// Validate rejects options the pipeline cannot run with.
func (o RunOptions) Validate() error {
	if err := checkThreshold(o.Threshold); err != nil {
		return err
	}
	if !config.ValidHashSize(o.HashSize) {
		return fmt.Errorf("invalid hash size %d", o.HashSize)
	}
	switch o.Strategy {
	case "", config.StrategyGreedy, config.StrategyUnionFind:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStrategy, o.Strategy)
	}
	switch o.Mode {
	case models.ModeReport, models.ModeDelete:
	default:
		return fmt.Errorf("unknown run mode %q", o.Mode)
	}
	return nil
}

// Pipeline runs scan, fingerprint, group and (in delete mode) resolve over a
// directory. Each pass is sequential. storage may be nil; when set, runs are
// recorded and, if useCache is true, fingerprints are cached across runs.
type Pipeline struct {
	storage  *Storage
	useCache bool
}

func NewPipeline(storage *Storage, useCache bool) *Pipeline {
	return &Pipeline{
		storage:  storage,
		useCache: useCache && storage != nil,
	}
}

func (p *Pipeline) Run(dir string, opts RunOptions, progress chan<- ProgressEvent) (*models.RunReport, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}

	report := &models.RunReport{
		ID:        opts.ID,
		Directory: dir,
		Mode:      opts.Mode,
		Threshold: opts.Threshold,
		HashSize:  opts.HashSize,
		Strategy:  opts.Strategy,
		StartedAt: time.Now(),
	}
	if report.Strategy == "" {
		report.Strategy = config.StrategyGreedy
	}

	// 1. Discover images
	emit(progress, ProgressEvent{Stage: StageScanning, Message: fmt.Sprintf("scanning %s", dir)})
	images, err := ListImages(dir, opts.Extensions)
	if err != nil {
		return nil, err
	}
	report.TotalImages = len(images)

	if len(images) == 0 {
		report.Groups = []models.Group{}
		p.finish(report)
		emit(progress, ProgressEvent{Stage: StageComplete, Message: "no images found"})
		return report, nil
	}

	// 2. Fingerprint, one image at a time
	table := p.fingerprintAll(images, opts.HashSize, report, progress)
	report.Fingerprinted = table.Len()

	// 3. Group
	grouper, err := NewGrouper(report.Strategy, func(done, total int64) {
		emit(progress, ProgressEvent{Stage: StageGrouping, Done: done, Total: total})
	})
	if err != nil {
		return nil, err
	}
	emit(progress, ProgressEvent{
		Stage:   StageGrouping,
		Message: fmt.Sprintf("comparing %d images (%d pairs)", table.Len(), pairCount(table.Len())),
	})
	groups, err := grouper.Group(table, opts.Threshold)
	if err != nil {
		return nil, fmt.Errorf("grouping: %w", err)
	}
	if groups == nil {
		groups = []models.Group{}
	}
	report.Groups = groups
	report.UniqueCount = len(groups)
	report.DuplicateCount = report.Fingerprinted - len(groups)

	// 4. Resolve duplicates
	if opts.Mode == models.ModeDelete {
		report.Pairs = PlanDeletions(groups)
		if !opts.DryRun && len(report.Pairs) > 0 {
			emit(progress, ProgressEvent{
				Stage:   StageDeleting,
				Total:   int64(len(report.Pairs)),
				Message: fmt.Sprintf("deleting %d duplicates", len(report.Pairs)),
			})
		}
		report.Deletion = DeleteDuplicates(report.Pairs, opts.DryRun, func(done, total int) {
			emit(progress, ProgressEvent{Stage: StageDeleting, Done: int64(done), Total: int64(total)})
		})
	}

	p.finish(report)
	emit(progress, ProgressEvent{
		Stage:   StageComplete,
		Done:    int64(report.Fingerprinted),
		Total:   int64(report.TotalImages),
		Message: fmt.Sprintf("%d groups, %d duplicates", report.UniqueCount, report.DuplicateCount),
	})
	return report, nil
}

func (p *Pipeline) fingerprintAll(images []string, hashSize int, report *models.RunReport, progress chan<- ProgressEvent) *FingerprintTable {
	table := NewFingerprintTable()
	total := int64(len(images))

	emit(progress, ProgressEvent{
		Stage:   StageHashing,
		Total:   total,
		Message: fmt.Sprintf("computing perceptual hashes for %d images", len(images)),
	})

	for i, path := range images {
		fp, cached, err := p.fingerprint(path, hashSize)
		if err != nil {
			log.WithFields(log.Fields{"path": path, "error": err}).Warn("skipping image")
			report.Skipped = append(report.Skipped, models.SkippedImage{Path: path, Error: err.Error()})
		} else {
			table.Add(path, fp)
			if cached {
				report.CacheHits++
			}
		}
		emit(progress, ProgressEvent{Stage: StageHashing, Done: int64(i + 1), Total: total})
	}
	return table
}

func (p *Pipeline) fingerprint(path string, hashSize int) (Fingerprint, bool, error) {
	if !p.useCache {
		fp, err := ExtractFingerprint(path, hashSize)
		return fp, false, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, false, fmt.Errorf("stat %s: %w", path, err)
	}

	fp, ok, err := p.storage.LookupFingerprint(path, info.Size(), info.ModTime(), hashSize)
	if err != nil {
		log.WithFields(log.Fields{"path": path, "error": err}).Warn("fingerprint cache lookup failed")
	} else if ok {
		return fp, true, nil
	}

	fp, err = ExtractFingerprint(path, hashSize)
	if err != nil {
		return Fingerprint{}, false, err
	}
	if err := p.storage.PutFingerprint(path, info.Size(), info.ModTime(), hashSize, fp); err != nil {
		log.WithFields(log.Fields{"path": path, "error": err}).Warn("fingerprint cache write failed")
	}
	return fp, false, nil
}

func (p *Pipeline) finish(report *models.RunReport) {
	report.FinishedAt = time.Now()
	if p.storage == nil {
		return
	}
	if err := p.storage.RecordRun(report); err != nil {
		log.WithError(err).Warn("failed to record run history")
	}
}

func emit(progress chan<- ProgressEvent, ev ProgressEvent) {
	if progress != nil {
		progress <- ev
	}
}

func pairCount(n int) int64 {
	return int64(n) * int64(n-1) / 2
}
