package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/fishset/fishdedup/config"
	"github.com/fishset/fishdedup/models"
	"github.com/fishset/fishdedup/services"
)

const (
	statusRunning  = "running"
	statusComplete = "complete"
	statusFailed   = "failed"
)

type RunsHandler struct {
	cfg      *config.AppConfig
	storage  *services.Storage
	settings *services.SettingsService
	pipeline *services.Pipeline

	mu   sync.Mutex
	jobs map[string]*jobState
}

type jobState struct {
	ID        string                   `json:"id"`
	Directory string                   `json:"directory"`
	Status    string                   `json:"status"`
	Error     string                   `json:"error,omitempty"`
	Events    []services.ProgressEvent `json:"events"`
	Progress  services.ProgressEvent   `json:"progress"`
	Report    *models.RunReport        `json:"report,omitempty"`

	eventCh chan services.ProgressEvent
	doneCh  chan struct{}
}

func NewRunsHandler(cfg *config.AppConfig, storage *services.Storage, settings *services.SettingsService) *RunsHandler {
	return &RunsHandler{
		cfg:      cfg,
		storage:  storage,
		settings: settings,
		pipeline: services.NewPipeline(storage, cfg.Storage.CacheEnabled),
		jobs:     make(map[string]*jobState),
	}
}

func (h *RunsHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req models.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	if req.Directory == "" {
		http.Error(w, `{"error":"directory is required"}`, http.StatusBadRequest)
		return
	}

	dir, err := services.ResolveUnder(h.cfg.App.DataDir, req.Directory)
	if err != nil {
		http.Error(w, `{"error":"invalid directory"}`, http.StatusBadRequest)
		return
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "directory not found"})
		return
	}

	opts := h.optionsFor(req)
	if err := opts.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	h.mu.Lock()
	for _, j := range h.jobs {
		if j.Directory == dir && j.Status == statusRunning {
			h.mu.Unlock()
			writeJSON(w, http.StatusConflict, map[string]string{
				"error":  "a run is already in progress for this directory",
				"run_id": j.ID,
			})
			return
		}
	}
	job := &jobState{
		ID:        opts.ID,
		Directory: dir,
		Status:    statusRunning,
		eventCh:   make(chan services.ProgressEvent, 64),
		doneCh:    make(chan struct{}),
	}
	h.jobs[job.ID] = job
	h.mu.Unlock()

	go h.runPipeline(job, opts)

	writeJSON(w, http.StatusAccepted, models.RunResponse{
		RunID:  job.ID,
		Status: "started",
	})
}

// optionsFor fills request fields left empty from the persisted settings.
func (h *RunsHandler) optionsFor(req models.RunRequest) services.RunOptions {
	opts := services.RunOptions{
		ID:         uuid.NewString(),
		Mode:       models.ModeReport,
		Threshold:  h.settings.GetFloat64("dedup.threshold"),
		HashSize:   h.settings.GetInt("dedup.hash_size"),
		Strategy:   h.settings.Get("dedup.strategy"),
		Extensions: h.cfg.Dedup.Extensions,
		DryRun:     h.settings.GetBool("dedup.dry_run"),
	}
	if req.Delete {
		opts.Mode = models.ModeDelete
	}
	if req.Threshold != nil {
		opts.Threshold = *req.Threshold
	}
	if req.Strategy != "" {
		opts.Strategy = req.Strategy
	}
	if req.HashSize != 0 {
		opts.HashSize = req.HashSize
	}
	if req.DryRun != nil {
		opts.DryRun = *req.DryRun
	}
	return opts
}

func (h *RunsHandler) runPipeline(job *jobState, opts services.RunOptions) {
	defer close(job.doneCh)

	// Collect events from the pipeline into job state. Only events carrying
	// a message are kept; counters just update the latest progress.
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for ev := range job.eventCh {
			h.mu.Lock()
			if ev.Message != "" {
				job.Events = append(job.Events, ev)
			}
			job.Progress = ev
			h.mu.Unlock()
		}
	}()

	report, err := h.pipeline.Run(job.Directory, opts, job.eventCh)
	if err != nil {
		job.eventCh <- services.ProgressEvent{Stage: services.StageError, Message: err.Error()}
	}
	close(job.eventCh)
	<-collected

	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		log.WithFields(log.Fields{"run": job.ID, "error": err}).Error("run failed")
		job.Status = statusFailed
		job.Error = err.Error()
		return
	}
	job.Report = report
	job.Status = statusComplete
}

func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookup(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, `{"error":"run not found"}`, http.StatusNotFound)
		return
	}

	h.mu.Lock()
	data, err := json.Marshal(job)
	h.mu.Unlock()
	if err != nil {
		http.Error(w, `{"error":"encoding run"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Events streams the run's progress as server-sent events until it finishes.
func (h *RunsHandler) Events(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookup(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, `{"error":"run not found"}`, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	sent := 0
	var last services.ProgressEvent
	flush := func() {
		h.mu.Lock()
		for i := sent; i < len(job.Events); i++ {
			data, _ := json.Marshal(job.Events[i])
			fmt.Fprintf(w, "data: %s\n\n", data)
		}
		sent = len(job.Events)
		if job.Progress != last {
			last = job.Progress
			data, _ := json.Marshal(last)
			fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data)
		}
		h.mu.Unlock()
		flusher.Flush()
	}

	flush()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-job.doneCh:
			flush()
			return
		case <-ticker.C:
			flush()
		}
	}
}

// List returns recorded runs, newest first.
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			http.Error(w, `{"error":"limit must be between 1 and 1000"}`, http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := h.storage.ListRuns(limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if runs == nil {
		runs = []models.RunRecord{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *RunsHandler) lookup(id string) (*jobState, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	job, ok := h.jobs[id]
	return job, ok
}

// Wait blocks until the run finishes or timeout elapses.
func (h *RunsHandler) Wait(id string, timeout time.Duration) error {
	job, ok := h.lookup(id)
	if !ok {
		return errors.New("run not found")
	}
	select {
	case <-job.doneCh:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("run %s still running after %s", id, timeout)
	}
}
