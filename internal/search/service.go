package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/pulseboard/internal/cache"
	"github.com/kiranshivaraju/pulseboard/internal/progress"
	"github.com/kiranshivaraju/pulseboard/internal/store"
	"github.com/kiranshivaraju/pulseboard/pkg/models"
)

// Service runs searches in the background for API callers. Progress and
// results live in the cache for pollers; the store keeps a history row per
// run.
type Service struct {
	orchestrator *Orchestrator
	store        store.Store
	cache        cache.Cache
	stateTTL     time.Duration

	wg     sync.WaitGroup
	mu     sync.Mutex
	active map[uuid.UUID]*progress.Detachable
}

// NewService creates a new Service.
func NewService(o *Orchestrator, st store.Store, ca cache.Cache, stateTTL time.Duration) *Service {
	return &Service{
		orchestrator: o,
		store:        st,
		cache:        ca,
		stateTTL:     stateTTL,
		active:       make(map[uuid.UUID]*progress.Detachable),
	}
}

// Start records a new run and dispatches it in a background goroutine.
// It returns the run immediately without waiting for it to finish.
func (s *Service) Start(ctx context.Context, userID uuid.UUID, req Request) (*models.SearchRun, error) {
	req.Query = strings.TrimSpace(req.Query)
	req.JobID = strings.TrimSpace(req.JobID)
	if req.Query == "" && req.JobID == "" {
		return nil, fmt.Errorf("%w: query or job_id is required", ErrInvalidRequest)
	}
	if req.Query != "" && req.JobID != "" {
		return nil, fmt.Errorf("%w: query and job_id are mutually exclusive", ErrInvalidRequest)
	}
	if req.MaxItems <= 0 {
		req.MaxItems = s.orchestrator.maxItems
	}

	now := time.Now().UTC()
	run := &models.SearchRun{
		ID:        uuid.New(),
		UserID:    userID,
		Query:     req.Query,
		JobID:     req.JobID,
		MaxItems:  req.MaxItems,
		Stage:     progress.StageIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.CreateSearchRun(ctx, run); err != nil {
		return nil, fmt.Errorf("creating search run: %w", err)
	}

	queued := progress.Update{Stage: progress.StageIdle, Progress: 0, Message: "Queued", JobID: req.JobID}
	if err := s.cache.SetRunProgress(ctx, run.ID, queued, s.stateTTL); err != nil {
		slog.Warn("caching initial run progress", "run_id", run.ID, "error", err)
	}

	sink := &runSink{service: s, runID: run.ID, stage: progress.StageIdle, jobID: req.JobID}
	d := progress.NewDetachable(func(u progress.Update) { sink.write(context.Background(), u) })
	s.mu.Lock()
	s.active[run.ID] = d
	s.mu.Unlock()

	s.wg.Add(1)
	go s.execute(run.ID, req, sink, d)

	return run, nil
}

// execute drives one run in a goroutine. It recovers from panics and always
// leaves the run in a terminal stage unless it was detached first. Every
// cache and store write goes through d.
func (s *Service) execute(runID uuid.UUID, req Request, sink *runSink, d *progress.Detachable) {
	defer s.wg.Done()
	defer s.release(runID)
	ctx := context.Background()
	deliver := d.Observer()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in search run", "error", r, "run_id", runID)
			deliver(progress.Update{
				Stage:       progress.StageError,
				Message:     userMessages[KindTransport],
				JobID:       sink.jobID,
				ErrorDetail: fmt.Sprintf("panic: %v", r),
			})
		}
	}()

	// The completed update is held back until the result is cached so
	// pollers never see completed without a result.
	var final progress.Update
	observe := func(u progress.Update) {
		if u.Stage == progress.StageCompleted {
			final = u
			return
		}
		deliver(u)
	}

	outcome, err := s.orchestrator.Run(ctx, req, observe)
	if err != nil {
		// The error update has already been delivered.
		return
	}
	if d.Detached() {
		slog.Warn("search run finished after detach", "run_id", runID, "job_id", outcome.JobID)
		return
	}

	if err := s.cache.SetRunResult(ctx, runID, outcome, s.stateTTL); err != nil {
		slog.Error("caching run result", "run_id", runID, "error", err)
		deliver(progress.Update{
			Stage:       progress.StageError,
			Message:     userMessages[KindTransport],
			JobID:       outcome.JobID,
			ErrorDetail: fmt.Sprintf("storing result: %v", err),
		})
		return
	}
	deliver(final)
}

func (s *Service) release(runID uuid.UUID) {
	s.mu.Lock()
	delete(s.active, runID)
	s.mu.Unlock()
}

// Status returns the current state of a run owned by userID. When the cached
// state has expired the stored stage is reported instead.
func (s *Service) Status(ctx context.Context, userID, runID uuid.UUID) (*models.RunStatus, error) {
	run, err := s.store.GetSearchRun(ctx, runID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading search run: %w", err)
	}

	status := &models.RunStatus{RunID: runID}
	update, found, err := s.cache.GetRunProgress(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("loading run progress: %w", err)
	}
	if found {
		status.Progress = *update
	} else {
		status.Progress = progress.Update{
			Stage:    run.Stage,
			Progress: progress.Baseline(run.Stage),
			JobID:    run.JobID,
		}
		if run.ErrorDetail != nil {
			status.Progress.ErrorDetail = *run.ErrorDetail
		}
	}

	if status.Progress.Stage == progress.StageCompleted {
		result, found, err := s.cache.GetRunResult(ctx, runID)
		if err != nil {
			return nil, fmt.Errorf("loading run result: %w", err)
		}
		if found {
			status.Result = result
		}
	}
	return status, nil
}

// List returns a page of the user's runs, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, page, limit int) ([]*models.SearchRun, int, error) {
	return s.store.ListSearchRuns(ctx, store.RunFilter{UserID: userID, Page: page, Limit: limit})
}

// Results loads the stored results of a backend job.
func (s *Service) Results(ctx context.Context, jobID string) (*models.SearchOutcome, error) {
	return s.orchestrator.LoadStored(ctx, jobID)
}

// Wait blocks until every dispatched run has finished or ctx is done. When
// ctx ends first, runs still in flight are detached: they keep going but no
// longer write to the cache or store, which the caller is about to close.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for runID, d := range s.active {
			d.Detach()
			slog.Warn("detaching unfinished search run", "run_id", runID)
		}
		s.mu.Unlock()
		return ctx.Err()
	}
}

// runSink persists the progress of one run.
type runSink struct {
	service *Service
	runID   uuid.UUID
	stage   progress.Stage
	jobID   string
}

func (k *runSink) write(ctx context.Context, u progress.Update) {
	s := k.service
	if err := s.cache.SetRunProgress(ctx, k.runID, u, s.stateTTL); err != nil {
		slog.Warn("caching run progress", "run_id", k.runID, "stage", u.Stage, "error", err)
	}

	if u.Stage == k.stage && u.JobID == k.jobID {
		return
	}

	var opts []store.RunUpdateOption
	if u.JobID != "" && u.JobID != k.jobID {
		opts = append(opts, store.WithJobID(u.JobID))
	}
	if u.ErrorDetail != "" {
		opts = append(opts, store.WithErrorDetail(u.ErrorDetail))
	}
	if err := s.store.UpdateSearchRun(ctx, k.runID, u.Stage, opts...); err != nil {
		slog.Warn("updating search run", "run_id", k.runID, "stage", u.Stage, "error", err)
		return
	}
	k.stage = u.Stage
	k.jobID = u.JobID
}
