// Package search drives a sentiment search job on the analytics backend,
// from submission to normalized results, and tracks runs started through the
// API.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kiranshivaraju/pulseboard/internal/backend"
	"github.com/kiranshivaraju/pulseboard/internal/metrics"
	"github.com/kiranshivaraju/pulseboard/internal/normalize"
	"github.com/kiranshivaraju/pulseboard/internal/progress"
	"github.com/kiranshivaraju/pulseboard/pkg/models"
)

const (
	DefaultPollInterval    = time.Second
	DefaultMaxPollAttempts = 30
	DefaultMaxItems        = 100

	statusCompleted = "completed"
)

// Progress points within a run. Polling spreads pollStart..pollEnd across
// the attempt budget.
const (
	pctCreating   = 10
	pctCreated    = 20
	pctCollecting = 30
	pctPollStart  = 40
	pctPollEnd    = 50
	pctAnalyzing  = 60
	pctPreparing  = 85
)

// Request describes one run. Exactly one of Query or JobID is expected; a
// JobID resumes an existing backend job and skips creation and collection.
type Request struct {
	Query    string `json:"query,omitempty"`
	JobID    string `json:"job_id,omitempty"`
	MaxItems int    `json:"max_items,omitempty"`
}

// Resume reports whether the request targets an existing job.
func (r Request) Resume() bool {
	return r.JobID != ""
}

// ParseInput builds a Request from a single free-text input. A purely
// numeric input is taken as an existing job ID.
func ParseInput(input string, maxItems int) Request {
	input = strings.TrimSpace(input)
	if isNumeric(input) {
		return Request{JobID: input, MaxItems: maxItems}
	}
	return Request{Query: input, MaxItems: maxItems}
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Orchestrator runs search jobs against the backend. It holds no per-run
// state and is safe for concurrent use.
type Orchestrator struct {
	client          backend.Client
	pollInterval    time.Duration
	maxPollAttempts int
	maxItems        int
	sleep           SleepFunc
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.pollInterval = d }
}

func WithMaxPollAttempts(n int) Option {
	return func(o *Orchestrator) { o.maxPollAttempts = n }
}

// WithDefaultMaxItems sets the item budget used when a request has none.
func WithDefaultMaxItems(n int) Option {
	return func(o *Orchestrator) { o.maxItems = n }
}

// WithSleep replaces the wait between status checks.
func WithSleep(fn SleepFunc) Option {
	return func(o *Orchestrator) { o.sleep = fn }
}

// NewOrchestrator creates an Orchestrator with the default polling budget of
// 30 checks one second apart.
func NewOrchestrator(client backend.Client, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:          client,
		pollInterval:    DefaultPollInterval,
		maxPollAttempts: DefaultMaxPollAttempts,
		maxItems:        DefaultMaxItems,
		sleep:           sleepContext,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.maxPollAttempts <= 0 {
		o.maxPollAttempts = DefaultMaxPollAttempts
	}
	if o.maxItems <= 0 {
		o.maxItems = DefaultMaxItems
	}
	return o
}

// Execute runs a search for a free-text input. See ParseInput.
func (o *Orchestrator) Execute(ctx context.Context, input string, maxItems int, onProgress progress.Observer) (*models.SearchOutcome, error) {
	return o.Run(ctx, ParseInput(input, maxItems), onProgress)
}

// Run drives one request to completion. Progress is reported to onProgress
// in non-decreasing order. On failure a final error update with progress 0
// is reported and the same failure is returned as a *RunError.
func (o *Orchestrator) Run(ctx context.Context, req Request, onProgress progress.Observer) (*models.SearchOutcome, error) {
	start := time.Now()
	mode := "new"
	if req.Resume() {
		mode = "resume"
	}

	rep := &reporter{observer: onProgress}
	outcome, attempts, rerr := o.run(ctx, req, rep)
	if rerr != nil {
		rep.fail(rerr)
		metrics.RecordRun(mode, string(rerr.Kind), time.Since(start), attempts)
		slog.Warn("search run failed",
			"mode", mode,
			"job_id", rep.jobID,
			"kind", rerr.Kind,
			"stage", rerr.Stage,
			"detail", rerr.Detail,
		)
		return nil, rerr
	}

	metrics.RecordRun(mode, statusCompleted, time.Since(start), attempts)
	slog.Info("search run completed",
		"mode", mode,
		"job_id", outcome.JobID,
		"posts", len(outcome.Posts),
		"poll_attempts", attempts,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return outcome, nil
}

func (o *Orchestrator) run(ctx context.Context, req Request, rep *reporter) (*models.SearchOutcome, int, *RunError) {
	req.Query = strings.TrimSpace(req.Query)
	req.JobID = strings.TrimSpace(req.JobID)
	if req.MaxItems <= 0 {
		req.MaxItems = o.maxItems
	}
	if req.Query == "" && req.JobID == "" {
		return nil, 0, newRunError(KindInvalidRequest, progress.StageIdle, nil, "query and job id are both empty")
	}

	attempts := 0
	jobID := req.JobID
	if !req.Resume() {
		var rerr *RunError
		if jobID, rerr = o.createJob(ctx, req, rep); rerr != nil {
			return nil, 0, rerr
		}
		if rerr = o.startCollection(ctx, jobID, rep); rerr != nil {
			return nil, 0, rerr
		}
		if attempts, rerr = o.awaitCollection(ctx, jobID, rep); rerr != nil {
			return nil, attempts, rerr
		}
	} else {
		rep.jobID = jobID
	}

	payload, rerr := o.analyze(ctx, jobID, rep)
	if rerr != nil {
		return nil, attempts, rerr
	}

	rep.report(progress.StagePreparing, pctPreparing, "Preparing results")
	result, posts := normalize.Build(payload, jobID)
	if result.Defects > 0 {
		metrics.RecordDefects(result.Defects)
		slog.Warn("analysis payload contained malformed records", "job_id", jobID, "defects", result.Defects)
	}

	rep.report(progress.StageCompleted, 100, "Analysis complete")
	return &models.SearchOutcome{JobID: jobID, Analysis: result, Posts: posts}, attempts, nil
}

func (o *Orchestrator) createJob(ctx context.Context, req Request, rep *reporter) (string, *RunError) {
	rep.report(progress.StageSearching, pctCreating, "Creating search")

	jobID, err := o.client.CreateSearchQuery(ctx, req.Query, req.MaxItems)
	if err != nil {
		return "", newRunError(KindJobCreation, progress.StageSearching, err, "creating search query")
	}
	if jobID == "" {
		return "", newRunError(KindJobCreation, progress.StageSearching, nil, "backend returned no job id")
	}

	rep.jobID = jobID
	rep.report(progress.StageSearching, pctCreated, "Search created")
	return jobID, nil
}

func (o *Orchestrator) startCollection(ctx context.Context, jobID string, rep *reporter) *RunError {
	if err := o.client.StartCollection(ctx, jobID); err != nil {
		return newRunError(KindTransport, progress.StageSearching, err, "starting collection for job %s", jobID)
	}
	if err := o.client.CollectPosts(ctx, jobID); err != nil {
		return newRunError(KindTransport, progress.StageSearching, err, "collecting posts for job %s", jobID)
	}
	rep.report(progress.StageSearching, pctCollecting, "Collecting posts")
	return nil
}

// awaitCollection checks the job status until it is completed, at most
// maxPollAttempts times. It returns the number of checks made.
func (o *Orchestrator) awaitCollection(ctx context.Context, jobID string, rep *reporter) (int, *RunError) {
	for attempt := 1; attempt <= o.maxPollAttempts; attempt++ {
		q, err := o.client.GetSearchQuery(ctx, jobID)
		if err != nil {
			return attempt, newRunError(KindTransport, progress.StageSearching, err, "checking status of job %s", jobID)
		}
		if strings.EqualFold(strings.TrimSpace(string(q.Status)), statusCompleted) {
			return attempt, nil
		}

		pct := pctPollStart + (pctPollEnd-pctPollStart)*attempt/o.maxPollAttempts
		rep.report(progress.StageSearching, pct, fmt.Sprintf("Collecting posts (check %d of %d)", attempt, o.maxPollAttempts))

		if attempt == o.maxPollAttempts {
			break
		}
		if err := o.sleep(ctx, o.pollInterval); err != nil {
			return attempt, newRunError(KindTransport, progress.StageSearching, err, "waiting for job %s", jobID)
		}
	}
	return o.maxPollAttempts, newRunError(KindCollectionTimeout, progress.StageSearching, nil,
		"job %s not completed after %d status checks", jobID, o.maxPollAttempts)
}

func (o *Orchestrator) analyze(ctx context.Context, jobID string, rep *reporter) (*backend.AnalysisResponse, *RunError) {
	rep.report(progress.StageAnalyzing, pctAnalyzing, "Analyzing sentiment")

	payload, err := o.client.AnalyzePosts(ctx, jobID)
	if err != nil {
		return nil, newRunError(KindTransport, progress.StageAnalyzing, err, "analyzing job %s", jobID)
	}
	return payload, nil
}

// LoadStored builds the outcome for a job from the backend's stored posts
// and analyses, without driving the pipeline. The most recent analysis wins;
// when it carries no per-record detail the stored posts are used instead.
func (o *Orchestrator) LoadStored(ctx context.Context, jobID string) (*models.SearchOutcome, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, fmt.Errorf("%w: job id is empty", ErrInvalidRequest)
	}

	var (
		posts    []json.RawMessage
		analyses []backend.AnalysisResponse
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		posts, err = o.client.ListPosts(gctx, jobID)
		return err
	})
	g.Go(func() error {
		var err error
		analyses, err = o.client.ListAnalyses(gctx, jobID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, errors.Join(ErrTransport, fmt.Errorf("loading stored results for job %s: %w", jobID, err))
	}
	if len(analyses) == 0 {
		return nil, ErrAnalysisNotFound
	}

	latest := latestAnalysis(analyses)
	if len(latest.DetailedAnalysis) == 0 {
		latest.DetailedAnalysis = posts
		latest.Percentages = nil
	}

	result, normalized := normalize.Build(&latest, jobID)
	if result.Defects > 0 {
		metrics.RecordDefects(result.Defects)
	}
	return &models.SearchOutcome{JobID: jobID, Analysis: result, Posts: normalized}, nil
}

// latestAnalysis picks the analysis with the newest created_at. Entries
// without a parseable timestamp lose to those with one; among equals the
// later entry wins.
func latestAnalysis(list []backend.AnalysisResponse) backend.AnalysisResponse {
	best := 0
	bestTS, bestOK := normalize.ParseTimestamp(list[0].CreatedAt)
	for i := 1; i < len(list); i++ {
		ts, ok := normalize.ParseTimestamp(list[i].CreatedAt)
		if bestOK && (!ok || ts.Before(bestTS)) {
			continue
		}
		best, bestTS, bestOK = i, ts, ok
	}
	return list[best]
}

// reporter forwards progress for one run and keeps it non-decreasing.
type reporter struct {
	observer progress.Observer
	jobID    string
	last     int
}

func (r *reporter) report(stage progress.Stage, pct int, message string) {
	pct = progress.Percent(stage, pct)
	if pct < r.last {
		pct = r.last
	}
	r.last = pct
	r.observer.Notify(progress.Update{
		Stage:    stage,
		Progress: pct,
		Message:  message,
		JobID:    r.jobID,
	})
}

func (r *reporter) fail(err *RunError) {
	r.observer.Notify(progress.Update{
		Stage:       progress.StageError,
		Progress:    0,
		Message:     err.UserMessage(),
		JobID:       r.jobID,
		ErrorDetail: err.Detail,
	})
}
