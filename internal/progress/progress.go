// Package progress defines the pipeline stages of a search run and the
// progress events reported to observers while a run advances.
package progress

import "sync"

// Stage is a named phase of the search pipeline.
type Stage string

const (
	StageIdle      Stage = "idle"
	StageSearching Stage = "searching"
	StageAnalyzing Stage = "analyzing"
	StagePreparing Stage = "preparing"
	StageCompleted Stage = "completed"
	StageError     Stage = "error"
)

// rank orders the non-error stages. Error has no rank; it is reachable from
// any non-terminal stage.
var rank = map[Stage]int{
	StageIdle:      0,
	StageSearching: 1,
	StageAnalyzing: 2,
	StagePreparing: 3,
	StageCompleted: 4,
}

var baseline = map[Stage]int{
	StageIdle:      0,
	StageSearching: 25,
	StageAnalyzing: 50,
	StagePreparing: 75,
	StageCompleted: 100,
	StageError:     0,
}

// Valid reports whether s is one of the known stages.
func (s Stage) Valid() bool {
	_, ok := baseline[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageError
}

// Before reports whether s precedes other in the pipeline order.
// Error precedes nothing and nothing precedes error.
func (s Stage) Before(other Stage) bool {
	a, ok1 := rank[s]
	b, ok2 := rank[other]
	return ok1 && ok2 && a < b
}

// CanTransition reports whether a run may move from one stage to another.
// Staying in the same non-terminal stage is allowed so sub-steps can report
// finer progress.
func CanTransition(from, to Stage) bool {
	if !from.Valid() || !to.Valid() || from.Terminal() {
		return false
	}
	if to == StageError {
		return true
	}
	return from == to || from.Before(to)
}

// Baseline returns the fixed percentage for a stage. Unknown stages map to 0.
func Baseline(s Stage) int {
	return baseline[s]
}

// Percent returns fine when it is a usable percentage, otherwise the stage
// baseline. The error stage always yields 0.
func Percent(s Stage, fine int) int {
	if s == StageError {
		return 0
	}
	if fine < 0 {
		return Baseline(s)
	}
	if fine > 100 {
		return 100
	}
	return fine
}

// Update is a single progress event.
type Update struct {
	Stage       Stage  `json:"stage"`
	Progress    int    `json:"progress"`
	Message     string `json:"message"`
	JobID       string `json:"job_id,omitempty"`
	ErrorDetail string `json:"error_detail,omitempty"`
}

// Observer receives progress updates. Observers are called synchronously on
// the goroutine driving the run and must not block for long.
type Observer func(Update)

// Notify calls o if it is non-nil.
func (o Observer) Notify(u Update) {
	if o != nil {
		o(u)
	}
}

// Detachable forwards updates to an observer until Detach is called. After
// that, updates are dropped; the run itself keeps going.
type Detachable struct {
	mu       sync.Mutex
	target   Observer
	detached bool
}

// NewDetachable wraps target.
func NewDetachable(target Observer) *Detachable {
	return &Detachable{target: target}
}

// Observer returns the forwarding observer to hand to a run.
func (d *Detachable) Observer() Observer {
	return func(u Update) {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.detached {
			return
		}
		d.target.Notify(u)
	}
}

// Detach stops further delivery. It waits for an update being delivered to
// finish.
func (d *Detachable) Detach() {
	d.mu.Lock()
	d.detached = true
	d.mu.Unlock()
}

// Detached reports whether Detach has been called.
func (d *Detachable) Detached() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.detached
}
