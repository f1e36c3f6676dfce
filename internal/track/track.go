// Package track keeps an in-memory registry of long-running tasks with
// a strict lifecycle and synchronous progress listeners.
package track

import (
	"sort"
	"sync"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

type Type string

const (
	TypeValidation   Type = "validation"
	TypeGeneration   Type = "generation"
	TypeFixing       Type = "fixing"
	TypeOptimization Type = "optimization"
)

type task struct {
	ID          string
	Type        Type
	Status      Status
	Description string
	Progress    float64
	CurrentStep string
	StepIndex   int
	TotalSteps  int
	CreatedAt   time.Time
	StartedAt   time.Time
	EndedAt     time.Time
	Result      any
	Error       string
}

// Snapshot is a point-in-time copy of a task. Elapsed and
// EstimatedRemaining are derived at read time and never stored.
type Snapshot struct {
	ID                 string    `json:"id"`
	Type               Type      `json:"type"`
	Status             Status    `json:"status"`
	Description        string    `json:"description,omitempty"`
	Progress           float64   `json:"progress"`
	CurrentStep        string    `json:"current_step,omitempty"`
	StepIndex          int       `json:"step_index"`
	TotalSteps         int       `json:"total_steps"`
	CreatedAt          time.Time `json:"created_at"`
	StartedAt          time.Time `json:"started_at"`
	EndedAt            time.Time `json:"ended_at"`
	Result             any       `json:"result,omitempty"`
	Error              string    `json:"error,omitempty"`
	Elapsed            float64   `json:"elapsed_seconds"`
	EstimatedRemaining float64   `json:"estimated_remaining_seconds,omitempty"`
}

// Listener observes task snapshots after each mutation. Listeners run
// synchronously; a panicking listener is dropped for that notification
// and never aborts the mutation.
type Listener func(Snapshot)

// Tracker is safe for concurrent use. The zero value is not usable;
// construct with New.
type Tracker struct {
	mu        sync.Mutex
	tasks     map[string]*task
	listeners map[int]Listener
	nextSub   int
	now       func() time.Time
}

func New() *Tracker {
	return &Tracker{
		tasks:     map[string]*task{},
		listeners: map[int]Listener{},
		now:       time.Now,
	}
}

// WithClock replaces the tracker clock, for tests.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// Create registers a new pending task. A task with the same id is
// replaced, matching last-writer-wins registry semantics.
func (t *Tracker) Create(id string, typ Type, description string, totalSteps int) Snapshot {
	t.mu.Lock()
	tk := &task{
		ID:          id,
		Type:        typ,
		Status:      StatusPending,
		Description: description,
		TotalSteps:  totalSteps,
		CreatedAt:   t.now(),
	}
	t.tasks[id] = tk
	snap := t.snapshotLocked(tk)
	t.mu.Unlock()
	t.notify(snap)
	return snap
}

func transitionAllowed(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	switch to {
	case StatusRunning:
		return from == StatusPending || from == StatusPaused
	case StatusPaused:
		return from == StatusRunning
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// transition moves a task to the given status. Returns false for an
// unknown id or a disallowed transition; mutators never panic.
func (t *Tracker) transition(id string, to Status, apply func(*task)) bool {
	t.mu.Lock()
	tk, ok := t.tasks[id]
	if !ok || !transitionAllowed(tk.Status, to) {
		t.mu.Unlock()
		return false
	}
	tk.Status = to
	if apply != nil {
		apply(tk)
	}
	if to.Terminal() {
		tk.EndedAt = t.now()
	}
	snap := t.snapshotLocked(tk)
	t.mu.Unlock()
	t.notify(snap)
	return true
}

func (t *Tracker) Start(id string) bool {
	now := t.now
	return t.transition(id, StatusRunning, func(tk *task) {
		if tk.StartedAt.IsZero() {
			tk.StartedAt = now()
		}
	})
}

func (t *Tracker) Pause(id string) bool  { return t.transition(id, StatusPaused, nil) }
func (t *Tracker) Resume(id string) bool { return t.transition(id, StatusRunning, nil) }
func (t *Tracker) Cancel(id string) bool { return t.transition(id, StatusCancelled, nil) }

func (t *Tracker) Complete(id string, result any) bool {
	return t.transition(id, StatusCompleted, func(tk *task) {
		tk.Progress = 100
		tk.Result = result
	})
}

func (t *Tracker) Fail(id string, errMsg string) bool {
	return t.transition(id, StatusFailed, func(tk *task) {
		tk.Error = errMsg
	})
}

// UpdateProgress sets progress and an optional step label on a live
// task. Progress is clamped to [0,100].
func (t *Tracker) UpdateProgress(id string, progress float64, step string) bool {
	t.mu.Lock()
	tk, ok := t.tasks[id]
	if !ok || tk.Status.Terminal() {
		t.mu.Unlock()
		return false
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	tk.Progress = progress
	if step != "" {
		tk.CurrentStep = step
	}
	snap := t.snapshotLocked(tk)
	t.mu.Unlock()
	t.notify(snap)
	return true
}

// UpdateStep advances the named step and derives progress from the
// step index over the total step count.
func (t *Tracker) UpdateStep(id string, stepIndex int, stepName string) bool {
	t.mu.Lock()
	tk, ok := t.tasks[id]
	if !ok || tk.Status.Terminal() || tk.TotalSteps <= 0 {
		t.mu.Unlock()
		return false
	}
	tk.StepIndex = stepIndex
	tk.CurrentStep = stepName
	tk.Progress = float64(stepIndex) / float64(tk.TotalSteps) * 100
	if tk.Progress > 100 {
		tk.Progress = 100
	}
	snap := t.snapshotLocked(tk)
	t.mu.Unlock()
	t.notify(snap)
	return true
}

func (t *Tracker) Get(id string) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tk, ok := t.tasks[id]
	if !ok {
		return Snapshot{}, false
	}
	return t.snapshotLocked(tk), true
}

// List returns snapshots of every task, newest first.
func (t *Tracker) List() []Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Snapshot, 0, len(t.tasks))
	for _, tk := range t.tasks {
		out = append(out, t.snapshotLocked(tk))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Remove deletes a task regardless of state.
func (t *Tracker) Remove(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.tasks[id]; !ok {
		return false
	}
	delete(t.tasks, id)
	return true
}

// Sweep removes terminal tasks that ended more than maxAge ago and
// returns how many were dropped.
func (t *Tracker) Sweep(maxAge time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-maxAge)
	n := 0
	for id, tk := range t.tasks {
		if tk.Status.Terminal() && !tk.EndedAt.IsZero() && tk.EndedAt.Before(cutoff) {
			delete(t.tasks, id)
			n++
		}
	}
	return n
}

// Subscribe registers a listener and returns its unsubscribe func.
func (t *Tracker) Subscribe(l Listener) func() {
	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	t.listeners[id] = l
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		delete(t.listeners, id)
		t.mu.Unlock()
	}
}

func (t *Tracker) notify(snap Snapshot) {
	t.mu.Lock()
	ls := make([]Listener, 0, len(t.listeners))
	for _, l := range t.listeners {
		ls = append(ls, l)
	}
	t.mu.Unlock()
	for _, l := range ls {
		func() {
			defer func() { _ = recover() }()
			l(snap)
		}()
	}
}

func (t *Tracker) snapshotLocked(tk *task) Snapshot {
	s := Snapshot{
		ID:          tk.ID,
		Type:        tk.Type,
		Status:      tk.Status,
		Description: tk.Description,
		Progress:    tk.Progress,
		CurrentStep: tk.CurrentStep,
		StepIndex:   tk.StepIndex,
		TotalSteps:  tk.TotalSteps,
		CreatedAt:   tk.CreatedAt,
		StartedAt:   tk.StartedAt,
		EndedAt:     tk.EndedAt,
		Result:      tk.Result,
		Error:       tk.Error,
	}
	if !tk.StartedAt.IsZero() {
		end := t.now()
		if !tk.EndedAt.IsZero() {
			end = tk.EndedAt
		}
		s.Elapsed = end.Sub(tk.StartedAt).Seconds()
	}
	if tk.Status == StatusRunning && tk.Progress > 0 && tk.Progress < 100 {
		s.EstimatedRemaining = s.Elapsed / tk.Progress * (100 - tk.Progress)
	}
	return s
}
