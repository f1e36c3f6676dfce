// Package engine ties the validator, repair loop, registry, tracker
// and persistence together behind one façade used by the HTTP server
// and the CLI.
package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"wayfinder/internal/config"
	"wayfinder/internal/domain"
	"wayfinder/internal/events"
	"wayfinder/internal/grid"
	"wayfinder/internal/oracle"
	"wayfinder/internal/prompt"
	"wayfinder/internal/registry"
	"wayfinder/internal/repair"
	"wayfinder/internal/repo"
	"wayfinder/internal/track"
	"wayfinder/internal/validate"
)

// OracleFactory builds a completion client for a provider. Tests swap
// it for a scripted oracle.
type OracleFactory func(p oracle.Provider) repair.Oracle

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Config    *config.Config
	Tracker   *track.Tracker
	Registry  *registry.Registry
	Validator *validate.Validator
	NewOracle OracleFactory
	Now       func() time.Time

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	jobs    sync.WaitGroup
}

func New(db *sql.DB, cfg *config.Config) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Engine{
		DB:        db,
		Repo:      repo.Repo{DB: db},
		Events:    events.Writer{DB: db},
		Config:    cfg,
		Tracker:   track.New(),
		Registry:  registry.NewWithBuiltins(),
		Validator: validate.New(),
		NewOracle: func(p oracle.Provider) repair.Oracle { return oracle.NewClient(p, p.Key()) },
		Now:       time.Now,
		cancels:   map[string]context.CancelFunc{},
	}
}

// Restore loads persisted algorithms back into the registry. Rows that
// no longer compile are skipped rather than blocking startup.
func (e *Engine) Restore(ctx context.Context) error {
	algos, err := e.Repo.ListAlgorithms(ctx)
	if err != nil {
		return fmt.Errorf("restore algorithms: %w", err)
	}
	for _, a := range algos {
		e.Registry.Load(a.Name, a.Source, a.Description)
	}
	return nil
}

// Wait blocks until all background jobs have finished.
func (e *Engine) Wait() { e.jobs.Wait() }

func (e *Engine) ts() string { return e.Now().UTC().Format(time.RFC3339) }

// resolveProvider maps a provider name through the config with the
// built-in table as fallback. An empty name picks the default.
func (e *Engine) resolveProvider(name string) (oracle.Provider, error) {
	if p, ok := e.Config.Provider(name); ok {
		return oracle.Provider{Name: p.Name, BaseURL: p.BaseURL, Model: p.Model, KeyEnv: p.KeyEnv}, nil
	}
	if name == "" {
		name = e.Config.Oracle.Default
	}
	if p, ok := oracle.Lookup(name); ok {
		return p, nil
	}
	return oracle.Provider{}, fmt.Errorf("provider %s is not configured", name)
}

// Providers lists the configured oracle endpoints.
func (e *Engine) Providers() []config.ProviderConfig {
	return e.Config.Oracle.Providers
}

// CheckProvider verifies one endpoint end to end.
func (e *Engine) CheckProvider(ctx context.Context, name string) error {
	p, err := e.resolveProvider(name)
	if err != nil {
		return err
	}
	client, ok := e.NewOracle(p).(*oracle.Client)
	if !ok {
		return nil
	}
	return client.Check(ctx)
}

// ValidateSource checks candidate source against the contract for the
// named type and journals the outcome.
func (e *Engine) ValidateSource(ctx context.Context, source, typeName string) (validate.Report, error) {
	report := e.Validator.Validate(source, typeName)
	err := e.Events.Append(ctx, "validation.checked", events.EntityAlgorithm, typeName, events.EventPayload{
		"valid": report.Valid,
		"score": report.Score,
	})
	return report, err
}

func (e *Engine) newFixer(o repair.Oracle) *repair.Fixer {
	return repair.New(e.Validator, o).
		WithMaxIterations(e.Config.Repair.MaxIterations).
		WithRetryPause(time.Duration(e.Config.Repair.RetryPauseSeconds) * time.Second)
}

// trackJob registers a cancelable background context for a task so
// CancelTask can abort the in-flight oracle call.
func (e *Engine) trackJob(taskID string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.cancels[taskID] = cancel
	e.mu.Unlock()
	return ctx, func() {
		cancel()
		e.mu.Lock()
		delete(e.cancels, taskID)
		e.mu.Unlock()
	}
}

// SubmitFix starts a background repair job and returns its task id
// immediately. Progress is observable through the tracker.
func (e *Engine) SubmitFix(ctx context.Context, source, typeName, providerName string) (string, error) {
	p, err := e.resolveProvider(providerName)
	if err != nil {
		return "", err
	}
	taskID := "fix_" + uuid.NewString()
	e.Tracker.Create(taskID, track.TypeFixing, fmt.Sprintf("repair %s", typeName), e.Config.Repair.MaxIterations)
	if err := e.Events.Append(ctx, "task.created", events.EntityTask, taskID, events.EventPayload{
		"type":      string(track.TypeFixing),
		"algorithm": typeName,
		"provider":  p.Name,
	}); err != nil {
		return "", err
	}

	e.jobs.Add(1)
	go func() {
		defer e.jobs.Done()
		jobCtx, done := e.trackJob(taskID)
		defer done()
		e.runFix(jobCtx, taskID, source, typeName, p)
	}()
	return taskID, nil
}

func (e *Engine) runFix(ctx context.Context, taskID, source, typeName string, p oracle.Provider) {
	if !e.Tracker.Start(taskID) {
		return
	}
	fixer := e.newFixer(e.NewOracle(p))
	res := fixer.Fix(ctx, source, typeName, func(pr repair.Progress) {
		e.Tracker.UpdateProgress(taskID, pr.OverallProgress, fmt.Sprintf("%s: %s", pr.Phase, pr.Message))
	})
	e.finishRepair(taskID, typeName, p.Name, res)
}

// finishRepair persists the outcome, registers the repaired algorithm
// on success and settles the task.
func (e *Engine) finishRepair(taskID, typeName, providerName string, res repair.Result) {
	ctx := context.Background()
	status := "failed"
	if res.Success {
		status = "succeeded"
	}
	history, _ := json.Marshal(res.History)
	job := domain.RepairJob{
		ID:          uuid.NewString(),
		TaskID:      taskID,
		Algorithm:   typeName,
		Provider:    providerName,
		Status:      status,
		Iterations:  res.Iterations,
		FinalScore:  res.FinalReport.Score,
		FinalSource: res.FinalSource,
		HistoryJSON: string(history),
		Error:       res.Err,
		Elapsed:     res.Elapsed,
		CreatedAt:   e.ts(),
	}
	if err := e.Repo.InsertRepairJob(ctx, job); err != nil {
		e.Tracker.Fail(taskID, fmt.Sprintf("persist repair job: %v", err))
		return
	}
	_ = e.Events.Append(ctx, "repair."+status, events.EntityRepair, job.ID, events.EventPayload{
		"task_id":    taskID,
		"algorithm":  typeName,
		"iterations": res.Iterations,
		"score":      res.FinalReport.Score,
	})

	if !res.Success {
		msg := res.Err
		if msg == "" {
			msg = fmt.Sprintf("still invalid after %d iterations (score %d)", res.Iterations, res.FinalReport.Score)
		}
		e.Tracker.Fail(taskID, msg)
		return
	}

	if err := e.registerAlgorithm(ctx, typeName, res.FinalSource, "repaired candidate", res.FinalReport.Score); err != nil {
		e.Tracker.Fail(taskID, fmt.Sprintf("load repaired algorithm: %v", err))
		return
	}
	e.Tracker.Complete(taskID, map[string]any{
		"repair_job_id": job.ID,
		"algorithm":     typeName,
		"iterations":    res.Iterations,
		"score":         res.FinalReport.Score,
		"source":        res.FinalSource,
	})
}

// SubmitGenerate starts a background generate-then-repair job from a
// natural-language description.
func (e *Engine) SubmitGenerate(ctx context.Context, description, typeName, providerName string) (string, error) {
	p, err := e.resolveProvider(providerName)
	if err != nil {
		return "", err
	}
	taskID := "gen_" + uuid.NewString()
	e.Tracker.Create(taskID, track.TypeGeneration, fmt.Sprintf("generate %s", typeName), e.Config.Repair.MaxIterations)
	if err := e.Events.Append(ctx, "task.created", events.EntityTask, taskID, events.EventPayload{
		"type":      string(track.TypeGeneration),
		"algorithm": typeName,
		"provider":  p.Name,
	}); err != nil {
		return "", err
	}

	e.jobs.Add(1)
	go func() {
		defer e.jobs.Done()
		jobCtx, done := e.trackJob(taskID)
		defer done()
		e.runGenerate(jobCtx, taskID, description, typeName, p)
	}()
	return taskID, nil
}

func (e *Engine) runGenerate(ctx context.Context, taskID, description, typeName string, p oracle.Provider) {
	if !e.Tracker.Start(taskID) {
		return
	}
	o := e.NewOracle(p)
	e.Tracker.UpdateProgress(taskID, 5, "generating initial candidate")
	reply, err := o.Complete(ctx, prompt.System(), prompt.Generate(description, typeName))
	if err != nil {
		e.Tracker.Fail(taskID, fmt.Sprintf("generation failed: %v", err))
		return
	}
	code := prompt.ExtractCode(reply)
	if code == "" {
		e.Tracker.Fail(taskID, "oracle returned no code")
		return
	}
	// generated candidates rarely conform on the first try; run them
	// through the same repair loop as submitted sources
	res := e.newFixer(o).Fix(ctx, code, typeName, func(pr repair.Progress) {
		e.Tracker.UpdateProgress(taskID, 10+pr.OverallProgress*0.9, fmt.Sprintf("%s: %s", pr.Phase, pr.Message))
	})
	e.finishRepair(taskID, typeName, p.Name, res)
}

// registerAlgorithm loads source into the registry and persists it.
func (e *Engine) registerAlgorithm(ctx context.Context, name, source, description string, score int) error {
	if err := e.Registry.LoadErr(name, source, description); err != nil {
		return err
	}
	now := e.ts()
	if err := e.Repo.UpsertAlgorithm(ctx, domain.Algorithm{
		Name:        name,
		Description: description,
		Source:      source,
		Score:       score,
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		return fmt.Errorf("persist algorithm %s: %w", name, err)
	}
	return e.Events.Append(ctx, "algorithm.loaded", events.EntityAlgorithm, name, events.EventPayload{
		"score": score,
	})
}

// LoadAlgorithm validates, loads and persists a candidate source.
func (e *Engine) LoadAlgorithm(ctx context.Context, name, source, description string) (validate.Report, error) {
	report := e.Validator.Validate(source, name)
	if !report.Valid {
		return report, fmt.Errorf("source does not satisfy the contract (score %d)", report.Score)
	}
	return report, e.registerAlgorithm(ctx, name, source, description, report.Score)
}

// ExecuteAlgorithm runs a registered algorithm over a raw grid. The
// execution itself cannot fail; a missing algorithm or a crashing
// candidate both yield empty results.
func (e *Engine) ExecuteAlgorithm(ctx context.Context, name string, width, height int, raw [][]int, start, end grid.Point) (path, visited []grid.Point) {
	path, visited = e.Registry.Execute(name, width, height, raw, start, end)
	_ = e.Events.Append(ctx, "algorithm.executed", events.EntityAlgorithm, name, events.EventPayload{
		"path_len":    len(path),
		"visited_len": len(visited),
	})
	return path, visited
}

func (e *Engine) GetAlgorithm(name string) (registry.Info, bool) { return e.Registry.Get(name) }
func (e *Engine) ListAlgorithms() []registry.Info               { return e.Registry.List() }

// RemoveAlgorithm drops an algorithm from the registry and storage.
func (e *Engine) RemoveAlgorithm(ctx context.Context, name string) error {
	if !e.Registry.Remove(name) {
		return repo.ErrNotFound
	}
	if err := e.Repo.DeleteAlgorithm(ctx, name); err != nil && err != repo.ErrNotFound {
		return err
	}
	return e.Events.Append(ctx, "algorithm.removed", events.EntityAlgorithm, name, nil)
}

func (e *Engine) Task(id string) (track.Snapshot, bool) { return e.Tracker.Get(id) }
func (e *Engine) Tasks() []track.Snapshot               { return e.Tracker.List() }

func (e *Engine) PauseTask(ctx context.Context, id string) bool {
	if !e.Tracker.Pause(id) {
		return false
	}
	_ = e.Events.Append(ctx, "task.paused", events.EntityTask, id, nil)
	return true
}

func (e *Engine) ResumeTask(ctx context.Context, id string) bool {
	if !e.Tracker.Resume(id) {
		return false
	}
	_ = e.Events.Append(ctx, "task.resumed", events.EntityTask, id, nil)
	return true
}

// CancelTask cancels the tracked task and aborts its in-flight oracle
// call through the job context.
func (e *Engine) CancelTask(ctx context.Context, id string) bool {
	if !e.Tracker.Cancel(id) {
		return false
	}
	e.mu.Lock()
	cancel := e.cancels[id]
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	_ = e.Events.Append(ctx, "task.cancelled", events.EntityTask, id, nil)
	return true
}

func (e *Engine) RemoveTask(ctx context.Context, id string) bool {
	if !e.Tracker.Remove(id) {
		return false
	}
	_ = e.Events.Append(ctx, "task.removed", events.EntityTask, id, nil)
	return true
}

// SweepTasks drops finished tasks older than the configured age.
func (e *Engine) SweepTasks(ctx context.Context) int {
	maxAge := time.Duration(e.Config.Tasks.SweepMaxAgeSeconds) * time.Second
	n := e.Tracker.Sweep(maxAge)
	if n > 0 {
		_ = e.Events.Append(ctx, "task.swept", events.EntityTask, "", events.EventPayload{"removed": n})
	}
	return n
}

// RepairJobs lists persisted repair outcomes.
func (e *Engine) RepairJobs(ctx context.Context, f repo.RepairJobFilters) ([]domain.RepairJob, error) {
	return e.Repo.ListRepairJobs(ctx, f)
}

func (e *Engine) RepairJob(ctx context.Context, id string) (domain.RepairJob, error) {
	return e.Repo.GetRepairJob(ctx, id)
}

// EventLog returns the journal, newest first.
func (e *Engine) EventLog(ctx context.Context, limit int, evtType, entityKind, entityID string) ([]domain.Event, error) {
	return e.Repo.LatestEvents(ctx, limit, evtType, entityKind, entityID)
}
