package engine_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"wayfinder/internal/config"
	"wayfinder/internal/db"
	"wayfinder/internal/engine"
	"wayfinder/internal/grid"
	"wayfinder/internal/migrate"
	"wayfinder/internal/oracle"
	"wayfinder/internal/repair"
	"wayfinder/internal/repo"
	"wayfinder/internal/track"
)

const goodSource = `package candidate

import "wayfinder/internal/grid"

// Walker sweeps the grid breadth-first and remembers its visit order.
type Walker struct {
	Width   int
	Height  int
	Visited []grid.Point
}

func NewWalker(width, height int) *Walker {
	return &Walker{Width: width, Height: height}
}

func (w *Walker) FindPath(g grid.Grid, start, end grid.Point) []grid.Point {
	queue := []grid.Point{start}
	parent := map[grid.Point]grid.Point{}
	seen := map[grid.Point]bool{start: true}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		w.Visited = append(w.Visited, cur)
		if cur == end {
			var path []grid.Point
			for p := end; p != start; p = parent[p] {
				path = append(path, p)
			}
			path = append(path, start)
			for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
				path[i], path[j] = path[j], path[i]
			}
			return path
		}
		for _, d := range []grid.Point{{X: 1}, {X: -1}, {Y: 1}, {Y: -1}} {
			n := grid.Point{X: cur.X + d.X, Y: cur.Y + d.Y}
			if !g.Walkable(n) || seen[n] {
				continue
			}
			seen[n] = true
			parent[n] = cur
			queue = append(queue, n)
		}
	}
	return nil
}

func (w *Walker) VisitedOrder() []grid.Point {
	return w.Visited
}
`

const brokenSource = `package candidate

import "wayfinder/internal/grid"

type Walker struct {
	Width  int
	Height int
}

func NewWalker(width, height int) *Walker {
	return &Walker{Width: width, Height: height}
}

func (w *Walker) FindPath(g grid.Grid, start, end grid.Point) []grid.Point {
	return nil
}
`

// fakeOracle replays canned replies and then fails.
type fakeOracle struct {
	mu      sync.Mutex
	replies []string
	calls   int
	block   chan struct{}
}

func (f *fakeOracle) Complete(ctx context.Context, system, user string) (string, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.replies) == 0 {
		return "", errors.New("oracle exhausted")
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	return reply, nil
}

func fenced(source string) string {
	return "```go\n" + source + "```"
}

type testEnv struct {
	Engine *engine.Engine
	Oracle *fakeOracle
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	cfg.Repair.RetryPauseSeconds = 0
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	fake := &fakeOracle{}
	eng.NewOracle = func(p oracle.Provider) repair.Oracle { return fake }
	return testEnv{Engine: eng, Oracle: fake, Ctx: context.Background()}
}

func TestValidateSourceJournals(t *testing.T) {
	env := newTestEnv(t)
	report, err := env.Engine.ValidateSource(env.Ctx, goodSource, "Walker")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !report.Valid || report.Score != 100 {
		t.Fatalf("expected clean report, got valid=%v score=%d", report.Valid, report.Score)
	}
	evts, err := env.Engine.EventLog(env.Ctx, 10, "validation.checked", "", "")
	if err != nil {
		t.Fatalf("event log: %v", err)
	}
	if len(evts) != 1 {
		t.Fatalf("expected 1 validation event, got %d", len(evts))
	}
}

func TestSubmitFixRepairsAndRegisters(t *testing.T) {
	env := newTestEnv(t)
	env.Oracle.replies = []string{fenced(goodSource)}

	taskID, err := env.Engine.SubmitFix(env.Ctx, brokenSource, "Walker", "")
	if err != nil {
		t.Fatalf("submit fix: %v", err)
	}
	if !strings.HasPrefix(taskID, "fix_") {
		t.Fatalf("unexpected task id %q", taskID)
	}
	env.Engine.Wait()

	snap, ok := env.Engine.Task(taskID)
	if !ok {
		t.Fatalf("task %s not tracked", taskID)
	}
	if snap.Status != track.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", snap.Status, snap.Error)
	}
	if _, ok := env.Engine.GetAlgorithm("Walker"); !ok {
		t.Fatalf("repaired algorithm not registered")
	}
	stored, err := env.Engine.Repo.GetAlgorithm(env.Ctx, "Walker")
	if err != nil {
		t.Fatalf("algorithm not persisted: %v", err)
	}
	if stored.Score != 100 {
		t.Fatalf("persisted score = %d", stored.Score)
	}
	jobs, err := env.Engine.RepairJobs(env.Ctx, repo.RepairJobFilters{Algorithm: "Walker"})
	if err != nil {
		t.Fatalf("list repair jobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Status != "succeeded" || jobs[0].Iterations != 1 {
		t.Fatalf("unexpected repair jobs: %+v", jobs)
	}
}

func TestSubmitFixExhaustsBudget(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Config.Repair.MaxIterations = 2
	env.Oracle.replies = []string{fenced(brokenSource), fenced(brokenSource)}

	taskID, err := env.Engine.SubmitFix(env.Ctx, brokenSource, "Walker", "")
	if err != nil {
		t.Fatalf("submit fix: %v", err)
	}
	env.Engine.Wait()

	snap, _ := env.Engine.Task(taskID)
	if snap.Status != track.StatusFailed {
		t.Fatalf("expected failed, got %s", snap.Status)
	}
	jobs, err := env.Engine.RepairJobs(env.Ctx, repo.RepairJobFilters{Status: "failed"})
	if err != nil {
		t.Fatalf("list repair jobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Iterations != 2 {
		t.Fatalf("unexpected repair jobs: %+v", jobs)
	}
	if _, ok := env.Engine.GetAlgorithm("Walker"); ok {
		t.Fatalf("invalid source must not be registered")
	}
}

func TestSubmitGenerateLoadsResult(t *testing.T) {
	env := newTestEnv(t)
	env.Oracle.replies = []string{fenced(goodSource)}

	taskID, err := env.Engine.SubmitGenerate(env.Ctx, "breadth first search over a grid", "Walker", "")
	if err != nil {
		t.Fatalf("submit generate: %v", err)
	}
	if !strings.HasPrefix(taskID, "gen_") {
		t.Fatalf("unexpected task id %q", taskID)
	}
	env.Engine.Wait()

	snap, _ := env.Engine.Task(taskID)
	if snap.Status != track.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", snap.Status, snap.Error)
	}
	if _, ok := env.Engine.GetAlgorithm("Walker"); !ok {
		t.Fatalf("generated algorithm not registered")
	}
}

func TestCancelTaskAbortsOracleCall(t *testing.T) {
	env := newTestEnv(t)
	env.Oracle.block = make(chan struct{})
	env.Oracle.replies = []string{fenced(goodSource)}

	taskID, err := env.Engine.SubmitFix(env.Ctx, brokenSource, "Walker", "")
	if err != nil {
		t.Fatalf("submit fix: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap, ok := env.Engine.Task(taskID)
		if ok && snap.Status == track.StatusRunning {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("task never started")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !env.Engine.CancelTask(env.Ctx, taskID) {
		t.Fatalf("cancel rejected")
	}
	env.Engine.Wait()

	snap, _ := env.Engine.Task(taskID)
	if snap.Status != track.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", snap.Status)
	}
	if _, ok := env.Engine.GetAlgorithm("Walker"); ok {
		t.Fatalf("cancelled job must not register an algorithm")
	}
}

func TestExecuteBuiltinAlgorithm(t *testing.T) {
	env := newTestEnv(t)
	raw := [][]int{
		{0, 0, 0},
		{1, 1, 0},
		{0, 0, 0},
	}
	path, visited := env.Engine.ExecuteAlgorithm(env.Ctx, "bfs", 3, 3, raw, grid.Point{X: 0, Y: 0}, grid.Point{X: 0, Y: 2})
	if len(path) == 0 || len(visited) == 0 {
		t.Fatalf("builtin bfs produced no result")
	}
	if path[0] != (grid.Point{X: 0, Y: 0}) || path[len(path)-1] != (grid.Point{X: 0, Y: 2}) {
		t.Fatalf("path endpoints wrong: %v", path)
	}
}

func TestExecuteUnknownAlgorithmIsEmpty(t *testing.T) {
	env := newTestEnv(t)
	path, visited := env.Engine.ExecuteAlgorithm(env.Ctx, "nope", 2, 2, [][]int{{0, 0}, {0, 0}}, grid.Point{}, grid.Point{X: 1, Y: 1})
	if path == nil || visited == nil {
		t.Fatalf("results must be non-nil")
	}
	if len(path) != 0 || len(visited) != 0 {
		t.Fatalf("unknown algorithm must yield empty results")
	}
}

func TestLoadAndRemoveAlgorithm(t *testing.T) {
	env := newTestEnv(t)
	report, err := env.Engine.LoadAlgorithm(env.Ctx, "Walker", goodSource, "hand written")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !report.Valid {
		t.Fatalf("expected valid report")
	}
	if err := env.Engine.RemoveAlgorithm(env.Ctx, "Walker"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := env.Engine.RemoveAlgorithm(env.Ctx, "Walker"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := env.Engine.Repo.GetAlgorithm(env.Ctx, "Walker"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("row should be gone, got %v", err)
	}
}

func TestLoadRejectsInvalidSource(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.LoadAlgorithm(env.Ctx, "Walker", brokenSource, ""); err == nil {
		t.Fatalf("expected contract error")
	}
	if _, ok := env.Engine.GetAlgorithm("Walker"); ok {
		t.Fatalf("invalid source must not be registered")
	}
}

func TestRestoreReloadsPersistedAlgorithms(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.LoadAlgorithm(env.Ctx, "Walker", goodSource, "persisted"); err != nil {
		t.Fatalf("load: %v", err)
	}

	fresh := engine.New(env.Engine.DB, env.Engine.Config)
	if _, ok := fresh.GetAlgorithm("Walker"); ok {
		t.Fatalf("fresh engine should start without user algorithms")
	}
	if err := fresh.Restore(env.Ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if _, ok := fresh.GetAlgorithm("Walker"); !ok {
		t.Fatalf("restore did not reload persisted algorithm")
	}
}

func TestSubmitFixUnknownProvider(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.SubmitFix(env.Ctx, brokenSource, "Walker", "nope"); err == nil {
		t.Fatalf("expected provider error")
	}
}

func TestTaskLifecyclePassThroughs(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Tracker.Create("t1", track.TypeFixing, "demo", 5)
	env.Engine.Tracker.Start("t1")
	if !env.Engine.PauseTask(env.Ctx, "t1") {
		t.Fatalf("pause rejected")
	}
	if !env.Engine.ResumeTask(env.Ctx, "t1") {
		t.Fatalf("resume rejected")
	}
	if !env.Engine.CancelTask(env.Ctx, "t1") {
		t.Fatalf("cancel rejected")
	}
	if env.Engine.PauseTask(env.Ctx, "t1") {
		t.Fatalf("terminal task must refuse pause")
	}
	if !env.Engine.RemoveTask(env.Ctx, "t1") {
		t.Fatalf("remove rejected")
	}
	evts, err := env.Engine.EventLog(env.Ctx, 20, "", "task", "t1")
	if err != nil {
		t.Fatalf("event log: %v", err)
	}
	if len(evts) != 4 {
		t.Fatalf("expected 4 task events, got %d", len(evts))
	}
}
