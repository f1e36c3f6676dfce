package track

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClock(start time.Time) (func() time.Time, func(time.Duration)) {
	now := start
	return func() time.Time { return now }, func(d time.Duration) { now = now.Add(d) }
}

func TestLifecycle(t *testing.T) {
	tr := New()
	tr.Create("t1", TypeFixing, "repair run", 5)

	assert.False(t, tr.Pause("t1"), "pause requires running")
	assert.True(t, tr.Start("t1"))
	assert.True(t, tr.Pause("t1"))
	assert.False(t, tr.Pause("t1"), "already paused")
	assert.True(t, tr.Resume("t1"))
	assert.True(t, tr.Complete("t1", map[string]any{"ok": true}))

	snap, ok := tr.Get("t1")
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, float64(100), snap.Progress)

	assert.False(t, tr.Fail("t1", "late"), "terminal state is immutable")
	assert.False(t, tr.Cancel("t1"))
	assert.False(t, tr.Resume("t1"))
	snap, _ = tr.Get("t1")
	assert.Equal(t, StatusCompleted, snap.Status)
}

func TestMutatorsReturnFalseForUnknownID(t *testing.T) {
	tr := New()
	assert.False(t, tr.Start("nope"))
	assert.False(t, tr.UpdateProgress("nope", 50, ""))
	assert.False(t, tr.UpdateStep("nope", 1, "step"))
	assert.False(t, tr.Cancel("nope"))
	assert.False(t, tr.Remove("nope"))
	_, ok := tr.Get("nope")
	assert.False(t, ok)
}

func TestUpdateStepDerivesProgress(t *testing.T) {
	tr := New()
	tr.Create("t1", TypeGeneration, "", 5)
	tr.Start("t1")
	require.True(t, tr.UpdateStep("t1", 2, "generating"))
	snap, _ := tr.Get("t1")
	assert.InDelta(t, 40.0, snap.Progress, 0.001)
	assert.Equal(t, "generating", snap.CurrentStep)
}

func TestProgressClamped(t *testing.T) {
	tr := New()
	tr.Create("t1", TypeValidation, "", 1)
	tr.Start("t1")
	tr.UpdateProgress("t1", 180, "")
	snap, _ := tr.Get("t1")
	assert.Equal(t, float64(100), snap.Progress)
	tr.UpdateProgress("t1", -5, "")
	snap, _ = tr.Get("t1")
	assert.Equal(t, float64(0), snap.Progress)
}

func TestDerivedTimes(t *testing.T) {
	now, advance := newClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	tr := New().WithClock(now)
	tr.Create("t1", TypeFixing, "", 4)
	tr.Start("t1")
	advance(10 * time.Second)
	tr.UpdateProgress("t1", 25, "")

	snap, _ := tr.Get("t1")
	assert.InDelta(t, 10.0, snap.Elapsed, 0.001)
	assert.InDelta(t, 30.0, snap.EstimatedRemaining, 0.001, "25%% in 10s leaves 30s")

	advance(5 * time.Second)
	tr.Complete("t1", nil)
	advance(time.Hour)
	snap, _ = tr.Get("t1")
	assert.InDelta(t, 15.0, snap.Elapsed, 0.001, "elapsed freezes at completion")
	assert.Zero(t, snap.EstimatedRemaining)
}

func TestListenersSynchronousAndPanicSafe(t *testing.T) {
	tr := New()
	var seen []Status
	unsub := tr.Subscribe(func(s Snapshot) { seen = append(seen, s.Status) })
	tr.Subscribe(func(Snapshot) { panic("listener bug") })

	tr.Create("t1", TypeFixing, "", 1)
	require.True(t, tr.Start("t1"), "panicking listener must not affect the mutation")
	tr.Complete("t1", nil)

	assert.Equal(t, []Status{StatusPending, StatusRunning, StatusCompleted}, seen)
	unsub()
	tr.Create("t2", TypeFixing, "", 1)
	assert.Len(t, seen, 3, "unsubscribed listener stays silent")
}

func TestSweepRemovesOnlyOldTerminalTasks(t *testing.T) {
	now, advance := newClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	tr := New().WithClock(now)

	tr.Create("old", TypeFixing, "", 1)
	tr.Start("old")
	tr.Complete("old", nil)

	tr.Create("live", TypeFixing, "", 1)
	tr.Start("live")

	advance(2 * time.Hour)
	tr.Create("fresh", TypeFixing, "", 1)
	tr.Start("fresh")
	tr.Fail("fresh", "boom")

	removed := tr.Sweep(time.Hour)
	assert.Equal(t, 1, removed)
	_, ok := tr.Get("old")
	assert.False(t, ok)
	_, ok = tr.Get("live")
	assert.True(t, ok, "running tasks survive sweeps")
	_, ok = tr.Get("fresh")
	assert.True(t, ok, "recently finished tasks survive sweeps")
}

func TestListNewestFirst(t *testing.T) {
	now, advance := newClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	tr := New().WithClock(now)
	tr.Create("a", TypeFixing, "", 1)
	advance(time.Second)
	tr.Create("b", TypeFixing, "", 1)
	advance(time.Second)
	tr.Create("c", TypeFixing, "", 1)

	list := tr.List()
	require.Len(t, list, 3)
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, "a", list[2].ID)
}
