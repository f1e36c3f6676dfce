package registry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wayfinder/internal/grid"
)

const loadableSource = `package candidate

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

const panickySource = `package candidate

import "wayfinder/internal/grid"

type Bomb struct {
	Width   int
	Height  int
	Visited []grid.Point
}

func NewBomb(width, height int) *Bomb {
	return &Bomb{Width: width, Height: height}
}

func (b *Bomb) FindPath(g grid.Grid, start, end grid.Point) []grid.Point {
	var cells []grid.Point
	return []grid.Point{cells[5]}
}

func (b *Bomb) VisitedOrder() []grid.Point {
	return b.Visited
}
`

var testRaw = [][]int{
	{0, 0, 0},
	{1, 1, 0},
	{0, 0, 0},
}

func TestLoadAndExecute(t *testing.T) {
	r := New()
	require.True(t, r.Load("walker", loadableSource, "loaded from candidate source"))

	path, visited := r.Execute("walker", 3, 3, testRaw, grid.Point{X: 0, Y: 0}, grid.Point{X: 0, Y: 2})
	require.NotEmpty(t, path)
	assert.Equal(t, grid.Point{X: 0, Y: 0}, path[0])
	assert.Equal(t, grid.Point{X: 0, Y: 2}, path[len(path)-1])
	assert.NotEmpty(t, visited)

	info, ok := r.Get("walker")
	require.True(t, ok)
	assert.False(t, info.Builtin)
	assert.Equal(t, loadableSource, info.Source)
}

func TestLoadResolvesDeclaredPackage(t *testing.T) {
	// the constructor lives inside whatever package the candidate
	// declares; loading must reach it through that qualifier
	renamed := strings.Replace(loadableSource, "package candidate", "package solver", 1)
	r := New()
	require.True(t, r.Load("walker", renamed, ""))

	path, _ := r.Execute("walker", 3, 3, testRaw, grid.Point{X: 0, Y: 0}, grid.Point{X: 0, Y: 2})
	require.NotEmpty(t, path)
	assert.Equal(t, grid.Point{X: 0, Y: 2}, path[len(path)-1])
}

func TestLoadRejectsBrokenSource(t *testing.T) {
	r := New()
	assert.False(t, r.Load("bad", "package candidate\n\nfunc broken( {", ""))
	assert.False(t, r.Load("empty", "package candidate\n", ""))
	assert.False(t, r.Load("nocontract", "package candidate\n\nfunc NewThing(a, b int) int { return a + b }\n", ""))
	assert.Empty(t, r.List())
}

func TestExecuteNeverPanics(t *testing.T) {
	r := New()
	require.True(t, r.Load("bomb", panickySource, ""))

	path, visited := r.Execute("bomb", 3, 3, testRaw, grid.Point{X: 0, Y: 0}, grid.Point{X: 2, Y: 2})
	assert.Empty(t, path, "a crashing algorithm yields an empty path")
	assert.NotNil(t, path)
	assert.NotNil(t, visited)
}

func TestExecuteUnknownAlgorithm(t *testing.T) {
	r := New()
	path, visited := r.Execute("ghost", 3, 3, testRaw, grid.Point{}, grid.Point{X: 2, Y: 2})
	assert.Empty(t, path)
	assert.Empty(t, visited)
	assert.NotNil(t, path)
	assert.NotNil(t, visited)
}

func TestExecuteClampsRawCells(t *testing.T) {
	r := NewWithBuiltins()
	raw := [][]int{
		{0, 99, 0},
		{0, -7, 0},
		{0, 0, 0},
	}
	// out-of-range codes read as empty, so the middle column is open
	path, _ := r.Execute("bfs", 3, 3, raw, grid.Point{X: 1, Y: 0}, grid.Point{X: 1, Y: 2})
	require.NotEmpty(t, path)
	assert.Len(t, path, 3)
}

func TestBuiltinsRegistered(t *testing.T) {
	r := NewWithBuiltins()
	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, "astar", list[0].Name)
	for _, info := range list {
		assert.True(t, info.Builtin)
	}

	path, visited := r.Execute("astar", 3, 3, testRaw, grid.Point{X: 0, Y: 0}, grid.Point{X: 0, Y: 2})
	assert.NotEmpty(t, path)
	assert.NotEmpty(t, visited)
}

func TestRemove(t *testing.T) {
	r := NewWithBuiltins()
	assert.True(t, r.Remove("bfs"))
	assert.False(t, r.Remove("bfs"))
	_, ok := r.Get("bfs")
	assert.False(t, ok)
}

func TestLastWriterWins(t *testing.T) {
	r := New()
	require.True(t, r.Load("algo", loadableSource, "first"))
	require.True(t, r.Load("algo", loadableSource, "second"))
	info, _ := r.Get("algo")
	assert.Equal(t, "second", info.Description)
	assert.Len(t, r.List(), 1)
}
