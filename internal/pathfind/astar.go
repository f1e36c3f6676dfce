package pathfind

import (
	"container/heap"
	"math"

	"wayfinder/internal/contract"
	"wayfinder/internal/grid"
)

// Heuristic estimates the remaining cost between two points. It must
// never overestimate for A* to stay optimal on unit grids.
type Heuristic func(a, b grid.Point) float64

func Manhattan(a, b grid.Point) float64 {
	return math.Abs(float64(a.X-b.X)) + math.Abs(float64(a.Y-b.Y))
}

func Euclidean(a, b grid.Point) float64 {
	dx, dy := float64(a.X-b.X), float64(a.Y-b.Y)
	return math.Sqrt(dx*dx + dy*dy)
}

func Chebyshev(a, b grid.Point) float64 {
	return math.Max(math.Abs(float64(a.X-b.X)), math.Abs(float64(a.Y-b.Y)))
}

// AStar searches best-first on f = g + h. lvlath has no A*, so the
// frontier is a plain container/heap priority queue.
type AStar struct {
	Width     int
	Height    int
	Visited   []grid.Point
	Heuristic Heuristic
	Diagonals bool
}

func NewAStar(width, height int) contract.Algorithm {
	return &AStar{Width: width, Height: height, Heuristic: Manhattan}
}

type frontierItem struct {
	point grid.Point
	f, g  float64
	index int
}

type frontier []*frontierItem

func (f frontier) Len() int           { return len(f) }
func (f frontier) Less(i, j int) bool { return f[i].f < f[j].f }

func (f frontier) Swap(i, j int) {
	f[i], f[j] = f[j], f[i]
	f[i].index = i
	f[j].index = j
}

func (f *frontier) Push(x any) {
	it := x.(*frontierItem)
	it.index = len(*f)
	*f = append(*f, it)
}

func (f *frontier) Pop() any {
	old := *f
	n := len(old)
	it := old[n-1]
	*f = old[:n-1]
	return it
}

func (a *AStar) offsets() []grid.Point {
	if !a.Diagonals {
		return neighborOffsets
	}
	return append([]grid.Point{
		{X: 1, Y: 1}, {X: 1, Y: -1}, {X: -1, Y: 1}, {X: -1, Y: -1},
	}, neighborOffsets...)
}

func (a *AStar) FindPath(g grid.Grid, start, end grid.Point) []grid.Point {
	a.Visited = nil
	if !g.Walkable(start) || !g.Walkable(end) {
		return nil
	}
	h := a.Heuristic
	if h == nil {
		h = Manhattan
	}

	open := &frontier{}
	heap.Init(open)
	heap.Push(open, &frontierItem{point: start, f: h(start, end)})
	gScore := map[grid.Point]float64{start: 0}
	parent := map[grid.Point]grid.Point{}
	closed := map[grid.Point]bool{}

	for open.Len() > 0 {
		cur := heap.Pop(open).(*frontierItem)
		if closed[cur.point] {
			continue
		}
		closed[cur.point] = true
		a.Visited = append(a.Visited, cur.point)

		if cur.point == end {
			return a.reconstruct(parent, start, end)
		}
		for _, d := range a.offsets() {
			n := grid.Point{X: cur.point.X + d.X, Y: cur.point.Y + d.Y}
			if !g.Walkable(n) || closed[n] {
				continue
			}
			step := 1.0
			if d.X != 0 && d.Y != 0 {
				step = math.Sqrt2
			}
			tentative := gScore[cur.point] + step
			if prev, ok := gScore[n]; ok && tentative >= prev {
				continue
			}
			gScore[n] = tentative
			parent[n] = cur.point
			heap.Push(open, &frontierItem{point: n, g: tentative, f: tentative + h(n, end)})
		}
	}
	return nil
}

func (a *AStar) reconstruct(parent map[grid.Point]grid.Point, start, end grid.Point) []grid.Point {
	var rev []grid.Point
	for p := end; ; {
		rev = append(rev, p)
		if p == start {
			break
		}
		next, ok := parent[p]
		if !ok {
			return nil
		}
		p = next
	}
	path := make([]grid.Point, len(rev))
	for i, p := range rev {
		path[len(rev)-1-i] = p
	}
	return path
}

func (a *AStar) VisitedOrder() []grid.Point { return a.Visited }
