// Package pathfind ships the built-in baseline algorithms. BFS and
// Dijkstra run over a lvlath graph built from the grid; A* is native.
package pathfind

import (
	"fmt"
	"sort"

	"github.com/katalvlaran/lvlath/bfs"
	"github.com/katalvlaran/lvlath/core"
	"github.com/katalvlaran/lvlath/dijkstra"

	"wayfinder/internal/contract"
	"wayfinder/internal/grid"
)

func vertexID(p grid.Point) string { return fmt.Sprintf("%d,%d", p.X, p.Y) }

func parseID(id string) grid.Point {
	var p grid.Point
	fmt.Sscanf(id, "%d,%d", &p.X, &p.Y)
	return p
}

var neighborOffsets = []grid.Point{{X: 1}, {X: -1}, {Y: 1}, {Y: -1}}

// buildGraph lifts walkable cells into a lvlath graph with unit edge
// weights. Each 4-neighbor pair gets one undirected edge.
func buildGraph(g grid.Grid, weighted bool) *core.Graph {
	var opts []core.GraphOption
	if weighted {
		opts = append(opts, core.WithWeighted())
	}
	graph := core.NewGraph(opts...)
	for y := range g {
		for x := range g[y] {
			p := grid.Point{X: x, Y: y}
			if !g.Walkable(p) {
				continue
			}
			_ = graph.AddVertex(vertexID(p))
		}
	}
	for y := range g {
		for x := range g[y] {
			p := grid.Point{X: x, Y: y}
			if !g.Walkable(p) {
				continue
			}
			// only right and down, the graph is undirected
			for _, d := range []grid.Point{{X: 1}, {Y: 1}} {
				n := grid.Point{X: x + d.X, Y: y + d.Y}
				if g.Walkable(n) {
					_, _ = graph.AddEdge(vertexID(p), vertexID(n), 1)
				}
			}
		}
	}
	return graph
}

// walkParents rebuilds the start-to-end path from a predecessor map.
func walkParents(parent map[string]string, start, end grid.Point) []grid.Point {
	if start == end {
		return []grid.Point{start}
	}
	endID, startID := vertexID(end), vertexID(start)
	if _, ok := parent[endID]; !ok {
		return nil
	}
	var rev []grid.Point
	for cur := endID; cur != ""; cur = parent[cur] {
		rev = append(rev, parseID(cur))
		if cur == startID {
			break
		}
	}
	if len(rev) == 0 || rev[len(rev)-1] != start {
		return nil
	}
	path := make([]grid.Point, len(rev))
	for i, p := range rev {
		path[len(rev)-1-i] = p
	}
	return path
}

// BFS explores the grid breadth-first, which yields a shortest path on
// unit-cost grids.
type BFS struct {
	Width   int
	Height  int
	Visited []grid.Point
}

func NewBFS(width, height int) contract.Algorithm {
	return &BFS{Width: width, Height: height}
}

func (b *BFS) FindPath(g grid.Grid, start, end grid.Point) []grid.Point {
	b.Visited = nil
	if !g.Walkable(start) || !g.Walkable(end) {
		return nil
	}
	res, err := bfs.BFS(buildGraph(g, false), vertexID(start))
	if err != nil {
		return nil
	}
	endID := vertexID(end)
	reached := false
	for _, id := range res.Order {
		b.Visited = append(b.Visited, parseID(id))
		if id == endID {
			reached = true
			break
		}
	}
	if !reached {
		return nil
	}
	return walkParents(res.Parent, start, end)
}

func (b *BFS) VisitedOrder() []grid.Point { return b.Visited }

// Dijkstra relaxes unit-weight edges in distance order. On a uniform
// grid it matches BFS paths but demonstrates the weighted machinery.
type Dijkstra struct {
	Width   int
	Height  int
	Visited []grid.Point
}

func NewDijkstra(width, height int) contract.Algorithm {
	return &Dijkstra{Width: width, Height: height}
}

func (d *Dijkstra) FindPath(g grid.Grid, start, end grid.Point) []grid.Point {
	d.Visited = nil
	if !g.Walkable(start) || !g.Walkable(end) {
		return nil
	}
	dist, prev, err := dijkstra.Dijkstra(buildGraph(g, true),
		dijkstra.Source(vertexID(start)), dijkstra.WithReturnPath())
	if err != nil {
		return nil
	}
	d.Visited = settleOrder(dist, end)
	endID := vertexID(end)
	if _, ok := dist[endID]; !ok {
		return nil
	}
	return walkParents(prev, start, end)
}

func (d *Dijkstra) VisitedOrder() []grid.Point { return d.Visited }

// settleOrder reconstructs a settle sequence from final distances:
// vertices sorted by distance, then id for determinism, cut off past
// the end vertex distance.
func settleOrder(dist map[string]int64, end grid.Point) []grid.Point {
	type entry struct {
		id string
		d  int64
	}
	var entries []entry
	const unreachable = int64(1) << 62
	endDist, endKnown := dist[vertexID(end)]
	for id, d := range dist {
		if d >= unreachable {
			continue
		}
		if endKnown && d > endDist {
			continue
		}
		entries = append(entries, entry{id, d})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].d != entries[j].d {
			return entries[i].d < entries[j].d
		}
		return entries[i].id < entries[j].id
	})
	out := make([]grid.Point, len(entries))
	for i, e := range entries {
		out[i] = parseID(e.id)
	}
	return out
}

// Builtins lists the baseline algorithms by registry name.
func Builtins() map[string]contract.Constructor {
	return map[string]contract.Constructor{
		"bfs":      NewBFS,
		"dijkstra": NewDijkstra,
		"astar":    NewAStar,
	}
}
