package grid

import "fmt"

// Cell is one square of a pathfinding grid.
type Cell int

const (
	Empty Cell = iota
	Wall
	Start
	End
	Path
	Visited
	Frontier
)

var cellNames = map[Cell]string{
	Empty:    "empty",
	Wall:     "wall",
	Start:    "start",
	End:      "end",
	Path:     "path",
	Visited:  "visited",
	Frontier: "frontier",
}

func (c Cell) String() string {
	if s, ok := cellNames[c]; ok {
		return s
	}
	return fmt.Sprintf("cell(%d)", int(c))
}

// Valid reports whether c is one of the defined cell values.
func (c Cell) Valid() bool {
	_, ok := cellNames[c]
	return ok
}

// Point is a grid coordinate, x across, y down.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Point) String() string { return fmt.Sprintf("(%d,%d)", p.X, p.Y) }

// Grid is a row-major rectangle of cells.
type Grid [][]Cell

// FromRaw converts raw integer rows into a Grid. Codes outside the
// defined cell range become Empty rather than failing the conversion.
func FromRaw(raw [][]int) Grid {
	g := make(Grid, len(raw))
	for y, row := range raw {
		g[y] = make([]Cell, len(row))
		for x, v := range row {
			c := Cell(v)
			if !c.Valid() {
				c = Empty
			}
			g[y][x] = c
		}
	}
	return g
}

// Width returns the length of the first row, 0 for an empty grid.
func (g Grid) Width() int {
	if len(g) == 0 {
		return 0
	}
	return len(g[0])
}

func (g Grid) Height() int { return len(g) }

// In reports whether p lies inside the grid bounds.
func (g Grid) In(p Point) bool {
	return p.Y >= 0 && p.Y < len(g) && p.X >= 0 && len(g) > 0 && p.X < len(g[p.Y])
}

// Walkable reports whether p is inside the grid and not a wall.
func (g Grid) Walkable(p Point) bool {
	return g.In(p) && g[p.Y][p.X] != Wall
}
