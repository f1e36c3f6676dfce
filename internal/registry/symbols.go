package registry

import (
	"reflect"

	"github.com/traefik/yaegi/interp"

	"wayfinder/internal/contract"
	"wayfinder/internal/grid"
)

// gridSymbols is the only import surface exposed to interpreted
// candidates. No stdlib, no I/O: a candidate can compute over the grid
// types and nothing else.
var gridSymbols = interp.Exports{
	"wayfinder/internal/grid/grid": {
		"Cell":     reflect.ValueOf((*grid.Cell)(nil)),
		"Grid":     reflect.ValueOf((*grid.Grid)(nil)),
		"Point":    reflect.ValueOf((*grid.Point)(nil)),
		"Empty":    reflect.ValueOf(grid.Empty),
		"Wall":     reflect.ValueOf(grid.Wall),
		"Start":    reflect.ValueOf(grid.Start),
		"End":      reflect.ValueOf(grid.End),
		"Path":     reflect.ValueOf(grid.Path),
		"Visited":  reflect.ValueOf(grid.Visited),
		"Frontier": reflect.ValueOf(grid.Frontier),
		"FromRaw":  reflect.ValueOf(grid.FromRaw),
	},
}

// contractSymbols lets the loader's adapter snippet convert interpreted
// values to the binary Algorithm interface. The _Algorithm wrapper
// follows the yaegi convention for interface bindings.
var contractSymbols = interp.Exports{
	"wayfinder/internal/contract/contract": {
		"Algorithm":   reflect.ValueOf((*contract.Algorithm)(nil)),
		"Constructor": reflect.ValueOf((*contract.Constructor)(nil)),
		"_Algorithm":  reflect.ValueOf((*_contractAlgorithm)(nil)),
	},
}

type _contractAlgorithm struct {
	IValue        any
	WFindPath     func(g grid.Grid, start grid.Point, end grid.Point) []grid.Point
	WVisitedOrder func() []grid.Point
}

func (w _contractAlgorithm) FindPath(g grid.Grid, start grid.Point, end grid.Point) []grid.Point {
	return w.WFindPath(g, start, end)
}

func (w _contractAlgorithm) VisitedOrder() []grid.Point {
	return w.WVisitedOrder()
}

