// Package contract defines the behavioral contract every pathfinding
// algorithm must satisfy, whether built in or loaded from source.
package contract

import "wayfinder/internal/grid"

// Algorithm is the runtime shape of a conforming implementation.
type Algorithm interface {
	// FindPath returns an ordered start-to-end coordinate sequence,
	// or an empty slice when no path exists.
	FindPath(g grid.Grid, start, end grid.Point) []grid.Point
	// VisitedOrder returns every coordinate examined during the last
	// FindPath call, in examination order.
	VisitedOrder() []grid.Point
}

// Constructor builds an algorithm instance for a grid of the given size.
type Constructor func(width, height int) Algorithm

// Required member names for source-level validation. A candidate type
// named T must ship a NewT constructor plus these methods and fields.
const (
	MethodFindPath     = "FindPath"
	MethodVisitedOrder = "VisitedOrder"
	FieldWidth         = "Width"
	FieldHeight        = "Height"
	// FieldVisited backs the VisitedOrder method; Go does not allow a
	// field and a method to share a name.
	FieldVisited = "Visited"
)

// ConstructorName returns the expected constructor identifier for a
// candidate type name.
func ConstructorName(typeName string) string {
	return "New" + typeName
}

// FindPathParams is the expected parameter list of FindPath, in order.
var FindPathParams = []string{"g", "start", "end"}

// ConstructorParams is the expected parameter list of the constructor.
var ConstructorParams = []string{"width", "height"}
