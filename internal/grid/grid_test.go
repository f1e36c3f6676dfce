package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromRawClampsUnknownCodes(t *testing.T) {
	g := FromRaw([][]int{
		{0, 1, 2},
		{9, -1, 3},
	})
	require.Equal(t, 2, g.Height())
	require.Equal(t, 3, g.Width())
	assert.Equal(t, Wall, g[0][1])
	assert.Equal(t, Start, g[0][2])
	assert.Equal(t, Empty, g[1][0])
	assert.Equal(t, Empty, g[1][1])
	assert.Equal(t, End, g[1][2])
}

func TestWalkable(t *testing.T) {
	g := FromRaw([][]int{
		{0, 1},
		{0, 0},
	})
	assert.True(t, g.Walkable(Point{X: 0, Y: 0}))
	assert.False(t, g.Walkable(Point{X: 1, Y: 0}), "walls are not walkable")
	assert.False(t, g.Walkable(Point{X: 2, Y: 0}), "out of bounds")
	assert.False(t, g.Walkable(Point{X: -1, Y: 1}))
}

func TestCellString(t *testing.T) {
	assert.Equal(t, "frontier", Frontier.String())
	assert.Equal(t, "cell(42)", Cell(42).String())
}

func TestEmptyGridDimensions(t *testing.T) {
	var g Grid
	assert.Equal(t, 0, g.Width())
	assert.Equal(t, 0, g.Height())
	assert.False(t, g.In(Point{}))
}
