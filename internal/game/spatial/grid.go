// Package spatial provides the broad-phase structures used by the tick:
// a point quadtree for collision candidates and a uniform grid for
// AI neighbor lookups.
//
// Both store integer indices into caller-owned slices, never pointers, and
// are cleared and refilled every tick.
package spatial

import (
	"math"
)

// Grid buckets indices into fixed-size square cells over [0, width]x[0, height].
// Positions outside the area are clamped to the border cells.
//
// Optimal cell size equals the largest query radius, so a query touches at
// most a 3x3 block of cells.
type Grid struct {
	cellSize    float64
	invCellSize float64
	cols, rows  int
	cells       [][]int // row-major
}

// NewGrid creates a grid for the given world bounds.
// expected is the anticipated entity count, used to size cell buffers.
func NewGrid(width, height, cellSize float64, expected int) *Grid {
	cols := int(math.Ceil(width / cellSize))
	rows := int(math.Ceil(height / cellSize))
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}

	cells := make([][]int, cols*rows)
	perCell := expected / len(cells)
	if perCell < 4 {
		perCell = 4
	}
	for i := range cells {
		cells[i] = make([]int, 0, perCell)
	}

	return &Grid{
		cellSize:    cellSize,
		invCellSize: 1 / cellSize,
		cols:        cols,
		rows:        rows,
		cells:       cells,
	}
}

// Clear empties every cell, keeping capacity.
func (g *Grid) Clear() {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
}

// Insert files index under the cell containing (x, y).
func (g *Grid) Insert(index int, x, y float64) {
	col, row := g.clamp(int(x*g.invCellSize), int(y*g.invCellSize))
	i := row*g.cols + col
	g.cells[i] = append(g.cells[i], index)
}

// Near appends to out every index filed in a cell that overlaps the square
// of half-size radius around (cx, cy). Candidates may lie outside the radius;
// callers do the exact distance check.
func (g *Grid) Near(cx, cy, radius float64, out []int) []int {
	minCol, minRow := g.clamp(int((cx-radius)*g.invCellSize), int((cy-radius)*g.invCellSize))
	maxCol, maxRow := g.clamp(int((cx+radius)*g.invCellSize), int((cy+radius)*g.invCellSize))

	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			out = append(out, g.cells[row*g.cols+col]...)
		}
	}
	return out
}

func (g *Grid) clamp(col, row int) (int, int) {
	if col < 0 {
		col = 0
	} else if col >= g.cols {
		col = g.cols - 1
	}
	if row < 0 {
		row = 0
	} else if row >= g.rows {
		row = g.rows - 1
	}
	return col, row
}

// Stats returns occupancy figures for the debug API.
func (g *Grid) Stats() GridStats {
	var total, maxInCell, nonEmpty int
	for _, cell := range g.cells {
		n := len(cell)
		total += n
		if n > maxInCell {
			maxInCell = n
		}
		if n > 0 {
			nonEmpty++
		}
	}
	return GridStats{
		Cells:         len(g.cells),
		NonEmptyCells: nonEmpty,
		Entities:      total,
		MaxInCell:     maxInCell,
	}
}

// GridStats contains grid statistics for debugging.
type GridStats struct {
	Cells         int `json:"cells"`
	NonEmptyCells int `json:"non_empty_cells"`
	Entities      int `json:"entities"`
	MaxInCell     int `json:"max_in_cell"`
}
