// ABOUTME: Text stem plot of discrete samples
// ABOUTME: Maps samples in [-1, 1] onto a character grid with a zero axis
package ui

import "math"

const (
	plotAxis  = '─'
	plotStem  = '│'
	plotPoint = '●'
)

// plotGrid draws samples as stems from the zero axis. Sample i lands in
// column i*width/len(samples); when several samples share a column the
// last one wins. Values outside [-1, 1] are clipped to the border rows.
func plotGrid(samples []float64, width, height int) []string {
	if width <= 0 || height <= 0 {
		return nil
	}

	grid := make([][]rune, height)
	for r := range grid {
		grid[r] = make([]rune, width)
		for c := range grid[r] {
			grid[r][c] = ' '
		}
	}

	zero := (height - 1) / 2
	for c := 0; c < width; c++ {
		grid[zero][c] = plotAxis
	}

	n := len(samples)
	for i, v := range samples {
		col := i * width / n

		// Clear anything an earlier sample drew in this column
		for r := 0; r < height; r++ {
			grid[r][col] = ' '
		}
		grid[zero][col] = plotAxis

		row := valueRow(v, height)
		lo, hi := row, zero
		if lo > hi {
			lo, hi = hi, lo
		}
		for r := lo; r <= hi; r++ {
			grid[r][col] = plotStem
		}
		grid[row][col] = plotPoint
	}

	lines := make([]string, height)
	for r := range grid {
		lines[r] = string(grid[r])
	}
	return lines
}

// valueRow maps +1 to the top row and -1 to the bottom row
func valueRow(v float64, height int) int {
	if math.IsNaN(v) {
		v = 0
	}
	v = math.Max(-1, math.Min(1, v))
	zero := (height - 1) / 2
	row := zero - int(math.Round(v*float64(zero)))
	if row < 0 {
		row = 0
	}
	if row > height-1 {
		row = height - 1
	}
	return row
}
