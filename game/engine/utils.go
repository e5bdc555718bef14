package engine

// ManhattanDistance calculates the Manhattan distance between two positions
func ManhattanDistance(from, to Position) int {
	return abs(from.Row-to.Row) + abs(from.Col-to.Col)
}

// ScoreForRun returns the points a run of n tiles is worth on its own
func ScoreForRun(n int) int {
	return n * BaseUnit * multiplier(n)
}

// multiplier is keyed by the longest run a tile belongs to.
// Cells cleared only by a special effect pass 0 and score a single BaseUnit.
func multiplier(n int) int {
	switch {
	case n >= 5:
		return 3
	case n == 4:
		return 2
	default:
		return 1
	}
}

func cloneGrid(cells [][]Tile) [][]Tile {
	out := make([][]Tile, len(cells))
	for r := range cells {
		out[r] = make([]Tile, len(cells[r]))
		copy(out[r], cells[r])
	}
	return out
}

// abs returns the absolute value of x
func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
