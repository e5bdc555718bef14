package engine

// Grid is the read-only view the resolver needs
type Grid interface {
	Rows() int
	Columns() int
	Tile(row, col int) (Tile, bool)
}

// Resolver computes the cells a special tile clears when it is consumed
type Resolver struct{}

// Affected returns the cells cleared by a tile at row, col carrying effect.
// kind is the triggering tile's kind, used by the color bomb.
func (Resolver) Affected(g Grid, row, col int, effect EffectKind, kind TileKind) []Position {
	rows, cols := g.Rows(), g.Columns()

	switch effect {
	case EffectRowClear:
		cells := make([]Position, 0, cols)
		for c := 0; c < cols; c++ {
			cells = append(cells, Position{Row: row, Col: c})
		}
		return cells

	case EffectColumnClear:
		cells := make([]Position, 0, rows)
		for r := 0; r < rows; r++ {
			cells = append(cells, Position{Row: r, Col: col})
		}
		return cells

	case EffectBomb:
		var cells []Position
		for r := max(row-1, 0); r <= min(row+1, rows-1); r++ {
			for c := max(col-1, 0); c <= min(col+1, cols-1); c++ {
				cells = append(cells, Position{Row: r, Col: c})
			}
		}
		return cells

	case EffectColorBomb:
		var cells []Position
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				if t, ok := g.Tile(r, c); ok && t.Kind == kind {
					cells = append(cells, Position{Row: r, Col: c})
				}
			}
		}
		return cells

	case EffectNone:
		return []Position{{Row: row, Col: col}}
	}

	return []Position{{Row: row, Col: col}}
}

// EffectFor returns the effect a run of length n grants
func EffectFor(n int) EffectKind {
	switch {
	case n == 4:
		return EffectRowClear
	case n == 5:
		return EffectColorBomb
	case n > 5:
		return EffectBomb
	default:
		return EffectNone
	}
}
