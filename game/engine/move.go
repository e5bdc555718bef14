package engine

import "fmt"

// Direction is the direction a swap moves its first tile
type Direction string

const (
	DirectionUp      Direction = "up"
	DirectionDown    Direction = "down"
	DirectionLeft    Direction = "left"
	DirectionRight   Direction = "right"
	DirectionInvalid Direction = "invalid"
)

// Outcome describes what a resolved move did to the board
type Outcome struct {
	Accepted      bool       `json:"accepted"`
	TilesMatched  int        `json:"tiles_matched"`
	ScoreDelta    int        `json:"score_delta"`
	SpecialEffect EffectKind `json:"special_effect,omitempty"`
	Cascades      int        `json:"cascades"`
}

// Move is a requested swap of (FromRow, FromCol) with (ToRow, ToCol)
type Move struct {
	FromRow int     `json:"row1"`
	FromCol int     `json:"col1"`
	ToRow   int     `json:"row2"`
	ToCol   int     `json:"col2"`
	Outcome Outcome `json:"outcome"`
}

// NewMove creates an unresolved move
func NewMove(r1, c1, r2, c2 int) Move {
	return Move{FromRow: r1, FromCol: c1, ToRow: r2, ToCol: c2}
}

// From returns the first cell
func (m Move) From() Position {
	return Position{Row: m.FromRow, Col: m.FromCol}
}

// To returns the second cell
func (m Move) To() Position {
	return Position{Row: m.ToRow, Col: m.ToCol}
}

// IsAdjacent reports whether the cells are exactly one step apart along one axis
func (m Move) IsAdjacent() bool {
	return ManhattanDistance(m.From(), m.To()) == 1
}

// InBounds reports whether both cells lie on a rows x cols grid
func (m Move) InBounds(rows, cols int) bool {
	return m.FromRow >= 0 && m.FromRow < rows && m.FromCol >= 0 && m.FromCol < cols &&
		m.ToRow >= 0 && m.ToRow < rows && m.ToCol >= 0 && m.ToCol < cols
}

// IsValid checks bounds first, then adjacency
func (m Move) IsValid(rows, cols int) bool {
	return m.InBounds(rows, cols) && m.IsAdjacent()
}

// Direction returns where the second cell lies relative to the first
func (m Move) Direction() Direction {
	if !m.IsAdjacent() {
		return DirectionInvalid
	}
	switch {
	case m.ToRow < m.FromRow:
		return DirectionUp
	case m.ToRow > m.FromRow:
		return DirectionDown
	case m.ToCol < m.FromCol:
		return DirectionLeft
	default:
		return DirectionRight
	}
}

func (m Move) String() string {
	return fmt.Sprintf("(%d,%d)->(%d,%d)", m.FromRow, m.FromCol, m.ToRow, m.ToCol)
}
