package engine

import (
	"fmt"
	"math/rand"
	"time"
)

// Engine provides the main interface for board operations
type Engine interface {
	// Board state
	Rows() int
	Columns() int
	Tile(row, col int) (Tile, bool)
	Score() int
	MovesLeft() int
	MovesUsed() int
	Snapshot() *Snapshot
	IsOver() bool

	// Moves
	SwapTiles(r1, c1, r2, c2 int) bool
	Swap(m Move) Move

	// Board analysis
	HasMatches() bool
	HasAnyLegalMove() bool
	FindLegalMove() (Move, bool)
	Reshuffle()
}

// Board implements the Engine interface over a rows x columns grid
type Board struct {
	rows         int
	columns      int
	cells        [][]Tile
	score        int
	movesLeft    int
	initialMoves int
	nextID       int

	kinds        int
	specialTiles bool
	rng          *rand.Rand
	resolver     Resolver
}

var _ Engine = (*Board)(nil)

// Option configures a Board at construction
type Option func(*Board)

// WithRand sets the random source used for fills and refills
func WithRand(rng *rand.Rand) Option {
	return func(b *Board) {
		if rng != nil {
			b.rng = rng
		}
	}
}

// WithSeed is WithRand over a fresh source seeded with seed
func WithSeed(seed int64) Option {
	return WithRand(rand.New(rand.NewSource(seed)))
}

// WithTileKinds sets how many of the fixed kinds the board draws from
func WithTileKinds(n int) Option {
	return func(b *Board) {
		b.kinds = n
	}
}

// WithSpecialTiles keeps granted special tiles on the grid and detonates them when consumed
func WithSpecialTiles(enabled bool) Option {
	return func(b *Board) {
		b.specialTiles = enabled
	}
}

func newBoard(rows, columns, movesLeft int, opts []Option) (*Board, error) {
	if rows < 1 || columns < 1 {
		return nil, fmt.Errorf("board dimensions must be positive, got %dx%d", rows, columns)
	}

	b := &Board{
		rows:         rows,
		columns:      columns,
		movesLeft:    movesLeft,
		initialMoves: movesLeft,
		kinds:        DefaultKinds,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.kinds < MinTileKinds || b.kinds > MaxTileKinds {
		return nil, fmt.Errorf("tile kinds must be between %d and %d, got %d", MinTileKinds, MaxTileKinds, b.kinds)
	}
	if b.rng == nil {
		b.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	b.cells = make([][]Tile, rows)
	for r := range b.cells {
		b.cells[r] = make([]Tile, columns)
	}
	return b, nil
}

// NewBoard creates a board with a random stable fill, zero score and the given moves
func NewBoard(rows, columns, movesLeft int, opts ...Option) (*Board, error) {
	b, err := newBoard(rows, columns, movesLeft, opts)
	if err != nil {
		return nil, err
	}

	for r := 0; r < rows; r++ {
		for c := 0; c < columns; c++ {
			b.cells[r][c].ID = b.nextID
			b.nextID++
		}
	}

	// Whole-board rejection sampling until no run exists
	b.randomizeKinds()
	for b.HasMatches() {
		b.randomizeKinds()
	}

	return b, nil
}

// NewBoardFromConfig creates a board sized and tuned by a preset
func NewBoardFromConfig(config *GameConfig, opts ...Option) (*Board, error) {
	if config == nil {
		config = DefaultConfig()
	}
	base := []Option{WithTileKinds(config.TileKinds), WithSpecialTiles(config.SpecialTiles)}
	return NewBoard(config.Rows, config.Columns, config.Moves, append(base, opts...)...)
}

// NewBoardFromKinds creates a board with a fixed layout. The layout must be rectangular and stable.
func NewBoardFromKinds(layout [][]TileKind, movesLeft int, opts ...Option) (*Board, error) {
	if len(layout) == 0 {
		return nil, fmt.Errorf("layout must have at least one row")
	}

	b, err := newBoard(len(layout), len(layout[0]), movesLeft, opts)
	if err != nil {
		return nil, err
	}

	for r, row := range layout {
		if len(row) != b.columns {
			return nil, fmt.Errorf("layout row %d has %d columns, expected %d", r, len(row), b.columns)
		}
		for c, kind := range row {
			if kind < 0 || int(kind) >= MaxTileKinds {
				return nil, fmt.Errorf("layout cell (%d,%d) has invalid kind %d", r, c, int(kind))
			}
			b.cells[r][c] = Tile{ID: b.nextID, Kind: kind}
			b.nextID++
		}
	}

	if b.HasMatches() {
		return nil, fmt.Errorf("layout contains a run of %d or more", MinMatchLength)
	}
	return b, nil
}

// RestoreBoard rebuilds a board from a snapshot (used for persistence loading)
func RestoreBoard(snapshot *Snapshot, opts ...Option) (*Board, error) {
	if snapshot == nil {
		return nil, fmt.Errorf("snapshot cannot be nil")
	}
	if len(snapshot.Tiles) != snapshot.Rows {
		return nil, fmt.Errorf("snapshot has %d rows, expected %d", len(snapshot.Tiles), snapshot.Rows)
	}

	b, err := newBoard(snapshot.Rows, snapshot.Columns, snapshot.MovesLeft, opts)
	if err != nil {
		return nil, err
	}
	b.score = snapshot.Score
	b.initialMoves = snapshot.MovesLeft + snapshot.MovesUsed
	b.nextID = snapshot.NextID

	for r, row := range snapshot.Tiles {
		if len(row) != b.columns {
			return nil, fmt.Errorf("snapshot row %d has %d columns, expected %d", r, len(row), b.columns)
		}
		for c, t := range row {
			if t.Empty() {
				return nil, fmt.Errorf("snapshot cell (%d,%d) is empty", r, c)
			}
			b.cells[r][c] = t
			if t.ID >= b.nextID {
				b.nextID = t.ID + 1
			}
		}
	}
	return b, nil
}

// Rows returns the number of rows
func (b *Board) Rows() int {
	return b.rows
}

// Columns returns the number of columns
func (b *Board) Columns() int {
	return b.columns
}

// Tile returns the tile at row, col
func (b *Board) Tile(row, col int) (Tile, bool) {
	if !b.inBounds(row, col) {
		return Tile{Kind: NoKind}, false
	}
	return b.cells[row][col], true
}

// Score returns the accumulated score
func (b *Board) Score() int {
	return b.score
}

// MovesLeft returns the remaining move budget
func (b *Board) MovesLeft() int {
	return b.movesLeft
}

// MovesUsed returns how many accepted moves were made
func (b *Board) MovesUsed() int {
	return b.initialMoves - b.movesLeft
}

// IsOver returns whether the move budget is exhausted
func (b *Board) IsOver() bool {
	return b.movesLeft <= 0
}

// SpecialTiles reports whether granted special tiles stay on the grid
func (b *Board) SpecialTiles() bool {
	return b.specialTiles
}

// Snapshot returns a deep copy of the board
func (b *Board) Snapshot() *Snapshot {
	return &Snapshot{
		Rows:      b.rows,
		Columns:   b.columns,
		Tiles:     cloneGrid(b.cells),
		Score:     b.score,
		MovesLeft: b.movesLeft,
		MovesUsed: b.MovesUsed(),
		NextID:    b.nextID,
	}
}

// Kinds returns the kind of every cell, row by row
func (b *Board) Kinds() [][]TileKind {
	kinds := make([][]TileKind, b.rows)
	for r := range kinds {
		kinds[r] = make([]TileKind, b.columns)
		for c := range kinds[r] {
			kinds[r][c] = b.cells[r][c].Kind
		}
	}
	return kinds
}

func (b *Board) inBounds(row, col int) bool {
	return row >= 0 && row < b.rows && col >= 0 && col < b.columns
}

func (b *Board) randomKind() TileKind {
	return TileKind(b.rng.Intn(b.kinds))
}

// randomizeKinds replaces every kind in place, keeping tile ids
func (b *Board) randomizeKinds() {
	for r := 0; r < b.rows; r++ {
		for c := 0; c < b.columns; c++ {
			b.cells[r][c].Kind = b.randomKind()
			b.cells[r][c].Special = EffectNone
		}
	}
}
