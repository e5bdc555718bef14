package engine

import (
	"fmt"
	"strings"
)

// TileKind identifies the color of a tile
type TileKind int

// The fixed kind set. A preset plays with the first TileKinds of these.
const (
	Red TileKind = iota
	Blue
	Green
	Yellow
	Purple
	White
	Black
	Brown
	Orange
)

// NoKind marks a cell emptied during cascade resolution
const NoKind TileKind = -1

const (
	// Validation constants
	MinBoardSize     = 3
	MaxBoardSize     = 20
	MinTileKinds     = 4
	MaxTileKinds     = 9
	MinMoves         = 1
	MaxMoves         = 500
	DefaultRows      = 8
	DefaultColumns   = 8
	DefaultMoves     = 20
	DefaultKinds     = 6
	MinMatchLength   = 3
	BaseUnit         = 10
	maxCascadePasses = 1000
)

var tileKindNames = [...]string{"red", "blue", "green", "yellow", "purple", "white", "black", "brown", "orange"}

// Letters are unique per kind; black and brown borrow K and N.
var tileKindLetters = [...]byte{'R', 'B', 'G', 'Y', 'P', 'W', 'K', 'N', 'O'}

// String returns the lowercase color name
func (k TileKind) String() string {
	if k >= 0 && int(k) < len(tileKindNames) {
		return tileKindNames[k]
	}
	if k == NoKind {
		return "empty"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Letter returns a single-character representation used in text renderings
func (k TileKind) Letter() byte {
	if k >= 0 && int(k) < len(tileKindLetters) {
		return tileKindLetters[k]
	}
	return '.'
}

// ImagePath returns the asset path clients use to draw the kind
func (k TileKind) ImagePath() string {
	return "/images/tiles/" + k.String() + ".png"
}

func (k TileKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *TileKind) UnmarshalText(text []byte) error {
	kind, err := ParseTileKind(string(text))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// ParseTileKind parses a color name
func ParseTileKind(name string) (TileKind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "empty" {
		return NoKind, nil
	}
	for i, n := range tileKindNames {
		if n == name {
			return TileKind(i), nil
		}
	}
	return NoKind, fmt.Errorf("unknown tile kind %q", name)
}

// EffectKind is the special effect a tile carries
type EffectKind int

const (
	EffectNone EffectKind = iota
	EffectRowClear
	EffectColumnClear
	EffectBomb
	EffectColorBomb
)

var effectNames = [...]string{"none", "row_clear", "column_clear", "bomb", "color_bomb"}

func (e EffectKind) String() string {
	if e >= 0 && int(e) < len(effectNames) {
		return effectNames[e]
	}
	return fmt.Sprintf("effect(%d)", int(e))
}

func (e EffectKind) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

func (e *EffectKind) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	if s == "" {
		*e = EffectNone
		return nil
	}
	for i, n := range effectNames {
		if n == s {
			*e = EffectKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown effect kind %q", s)
}

// Tile is a single grid cell occupant
type Tile struct {
	ID      int        `json:"id"`
	Kind    TileKind   `json:"kind"`
	Special EffectKind `json:"special,omitempty"`
}

// Empty reports whether the cell was cleared and not yet refilled
func (t Tile) Empty() bool {
	return t.Kind == NoKind
}

// Position represents row,col coordinates
type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Snapshot is a deep copy of a board safe to share outside the session lock
type Snapshot struct {
	Rows      int      `json:"rows"`
	Columns   int      `json:"columns"`
	Tiles     [][]Tile `json:"tiles"`
	Score     int      `json:"score"`
	MovesLeft int      `json:"moves_left"`
	MovesUsed int      `json:"moves_used"`
	NextID    int      `json:"next_id"`
}

// Render draws the snapshot as one letter per tile, one line per row
func (s *Snapshot) Render() string {
	var b strings.Builder
	for r, row := range s.Tiles {
		for c, t := range row {
			if c > 0 {
				b.WriteByte(' ')
			}
			b.WriteByte(t.Kind.Letter())
		}
		if r < len(s.Tiles)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// GameConfig is a board preset loaded from JSON
type GameConfig struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	// Mode only tags score records for the per-mode leaderboard; there is no clock
	Mode         string `json:"mode"`
	Rows         int    `json:"rows"`
	Columns      int    `json:"columns"`
	Moves        int    `json:"moves"`
	TileKinds    int    `json:"tile_kinds"`
	SpecialTiles bool   `json:"special_tiles"`
}

// DefaultConfig returns the classic 8x8, 20 move preset
func DefaultConfig() *GameConfig {
	return &GameConfig{
		Name:        "classic",
		Description: "Classic 8x8 board with 20 moves",
		Mode:        "classic",
		Rows:        DefaultRows,
		Columns:     DefaultColumns,
		Moves:       DefaultMoves,
		TileKinds:   DefaultKinds,
	}
}
