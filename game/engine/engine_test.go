package engine

import (
	"math/rand"
	"reflect"
	"testing"
)

func TestNewBoard(t *testing.T) {
	board, err := NewBoard(8, 8, 20, WithSeed(1))
	if err != nil {
		t.Fatalf("Failed to create board: %v", err)
	}

	if board.Rows() != 8 || board.Columns() != 8 {
		t.Errorf("Expected 8x8 board, got %dx%d", board.Rows(), board.Columns())
	}
	if board.Score() != 0 {
		t.Errorf("Expected score 0, got %d", board.Score())
	}
	if board.MovesLeft() != 20 {
		t.Errorf("Expected 20 moves left, got %d", board.MovesLeft())
	}
	if board.MovesUsed() != 0 {
		t.Errorf("Expected 0 moves used, got %d", board.MovesUsed())
	}
	if board.IsOver() {
		t.Error("New board should not be over")
	}

	ids := make(map[int]bool)
	for r := 0; r < board.Rows(); r++ {
		for c := 0; c < board.Columns(); c++ {
			tile, ok := board.Tile(r, c)
			if !ok || tile.Empty() {
				t.Fatalf("Cell (%d,%d) is empty", r, c)
			}
			if int(tile.Kind) >= DefaultKinds {
				t.Errorf("Cell (%d,%d) has kind %v outside the default kind set", r, c, tile.Kind)
			}
			if ids[tile.ID] {
				t.Errorf("Duplicate tile id %d", tile.ID)
			}
			ids[tile.ID] = true
		}
	}
}

func TestNewBoard_InvalidArguments(t *testing.T) {
	tests := []struct {
		name    string
		rows    int
		columns int
		opts    []Option
	}{
		{"zero rows", 0, 8, nil},
		{"negative columns", 8, -1, nil},
		{"too few kinds", 8, 8, []Option{WithTileKinds(3)}},
		{"too many kinds", 8, 8, []Option{WithTileKinds(10)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewBoard(tt.rows, tt.columns, 10, tt.opts...); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestNewBoard_StableForManySeeds(t *testing.T) {
	for seed := int64(0); seed < 200; seed++ {
		board, err := NewBoard(8, 8, 20, WithSeed(seed), WithTileKinds(4))
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		if board.HasMatches() {
			t.Fatalf("seed %d: initial board has a run:\n%s", seed, board.Snapshot().Render())
		}
	}
}

func TestNewBoardFromKinds(t *testing.T) {
	t.Run("rejects ragged layout", func(t *testing.T) {
		_, err := NewBoardFromKinds([][]TileKind{{Red, Blue}, {Red}}, 5)
		if err == nil {
			t.Error("Expected error for ragged layout")
		}
	})

	t.Run("rejects unstable layout", func(t *testing.T) {
		_, err := NewBoardFromKinds([][]TileKind{{Red, Red, Red}}, 5)
		if err == nil {
			t.Error("Expected error for layout with a run")
		}
	})

	t.Run("assigns ids row by row", func(t *testing.T) {
		board := mustBoard(t, 5, nil, "RB", "BR")
		tile, _ := board.Tile(1, 0)
		if tile.ID != 2 {
			t.Errorf("Expected id 2, got %d", tile.ID)
		}
	})
}

func TestBoard_StabilityAfterEverySwap(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for game := 0; game < 20; game++ {
		board, err := NewBoard(6, 6, 1000, WithSeed(int64(game)), WithTileKinds(4))
		if err != nil {
			t.Fatal(err)
		}

		for i := 0; i < 200; i++ {
			r1, c1 := rng.Intn(6), rng.Intn(6)
			r2, c2 := r1, c1
			if rng.Intn(2) == 0 {
				r2 += rng.Intn(3) - 1
			} else {
				c2 += rng.Intn(3) - 1
			}

			board.SwapTiles(r1, c1, r2, c2)
			if board.HasMatches() {
				t.Fatalf("game %d move %d: board has a run after swap:\n%s", game, i, board.Snapshot().Render())
			}
			for r := 0; r < 6; r++ {
				for c := 0; c < 6; c++ {
					if tile, _ := board.Tile(r, c); tile.Empty() {
						t.Fatalf("game %d move %d: cell (%d,%d) left empty", game, i, r, c)
					}
				}
			}
		}
	}
}

func TestBoard_RollbackOnNoMatch(t *testing.T) {
	board := mustBoard(t, 10, nil,
		"RBR",
		"BRB",
		"RBR",
	)
	before := board.Snapshot()

	if board.SwapTiles(0, 0, 0, 1) {
		t.Fatal("Expected swap without a match to be rejected")
	}

	if !reflect.DeepEqual(before, board.Snapshot()) {
		t.Errorf("Board changed after rejected swap:\n%s", board.Snapshot().Render())
	}
	if board.MovesLeft() != 10 {
		t.Errorf("Expected moves to stay at 10, got %d", board.MovesLeft())
	}
}

func TestBoard_NonAdjacentRejection(t *testing.T) {
	tests := []struct {
		name           string
		r1, c1, r2, c2 int
	}{
		{"same cell", 1, 1, 1, 1},
		{"diagonal", 0, 0, 1, 1},
		{"two apart in a row", 0, 0, 0, 2},
		{"two apart in a column", 0, 1, 2, 1},
		{"first out of bounds", -1, 0, 0, 0},
		{"second out of bounds", 2, 2, 2, 3},
		{"both out of bounds and adjacent", 5, 5, 5, 6},
		{"out of bounds below", 3, 0, 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			board := mustBoard(t, 10, nil,
				"RRB",
				"BBR",
				"RGB",
			)
			before := board.Snapshot()

			if board.SwapTiles(tt.r1, tt.c1, tt.r2, tt.c2) {
				t.Error("Expected swap to be rejected")
			}
			if !reflect.DeepEqual(before, board.Snapshot()) {
				t.Error("Board mutated by rejected swap")
			}
		})
	}
}

func TestBoard_MonotonicScoreAndMoves(t *testing.T) {
	board, err := NewBoard(8, 8, 50, WithSeed(42), WithTileKinds(5))
	if err != nil {
		t.Fatal(err)
	}

	accepted := 0
	for i := 0; i < 60 && !board.IsOver(); i++ {
		scoreBefore, movesBefore := board.Score(), board.MovesLeft()

		var ok bool
		if m, found := board.FindLegalMove(); found && i%3 != 0 {
			ok = board.SwapTiles(m.FromRow, m.FromCol, m.ToRow, m.ToCol)
		} else {
			ok = board.SwapTiles(i%8, 0, i%8, 1)
		}

		if board.Score() < scoreBefore {
			t.Fatalf("Score decreased from %d to %d", scoreBefore, board.Score())
		}
		want := movesBefore
		if ok {
			want--
			accepted++
			if board.Score() == scoreBefore {
				t.Errorf("Accepted move did not add score")
			}
		}
		if board.MovesLeft() != want {
			t.Fatalf("Expected %d moves left, got %d (accepted=%v)", want, board.MovesLeft(), ok)
		}
	}

	if accepted == 0 {
		t.Error("Expected at least one accepted move")
	}
	if board.MovesUsed() != accepted {
		t.Errorf("Expected %d moves used, got %d", accepted, board.MovesUsed())
	}
}

func TestBoard_ScoringExamples(t *testing.T) {
	t.Run("run of 3 scores 30", func(t *testing.T) {
		board := mustBoard(t, 10, scripted(Yellow, Green, Red),
			"RRB",
			"GBR",
			"BGY",
		)

		move := board.Swap(NewMove(0, 2, 1, 2))
		if !move.Outcome.Accepted {
			t.Fatal("Expected swap to be accepted")
		}
		if board.Score() != 30 {
			t.Errorf("Expected score 30, got %d", board.Score())
		}
		if move.Outcome.TilesMatched != 3 || move.Outcome.Cascades != 1 {
			t.Errorf("Unexpected outcome %+v", move.Outcome)
		}
		if move.Outcome.SpecialEffect != EffectNone {
			t.Errorf("Expected no special effect, got %v", move.Outcome.SpecialEffect)
		}
		assertKinds(t, board,
			"YGR",
			"GBB",
			"BGY",
		)
		if board.MovesLeft() != 9 {
			t.Errorf("Expected 9 moves left, got %d", board.MovesLeft())
		}
	})

	t.Run("run of 4 scores 80", func(t *testing.T) {
		board := mustBoard(t, 10, scripted(Yellow, Green, Red, Blue),
			"RRBR",
			"GBRY",
			"BGYG",
		)

		move := board.Swap(NewMove(0, 2, 1, 2))
		if board.Score() != 80 {
			t.Errorf("Expected score 80, got %d", board.Score())
		}
		if move.Outcome.SpecialEffect != EffectRowClear {
			t.Errorf("Expected row clear grant, got %v", move.Outcome.SpecialEffect)
		}
	})

	t.Run("run of 5 scores 150", func(t *testing.T) {
		board := mustBoard(t, 10, scripted(Yellow, Green, Red, Blue, Yellow),
			"RRBRR",
			"GBRYG",
			"BGYGB",
		)

		move := board.Swap(NewMove(0, 2, 1, 2))
		if board.Score() != 150 {
			t.Errorf("Expected score 150, got %d", board.Score())
		}
		if move.Outcome.SpecialEffect != EffectColorBomb {
			t.Errorf("Expected color bomb grant, got %v", move.Outcome.SpecialEffect)
		}
		if board.HasMatches() {
			t.Error("Board should be stable")
		}
	})

	t.Run("run lengths", func(t *testing.T) {
		for n, want := range map[int]int{3: 30, 4: 80, 5: 150, 6: 180} {
			if got := ScoreForRun(n); got != want {
				t.Errorf("ScoreForRun(%d) = %d, want %d", n, got, want)
			}
		}
	})
}

func TestBoard_CrossingRunsShareTile(t *testing.T) {
	// Row 2 becomes RRRR and column 1 RRR; (2,1) belongs to both
	board := mustBoard(t, 10, scripted(Blue, Yellow, Red, Blue, Red, Red),
		"GRBYG",
		"YRGBY",
		"RBRRG",
		"GRYGB",
	)

	move := board.Swap(NewMove(2, 1, 3, 1))
	if !move.Outcome.Accepted {
		t.Fatal("Expected swap to be accepted")
	}
	if move.Outcome.Cascades != 1 {
		t.Errorf("Expected 1 cascade pass, got %d", move.Outcome.Cascades)
	}
	if move.Outcome.TilesMatched != 6 {
		t.Errorf("Expected 6 distinct tiles matched, got %d", move.Outcome.TilesMatched)
	}
	// Four cells at the run-of-4 rate plus two at the base rate, not 80+30
	want := 4*BaseUnit*2 + 2*BaseUnit
	if move.Outcome.ScoreDelta != want || board.Score() != want {
		t.Errorf("Expected score delta %d, got %d (board %d)", want, move.Outcome.ScoreDelta, board.Score())
	}
	if move.Outcome.SpecialEffect != EffectFor(4) {
		t.Errorf("Expected effect of the longer run, got %v", move.Outcome.SpecialEffect)
	}
	assertKinds(t, board,
		"BYRBG",
		"GRBYY",
		"YRGBG",
		"GBYGB",
	)
}

func TestBoard_CascadeChain(t *testing.T) {
	// Clearing column 0 drops the yellow from (1,0) into row 4 next to two yellows.
	board := mustBoard(t, 10, scripted(Yellow, Green, Red, Red, Yellow, Green),
		"GBR",
		"YRB",
		"RGB",
		"RBG",
		"YRY",
	)

	move := board.Swap(NewMove(4, 0, 4, 1))
	if !move.Outcome.Accepted {
		t.Fatal("Expected swap to be accepted")
	}
	if move.Outcome.Cascades != 2 {
		t.Errorf("Expected 2 cascade passes, got %d", move.Outcome.Cascades)
	}
	if board.Score() != 60 {
		t.Errorf("Expected score 60 from two runs of 3, got %d", board.Score())
	}
	if move.Outcome.TilesMatched != 6 {
		t.Errorf("Expected 6 tiles matched, got %d", move.Outcome.TilesMatched)
	}
	if board.HasMatches() {
		t.Errorf("Board should be stable:\n%s", board.Snapshot().Render())
	}
	assertKinds(t, board,
		"RYG",
		"YBR",
		"GRB",
		"RGB",
		"GBG",
	)
	if board.MovesLeft() != 9 {
		t.Errorf("Cascade should cost one move, got %d left", board.MovesLeft())
	}
}

func TestBoard_GravityKeepsTileIdentity(t *testing.T) {
	board := mustBoard(t, 10, scripted(Yellow, Green, Red, Red, Yellow, Green),
		"GBR",
		"YRB",
		"RGB",
		"RBG",
		"YRY",
	)
	fallen, _ := board.Tile(0, 0)

	board.SwapTiles(4, 0, 4, 1)

	// The green from the top of column 0 fell three rows, then one more after the second pass.
	tile, _ := board.Tile(4, 0)
	if tile.ID != fallen.ID {
		t.Errorf("Expected tile %d at (4,0), got %d", fallen.ID, tile.ID)
	}
}

func TestBoard_IsOver(t *testing.T) {
	board := mustBoard(t, 1, scripted(Yellow, Green, Red),
		"RRB",
		"GBR",
		"BGY",
	)
	if board.IsOver() {
		t.Fatal("Board should not be over yet")
	}
	board.SwapTiles(0, 2, 1, 2)
	if !board.IsOver() {
		t.Error("Board should be over with 0 moves left")
	}
}

func TestBoard_FindLegalMove(t *testing.T) {
	t.Run("finds the swap", func(t *testing.T) {
		board := mustBoard(t, 10, nil,
			"RRB",
			"GBR",
			"BGY",
		)
		move, ok := board.FindLegalMove()
		if !ok {
			t.Fatal("Expected a legal move")
		}
		if !board.HasAnyLegalMove() {
			t.Error("HasAnyLegalMove disagrees with FindLegalMove")
		}

		before := board.Snapshot()
		if !board.Swap(move).Outcome.Accepted {
			t.Errorf("Suggested move %v was not accepted (board before:\n%s)", move, before.Render())
		}
	})

	t.Run("stalemate", func(t *testing.T) {
		board := mustBoard(t, 10, nil,
			"RB",
			"GY",
		)
		if board.HasAnyLegalMove() {
			t.Error("2x2 board cannot have a legal move")
		}
	})

	t.Run("does not mutate", func(t *testing.T) {
		board, _ := NewBoard(8, 8, 20, WithSeed(3))
		before := board.Snapshot()
		board.HasAnyLegalMove()
		if !reflect.DeepEqual(before, board.Snapshot()) {
			t.Error("HasAnyLegalMove mutated the board")
		}
	})
}

func TestBoard_Reshuffle(t *testing.T) {
	board, err := NewBoard(8, 8, 20, WithSeed(11))
	if err != nil {
		t.Fatal(err)
	}
	board.SwapTiles(0, 0, 0, 1)
	score, moves := board.Score(), board.MovesLeft()

	board.Reshuffle()

	if board.HasMatches() {
		t.Error("Reshuffled board has a run")
	}
	if !board.HasAnyLegalMove() {
		t.Error("Reshuffled 8x8 board should have a legal move")
	}
	if board.Score() != score || board.MovesLeft() != moves {
		t.Error("Reshuffle changed score or moves")
	}
}

func TestRestoreBoard(t *testing.T) {
	board, err := NewBoard(6, 7, 15, WithSeed(5))
	if err != nil {
		t.Fatal(err)
	}
	if m, ok := board.FindLegalMove(); ok {
		board.Swap(m)
	}
	snapshot := board.Snapshot()

	restored, err := RestoreBoard(snapshot)
	if err != nil {
		t.Fatalf("Failed to restore board: %v", err)
	}
	if !reflect.DeepEqual(snapshot, restored.Snapshot()) {
		t.Error("Restored board differs from snapshot")
	}

	t.Run("rejects empty cells", func(t *testing.T) {
		broken := board.Snapshot()
		broken.Tiles[0][0].Kind = NoKind
		if _, err := RestoreBoard(broken); err == nil {
			t.Error("Expected error for empty cell")
		}
	})
}

func TestBoard_SameSeedSameGame(t *testing.T) {
	a, _ := NewBoard(8, 8, 20, WithSeed(99))
	b, _ := NewBoard(8, 8, 20, WithSeed(99))

	for i := 0; i < 10; i++ {
		m, ok := a.FindLegalMove()
		if !ok {
			break
		}
		a.Swap(m)
		b.Swap(m)
	}

	if !reflect.DeepEqual(a.Snapshot(), b.Snapshot()) {
		t.Error("Boards with the same seed and moves diverged")
	}
}
