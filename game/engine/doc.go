// Package engine implements the match-three board.
//
// A Board owns a rows x columns grid of Tiles. Every externally observed board is
// stable: no cell is empty and no row or column holds a run of three or more tiles
// of the same kind.
//
// Moves:
//
// SwapTiles exchanges two adjacent tiles. If the swap creates no run it is undone and
// the board is left exactly as it was. Otherwise the cascade runs until the board is
// stable again:
//
//  1. collect the union of all runs in every row and column
//  2. clear those cells, scoring each by the longest run it belongs to
//  3. let the remaining tiles fall within their column
//  4. refill empty cells with random kinds
//
// and an accepted move costs one from the move budget.
//
// Usage:
//
//	board, err := engine.NewBoard(8, 8, 20)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	move := board.Swap(engine.NewMove(3, 4, 3, 5))
//	if move.Outcome.Accepted {
//		fmt.Println(board.Score(), board.MovesLeft())
//	}
//
// Scoring:
//
// A tile cleared by a run of 3 is worth BaseUnit, by a run of 4 twice that, by a run
// of 5 or more three times that. A run of exactly 3 therefore scores 30, of 4 scores
// 80 and of 5 scores 150.
//
// Special tiles:
//
// Runs of 4, 5 and more grant RowClear, ColorBomb and Bomb. By default the grant is
// only reported in the move's Outcome. Boards built WithSpecialTiles(true) keep one
// tile of the run on the grid tagged with the effect, and when a tagged tile is later
// cleared the Resolver's affected cells are cleared with it.
//
// A Board is not safe for concurrent use; callers serialize access per board.
package engine
