package main

import (
	"math/rand"

	"github.com/qiaoqiao/match3-server/game/engine"
)

// GreedyStrategy picks the swap with the best immediate score. Each candidate
// is replayed on a local copy of the board; refills are random, so cascade
// points are an estimate.
type GreedyStrategy struct {
	rng *rand.Rand
}

func NewGreedyStrategy(seed int64) *GreedyStrategy {
	return &GreedyStrategy{rng: rand.New(rand.NewSource(seed))}
}

// candidates lists every swap with a right or down neighbour
func candidates(rows, cols int) []engine.Move {
	moves := make([]engine.Move, 0, 2*rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if c+1 < cols {
				moves = append(moves, engine.NewMove(r, c, r, c+1))
			}
			if r+1 < rows {
				moves = append(moves, engine.NewMove(r, c, r+1, c))
			}
		}
	}
	return moves
}

// NextMove returns the best scoring swap, or false when none matches
func (s *GreedyStrategy) NextMove(snapshot *engine.Snapshot) (engine.Move, bool) {
	if snapshot == nil {
		return engine.Move{}, false
	}

	var (
		best      engine.Move
		bestScore = -1
	)
	for _, m := range candidates(snapshot.Rows, snapshot.Columns) {
		board, err := engine.RestoreBoard(snapshot, engine.WithSeed(s.rng.Int63()))
		if err != nil {
			return engine.Move{}, false
		}

		result := board.Swap(m)
		if !result.Outcome.Accepted {
			continue
		}
		if result.Outcome.ScoreDelta > bestScore {
			best = engine.NewMove(m.FromRow, m.FromCol, m.ToRow, m.ToCol)
			bestScore = result.Outcome.ScoreDelta
		}
	}

	return best, bestScore >= 0
}
