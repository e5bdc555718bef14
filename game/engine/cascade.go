package engine

// run is a maximal line of same-kind tiles
type run struct {
	kind  TileKind
	cells []Position
}

// reshuffleAttempts bounds the search for a reshuffle that also leaves a legal move
const reshuffleAttempts = 100

// SwapTiles swaps two adjacent tiles and resolves the cascade.
// It returns false, leaving the board untouched, when the cells are out of bounds,
// not adjacent, or the swap produces no match.
func (b *Board) SwapTiles(r1, c1, r2, c2 int) bool {
	return b.Swap(NewMove(r1, c1, r2, c2)).Outcome.Accepted
}

// Swap is SwapTiles returning the resolved move with its outcome filled in
func (b *Board) Swap(m Move) Move {
	m.Outcome = Outcome{}

	// Bounds before adjacency
	if !m.InBounds(b.rows, b.columns) || !m.IsAdjacent() {
		return m
	}

	from, to := m.From(), m.To()
	b.exchange(from, to)

	runs := b.findRuns()
	if len(runs) == 0 {
		b.exchange(from, to)
		return m
	}

	m.Outcome = b.resolve(runs, []Position{from, to})
	m.Outcome.Accepted = true
	b.movesLeft--
	return m
}

// HasMatches reports whether any row or column holds a run
func (b *Board) HasMatches() bool {
	for r := 0; r < b.rows; r++ {
		for c := 0; c < b.columns; c++ {
			k := b.cells[r][c].Kind
			if k == NoKind {
				continue
			}
			if c+2 < b.columns && b.cells[r][c+1].Kind == k && b.cells[r][c+2].Kind == k {
				return true
			}
			if r+2 < b.rows && b.cells[r+1][c].Kind == k && b.cells[r+2][c].Kind == k {
				return true
			}
		}
	}
	return false
}

// HasAnyLegalMove reports whether some adjacent swap would produce a match
func (b *Board) HasAnyLegalMove() bool {
	_, ok := b.FindLegalMove()
	return ok
}

// FindLegalMove returns the first adjacent swap, scanning right then down, that produces a match
func (b *Board) FindLegalMove() (Move, bool) {
	for r := 0; r < b.rows; r++ {
		for c := 0; c < b.columns; c++ {
			if c+1 < b.columns && b.swapMatches(Position{r, c}, Position{r, c + 1}) {
				return NewMove(r, c, r, c+1), true
			}
			if r+1 < b.rows && b.swapMatches(Position{r, c}, Position{r + 1, c}) {
				return NewMove(r, c, r+1, c), true
			}
		}
	}
	return Move{}, false
}

// Reshuffle re-randomizes every kind in place until the board is stable and, when
// the board allows it, has a legal move. Score and moves are untouched.
func (b *Board) Reshuffle() {
	for attempt := 0; ; attempt++ {
		b.randomizeKinds()
		if b.HasMatches() {
			continue
		}
		if attempt >= reshuffleAttempts || b.HasAnyLegalMove() {
			return
		}
	}
}

func (b *Board) swapMatches(p, q Position) bool {
	b.exchange(p, q)
	defer b.exchange(p, q)
	return b.HasMatches()
}

func (b *Board) exchange(p, q Position) {
	b.cells[p.Row][p.Col], b.cells[q.Row][q.Col] = b.cells[q.Row][q.Col], b.cells[p.Row][p.Col]
}

// resolve clears, collapses and refills until no run is left
func (b *Board) resolve(runs []run, swapped []Position) Outcome {
	var out Outcome
	longest := 0

	for pass := 0; len(runs) > 0; pass++ {
		if pass == maxCascadePasses {
			b.Reshuffle()
			break
		}
		out.Cascades++

		// Longest run through each matched cell decides its multiplier
		matched := make(map[Position]int)
		for _, rn := range runs {
			n := len(rn.cells)
			for _, p := range rn.cells {
				if n > matched[p] {
					matched[p] = n
				}
			}
			if n > longest {
				longest = n
				out.SpecialEffect = EffectFor(n)
			}
		}

		var kept map[Position]EffectKind
		if b.specialTiles {
			kept = b.anchors(runs, swapped)
			b.detonate(matched, kept)
		}

		for p, n := range matched {
			out.ScoreDelta += BaseUnit * multiplier(n)
			if _, ok := kept[p]; ok {
				continue
			}
			b.cells[p.Row][p.Col] = Tile{Kind: NoKind}
		}
		out.TilesMatched += len(matched)
		for p, effect := range kept {
			b.cells[p.Row][p.Col].Special = effect
		}

		b.collapse()
		b.refill()

		swapped = nil
		runs = b.findRuns()
	}

	b.score += out.ScoreDelta
	return out
}

// findRuns scans rows then columns for maximal runs
func (b *Board) findRuns() []run {
	var runs []run

	for r := 0; r < b.rows; r++ {
		start := 0
		for c := 1; c <= b.columns; c++ {
			if c < b.columns && b.cells[r][c].Kind == b.cells[r][start].Kind {
				continue
			}
			if n := c - start; n >= MinMatchLength && !b.cells[r][start].Empty() {
				rn := run{kind: b.cells[r][start].Kind, cells: make([]Position, n)}
				for i := range rn.cells {
					rn.cells[i] = Position{Row: r, Col: start + i}
				}
				runs = append(runs, rn)
			}
			start = c
		}
	}

	for c := 0; c < b.columns; c++ {
		start := 0
		for r := 1; r <= b.rows; r++ {
			if r < b.rows && b.cells[r][c].Kind == b.cells[start][c].Kind {
				continue
			}
			if n := r - start; n >= MinMatchLength && !b.cells[start][c].Empty() {
				rn := run{kind: b.cells[start][c].Kind, cells: make([]Position, n)}
				for i := range rn.cells {
					rn.cells[i] = Position{Row: start + i, Col: c}
				}
				runs = append(runs, rn)
			}
			start = r
		}
	}

	return runs
}

// collapse compacts each column downward, preserving order
func (b *Board) collapse() {
	for c := 0; c < b.columns; c++ {
		write := b.rows - 1
		for r := b.rows - 1; r >= 0; r-- {
			if b.cells[r][c].Empty() {
				continue
			}
			if write != r {
				b.cells[write][c] = b.cells[r][c]
			}
			write--
		}
		for ; write >= 0; write-- {
			b.cells[write][c] = Tile{Kind: NoKind}
		}
	}
}

// refill fills empty cells top-down, left to right
func (b *Board) refill() {
	for r := 0; r < b.rows; r++ {
		for c := 0; c < b.columns; c++ {
			if b.cells[r][c].Empty() {
				b.cells[r][c] = Tile{ID: b.nextID, Kind: b.randomKind()}
				b.nextID++
			}
		}
	}
}

// anchors picks, for every run long enough to grant an effect, the cell that keeps
// its tile as the special one. A swapped cell inside the run is preferred.
func (b *Board) anchors(runs []run, swapped []Position) map[Position]EffectKind {
	kept := make(map[Position]EffectKind)
	for _, rn := range runs {
		effect := EffectFor(len(rn.cells))
		if effect == EffectNone {
			continue
		}

		candidates := make([]Position, 0, len(swapped)+len(rn.cells))
		for _, p := range swapped {
			if rn.contains(p) {
				candidates = append(candidates, p)
			}
		}
		candidates = append(candidates, rn.cells...)

		for _, p := range candidates {
			if _, taken := kept[p]; taken {
				continue
			}
			if b.cells[p.Row][p.Col].Special != EffectNone {
				continue
			}
			kept[p] = effect
			break
		}
	}
	return kept
}

// detonate adds every cell reached by consumed special tiles to matched,
// following chains through specials reached along the way. Effect-only cells
// are stored with a run length of zero.
func (b *Board) detonate(matched map[Position]int, kept map[Position]EffectKind) {
	var queue []Position
	for r := 0; r < b.rows; r++ {
		for c := 0; c < b.columns; c++ {
			p := Position{Row: r, Col: c}
			if _, ok := matched[p]; ok && b.cells[r][c].Special != EffectNone {
				queue = append(queue, p)
			}
		}
	}

	triggered := make(map[Position]bool)
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		if triggered[p] {
			continue
		}
		triggered[p] = true

		t := b.cells[p.Row][p.Col]
		for _, q := range b.resolver.Affected(b, p.Row, p.Col, t.Special, t.Kind) {
			if _, ok := kept[q]; ok {
				continue
			}
			if _, ok := matched[q]; !ok {
				matched[q] = 0
			}
			if b.cells[q.Row][q.Col].Special != EffectNone && !triggered[q] {
				queue = append(queue, q)
			}
		}
	}
}

func (rn run) contains(p Position) bool {
	for _, q := range rn.cells {
		if q == p {
			return true
		}
	}
	return false
}
