package engine

import (
	"math/rand"
	"reflect"
	"testing"
)

// scriptedSource makes rand.Intn(n) return the scripted values in order (for n > value)
type scriptedSource struct {
	values []int
	next   int
}

func (s *scriptedSource) Int63() int64 {
	v := s.values[s.next%len(s.values)]
	s.next++
	return int64(v) << 32
}

func (s *scriptedSource) Seed(int64) {}

func scripted(kinds ...TileKind) *rand.Rand {
	values := make([]int, len(kinds))
	for i, k := range kinds {
		values[i] = int(k)
	}
	return rand.New(&scriptedSource{values: values})
}

// parseLayout reads one string per row using Letter() codes
func parseLayout(t *testing.T, rows ...string) [][]TileKind {
	t.Helper()
	byLetter := make(map[byte]TileKind)
	for k := Red; k <= Orange; k++ {
		byLetter[k.Letter()] = k
	}

	layout := make([][]TileKind, len(rows))
	for r, row := range rows {
		for i := 0; i < len(row); i++ {
			if row[i] == ' ' {
				continue
			}
			k, ok := byLetter[row[i]]
			if !ok {
				t.Fatalf("unknown tile letter %q in row %d", row[i], r)
			}
			layout[r] = append(layout[r], k)
		}
	}
	return layout
}

func mustBoard(t *testing.T, movesLeft int, rng *rand.Rand, rows ...string) *Board {
	t.Helper()
	b, err := NewBoardFromKinds(parseLayout(t, rows...), movesLeft, WithTileKinds(4), WithRand(rng))
	if err != nil {
		t.Fatalf("Failed to create board: %v", err)
	}
	return b
}

func assertKinds(t *testing.T, b *Board, rows ...string) {
	t.Helper()
	want := parseLayout(t, rows...)
	if got := b.Kinds(); !reflect.DeepEqual(got, want) {
		t.Errorf("Unexpected board:\n%s\nwant:\n%v", b.Snapshot().Render(), rows)
	}
}
