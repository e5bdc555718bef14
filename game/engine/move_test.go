package engine

import "testing"

func TestMove_Direction(t *testing.T) {
	tests := []struct {
		name string
		move Move
		want Direction
	}{
		{"up", NewMove(3, 3, 2, 3), DirectionUp},
		{"down", NewMove(3, 3, 4, 3), DirectionDown},
		{"left", NewMove(3, 3, 3, 2), DirectionLeft},
		{"right", NewMove(3, 3, 3, 4), DirectionRight},
		{"same cell", NewMove(3, 3, 3, 3), DirectionInvalid},
		{"diagonal", NewMove(3, 3, 4, 4), DirectionInvalid},
		{"far", NewMove(0, 0, 0, 5), DirectionInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.move.Direction(); got != tt.want {
				t.Errorf("Direction() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestMove_IsValid(t *testing.T) {
	tests := []struct {
		name string
		move Move
		want bool
	}{
		{"adjacent inside", NewMove(0, 0, 0, 1), true},
		{"adjacent at far corner", NewMove(7, 7, 6, 7), true},
		{"negative row", NewMove(-1, 0, 0, 0), false},
		{"column past edge", NewMove(0, 7, 0, 8), false},
		{"not adjacent", NewMove(0, 0, 2, 0), false},
		{"same cell", NewMove(4, 4, 4, 4), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.move.IsValid(8, 8); got != tt.want {
				t.Errorf("IsValid(8, 8) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMove_String(t *testing.T) {
	if got := NewMove(1, 2, 1, 3).String(); got != "(1,2)->(1,3)" {
		t.Errorf("Unexpected string %q", got)
	}
}

func TestManhattanDistance(t *testing.T) {
	if d := ManhattanDistance(Position{Row: 1, Col: 1}, Position{Row: 4, Col: 0}); d != 4 {
		t.Errorf("Expected distance 4, got %d", d)
	}
}
