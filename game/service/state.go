package service

import "fmt"

// State is the lifecycle state of a session
type State int

const (
	StateReady State = iota
	StatePlaying
	StatePaused
	StateGameOver
)

var stateNames = [...]string{"ready", "playing", "paused", "game_over"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// CanMove reports whether moves are evaluated in this state
func (s State) CanMove() bool {
	return s == StateReady || s == StatePlaying
}

// CanPause reports whether the session may be paused
func (s State) CanPause() bool {
	return s == StatePlaying
}

// CanResume reports whether the session may be resumed
func (s State) CanResume() bool {
	return s == StatePaused
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}
