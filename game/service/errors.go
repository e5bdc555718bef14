package service

import "errors"

var (
	// ErrSessionNotFound is returned for unknown or expired session ids
	ErrSessionNotFound = errors.New("session not found")
	// ErrIllegalState is returned when the session state forbids the operation
	ErrIllegalState = errors.New("illegal session state")
	// ErrInvalidMove is returned for out-of-bounds or non-adjacent coordinates
	ErrInvalidMove = errors.New("invalid move")
	// ErrScoreRecordingFailed wraps score store failures after a game over. It is logged, never returned.
	ErrScoreRecordingFailed = errors.New("score recording failed")
	// ErrUserNotFound is returned by a UserStore for unknown account ids
	ErrUserNotFound = errors.New("user not found")
)
