package trivia

import "errors"

var (
	// ErrAlreadyInProgress is returned when the chat already has a round running
	// or being finalized.
	ErrAlreadyInProgress = errors.New("a round is already in progress")
	// ErrNoActiveRound is returned when an answer arrives and no question is open.
	ErrNoActiveRound = errors.New("no active question")
	// ErrWindowExpired is returned when an answer arrives after the deadline or
	// after finalization took its snapshot.
	ErrWindowExpired = errors.New("answer window has closed")
	// ErrAlreadyAnswered is returned for every answer after a player's first.
	ErrAlreadyAnswered = errors.New("already answered this question")
	// ErrInvalidLabel is returned for answers other than A, B, C or D.
	ErrInvalidLabel = errors.New("answer must be A, B, C or D")
	// ErrSourceUnavailable wraps question source failures at round start.
	ErrSourceUnavailable = errors.New("question source unavailable")
)
