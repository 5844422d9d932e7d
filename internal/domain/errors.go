package domain

import "errors"

// Sentinel errors shared by the engine and the store.
// Use errors.Is to check: errors.Is(err, domain.ErrNotFound)
var (
	// ErrInvalidInput marks malformed input (rating out of range, empty
	// ids, empty card text). Never worth retrying.
	ErrInvalidInput = errors.New("lexisched: invalid input")

	// ErrNotFound is returned both when a card does not exist and when it
	// belongs to another user, so a caller cannot probe for other users'
	// cards.
	ErrNotFound = errors.New("lexisched: flashcard not found")

	// ErrConflict marks a lost update: the card changed since the caller
	// read it. Re-read and resubmit to retry.
	ErrConflict = errors.New("lexisched: flashcard was modified concurrently")

	// ErrUnavailable marks a store timeout or cancellation. Safe to retry
	// with backoff using the same logical request.
	ErrUnavailable = errors.New("lexisched: store unavailable")
)
