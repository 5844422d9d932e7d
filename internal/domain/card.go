package domain

import "time"

// Flashcard is a single bilingual card, exclusively owned by one user.
// Difficulty runs from 1 (easy, shown less often) to 5 (hard, shown sooner).
type Flashcard struct {
	ID          string
	OwnerID     string
	FrontText   string
	BackText    string
	Note        string
	Difficulty  int
	ReviewCount int
	// LastReviewed is nil until the card's first review.
	LastReviewed *time.Time
	// Version is bumped by the store on every mutation. Mutating with a
	// stale version fails with ErrConflict.
	Version   int64
	CreatedAt time.Time
	// Fingerprint and SourceID are set only for cards created by deck
	// import; hand-created cards leave them zero.
	Fingerprint string
	SourceID    *int64
}

// CardContent is the authored text of a card before it is stored.
type CardContent struct {
	FrontText string
	BackText  string
	Note      string
}

// ReviewEvent records one completed review of one card by one user.
// Events are append-only and are deleted only when their card is deleted.
type ReviewEvent struct {
	UserID string
	CardID string
	// Quality is the user's 1-5 self-assessment of recall.
	Quality int
	// ResponseTime is zero when the integrator did not measure it.
	ResponseTime time.Duration
	Timestamp    time.Time
}
