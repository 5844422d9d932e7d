package schedule

import (
	"sort"

	"github.com/lexisched/lexisched/internal/domain"
)

// Difficulty and quality bounds.
const (
	MinDifficulty = 1
	MaxDifficulty = 5
	MinQuality    = 1
	MaxQuality    = 5
)

// Named quality ratings, matching the 1-5 scale users answer with.
const (
	QualityBlackout  = 1 // no recall at all
	QualityHard      = 2 // recognized the answer but could not produce it
	QualityEffortful = 3 // correct with significant effort
	QualityGood      = 4 // correct after brief hesitation
	QualityPerfect   = 5 // instant recall
)

// ValidQuality reports whether q is a usable quality rating.
func ValidQuality(q int) bool {
	return q >= MinQuality && q <= MaxQuality
}

// NextDifficulty converts a recall self-assessment into the card's next
// difficulty. An easy recall (quality 4-5) lowers difficulty so the card
// appears less often; a failed recall (quality 1-2) raises it so the card
// comes back sooner; quality 3 leaves it unchanged. The result is always
// clamped to [MinDifficulty, MaxDifficulty].
func NextDifficulty(current, quality int) int {
	next := current
	switch {
	case quality >= QualityGood:
		next--
	case quality <= QualityHard:
		next++
	}
	if next < MinDifficulty {
		next = MinDifficulty
	}
	if next > MaxDifficulty {
		next = MaxDifficulty
	}
	return next
}

// DueBefore reports whether card a should be presented before card b in a
// learning session. Never-reviewed cards come first, then cards by oldest
// last review; ties break on ascending id so the order is deterministic.
func DueBefore(a, b domain.Flashcard) bool {
	switch {
	case a.LastReviewed == nil && b.LastReviewed != nil:
		return true
	case a.LastReviewed != nil && b.LastReviewed == nil:
		return false
	case a.LastReviewed != nil && b.LastReviewed != nil &&
		!a.LastReviewed.Equal(*b.LastReviewed):
		return a.LastReviewed.Before(*b.LastReviewed)
	}
	return a.ID < b.ID
}

// SortDue orders cards in session presentation order, most due first.
func SortDue(cards []domain.Flashcard) {
	sort.Slice(cards, func(i, j int) bool {
		return DueBefore(cards[i], cards[j])
	})
}
