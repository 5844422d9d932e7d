package schedule

import (
	"testing"
	"time"

	"github.com/lexisched/lexisched/internal/domain"
)

func TestNextDifficulty(t *testing.T) {
	testCases := []struct {
		name     string
		current  int
		quality  int
		expected int
	}{
		{name: "easy recall lowers difficulty", current: 3, quality: 5, expected: 2},
		{name: "good recall lowers difficulty", current: 3, quality: 4, expected: 2},
		{name: "effortful recall keeps difficulty", current: 3, quality: 3, expected: 3},
		{name: "hard recall raises difficulty", current: 3, quality: 2, expected: 4},
		{name: "blackout raises difficulty", current: 3, quality: 1, expected: 4},
		{name: "perfect recall at floor stays at floor", current: 1, quality: 5, expected: 1},
		{name: "blackout at ceiling stays at ceiling", current: 5, quality: 1, expected: 5},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := NextDifficulty(tc.current, tc.quality)
			if got != tc.expected {
				t.Errorf("NextDifficulty(%d, %d) = %d, want %d", tc.current, tc.quality, got, tc.expected)
			}
		})
	}
}

func TestNextDifficultyStaysInRange(t *testing.T) {
	// Any sequence of reviews must keep difficulty inside [1,5].
	d := MinDifficulty
	qualities := []int{1, 1, 1, 1, 1, 1, 5, 5, 3, 1, 4, 2, 2, 2, 2, 5, 5, 5, 5, 5, 5}
	for i, q := range qualities {
		d = NextDifficulty(d, q)
		if d < MinDifficulty || d > MaxDifficulty {
			t.Fatalf("after %d reviews difficulty is %d, outside [%d,%d]", i+1, d, MinDifficulty, MaxDifficulty)
		}
	}
}

func TestValidQuality(t *testing.T) {
	for q := -1; q <= 7; q++ {
		want := q >= 1 && q <= 5
		if got := ValidQuality(q); got != want {
			t.Errorf("ValidQuality(%d) = %v, want %v", q, got, want)
		}
	}
}

func TestDueOrdering(t *testing.T) {
	t1 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	t2 := t1.Add(48 * time.Hour)

	cards := []domain.Flashcard{
		{ID: "c", LastReviewed: &t2},
		{ID: "b", LastReviewed: &t1},
		{ID: "a"},
	}
	SortDue(cards)

	wantOrder := []string{"a", "b", "c"}
	for i, want := range wantOrder {
		if cards[i].ID != want {
			t.Fatalf("position %d: got card %q, want %q", i, cards[i].ID, want)
		}
	}
}

func TestDueOrderingTieBreaksOnID(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("same last review", func(t *testing.T) {
		a := domain.Flashcard{ID: "a", LastReviewed: &ts}
		b := domain.Flashcard{ID: "b", LastReviewed: &ts}
		if !DueBefore(a, b) || DueBefore(b, a) {
			t.Error("expected ascending id to break the tie")
		}
	})

	t.Run("both never reviewed", func(t *testing.T) {
		a := domain.Flashcard{ID: "a"}
		b := domain.Flashcard{ID: "b"}
		if !DueBefore(a, b) || DueBefore(b, a) {
			t.Error("expected ascending id to break the tie")
		}
	})
}
