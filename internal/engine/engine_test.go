package engine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lexisched/lexisched/internal/domain"
	"github.com/lexisched/lexisched/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestEngine(t *testing.T) (*Engine, *storage.DB) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "engine_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, db), db
}

func mustCreateCard(t *testing.T, e *Engine, userID, front, back string) *domain.Flashcard {
	t.Helper()
	card, err := e.CreateCard(context.Background(), CardInput{
		UserID:    userID,
		FrontText: front,
		BackText:  back,
	})
	require.NoError(t, err)
	return card
}

func TestCreateCardInitialState(t *testing.T) {
	e, db := newTestEngine(t)

	card := mustCreateCard(t, e, "alice", "der Hund", "the dog")
	assert.Equal(t, 1, card.Difficulty)
	assert.Equal(t, 0, card.ReviewCount)
	assert.Nil(t, card.LastReviewed)

	stored, err := db.GetCard(context.Background(), card.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "alice", stored.OwnerID)
	assert.Equal(t, "der Hund", stored.FrontText)
}

func TestCreateCardValidation(t *testing.T) {
	e, _ := newTestEngine(t)

	testCases := []struct {
		name string
		in   CardInput
	}{
		{name: "empty user", in: CardInput{FrontText: "a", BackText: "b"}},
		{name: "empty front", in: CardInput{UserID: "alice", BackText: "b"}},
		{name: "empty back", in: CardInput{UserID: "alice", FrontText: "a"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.CreateCard(context.Background(), tc.in)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestSubmitReviewScenario(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	card := mustCreateCard(t, e, "alice", "die Katze", "the cat")

	// Easy recall on a floor-difficulty card stays at the floor.
	got, err := e.SubmitReview(ctx, ReviewRequest{UserID: "alice", CardID: card.ID, Quality: 5})
	require.NoError(t, err)
	assert.Equal(t, 1, got.Difficulty)
	assert.Equal(t, 1, got.ReviewCount)
	require.NotNil(t, got.LastReviewed)

	// Blackout raises difficulty.
	got, err = e.SubmitReview(ctx, ReviewRequest{UserID: "alice", CardID: card.ID, Quality: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, got.Difficulty)
	assert.Equal(t, 2, got.ReviewCount)

	// Quality 3 leaves difficulty untouched.
	got, err = e.SubmitReview(ctx, ReviewRequest{UserID: "alice", CardID: card.ID, Quality: 3})
	require.NoError(t, err)
	assert.Equal(t, 2, got.Difficulty)
	assert.Equal(t, 3, got.ReviewCount)
}

func TestSubmitReviewClamping(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	card := mustCreateCard(t, e, "alice", "schwierig", "difficult")

	// Push the card to the ceiling, then past it.
	for i := 0; i < 6; i++ {
		got, err := e.SubmitReview(ctx, ReviewRequest{UserID: "alice", CardID: card.ID, Quality: 1})
		require.NoError(t, err)
		assert.LessOrEqual(t, got.Difficulty, 5)
		assert.GreaterOrEqual(t, got.Difficulty, 1)
	}

	got, err := e.SubmitReview(ctx, ReviewRequest{UserID: "alice", CardID: card.ID, Quality: 1})
	require.NoError(t, err)
	assert.Equal(t, 5, got.Difficulty, "ceiling must hold")

	// And back down to the floor, then past it.
	for i := 0; i < 7; i++ {
		_, err := e.SubmitReview(ctx, ReviewRequest{UserID: "alice", CardID: card.ID, Quality: 5})
		require.NoError(t, err)
	}
	got, err = e.SubmitReview(ctx, ReviewRequest{UserID: "alice", CardID: card.ID, Quality: 5})
	require.NoError(t, err)
	assert.Equal(t, 1, got.Difficulty, "floor must hold")
}

func TestSubmitReviewValidation(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	card := mustCreateCard(t, e, "alice", "eins", "one")

	testCases := []struct {
		name string
		req  ReviewRequest
	}{
		{name: "quality zero", req: ReviewRequest{UserID: "alice", CardID: card.ID, Quality: 0}},
		{name: "quality too high", req: ReviewRequest{UserID: "alice", CardID: card.ID, Quality: 6}},
		{name: "quality negative", req: ReviewRequest{UserID: "alice", CardID: card.ID, Quality: -1}},
		{name: "empty user id", req: ReviewRequest{CardID: card.ID, Quality: 3}},
		{name: "empty card id", req: ReviewRequest{UserID: "alice", Quality: 3}},
		{name: "negative response time", req: ReviewRequest{UserID: "alice", CardID: card.ID, Quality: 3, ResponseTime: -time.Second}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.SubmitReview(ctx, tc.req)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}

	// Nothing above may have touched the card.
	stored, err := e.store.GetCard(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.ReviewCount)
}

func TestSubmitReviewOwnership(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	card := mustCreateCard(t, e, "bob", "geheim", "secret")

	_, err := e.SubmitReview(ctx, ReviewRequest{UserID: "alice", CardID: card.ID, Quality: 5})
	assert.ErrorIs(t, err, domain.ErrNotFound,
		"another user's card must look like a missing card")

	// Zero observable state change for the owner.
	stored, err := db.GetCard(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.ReviewCount)
	assert.Equal(t, 1, stored.Difficulty)
	assert.Nil(t, stored.LastReviewed)

	events, err := db.QueryEvents(ctx, "alice", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestSubmitReviewMissingCard(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.SubmitReview(context.Background(), ReviewRequest{
		UserID: "alice", CardID: "no-such-card", Quality: 3,
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSubmitReviewRoundTrip(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	card := mustCreateCard(t, e, "alice", "das Brot", "the bread")

	returned, err := e.SubmitReview(ctx, ReviewRequest{
		UserID: "alice", CardID: card.ID, Quality: 4, ResponseTime: 1500 * time.Millisecond,
	})
	require.NoError(t, err)

	read, err := db.GetCard(ctx, card.ID)
	require.NoError(t, err)
	require.NotNil(t, read)

	assert.Equal(t, returned.Difficulty, read.Difficulty)
	assert.Equal(t, returned.ReviewCount, read.ReviewCount)
	assert.Equal(t, returned.Version, read.Version)
	require.NotNil(t, read.LastReviewed)
	assert.True(t, returned.LastReviewed.Equal(*read.LastReviewed),
		"write return value and subsequent read must not diverge")

	events, err := db.QueryEvents(ctx, "alice", time.Time{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 4, events[0].Quality)
	assert.Equal(t, 1500*time.Millisecond, events[0].ResponseTime)
}

func TestSubmitReviewSequentialCounts(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	card := mustCreateCard(t, e, "alice", "zwei", "two")

	const n = 10
	for i := 0; i < n; i++ {
		_, err := e.SubmitReview(ctx, ReviewRequest{UserID: "alice", CardID: card.ID, Quality: 3})
		require.NoError(t, err)
	}

	stored, err := e.store.GetCard(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, n, stored.ReviewCount)
}

func TestSubmitReviewConcurrent(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	card := mustCreateCard(t, e, "alice", "gleichzeitig", "concurrent")

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		quality := 1 + i%5
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.SubmitReview(ctx, ReviewRequest{
				UserID: "alice", CardID: card.ID, Quality: quality,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stored, err := db.GetCard(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, workers, stored.ReviewCount,
		"no review may be lost or double counted")
	assert.GreaterOrEqual(t, stored.Difficulty, 1)
	assert.LessOrEqual(t, stored.Difficulty, 5)

	events, err := db.QueryEvents(ctx, "alice", time.Time{})
	require.NoError(t, err)
	assert.Len(t, events, workers)
}

func TestSubmitReviewUnavailable(t *testing.T) {
	e, _ := newTestEngine(t)
	card := mustCreateCard(t, e, "alice", "weg", "gone")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.SubmitReview(ctx, ReviewRequest{UserID: "alice", CardID: card.ID, Quality: 3})
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.NotErrorIs(t, err, domain.ErrConflict,
		"a timeout must stay distinguishable from a conflict")
}

func TestNextDueCardOrdering(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	never := mustCreateCard(t, e, "alice", "neu", "new")
	oldest := mustCreateCard(t, e, "alice", "alt", "old")
	recent := mustCreateCard(t, e, "alice", "frisch", "fresh")

	t1 := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(24 * time.Hour)

	e.now = func() time.Time { return t1 }
	_, err := e.SubmitReview(ctx, ReviewRequest{UserID: "alice", CardID: oldest.ID, Quality: 3})
	require.NoError(t, err)

	e.now = func() time.Time { return t2 }
	_, err = e.SubmitReview(ctx, ReviewRequest{UserID: "alice", CardID: recent.ID, Quality: 3})
	require.NoError(t, err)

	// Successive calls with growing excludeIDs walk the deck in due order:
	// never reviewed, then oldest review, then the most recent one.
	var exclude []string
	for _, wantID := range []string{never.ID, oldest.ID, recent.ID} {
		got, err := e.NextDueCard(ctx, "alice", exclude)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, wantID, got.ID)
		exclude = append(exclude, got.ID)
	}

	got, err := e.NextDueCard(ctx, "alice", exclude)
	require.NoError(t, err)
	assert.Nil(t, got, "an exhausted deck is a normal empty state")
}

func TestNextDueCardEmptyDeck(t *testing.T) {
	e, _ := newTestEngine(t)

	got, err := e.NextDueCard(context.Background(), "nobody", nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestNextDueCardScopedToOwner(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	mustCreateCard(t, e, "bob", "fremd", "foreign")

	got, err := e.NextDueCard(ctx, "alice", nil)
	require.NoError(t, err)
	assert.Nil(t, got, "another user's cards must never surface")
}

func TestSessionSummary(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	card := mustCreateCard(t, e, "alice", "drei", "three")

	start := time.Date(2026, 8, 20, 8, 0, 0, 0, time.UTC)
	for i, quality := range []int{5, 3, 4} {
		e.now = func() time.Time { return start.Add(time.Duration(i+1) * time.Minute) }
		_, err := e.SubmitReview(ctx, ReviewRequest{UserID: "alice", CardID: card.ID, Quality: quality})
		require.NoError(t, err)
	}

	summary, err := e.SessionSummary(ctx, "alice", start)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Reviewed)
	assert.InDelta(t, 4.0, summary.AverageQuality, 1e-9)

	// Events at or before 'since' are out of the window.
	summary, err = e.SessionSummary(ctx, "alice", start.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Reviewed)

	// No events at all is the zero summary, not an error.
	summary, err = e.SessionSummary(ctx, "alice", start.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, summary.Reviewed)
	assert.Zero(t, summary.AverageQuality)
}

func TestUpdateContentConflict(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	card := mustCreateCard(t, e, "alice", "vier", "for")

	updated, err := e.UpdateContent(ctx, EditRequest{
		UserID: "alice", CardID: card.ID,
		FrontText: "vier", BackText: "four",
		Version: card.Version,
	})
	require.NoError(t, err)
	assert.Equal(t, "four", updated.BackText)
	assert.Greater(t, updated.Version, card.Version)

	// A second edit against the version we originally read has lost the
	// race and must not silently overwrite.
	_, err = e.UpdateContent(ctx, EditRequest{
		UserID: "alice", CardID: card.ID,
		FrontText: "vier", BackText: "fourr",
		Version: card.Version,
	})
	assert.ErrorIs(t, err, domain.ErrConflict)

	stored, err := e.store.GetCard(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, "four", stored.BackText)
}

func TestUpdateContentOwnership(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	card := mustCreateCard(t, e, "bob", "mein", "mine")

	_, err := e.UpdateContent(ctx, EditRequest{
		UserID: "alice", CardID: card.ID,
		FrontText: "x", BackText: "y",
		Version: card.Version,
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	stored, err := e.store.GetCard(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, "mein", stored.FrontText)
}

func TestDeleteCardCascades(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	card := mustCreateCard(t, e, "alice", "weg", "away")

	_, err := e.SubmitReview(ctx, ReviewRequest{UserID: "alice", CardID: card.ID, Quality: 2})
	require.NoError(t, err)

	require.NoError(t, e.DeleteCard(ctx, "alice", card.ID))

	stored, err := db.GetCard(ctx, card.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)

	events, err := db.QueryEvents(ctx, "alice", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, events, "deleting a card deletes its review events")
}

func TestDeleteCardOwnership(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	card := mustCreateCard(t, e, "bob", "bleibt", "stays")

	err := e.DeleteCard(ctx, "alice", card.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	stored, err := db.GetCard(ctx, card.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored)
}

func TestListCardsInDueOrder(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	first := mustCreateCard(t, e, "alice", "a", "a")
	second := mustCreateCard(t, e, "alice", "b", "b")

	e.now = func() time.Time { return time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC) }
	_, err := e.SubmitReview(ctx, ReviewRequest{UserID: "alice", CardID: first.ID, Quality: 3})
	require.NoError(t, err)

	cards, err := e.ListCards(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, second.ID, cards[0].ID, "never-reviewed card sorts first")
	assert.Equal(t, first.ID, cards[1].ID)
}
