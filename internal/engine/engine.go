// Package engine converts review outcomes into updated flashcard scheduling
// state and decides the presentation order of a learning session. Every
// operation is scoped to the acting user: cards belonging to anyone else are
// reported as not found.
package engine

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/lexisched/lexisched/internal/domain"
	"github.com/lexisched/lexisched/internal/schedule"
)

// CardStore persists flashcards. Get-style methods return (nil, nil) for a
// missing card; mutations against a stale version fail with
// domain.ErrConflict. ApplyReview must persist the card update and the
// review event as one atomic unit.
type CardStore interface {
	GetCard(ctx context.Context, id string) (*domain.Flashcard, error)
	CreateCard(ctx context.Context, card domain.Flashcard) error
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Flashcard, error)
	ApplyReview(ctx context.Context, card domain.Flashcard, ev domain.ReviewEvent) (*domain.Flashcard, error)
	UpdateContent(ctx context.Context, id string, version int64, front, back string) (*domain.Flashcard, error)
	DeleteCard(ctx context.Context, id string) error
}

// SessionLog reads the append-only review history.
type SessionLog interface {
	QueryEvents(ctx context.Context, userID string, since time.Time) ([]domain.ReviewEvent, error)
}

const lockStripes = 64

// Engine is the scheduling engine. Construct it with New; the zero value is
// not usable.
type Engine struct {
	store    CardStore
	log      SessionLog
	validate *validator.Validate
	now      func() time.Time

	// Concurrent reviews of the same card serialize on its stripe so none
	// of them is lost to a version conflict. Cross-user operations never
	// contend beyond accidental stripe sharing.
	locks [lockStripes]sync.Mutex
}

// New creates an Engine on top of an explicitly constructed store and log.
// The caller owns the store's lifecycle.
func New(store CardStore, log SessionLog) *Engine {
	return &Engine{
		store:    store,
		log:      log,
		validate: validator.New(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (e *Engine) lockFor(cardID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(cardID))
	return &e.locks[h.Sum32()%lockStripes]
}

// storeErr maps a failed store call onto the engine's error taxonomy. A
// deadline or cancellation becomes ErrUnavailable so the caller knows a
// retry with the same logical request is safe; everything else passes
// through unchanged (the store already tags conflicts).
func storeErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	return err
}

// ReviewRequest is one user's answer to one card.
type ReviewRequest struct {
	UserID string `validate:"required"`
	CardID string `validate:"required"`
	// Quality is the 1-5 recall self-assessment.
	Quality int `validate:"required,min=1,max=5"`
	// ResponseTime is optional; zero means not measured.
	ResponseTime time.Duration `validate:"min=0"`
}

// SubmitReview applies a review outcome to a card: difficulty moves per the
// quality rating (clamped to [1,5]), the review count increments, the review
// timestamp is set, and a ReviewEvent is appended, all atomically. It
// returns the post-mutation snapshot; a read immediately after returns
// exactly the same values.
func (e *Engine) SubmitReview(ctx context.Context, req ReviewRequest) (*domain.Flashcard, error) {
	if err := e.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	mu := e.lockFor(req.CardID)
	mu.Lock()
	defer mu.Unlock()

	card, err := e.store.GetCard(ctx, req.CardID)
	if err != nil {
		return nil, storeErr(err)
	}
	if card == nil || card.OwnerID != req.UserID {
		// Identical answer for "missing" and "someone else's card".
		return nil, domain.ErrNotFound
	}

	now := e.now()
	updated := *card
	updated.Difficulty = schedule.NextDifficulty(card.Difficulty, req.Quality)
	updated.ReviewCount = card.ReviewCount + 1
	updated.LastReviewed = &now

	ev := domain.ReviewEvent{
		UserID:       req.UserID,
		CardID:       req.CardID,
		Quality:      req.Quality,
		ResponseTime: req.ResponseTime,
		Timestamp:    now,
	}

	saved, err := e.store.ApplyReview(ctx, updated, ev)
	if err != nil {
		return nil, storeErr(err)
	}
	return saved, nil
}

// NextDueCard selects the acting user's most due card, skipping excludeIDs:
// never-reviewed cards first, then oldest last review, ties broken by
// ascending id. A nil card with a nil error means the user has no eligible
// cards; that is a normal empty state, not a failure.
func (e *Engine) NextDueCard(ctx context.Context, userID string, excludeIDs []string) (*domain.Flashcard, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: empty user id", domain.ErrInvalidInput)
	}

	cards, err := e.store.ListByOwner(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}

	excluded := make(map[string]struct{}, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = struct{}{}
	}

	var best *domain.Flashcard
	for i := range cards {
		if _, skip := excluded[cards[i].ID]; skip {
			continue
		}
		if best == nil || schedule.DueBefore(cards[i], *best) {
			best = &cards[i]
		}
	}
	return best, nil
}

// Summary aggregates a user's reviews since some point in time.
type Summary struct {
	Reviewed       int
	AverageQuality float64
}

// SessionSummary reports how many reviews the user completed after since and
// their mean quality rating. It has no side effects; with no events it
// returns the zero Summary.
func (e *Engine) SessionSummary(ctx context.Context, userID string, since time.Time) (Summary, error) {
	if userID == "" {
		return Summary{}, fmt.Errorf("%w: empty user id", domain.ErrInvalidInput)
	}

	events, err := e.log.QueryEvents(ctx, userID, since)
	if err != nil {
		return Summary{}, storeErr(err)
	}
	if len(events) == 0 {
		return Summary{}, nil
	}

	var total int
	for _, ev := range events {
		total += ev.Quality
	}
	return Summary{
		Reviewed:       len(events),
		AverageQuality: float64(total) / float64(len(events)),
	}, nil
}

// CardInput is the authored content for a new card.
type CardInput struct {
	UserID    string `validate:"required"`
	FrontText string `validate:"required"`
	BackText  string `validate:"required"`
	Note      string
}

// CreateCard creates a card owned by the acting user with initial scheduling
// state: difficulty 1, zero reviews, never reviewed.
func (e *Engine) CreateCard(ctx context.Context, in CardInput) (*domain.Flashcard, error) {
	if err := e.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	card := domain.Flashcard{
		ID:         uuid.NewString(),
		OwnerID:    in.UserID,
		FrontText:  in.FrontText,
		BackText:   in.BackText,
		Note:       in.Note,
		Difficulty: schedule.MinDifficulty,
		CreatedAt:  e.now(),
	}
	if err := e.store.CreateCard(ctx, card); err != nil {
		return nil, storeErr(err)
	}
	return &card, nil
}

// EditRequest is an owner's content edit against the card version they read.
type EditRequest struct {
	UserID    string `validate:"required"`
	CardID    string `validate:"required"`
	FrontText string `validate:"required"`
	BackText  string `validate:"required"`
	Version   int64  `validate:"min=0"`
}

// UpdateContent replaces a card's text. The edit carries the version the
// caller read; if the card moved on since, the store reports
// domain.ErrConflict and the caller must re-read and redecide.
func (e *Engine) UpdateContent(ctx context.Context, req EditRequest) (*domain.Flashcard, error) {
	if err := e.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	card, err := e.store.GetCard(ctx, req.CardID)
	if err != nil {
		return nil, storeErr(err)
	}
	if card == nil || card.OwnerID != req.UserID {
		return nil, domain.ErrNotFound
	}

	updated, err := e.store.UpdateContent(ctx, req.CardID, req.Version, req.FrontText, req.BackText)
	if err != nil {
		return nil, storeErr(err)
	}
	return updated, nil
}

// DeleteCard removes an owned card and, through the store, its review
// events.
func (e *Engine) DeleteCard(ctx context.Context, userID, cardID string) error {
	if userID == "" || cardID == "" {
		return fmt.Errorf("%w: empty id", domain.ErrInvalidInput)
	}

	mu := e.lockFor(cardID)
	mu.Lock()
	defer mu.Unlock()

	card, err := e.store.GetCard(ctx, cardID)
	if err != nil {
		return storeErr(err)
	}
	if card == nil || card.OwnerID != userID {
		return domain.ErrNotFound
	}
	if err := e.store.DeleteCard(ctx, cardID); err != nil {
		return storeErr(err)
	}
	return nil
}

// ListCards returns every card the user owns, in session presentation order.
func (e *Engine) ListCards(ctx context.Context, userID string) ([]domain.Flashcard, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: empty user id", domain.ErrInvalidInput)
	}

	cards, err := e.store.ListByOwner(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	schedule.SortDue(cards)
	return cards, nil
}
