package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lexisched/lexisched/internal/domain"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// DB wraps the SQL database connection. It implements both the engine's
// CardStore and SessionLog contracts.
type DB struct {
	conn *sql.DB
}

// Open creates a new database connection and ensures the schema is up to date.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Foreign keys are off by default in sqlite; the review_events cascade
	// depends on them.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// SQLite supports a single writer; one connection keeps every
	// transaction on the same handle.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Execute the schema to create tables if they don't exist.
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const cardColumns = `id, owner_id, front_text, back_text, note, difficulty,
	review_count, last_reviewed, version, created_at, fingerprint, source_id`

func scanCard(scan func(dest ...any) error) (*domain.Flashcard, error) {
	var (
		card         domain.Flashcard
		lastReviewed sql.NullTime
		fingerprint  sql.NullString
		sourceID     sql.NullInt64
	)
	err := scan(
		&card.ID,
		&card.OwnerID,
		&card.FrontText,
		&card.BackText,
		&card.Note,
		&card.Difficulty,
		&card.ReviewCount,
		&lastReviewed,
		&card.Version,
		&card.CreatedAt,
		&fingerprint,
		&sourceID,
	)
	if err != nil {
		return nil, err
	}
	if lastReviewed.Valid {
		t := lastReviewed.Time
		card.LastReviewed = &t
	}
	card.Fingerprint = fingerprint.String
	if sourceID.Valid {
		id := sourceID.Int64
		card.SourceID = &id
	}
	return &card, nil
}

func getCard(ctx context.Context, q querier, id string) (*domain.Flashcard, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+cardColumns+`
		FROM cards WHERE id = ?
	`, id)

	card, err := scanCard(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Card not found
		}
		return nil, fmt.Errorf("failed to get card %s: %w", id, err)
	}
	return card, nil
}

// GetCard retrieves a card by id. It returns (nil, nil) when no card exists.
func (db *DB) GetCard(ctx context.Context, id string) (*domain.Flashcard, error) {
	return getCard(ctx, db.conn, id)
}

// CreateCard inserts a new card at version 0 with its initial scheduling
// state (difficulty 1, never reviewed).
func (db *DB) CreateCard(ctx context.Context, card domain.Flashcard) error {
	var fingerprint sql.NullString
	if card.Fingerprint != "" {
		fingerprint = sql.NullString{String: card.Fingerprint, Valid: true}
	}
	var sourceID sql.NullInt64
	if card.SourceID != nil {
		sourceID = sql.NullInt64{Int64: *card.SourceID, Valid: true}
	}

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO cards (id, owner_id, front_text, back_text, note,
			difficulty, review_count, version, created_at, fingerprint, source_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		card.ID,
		card.OwnerID,
		card.FrontText,
		card.BackText,
		card.Note,
		card.Difficulty,
		card.ReviewCount,
		card.Version,
		card.CreatedAt,
		fingerprint,
		sourceID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert card %s: %w", card.ID, err)
	}
	return nil
}

// ListByOwner returns every card owned by ownerID, ordered by id.
func (db *DB) ListByOwner(ctx context.Context, ownerID string) ([]domain.Flashcard, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+cardColumns+`
		FROM cards WHERE owner_id = ?
		ORDER BY id
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards for owner %s: %w", ownerID, err)
	}
	defer rows.Close()

	var cards []domain.Flashcard
	for rows.Next() {
		card, err := scanCard(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		cards = append(cards, *card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read card rows: %w", err)
	}
	return cards, nil
}

// ApplyReview persists a card's post-review scheduling state and the review
// event that produced it in a single transaction; either both are visible to
// subsequent reads or neither is. The card's scheduling fields carry the new
// values; card.Version must be the version the caller read. A stale version
// fails with domain.ErrConflict, unless the event is already recorded, in
// which case the call is a retry of an applied review and the current row is
// returned.
func (db *DB) ApplyReview(ctx context.Context, card domain.Flashcard, ev domain.ReviewEvent) (*domain.Flashcard, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin review transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE cards
		SET difficulty = ?, review_count = ?, last_reviewed = ?, version = version + 1
		WHERE id = ? AND version = ?
	`,
		card.Difficulty,
		card.ReviewCount,
		card.LastReviewed,
		card.ID,
		card.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update card %s: %w", card.ID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		var applied int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM review_events
			WHERE user_id = ? AND card_id = ? AND reviewed_at = ?
		`, ev.UserID, ev.CardID, ev.Timestamp).Scan(&applied)
		if err != nil {
			return nil, fmt.Errorf("failed to check for replayed review: %w", err)
		}
		if applied > 0 {
			// A retry of a review that already committed.
			return getCard(ctx, tx, card.ID)
		}
		return nil, fmt.Errorf("card %s: %w", card.ID, domain.ErrConflict)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO review_events (user_id, card_id, quality, response_ms, reviewed_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		ev.UserID,
		ev.CardID,
		ev.Quality,
		ev.ResponseTime.Milliseconds(),
		ev.Timestamp,
	); err != nil {
		return nil, fmt.Errorf("failed to append review event for card %s: %w", ev.CardID, err)
	}

	updated, err := getCard(ctx, tx, card.ID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit review for card %s: %w", card.ID, err)
	}
	return updated, nil
}

// UpdateContent replaces a card's authored text. version must be the version
// the caller read; a stale version fails with domain.ErrConflict.
func (db *DB) UpdateContent(ctx context.Context, id string, version int64, front, back string) (*domain.Flashcard, error) {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE cards
		SET front_text = ?, back_text = ?, version = version + 1
		WHERE id = ? AND version = ?
	`, front, back, id, version)
	if err != nil {
		return nil, fmt.Errorf("failed to update content for card %s: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("card %s: %w", id, domain.ErrConflict)
	}
	return getCard(ctx, db.conn, id)
}

// DeleteCard removes a card; the foreign-key cascade removes its review
// events with it.
func (db *DB) DeleteCard(ctx context.Context, id string) error {
	_, err := db.conn.ExecContext(ctx, `
		DELETE FROM cards
		WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("failed to delete card %s: %w", id, err)
	}
	return nil
}

// FindByFingerprint retrieves an owner's card by content fingerprint, or
// (nil, nil) when no such card exists.
func (db *DB) FindByFingerprint(ctx context.Context, ownerID, fp string) (*domain.Flashcard, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+cardColumns+`
		FROM cards WHERE owner_id = ? AND fingerprint = ?
	`, ownerID, fp)

	card, err := scanCard(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find card by fingerprint for owner %s: %w", ownerID, err)
	}
	return card, nil
}

// AppendEvent records a review event outside a card update. The engine's
// review path goes through ApplyReview; this is for integrators replaying
// an external log.
func (db *DB) AppendEvent(ctx context.Context, ev domain.ReviewEvent) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO review_events (user_id, card_id, quality, response_ms, reviewed_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		ev.UserID,
		ev.CardID,
		ev.Quality,
		ev.ResponseTime.Milliseconds(),
		ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append review event for card %s: %w", ev.CardID, err)
	}
	return nil
}

// QueryEvents returns userID's review events strictly after since, oldest
// first.
func (db *DB) QueryEvents(ctx context.Context, userID string, since time.Time) ([]domain.ReviewEvent, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT user_id, card_id, quality, response_ms, reviewed_at
		FROM review_events
		WHERE user_id = ? AND reviewed_at > ?
		ORDER BY reviewed_at, id
	`, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query review events for user %s: %w", userID, err)
	}
	defer rows.Close()

	var events []domain.ReviewEvent
	for rows.Next() {
		var (
			ev         domain.ReviewEvent
			responseMS int64
		)
		if err := rows.Scan(&ev.UserID, &ev.CardID, &ev.Quality, &responseMS, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan review event row: %w", err)
		}
		ev.ResponseTime = time.Duration(responseMS) * time.Millisecond
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read review event rows: %w", err)
	}
	return events, nil
}

// Source is a registered deck origin, either a local directory or a git URL.
type Source struct {
	ID          int64
	OwnerID     string
	Path        string
	Type        string
	LastScanned sql.NullTime
}

// InsertSource registers a deck source for an owner and returns its ID.
func (db *DB) InsertSource(ctx context.Context, ownerID, path, sourceType string) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO sources (owner_id, path, type)
		VALUES (?, ?, ?)
	`, ownerID, path, sourceType)
	if err != nil {
		return 0, fmt.Errorf("failed to insert source %s: %w", path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for source %s: %w", path, err)
	}
	return id, nil
}

// GetSourcesByOwner retrieves an owner's registered deck sources.
func (db *DB) GetSourcesByOwner(ctx context.Context, ownerID string) ([]Source, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, owner_id, path, type, last_scanned
		FROM sources WHERE owner_id = ?
		ORDER BY id
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get sources for owner %s: %w", ownerID, err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var s Source
		if err := rows.Scan(&s.ID, &s.OwnerID, &s.Path, &s.Type, &s.LastScanned); err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read source rows: %w", err)
	}
	return sources, nil
}

// UpdateSourceLastScanned updates the last_scanned timestamp for a source.
func (db *DB) UpdateSourceLastScanned(ctx context.Context, sourceID int64) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE sources
		SET last_scanned = ?
		WHERE id = ?
	`, time.Now().UTC(), sourceID)
	if err != nil {
		return fmt.Errorf("failed to update last scanned for source ID %d: %w", sourceID, err)
	}
	return nil
}

// ListBySource retrieves all cards imported from a specific source.
func (db *DB) ListBySource(ctx context.Context, sourceID int64) ([]domain.Flashcard, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+cardColumns+`
		FROM cards WHERE source_id = ?
		ORDER BY id
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards for source ID %d: %w", sourceID, err)
	}
	defer rows.Close()

	var cards []domain.Flashcard
	for rows.Next() {
		card, err := scanCard(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card row for source ID %d: %w", sourceID, err)
		}
		cards = append(cards, *card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read card rows for source ID %d: %w", sourceID, err)
	}
	return cards, nil
}
