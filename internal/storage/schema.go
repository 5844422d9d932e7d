package storage

const schema = `
-- The 'cards' table stores each flashcard together with its scheduling
-- state. 'version' is bumped on every mutation; mutations against a stale
-- version affect zero rows.
CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    front_text TEXT NOT NULL,
    back_text TEXT NOT NULL,
    note TEXT NOT NULL DEFAULT '',
    difficulty INTEGER NOT NULL DEFAULT 1 CHECK(difficulty BETWEEN 1 AND 5),
    review_count INTEGER NOT NULL DEFAULT 0 CHECK(review_count >= 0),
    last_reviewed DATETIME,
    version INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL,
    fingerprint TEXT,
    source_id INTEGER,

    FOREIGN KEY(source_id) REFERENCES sources(id)
);

CREATE INDEX IF NOT EXISTS idx_cards_owner_due ON cards(owner_id, last_reviewed, id);

-- The 'review_events' table is an append-only log of completed reviews.
-- Rows are removed only by the cascade when their card is deleted. The
-- unique constraint deduplicates a retried submit carrying the same
-- logical timestamp.
CREATE TABLE IF NOT EXISTS review_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL,
    card_id TEXT NOT NULL,
    quality INTEGER NOT NULL CHECK(quality BETWEEN 1 AND 5),
    response_ms INTEGER NOT NULL DEFAULT 0,
    reviewed_at DATETIME NOT NULL,

    FOREIGN KEY(card_id) REFERENCES cards(id) ON DELETE CASCADE,
    UNIQUE(user_id, card_id, reviewed_at)
);

CREATE INDEX IF NOT EXISTS idx_events_user_time ON review_events(user_id, reviewed_at);

-- The 'sources' table tracks where imported decks come from, either a local
-- directory or a git repository, registered per owner.
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    owner_id TEXT NOT NULL,
    path TEXT NOT NULL,
    type TEXT NOT NULL DEFAULT 'local',
    last_scanned DATETIME,

    UNIQUE(owner_id, path)
);
`
