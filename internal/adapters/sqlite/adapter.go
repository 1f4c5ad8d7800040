// Package sqlite provides SQLite-backed implementations of the persistence
// ports: engine state, feedback log and the track cache.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // Import the driver anonymously
)

// Adapter implements ports.StateStore, ports.FeedbackLog and ports.TrackRepository.
type Adapter struct {
	db  *sql.DB
	now func() time.Time
}

// NewAdapter creates a connection and runs the schema migration
func NewAdapter(storagePath string) (*Adapter, error) {
	db, err := sql.Open("sqlite3", storagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	// One connection: SQLite serializes writers anyway and ":memory:" is per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}

	adapter := &Adapter{db: db, now: time.Now}
	if err := adapter.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return adapter, nil
}

// Close ensures the DB connection is closed gracefully
func (a *Adapter) Close() error {
	return a.db.Close()
}

func (a *Adapter) migrate() error {
	query := `
	PRAGMA foreign_keys = ON;

	CREATE TABLE IF NOT EXISTS tracks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		artist TEXT NOT NULL,
		album TEXT,
		duration_ms INTEGER,
		popularity INTEGER,
		isrc TEXT,
		cover_url TEXT,
		preview_url TEXT,
		external_url TEXT,
		danceability REAL,
		energy REAL,
		musical_key REAL,
		loudness REAL,
		mode REAL,
		speechiness REAL,
		acousticness REAL,
		instrumentalness REAL,
		liveness REAL,
		valence REAL,
		tempo REAL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS catalog_batches (
		batch_key TEXT NOT NULL,
		position INTEGER NOT NULL,
		track_id TEXT NOT NULL,
		fetched_at INTEGER NOT NULL,
		PRIMARY KEY (batch_key, position),
		FOREIGN KEY(track_id) REFERENCES tracks(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS engine_state (
		user_id TEXT PRIMARY KEY,
		scaler_count INTEGER NOT NULL,
		scaler_mean TEXT NOT NULL,
		scaler_m2 TEXT NOT NULL,
		weights TEXT NOT NULL,
		bias REAL NOT NULL,
		iterations INTEGER NOT NULL,
		likes INTEGER NOT NULL DEFAULT 0,
		dislikes INTEGER NOT NULL DEFAULT 0,
		skips INTEGER NOT NULL DEFAULT 0,
		bootstrapped_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS rated_tracks (
		user_id TEXT NOT NULL,
		track_id TEXT NOT NULL,
		PRIMARY KEY (user_id, track_id),
		FOREIGN KEY(user_id) REFERENCES engine_state(user_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS catalog_cursors (
		user_id TEXT NOT NULL,
		cursor_key TEXT NOT NULL,
		page INTEGER NOT NULL,
		PRIMARY KEY (user_id, cursor_key),
		FOREIGN KEY(user_id) REFERENCES engine_state(user_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS feedback_events (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		track_id TEXT NOT NULL,
		label INTEGER NOT NULL,
		features TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_feedback_user_created ON feedback_events(user_id, created_at);
	`
	if _, err := a.db.Exec(query); err != nil {
		return err
	}

	// Columns added after the first release.
	for _, stmt := range []string{
		"ALTER TABLE tracks ADD COLUMN feature_source TEXT NOT NULL DEFAULT 'catalog'",
		"ALTER TABLE tracks ADD COLUMN updated_at INTEGER NOT NULL DEFAULT 0",
	} {
		if _, err := a.db.Exec(stmt); err != nil && !isDuplicateColumnError(err) {
			return err
		}
	}

	return nil
}

func isDuplicateColumnError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "duplicate column") || strings.Contains(err.Error(), "already exists"))
}
