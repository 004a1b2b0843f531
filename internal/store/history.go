// Package store persists playback history in a local SQLite database and
// keeps a bounded in-memory index over it for fast repeat lookups.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultRecentLimit is how many rows Recent returns when the caller passes
// no positive limit.
const DefaultRecentLimit = 20

// PlayRecord is one playback the CLI started.
type PlayRecord struct {
	ID       int64
	TrackID  string
	Title    string
	Artist   string
	Source   string
	Genre    string
	PlayedAt time.Time
}

// History is the SQLite-backed play log.
type History struct {
	db *sql.DB
}

// OpenHistory opens the history database at path, creating parent
// directories and the schema as needed. ":memory:" works for tests.
func OpenHistory(path string) (*History, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping history database: %w", err)
	}

	h := &History{db: db}
	if err := h.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return h, nil
}

func (h *History) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS plays (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	track_id  TEXT NOT NULL,
	title     TEXT NOT NULL DEFAULT '',
	artist    TEXT NOT NULL DEFAULT '',
	source    TEXT NOT NULL,
	genre     TEXT NOT NULL DEFAULT '',
	played_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_plays_track_id ON plays(track_id);
CREATE INDEX IF NOT EXISTS idx_plays_played_at ON plays(played_at);
`
	if _, err := h.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to migrate history schema: %w", err)
	}
	return nil
}

// Record appends one play. A zero PlayedAt gets the current time.
func (h *History) Record(ctx context.Context, rec PlayRecord) error {
	playedAt := rec.PlayedAt
	if playedAt.IsZero() {
		playedAt = time.Now().UTC()
	}

	_, err := h.db.ExecContext(ctx,
		`INSERT INTO plays (track_id, title, artist, source, genre, played_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.TrackID, rec.Title, rec.Artist, rec.Source, rec.Genre, playedAt)
	if err != nil {
		return fmt.Errorf("failed to record play: %w", err)
	}
	return nil
}

// Recent returns the newest plays, most recent first.
func (h *History) Recent(ctx context.Context, limit int) ([]PlayRecord, error) {
	if limit < 1 {
		limit = DefaultRecentLimit
	}

	rows, err := h.db.QueryContext(ctx,
		`SELECT id, track_id, title, artist, source, genre, played_at
		 FROM plays ORDER BY played_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []PlayRecord
	for rows.Next() {
		var rec PlayRecord
		if err := rows.Scan(&rec.ID, &rec.TrackID, &rec.Title, &rec.Artist,
			&rec.Source, &rec.Genre, &rec.PlayedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history rows: %w", err)
	}
	return records, nil
}

// TrackIDs returns every recorded track ID, oldest play first, repeats
// included. The order lets a bounded index drop the oldest plays first.
func (h *History) TrackIDs(ctx context.Context) ([]string, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT track_id FROM plays ORDER BY played_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query played track IDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan track ID: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read track ID rows: %w", err)
	}
	return ids, nil
}

// Close releases the underlying database handle.
func (h *History) Close() error {
	return h.db.Close()
}
