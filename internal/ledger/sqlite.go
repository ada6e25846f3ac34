package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/Sh0oya/Jour/internal/analysis"
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	date             TEXT NOT NULL,
	summary          TEXT NOT NULL,
	transcript       TEXT NOT NULL,
	mood             TEXT NOT NULL,
	tags             TEXT NOT NULL,
	action_items     TEXT NOT NULL,
	duration_seconds INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_user_date ON entries(user_id, date);
`

// SQLite is the Ledger implementation backed by a local sqlite database.
type SQLite struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

// OpenSQLite opens (and bootstraps) the ledger database at path.
func OpenSQLite(path string, logger zerolog.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap ledger schema: %w", err)
	}
	return &SQLite{db: db, logger: logger, now: time.Now}, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable. Used by the readiness probe.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// TodayUsageSeconds sums the durations of the user's entries recorded
// during the current local calendar day.
func (s *SQLite) TodayUsageSeconds(ctx context.Context, userID string) (int, error) {
	dayStart := s.dayStart()
	dayEnd := dayStart.AddDate(0, 0, 1)

	var total sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT SUM(duration_seconds) FROM entries WHERE user_id = ? AND date >= ? AND date < ?`,
		userID, dayStart.Format(time.RFC3339), dayEnd.Format(time.RFC3339),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("query today usage: %w", err)
	}
	return int(total.Int64), nil
}

// RecordSession inserts the entry, assigning an ID when missing.
func (s *SQLite) RecordSession(ctx context.Context, entry Entry) (string, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Date.IsZero() {
		entry.Date = s.now()
	}

	tags, err := json.Marshal(entry.Tags)
	if err != nil {
		return "", fmt.Errorf("marshal tags: %w", err)
	}
	actionItems, err := json.Marshal(entry.ActionItems)
	if err != nil {
		return "", fmt.Errorf("marshal action items: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entries (id, user_id, date, summary, transcript, mood, tags, action_items, duration_seconds)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.Date.Format(time.RFC3339),
		entry.Summary, entry.Transcript, string(entry.Mood),
		string(tags), string(actionItems), entry.DurationSeconds,
	)
	if err != nil {
		return "", fmt.Errorf("insert entry: %w", err)
	}

	s.logger.Info().
		Str("entry_id", entry.ID).
		Int("duration_seconds", entry.DurationSeconds).
		Msg("Session recorded")
	return entry.ID, nil
}

// UpdateAnalysis replaces the placeholder analysis fields of a saved entry.
func (s *SQLite) UpdateAnalysis(ctx context.Context, entryID string, result analysis.Result) error {
	tags, err := json.Marshal(result.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	actionItems, err := json.Marshal(result.ActionItems)
	if err != nil {
		return fmt.Errorf("marshal action items: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE entries SET summary = ?, mood = ?, tags = ?, action_items = ? WHERE id = ?`,
		result.Summary, string(result.Mood), string(tags), string(actionItems), entryID,
	)
	if err != nil {
		return fmt.Errorf("update entry analysis: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("entry %s not found", entryID)
	}
	return nil
}

// Entry loads a saved entry by ID.
func (s *SQLite) Entry(ctx context.Context, entryID string) (Entry, error) {
	var e Entry
	var date, mood, tags, actionItems string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, date, summary, transcript, mood, tags, action_items, duration_seconds
		 FROM entries WHERE id = ?`, entryID,
	).Scan(&e.ID, &e.UserID, &date, &e.Summary, &e.Transcript, &mood, &tags, &actionItems, &e.DurationSeconds)
	if err != nil {
		return Entry{}, fmt.Errorf("load entry: %w", err)
	}

	e.Date, err = time.Parse(time.RFC3339, date)
	if err != nil {
		return Entry{}, fmt.Errorf("parse entry date: %w", err)
	}
	e.Mood = analysis.Mood(mood)
	if err := json.Unmarshal([]byte(tags), &e.Tags); err != nil {
		return Entry{}, fmt.Errorf("decode tags: %w", err)
	}
	if err := json.Unmarshal([]byte(actionItems), &e.ActionItems); err != nil {
		return Entry{}, fmt.Errorf("decode action items: %w", err)
	}
	return e, nil
}

func (s *SQLite) dayStart() time.Time {
	now := s.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}
