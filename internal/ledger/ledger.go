package ledger

import (
	"context"
	"time"

	"github.com/Sh0oya/Jour/internal/analysis"
)

// Entry is one journal entry produced by a voice session. It is persisted
// with placeholder analysis values first; enrichment updates it later.
type Entry struct {
	ID              string
	UserID          string
	Date            time.Time
	Summary         string
	Transcript      string
	Mood            analysis.Mood
	Tags            []string
	ActionItems     []string
	DurationSeconds int
}

// Ledger is the session controller's quota and persistence collaborator.
// Usage is read once before a session starts and written once when it
// stops; nothing mutates it mid-session.
type Ledger interface {
	// TodayUsageSeconds returns the seconds of voice session the user has
	// already consumed during the current calendar day.
	TodayUsageSeconds(ctx context.Context, userID string) (int, error)

	// RecordSession persists a finished session as an entry and returns
	// the entry ID.
	RecordSession(ctx context.Context, entry Entry) (string, error)

	// UpdateAnalysis replaces the placeholder analysis of a saved entry.
	UpdateAnalysis(ctx context.Context, entryID string, result analysis.Result) error

	// Entry loads a saved entry.
	Entry(ctx context.Context, entryID string) (Entry, error)
}
