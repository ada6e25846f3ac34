package analysis

import "context"

// Mood is the five-point sentiment scale attached to a journal entry.
type Mood string

const (
	MoodGreat    Mood = "GREAT"
	MoodGood     Mood = "GOOD"
	MoodNeutral  Mood = "NEUTRAL"
	MoodBad      Mood = "BAD"
	MoodTerrible Mood = "TERRIBLE"
)

// Valid reports whether m is one of the known moods.
func (m Mood) Valid() bool {
	switch m {
	case MoodGreat, MoodGood, MoodNeutral, MoodBad, MoodTerrible:
		return true
	}
	return false
}

// Result is the post-session enrichment for a saved entry.
type Result struct {
	Summary     string   `json:"summary"`
	Mood        Mood     `json:"mood"`
	Tags        []string `json:"tags"`
	ActionItems []string `json:"actionItems"`
}

// Analyzer turns a session transcript into entry enrichment. Invoked after
// the entry has been persisted; failures leave the placeholder values in
// place and are never surfaced to the user.
type Analyzer interface {
	Analyze(ctx context.Context, transcript string) (Result, error)
}
