package transcript

import (
	"strings"
	"sync"
)

// Speaker identifies which party a transcript fragment belongs to.
type Speaker int

const (
	SpeakerUser Speaker = iota
	SpeakerAgent
)

func (s Speaker) String() string {
	if s == SpeakerAgent {
		return "Agent"
	}
	return "User"
}

// Segment is one committed line of the session transcript.
type Segment struct {
	Speaker Speaker
	Text    string
}

// Accumulator buffers partial speech-to-text fragments for both parties and
// commits them to an ordered log at turn boundaries. The live endpoint
// interleaves user recognition and agent synthesis fragments within a single
// turn, so each speaker gets an independent scratch buffer.
type Accumulator struct {
	mu       sync.Mutex
	segments []Segment
	user     strings.Builder
	agent    strings.Builder
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// AppendPartial adds a transcript fragment to the speaker's scratch buffer.
// Fragments are not part of the durable transcript until CommitTurn.
func (a *Accumulator) AppendPartial(speaker Speaker, text string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if speaker == SpeakerAgent {
		a.agent.WriteString(text)
	} else {
		a.user.WriteString(text)
	}
}

// CommitTurn flushes both scratch buffers into the durable log, user before
// agent. Empty scratch buffers commit nothing, so calling CommitTurn on a
// boundary with no pending fragments is a no-op.
func (a *Accumulator) CommitTurn() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if text := strings.TrimSpace(a.user.String()); text != "" {
		a.segments = append(a.segments, Segment{Speaker: SpeakerUser, Text: text})
	}
	a.user.Reset()

	if text := strings.TrimSpace(a.agent.String()); text != "" {
		a.segments = append(a.segments, Segment{Speaker: SpeakerAgent, Text: text})
	}
	a.agent.Reset()
}

// Interrupt discards the agent's in-progress utterance. The user's scratch
// buffer is preserved: an interruption is user-initiated speech, and that
// speech still commits on the next turn boundary. Committed segments are
// immutable and never truncated here.
func (a *Accumulator) Interrupt() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.agent.Reset()
}

// Segments returns a copy of the committed transcript log.
func (a *Accumulator) Segments() []Segment {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Segment, len(a.segments))
	copy(out, a.segments)
	return out
}

// String renders the committed transcript as "Speaker: text" lines.
func (a *Accumulator) String() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	var b strings.Builder
	for _, seg := range a.segments {
		b.WriteString(seg.Speaker.String())
		b.WriteString(": ")
		b.WriteString(seg.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// Len returns the length in bytes of the rendered transcript. The session
// controller compares it against a minimum content threshold before
// requesting analysis.
func (a *Accumulator) Len() int {
	return len(a.String())
}
