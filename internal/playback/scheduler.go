package playback

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Buffer is one decoded chunk of output audio ready for playback.
type Buffer struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the playback duration of the buffer.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(b.Samples)) / float64(b.SampleRate) * float64(time.Second))
}

// Handle controls one scheduled buffer. Stop must silence the buffer
// immediately whether or not it has started playing.
type Handle interface {
	Stop()
}

// Player starts buffers at an absolute time. The real implementation feeds
// an output device; tests substitute a recording fake.
type Player interface {
	Play(buf Buffer, at time.Time) Handle
}

// Clock abstracts time for the scheduler so ordering properties can be
// tested deterministically.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// WallClock returns the real-time clock.
func WallClock() Clock { return wallClock{} }

// Scheduler owns an ordered queue of output buffers and a monotonic
// next-start cursor, guaranteeing gap-free, order-preserving playback
// regardless of network jitter in buffer arrival times.
type Scheduler struct {
	player Player
	clock  Clock
	logger zerolog.Logger

	mu        sync.Mutex
	nextStart time.Time
	active    map[*activeEntry]struct{}
	shutdown  bool
}

type activeEntry struct {
	handle Handle
}

// NewScheduler creates a scheduler that plays through player using clock.
func NewScheduler(player Player, clock Clock, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		player: player,
		clock:  clock,
		logger: logger,
		active: make(map[*activeEntry]struct{}),
	}
}

// Enqueue schedules buf to start back-to-back with the previously enqueued
// buffer. If the cursor has fallen behind the current time (a gap in the
// inbound stream), it snaps to now so the buffer is never scheduled in the
// past.
func (s *Scheduler) Enqueue(buf Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return
	}

	now := s.clock.Now()
	if s.nextStart.Before(now) {
		s.nextStart = now
	}

	start := s.nextStart
	s.nextStart = s.nextStart.Add(buf.Duration())

	entry := &activeEntry{}
	entry.handle = s.player.Play(buf, start)
	s.active[entry] = struct{}{}

	// Release the slot when the buffer would have finished. A flush may
	// already have removed it.
	end := s.nextStart
	time.AfterFunc(end.Sub(now), func() {
		s.mu.Lock()
		delete(s.active, entry)
		s.mu.Unlock()
	})

	s.logger.Debug().
		Int("samples", len(buf.Samples)).
		Dur("duration", buf.Duration()).
		Time("start", start).
		Msg("Scheduled playback buffer")
}

// Flush stops every scheduled buffer immediately, clears the active set and
// resets the cursor. Used when the remote agent is interrupted: queued but
// unplayed audio must never be heard.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushLocked()
}

func (s *Scheduler) flushLocked() {
	for entry := range s.active {
		entry.handle.Stop()
	}
	s.active = make(map[*activeEntry]struct{})
	s.nextStart = time.Time{}
}

// Speaking reports whether any buffer is currently scheduled or playing.
func (s *Scheduler) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active) > 0
}

// Shutdown flushes all playback and rejects further enqueues. Part of
// session teardown: leaked handles would keep producing audible output
// after the logical session has ended.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return
	}
	s.shutdown = true
	s.flushLocked()
}
