package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sh0oya/Jour/internal/analysis"
	"github.com/Sh0oya/Jour/internal/audio"
	"github.com/Sh0oya/Jour/internal/capture"
	"github.com/Sh0oya/Jour/internal/config"
	"github.com/Sh0oya/Jour/internal/ledger"
	"github.com/Sh0oya/Jour/internal/live"
	"github.com/Sh0oya/Jour/internal/observability"
	"github.com/Sh0oya/Jour/internal/playback"
	"github.com/Sh0oya/Jour/internal/resilience"
	"github.com/Sh0oya/Jour/internal/transcript"
)

const (
	placeholderSummary     = "Voice note"
	shortTranscriptSummary = "Short voice note"
	placeholderTag         = "voice"

	saveTimeout     = 10 * time.Second
	analysisTimeout = 30 * time.Second

	// sendBufferSize is the outbound frame queue between the hardware
	// capture callback and the transport writer.
	sendBufferSize = 32

	defaultConnectWait = 15 * time.Second
)

// Config parameterizes one voice session.
type Config struct {
	UserID             string
	Tier               config.Tier
	DailyCapSeconds    int
	GatingDelay        time.Duration // restricted-tier pre-roll before connecting
	VoiceOutput        bool          // false skips inbound audio decode and playback
	OutputSampleRate   int
	MinTranscriptChars int           // below this, analysis is skipped
	TickInterval       time.Duration // elapsed-time granularity; defaults to one second
	ConnectWait        time.Duration // bound on abandoning a pending dial after Stop
	Live               live.Config
}

// Deps are the session's collaborators.
type Deps struct {
	Transport live.Transport
	Capture   *capture.Capture
	Playback  *playback.Scheduler
	Ledger    ledger.Ledger
	Analyzer  analysis.Analyzer
	Logger    zerolog.Logger
	Metrics   *observability.Metrics
}

// Controller drives one voice session from gating through stop and save.
// All session state is owned by the Run goroutine; external callers interact
// through Stop and the read-only accessors.
type Controller struct {
	cfg  Config
	deps Deps

	sessionID string
	acc       *transcript.Accumulator

	state   atomic.Int32
	elapsed atomic.Int64

	stopCh chan struct{}
	done   chan struct{}
	result Result

	sendCh   chan outFrame
	sendQuit chan struct{}
	sendOnce sync.Once

	analysisWG sync.WaitGroup
}

// outFrame is one encoded capture chunk queued for the transport writer.
type outFrame struct {
	data    string
	samples int
}

// New creates a controller for a single session. A controller is not
// reusable; create a new one per session.
func New(cfg Config, deps Deps) *Controller {
	sessionID := observability.NewSessionID()
	if deps.Metrics == nil {
		deps.Metrics = observability.NewSessionMetrics(sessionID)
	}
	deps.Logger = deps.Logger.With().Str("session_id", sessionID).Logger()
	c := &Controller{
		cfg:       cfg,
		deps:      deps,
		sessionID: sessionID,
		acc:       transcript.NewAccumulator(),
		stopCh:    make(chan struct{}, 1),
		done:      make(chan struct{}),
		sendCh:    make(chan outFrame, sendBufferSize),
		sendQuit:  make(chan struct{}),
	}
	c.state.Store(int32(StateIdle))
	return c
}

// Stop requests session termination. Safe to call from any goroutine in any
// state; calls after the first are no-ops.
func (c *Controller) Stop() {
	select {
	case c.stopCh <- struct{}{}:
	default:
	}
}

// State returns the current lifecycle phase.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Elapsed returns the whole seconds the session has been live.
func (c *Controller) Elapsed() int {
	return int(c.elapsed.Load())
}

// Volume returns the most recent microphone chunk's RMS level.
func (c *Controller) Volume() float64 {
	return c.deps.Capture.Volume()
}

// Speaking reports whether agent audio is currently scheduled or playing.
func (c *Controller) Speaking() bool {
	return c.deps.Playback.Speaking()
}

// Done is closed once the session has fully stopped and its entry, if any,
// has been saved.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Result returns the session outcome. Valid only after Done is closed.
func (c *Controller) Result() Result {
	return c.result
}

// Wait blocks until any background analysis enrichment has finished.
func (c *Controller) Wait() {
	c.analysisWG.Wait()
}

func (c *Controller) tickInterval() time.Duration {
	if c.cfg.TickInterval > 0 {
		return c.cfg.TickInterval
	}
	return time.Second
}

func (c *Controller) connectWait() time.Duration {
	if c.cfg.ConnectWait > 0 {
		return c.cfg.ConnectWait
	}
	return defaultConnectWait
}

// sendLoop drains queued capture frames onto the transport. Frames arriving
// before the transport opens, or during teardown, are dropped.
func (c *Controller) sendLoop() {
	for {
		select {
		case <-c.sendQuit:
			return
		case frame := <-c.sendCh:
			if c.deps.Transport.State() != live.StateOpen {
				continue
			}
			if err := c.deps.Transport.SendAudio(frame.data); err != nil {
				c.deps.Logger.Debug().Err(err).Msg("Dropped outbound audio chunk")
				continue
			}
			c.deps.Metrics.RecordAudioBytes("in", int64(frame.samples*2))
		}
	}
}

func (c *Controller) stopSender() {
	c.sendOnce.Do(func() { close(c.sendQuit) })
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
}

// Run executes the session to completion and returns its outcome. Blocks
// until the session is stopped, hits the daily limit or fails.
func (c *Controller) Run(ctx context.Context) Result {
	res := c.run(ctx)
	c.result = res
	close(c.done)

	c.deps.Logger.Info().
		Str("state", res.State.String()).
		Str("reason", res.Reason.String()).
		Int("duration_seconds", res.DurationSeconds).
		Str("entry_id", res.EntryID).
		Msg("Session finished")
	return res
}

func (c *Controller) run(ctx context.Context) Result {
	usage, err := c.deps.Ledger.TodayUsageSeconds(ctx, c.cfg.UserID)
	if err != nil {
		observability.RecordLedgerError("today_usage")
		c.setState(StateClosed)
		return Result{State: StateClosed, Reason: ReasonError, Err: fmt.Errorf("read today usage: %w", err)}
	}

	// Computed once; the session never re-reads usage while running.
	maxAllowed := c.cfg.DailyCapSeconds - usage
	if maxAllowed <= 0 {
		c.setState(StateLimitReached)
		c.deps.Logger.Info().Int("used_seconds", usage).Msg("Daily limit already reached")
		return Result{State: StateLimitReached, Reason: ReasonLimit, Err: ErrDailyLimitReached}
	}

	if c.cfg.Tier == config.TierRestricted && c.cfg.GatingDelay > 0 {
		c.setState(StateGating)
		timer := time.NewTimer(c.cfg.GatingDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			c.setState(StateClosed)
			return Result{State: StateClosed, Reason: ReasonUser, Err: ctx.Err()}
		case <-c.stopCh:
			timer.Stop()
			c.setState(StateClosed)
			return Result{State: StateClosed, Reason: ReasonUser}
		}
	}

	c.setState(StateConnecting)

	// The hardware callback only encodes and enqueues; the network write
	// happens on the sender goroutine so TCP backpressure can never stall
	// the capture device.
	go c.sendLoop()
	c.deps.Capture.OnChunk(func(samples []float32, _ float64) {
		frame := outFrame{data: audio.EncodeFrame(samples), samples: len(samples)}
		select {
		case c.sendCh <- frame:
		default:
			c.deps.Logger.Debug().Msg("Send buffer full, dropped capture chunk")
		}
	})

	if err := c.deps.Capture.Open(); err != nil {
		c.stopSender()
		c.setState(StateClosed)
		return Result{State: StateClosed, Reason: ReasonError, Err: fmt.Errorf("%w: %v", ErrMicrophone, err)}
	}

	connectCh := make(chan error, 1)
	go func() {
		connectCh <- c.deps.Transport.Connect(ctx, c.cfg.Live)
	}()

	select {
	case err := <-connectCh:
		if err != nil {
			c.deps.Capture.Close()
			c.stopSender()
			c.setState(StateClosed)
			return Result{State: StateClosed, Reason: ReasonError, Err: fmt.Errorf("%w: %v", ErrConnect, err)}
		}
	case <-c.stopCh:
		// Wait for the dial with a bound: a wedged endpoint must not hold
		// the session open past a stop request.
		select {
		case err := <-connectCh:
			if err == nil {
				c.deps.Transport.Close()
			}
		case <-time.After(c.connectWait()):
			c.deps.Logger.Warn().Msg("Abandoned pending connect after stop")
			c.deps.Transport.Close()
		}
		c.deps.Capture.Close()
		c.stopSender()
		c.setState(StateClosed)
		return Result{State: StateClosed, Reason: ReasonUser}
	}

	c.setState(StateLive)
	c.deps.Metrics.RecordSessionStart()
	c.deps.Logger.Info().Int("max_allowed_seconds", maxAllowed).Msg("Session live")

	ticker := time.NewTicker(c.tickInterval())
	defer ticker.Stop()
	events := c.deps.Transport.Events()

	for {
		select {
		case <-ctx.Done():
			return c.stopAndSave(ReasonUser, ctx.Err())
		case <-c.stopCh:
			return c.stopAndSave(ReasonUser, nil)
		case <-ticker.C:
			elapsed := c.elapsed.Add(1)
			if int(elapsed) >= maxAllowed {
				return c.stopAndSave(ReasonLimit, nil)
			}
		case ev, ok := <-events:
			if !ok {
				return c.stopAndSave(ReasonError, errors.New("event stream closed"))
			}
			if res, stopped := c.handleEvent(ev); stopped {
				return res
			}
		}
	}
}

func (c *Controller) handleEvent(ev live.Event) (Result, bool) {
	switch ev.Kind {
	case live.EventAudio:
		if !c.cfg.VoiceOutput {
			return Result{}, false
		}
		samples, err := audio.DecodeFrame(ev.Data)
		if err != nil {
			c.deps.Logger.Warn().Err(err).Msg("Dropped undecodable audio frame")
			return Result{}, false
		}
		c.deps.Metrics.RecordAudioBytes("out", int64(len(samples)*2))
		c.deps.Playback.Enqueue(playback.Buffer{Samples: samples, SampleRate: c.cfg.OutputSampleRate})
	case live.EventInputTranscript:
		c.acc.AppendPartial(transcript.SpeakerUser, ev.Text)
	case live.EventOutputTranscript:
		c.acc.AppendPartial(transcript.SpeakerAgent, ev.Text)
	case live.EventTurnComplete:
		c.acc.CommitTurn()
	case live.EventInterrupted:
		// Queued agent audio must never be heard after a barge-in, and the
		// abandoned partial agent text never enters the transcript.
		c.deps.Playback.Flush()
		c.acc.Interrupt()
	case live.EventError:
		return c.stopAndSave(ReasonError, ev.Err), true
	case live.EventClosed:
		return c.stopAndSave(ReasonError, errors.New("connection closed unexpectedly")), true
	}
	return Result{}, false
}

// stopAndSave tears the session down and persists the entry. Only ever
// reached once: every path through the live loop returns its result.
func (c *Controller) stopAndSave(reason StopReason, cause error) Result {
	c.setState(StateStopping)
	c.deps.Logger.Info().Str("reason", reason.String()).Msg("Stopping session")

	c.deps.Transport.Close()
	c.deps.Capture.Close()
	c.stopSender()
	c.deps.Playback.Flush()
	c.deps.Playback.Shutdown()

	// A turn cut off mid-exchange still reaches the transcript.
	c.acc.CommitTurn()

	final := int(c.elapsed.Load())
	if final < 1 {
		final = 1
	}

	summary := placeholderSummary
	if c.acc.Len() <= c.cfg.MinTranscriptChars {
		summary = shortTranscriptSummary
	}

	entry := ledger.Entry{
		ID:              c.sessionID,
		UserID:          c.cfg.UserID,
		Summary:         summary,
		Transcript:      c.acc.String(),
		Mood:            analysis.MoodNeutral,
		Tags:            []string{placeholderTag},
		DurationSeconds: final,
	}

	// Saving proceeds on its own context: a canceled session context must
	// not lose the entry.
	saveCtx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	var entryID string
	err := saveWithRetry(saveCtx, c.deps.Ledger, entry, &entryID)
	if err != nil {
		observability.RecordLedgerError("record_session")
		c.deps.Metrics.RecordError("save_failed", "ledger")
		c.deps.Logger.Error().Err(err).Msg("Failed to save journal entry")
	}

	if entryID != "" && c.acc.Len() > c.cfg.MinTranscriptChars {
		text := c.acc.String()
		c.analysisWG.Add(1)
		go c.analyze(entryID, text)
	}

	c.deps.Metrics.RecordSessionEnd(reason.String(), final)
	c.setState(StateClosed)

	return Result{
		State:           StateClosed,
		Reason:          reason,
		DurationSeconds: final,
		EntryID:         entryID,
		Err:             cause,
	}
}

func saveWithRetry(ctx context.Context, l ledger.Ledger, entry ledger.Entry, entryID *string) error {
	return resilience.Retry(ctx, func() error {
		id, err := l.RecordSession(ctx, entry)
		if err != nil {
			return err
		}
		*entryID = id
		return nil
	}, resilience.DefaultRetryConfig())
}

func (c *Controller) analyze(entryID, text string) {
	defer c.analysisWG.Done()

	ctx, cancel := context.WithTimeout(context.Background(), analysisTimeout)
	defer cancel()

	c.deps.Metrics.RecordAnalysisStart()
	result, err := c.deps.Analyzer.Analyze(ctx, text)
	if err != nil {
		c.deps.Metrics.RecordAnalysisEnd(false)
		c.deps.Logger.Warn().Err(err).Msg("Analysis failed, keeping placeholder entry")
		return
	}
	c.deps.Metrics.RecordAnalysisEnd(true)

	if err := c.deps.Ledger.UpdateAnalysis(ctx, entryID, result); err != nil {
		observability.RecordLedgerError("update_analysis")
		c.deps.Logger.Warn().Err(err).Str("entry_id", entryID).Msg("Failed to apply analysis")
		return
	}
	c.deps.Logger.Info().Str("entry_id", entryID).Str("mood", string(result.Mood)).Msg("Entry enriched")
}
