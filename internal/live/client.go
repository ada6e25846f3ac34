package live

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Sh0oya/Jour/internal/observability"
)

const defaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

// handshakeTimeout bounds the setup exchange. An endpoint that accepts the
// dial but never acknowledges setup must not hold the session open.
const handshakeTimeout = 10 * time.Second

const defaultInputRate = 16000

// Config parameterizes one duplex session.
type Config struct {
	APIKey            string
	Model             string
	VoiceName         string
	SystemInstruction string
	AudioOutput       bool // transcript-only sessions set this false
	InputSampleRate   int
	Endpoint          string // override for tests; defaults to the Gemini endpoint
}

// Transport is the session controller's view of the duplex connection.
type Transport interface {
	Connect(ctx context.Context, cfg Config) error
	SendAudio(b64 string) error
	Events() <-chan Event
	Close() error
	State() ConnectionState
}

// Client is a duplex session over a single websocket: outbound audio chunks
// go up, inbound audio and structured events come down on Events().
type Client struct {
	logger zerolog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	state     ConnectionState
	inputRate int

	writeMu sync.Mutex // gorilla allows one concurrent writer

	events chan Event
	done   chan struct{}
}

// NewClient creates an idle client.
func NewClient(logger zerolog.Logger) *Client {
	return &Client{
		logger: logger,
		state:  StateIdle,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
}

// Connect dials the endpoint, performs the setup handshake and starts the
// read loop. Returns once the server has acknowledged setup; events flow on
// Events() from then on.
func (c *Client) Connect(ctx context.Context, cfg Config) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return fmt.Errorf("connect in state %s", c.state)
	}
	c.state = StateConnecting
	c.mu.Unlock()

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		c.setState(StateClosed)
		return fmt.Errorf("invalid live endpoint: %w", err)
	}
	q := u.Query()
	q.Set("key", cfg.APIKey)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		c.setState(StateClosed)
		return fmt.Errorf("dial live endpoint: %w", err)
	}

	// The handshake must resolve: bound it with a read deadline and abort
	// the connection if ctx is cancelled while it is in flight.
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	handshakeDone := make(chan struct{})
	defer close(handshakeDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-handshakeDone:
		}
	}()

	setup := &Setup{
		Model: cfg.Model,
		GenerationConfig: &GenerationConfig{
			SpeechConfig: &SpeechConfig{
				VoiceConfig: &VoiceConfig{
					PrebuiltVoiceConfig: &PrebuiltVoiceConfig{VoiceName: cfg.VoiceName},
				},
			},
		},
		InputAudioTranscription:  &TranscriptionConfig{},
		OutputAudioTranscription: &TranscriptionConfig{},
	}
	// Audio output stays requested even in transcript-only sessions: the
	// controller decides whether to decode, and turn sequencing depends on
	// the same event stream either way.
	setup.GenerationConfig.ResponseModalities = []string{"AUDIO"}
	if cfg.SystemInstruction != "" {
		setup.SystemInstruction = &Content{Parts: []Part{{Text: cfg.SystemInstruction}}}
	}

	if err := conn.WriteJSON(clientMessage{Setup: setup}); err != nil {
		conn.Close()
		c.setState(StateClosed)
		return fmt.Errorf("send setup: %w", err)
	}

	// The first server message acknowledges setup.
	var ack serverMessage
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		c.setState(StateClosed)
		return fmt.Errorf("read setup ack: %w", err)
	}
	if ack.SetupComplete == nil {
		conn.Close()
		c.setState(StateClosed)
		return fmt.Errorf("expected setup ack, got %+v", ack)
	}
	_ = conn.SetReadDeadline(time.Time{})

	inputRate := cfg.InputSampleRate
	if inputRate == 0 {
		inputRate = defaultInputRate
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateOpen
	c.inputRate = inputRate
	c.mu.Unlock()

	c.emit(Event{Kind: EventOpened})
	go c.readLoop(conn)

	c.logger.Info().Str("model", cfg.Model).Str("voice", cfg.VoiceName).Msg("Live session connected")
	return nil
}

// SendAudio sends one base64 PCM frame upstream. Capture order is send
// order: callers invoke this from a single producer.
func (c *Client) SendAudio(b64 string) error {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	rate := c.inputRate
	c.mu.Unlock()

	if state != StateOpen || conn == nil {
		return fmt.Errorf("send in state %s", state)
	}

	msg := clientMessage{RealtimeInput: &RealtimeInput{
		MediaChunks: []Blob{{MimeType: fmt.Sprintf("audio/pcm;rate=%d", rate), Data: b64}},
	}}

	c.writeMu.Lock()
	err := conn.WriteJSON(msg)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("send audio frame: %w", err)
	}
	return nil
}

// Events returns the inbound event stream. The channel is closed after the
// terminal EventClosed has been delivered.
func (c *Client) Events() <-chan Event {
	return c.events
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close tears the session down. Idempotent; the read loop delivers the
// terminal EventClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state == StateClosed || c.state == StateClosing {
		c.mu.Unlock()
		return nil
	}
	conn := c.conn
	prev := c.state
	c.state = StateClosing
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		_ = conn.Close()
	}
	if prev != StateOpen {
		// No read loop running to finish the transition.
		c.finish()
	}
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.finish()

	for {
		var msg serverMessage
		if err := conn.ReadJSON(&msg); err != nil {
			c.mu.Lock()
			closing := c.state == StateClosing
			c.mu.Unlock()
			if !closing && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn().Err(err).Msg("Live session read error")
				c.emit(Event{Kind: EventError, Err: err})
			}
			return
		}

		sc := msg.ServerContent
		if sc == nil {
			continue
		}

		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part.InlineData != nil && part.InlineData.Data != "" {
					c.emit(Event{Kind: EventAudio, Data: part.InlineData.Data})
				}
			}
		}
		if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
			c.emit(Event{Kind: EventInputTranscript, Text: sc.InputTranscription.Text})
		}
		if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
			c.emit(Event{Kind: EventOutputTranscript, Text: sc.OutputTranscription.Text})
		}
		if sc.Interrupted {
			// Flushes in-flight playback downstream; the socket stays open.
			c.emit(Event{Kind: EventInterrupted})
		}
		if sc.TurnComplete {
			c.emit(Event{Kind: EventTurnComplete})
		}
	}
}

// finish completes the transition to closed exactly once.
func (c *Client) finish() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.state = StateClosed
	c.mu.Unlock()

	c.emit(Event{Kind: EventClosed})
	close(c.done)
	close(c.events)
}

func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		// The consumer loop has stalled; dropping transcript or audio is
		// preferable to blocking the websocket read loop.
		observability.RecordDroppedEvent()
		c.logger.Warn().Str("kind", ev.Kind.String()).Msg("Event channel full, dropping event")
	}
}

func (c *Client) setState(s ConnectionState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
