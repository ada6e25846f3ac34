package live

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// fakeEndpoint speaks the server side of the protocol in-process.
type fakeEndpoint struct {
	server *httptest.Server

	mu    sync.Mutex
	conn  *websocket.Conn
	setup *Setup
	media []Blob
	ready chan struct{}
}

func newFakeEndpoint(t *testing.T) *fakeEndpoint {
	t.Helper()
	f := &fakeEndpoint{ready: make(chan struct{})}
	upgrader := websocket.Upgrader{}

	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}

		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil || msg.Setup == nil {
			t.Errorf("expected setup message, got %+v err %v", msg, err)
			return
		}
		f.mu.Lock()
		f.setup = msg.Setup
		f.conn = conn
		f.mu.Unlock()

		if err := conn.WriteJSON(map[string]any{"setupComplete": map[string]any{}}); err != nil {
			t.Errorf("write setup ack: %v", err)
			return
		}
		close(f.ready)

		for {
			var in clientMessage
			if err := conn.ReadJSON(&in); err != nil {
				return
			}
			if in.RealtimeInput != nil {
				f.mu.Lock()
				f.media = append(f.media, in.RealtimeInput.MediaChunks...)
				f.mu.Unlock()
			}
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeEndpoint) url() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http")
}

func (f *fakeEndpoint) send(t *testing.T, content ServerContent) {
	t.Helper()
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	raw, _ := json.Marshal(map[string]any{"serverContent": content})
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("server send failed: %v", err)
	}
}

func (f *fakeEndpoint) mediaChunks() []Blob {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Blob, len(f.media))
	copy(out, f.media)
	return out
}

func connectTestClient(t *testing.T, f *fakeEndpoint) *Client {
	t.Helper()
	c := NewClient(zerolog.Nop())
	err := c.Connect(context.Background(), Config{
		APIKey:    "test-key",
		Model:     "models/test-live",
		VoiceName: "Puck",
		Endpoint:  f.url(),
	})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	<-f.ready
	return c
}

func nextEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case ev, ok := <-c.Events():
		if !ok {
			t.Fatal("events channel closed unexpectedly")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestClient_ConnectHandshake(t *testing.T) {
	f := newFakeEndpoint(t)
	c := connectTestClient(t, f)
	defer c.Close()

	if c.State() != StateOpen {
		t.Errorf("Expected state open, got %s", c.State())
	}
	if ev := nextEvent(t, c); ev.Kind != EventOpened {
		t.Errorf("Expected opened event first, got %s", ev.Kind)
	}

	f.mu.Lock()
	setup := f.setup
	f.mu.Unlock()
	if setup.Model != "models/test-live" {
		t.Errorf("Expected model in setup, got %q", setup.Model)
	}
	if setup.InputAudioTranscription == nil || setup.OutputAudioTranscription == nil {
		t.Error("Expected both transcription directions enabled in setup")
	}
	if setup.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName != "Puck" {
		t.Error("Expected voice name in setup speech config")
	}
}

func TestClient_SendAudioArrivesAsMediaChunk(t *testing.T) {
	f := newFakeEndpoint(t)
	c := connectTestClient(t, f)
	defer c.Close()

	if err := c.SendAudio("AAAA"); err != nil {
		t.Fatalf("SendAudio failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(f.mediaChunks()) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	chunks := f.mediaChunks()
	if len(chunks) != 1 {
		t.Fatalf("Expected 1 media chunk, got %d", len(chunks))
	}
	if chunks[0].Data != "AAAA" {
		t.Errorf("Expected chunk data AAAA, got %q", chunks[0].Data)
	}
	if chunks[0].MimeType != "audio/pcm;rate=16000" {
		t.Errorf("Expected PCM mime type, got %q", chunks[0].MimeType)
	}
}

func TestClient_EventSequencing(t *testing.T) {
	f := newFakeEndpoint(t)
	c := connectTestClient(t, f)
	defer c.Close()

	if ev := nextEvent(t, c); ev.Kind != EventOpened {
		t.Fatalf("Expected opened, got %s", ev.Kind)
	}

	f.send(t, ServerContent{
		ModelTurn:           &Content{Parts: []Part{{InlineData: &Blob{MimeType: "audio/pcm;rate=24000", Data: "UElORw=="}}}},
		OutputTranscription: &Transcription{Text: "Hello "},
	})
	f.send(t, ServerContent{InputTranscription: &Transcription{Text: "Hi June"}})
	f.send(t, ServerContent{TurnComplete: true})

	wantKinds := []EventKind{EventAudio, EventOutputTranscript, EventInputTranscript, EventTurnComplete}
	for _, want := range wantKinds {
		ev := nextEvent(t, c)
		if ev.Kind != want {
			t.Fatalf("Expected %s, got %s", want, ev.Kind)
		}
		switch ev.Kind {
		case EventAudio:
			if ev.Data != "UElORw==" {
				t.Errorf("Expected audio payload, got %q", ev.Data)
			}
		case EventOutputTranscript:
			if ev.Text != "Hello " {
				t.Errorf("Expected output fragment, got %q", ev.Text)
			}
		case EventInputTranscript:
			if ev.Text != "Hi June" {
				t.Errorf("Expected input fragment, got %q", ev.Text)
			}
		}
	}
}

func TestClient_InterruptedDoesNotClose(t *testing.T) {
	f := newFakeEndpoint(t)
	c := connectTestClient(t, f)
	defer c.Close()

	nextEvent(t, c) // opened
	f.send(t, ServerContent{Interrupted: true})

	if ev := nextEvent(t, c); ev.Kind != EventInterrupted {
		t.Fatalf("Expected interrupted, got %s", ev.Kind)
	}
	if c.State() != StateOpen {
		t.Errorf("Expected connection still open after interruption, got %s", c.State())
	}

	// Session remains usable
	f.send(t, ServerContent{TurnComplete: true})
	if ev := nextEvent(t, c); ev.Kind != EventTurnComplete {
		t.Errorf("Expected turn complete after interruption, got %s", ev.Kind)
	}
}

func TestClient_AbnormalCloseEmitsErrorThenClosed(t *testing.T) {
	f := newFakeEndpoint(t)
	c := connectTestClient(t, f)

	nextEvent(t, c) // opened

	// Kill the server side without a close frame
	f.mu.Lock()
	f.conn.Close()
	f.mu.Unlock()

	ev := nextEvent(t, c)
	if ev.Kind != EventError {
		t.Fatalf("Expected error event, got %s", ev.Kind)
	}
	if ev.Err == nil {
		t.Error("Expected error event to carry the cause")
	}
	if ev := nextEvent(t, c); ev.Kind != EventClosed {
		t.Fatalf("Expected terminal closed event, got %s", ev.Kind)
	}
	if c.State() != StateClosed {
		t.Errorf("Expected state closed, got %s", c.State())
	}
}

func TestClient_CloseIdempotent(t *testing.T) {
	f := newFakeEndpoint(t)
	c := connectTestClient(t, f)

	nextEvent(t, c) // opened

	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Second close failed: %v", err)
	}

	if ev := nextEvent(t, c); ev.Kind != EventClosed {
		t.Fatalf("Expected closed event, got %s", ev.Kind)
	}
	// Channel closes after the terminal event
	select {
	case _, ok := <-c.Events():
		if ok {
			t.Error("Expected events channel closed after terminal event")
		}
	case <-time.After(time.Second):
		t.Error("Timed out waiting for events channel close")
	}

	if err := c.SendAudio("AAAA"); err == nil {
		t.Error("Expected send on closed session to fail")
	}
}

func TestClient_ConnectRejectedInNonIdleState(t *testing.T) {
	f := newFakeEndpoint(t)
	c := connectTestClient(t, f)
	defer c.Close()

	err := c.Connect(context.Background(), Config{Endpoint: f.url()})
	if err == nil {
		t.Error("Expected second connect to fail")
	}
}

func TestClient_SendAudioUsesConfiguredSampleRate(t *testing.T) {
	f := newFakeEndpoint(t)
	c := NewClient(zerolog.Nop())
	err := c.Connect(context.Background(), Config{
		APIKey:          "test-key",
		Model:           "models/test-live",
		VoiceName:       "Puck",
		InputSampleRate: 8000,
		Endpoint:        f.url(),
	})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	<-f.ready
	defer c.Close()

	if ev := nextEvent(t, c); ev.Kind != EventOpened {
		t.Fatalf("Expected opened event, got %s", ev.Kind)
	}
	if err := c.SendAudio("AAAA"); err != nil {
		t.Fatalf("SendAudio failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(f.mediaChunks()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	chunks := f.mediaChunks()
	if len(chunks) == 0 {
		t.Fatal("Server never received the media chunk")
	}
	if chunks[0].MimeType != "audio/pcm;rate=8000" {
		t.Errorf("Expected mime rate to follow config, got %q", chunks[0].MimeType)
	}
}

func TestClient_ConnectCancelledDuringStalledHandshake(t *testing.T) {
	// An endpoint that accepts the dial and the setup message but never
	// acknowledges must not hold Connect open past ctx cancellation.
	upgrader := websocket.Upgrader{}
	hold := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		var msg clientMessage
		_ = conn.ReadJSON(&msg)
		<-hold
		conn.Close()
	}))
	t.Cleanup(func() {
		close(hold)
		server.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	c := NewClient(zerolog.Nop())
	start := time.Now()
	err := c.Connect(ctx, Config{
		APIKey:   "test-key",
		Model:    "models/test-live",
		Endpoint: "ws" + strings.TrimPrefix(server.URL, "http"),
	})
	if err == nil {
		t.Fatal("Expected Connect to fail when cancelled mid-handshake")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Connect took %v to observe cancellation", elapsed)
	}
	if c.State() != StateClosed {
		t.Errorf("Expected state closed after cancelled handshake, got %s", c.State())
	}
}
