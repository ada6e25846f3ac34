package capture

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/Sh0oya/Jour/internal/audio"
)

// ChunkFunc receives one fixed-size capture chunk and its RMS volume. The
// session controller wires this to the framer and transport; the call must
// not block the hardware callback.
type ChunkFunc func(samples []float32, rms float64)

// Config holds capture path settings.
type Config struct {
	SampleRate int // fixed input rate the wire format expects
	BufferSize int // samples per chunk handed to the transport
}

// Capture owns the microphone stream for the active session. It re-chunks
// hardware frames to a fixed buffer size, computes an instantaneous volume
// metric per chunk, and forwards each chunk to the registered callback.
type Capture struct {
	ctx    Context
	config Config
	logger zerolog.Logger

	mu      sync.Mutex
	device  Device
	open    bool
	onChunk ChunkFunc
	pending []float32

	volume atomic.Uint64 // float64 bits of the last chunk's RMS
}

// New creates a capture path using the given device context.
func New(ctx Context, config Config, logger zerolog.Logger) *Capture {
	return &Capture{
		ctx:    ctx,
		config: config,
		logger: logger,
	}
}

// OnChunk registers the chunk callback. Must be set before Open.
func (c *Capture) OnChunk(fn ChunkFunc) {
	c.mu.Lock()
	c.onChunk = fn
	c.mu.Unlock()
}

// Open requests the microphone and starts streaming. A device that cannot
// be opened (missing hardware, denied permission) surfaces here; nothing is
// retried at this layer.
func (c *Capture) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.open {
		return fmt.Errorf("capture already open")
	}

	device, err := c.ctx.NewCapture(DeviceConfig{
		SampleRate: c.config.SampleRate,
		Channels:   1,
	}, c.handleFrame)
	if err != nil {
		return fmt.Errorf("open microphone: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Close()
		return fmt.Errorf("start microphone: %w", err)
	}

	c.device = device
	c.open = true
	c.pending = c.pending[:0]
	c.logger.Debug().
		Int("sample_rate", c.config.SampleRate).
		Int("buffer_size", c.config.BufferSize).
		Msg("Microphone capture started")
	return nil
}

// handleFrame accumulates hardware frames into fixed-size chunks and emits
// each full chunk. Runs on the device callback; the chunk callback is
// fire-and-forget and must swallow downstream errors (they surface through
// the transport's error channel instead).
func (c *Capture) handleFrame(samples []float32) {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return
	}
	c.pending = append(c.pending, samples...)

	var chunks [][]float32
	for len(c.pending) >= c.config.BufferSize {
		chunk := make([]float32, c.config.BufferSize)
		copy(chunk, c.pending[:c.config.BufferSize])
		c.pending = c.pending[c.config.BufferSize:]
		chunks = append(chunks, chunk)
	}
	fn := c.onChunk
	c.mu.Unlock()

	for _, chunk := range chunks {
		rms := audio.RMS(chunk)
		c.volume.Store(math.Float64bits(rms))
		if fn != nil {
			fn(chunk, rms)
		}
	}
}

// Volume returns the RMS of the most recent chunk. Display-only; nothing
// gates on it.
func (c *Capture) Volume() float64 {
	return math.Float64frombits(c.volume.Load())
}

// Close releases the microphone. Safe to call multiple times and before
// Open has completed.
func (c *Capture) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return
	}
	c.open = false
	c.device.Stop()
	c.device.Close()
	c.device = nil
	c.pending = nil
	c.volume.Store(0)
	c.logger.Debug().Msg("Microphone capture closed")
}
