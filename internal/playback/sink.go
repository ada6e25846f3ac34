package playback

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog"

	"github.com/Sh0oya/Jour/internal/audio"
)

// DeviceSink is the real Player. Scheduled buffers are fed into a sample
// ring buffer at their start time; a miniaudio playback device drains the
// ring at the hardware rate. The output device is exclusively owned by the
// active session.
type DeviceSink struct {
	ring       *audio.RingBuffer
	sampleRate int
	logger     zerolog.Logger

	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	closed bool
}

// NewDeviceSink opens the default playback device at sampleRate (mono,
// 32-bit float) and starts draining the ring buffer.
func NewDeviceSink(sampleRate int, logger zerolog.Logger) (*DeviceSink, error) {
	s := &DeviceSink{
		// Two seconds of headroom at the output rate.
		ring:       audio.NewRingBuffer(sampleRate*2 + 1),
		sampleRate: sampleRate,
		logger:     logger,
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)

	callbacks := malgo.DeviceCallbacks{
		Data: func(out, _ []byte, frameCount uint32) {
			s.fill(out, int(frameCount))
		},
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("init playback device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("start playback device: %w", err)
	}

	s.ctx = mctx
	s.device = device
	return s, nil
}

// fill drains the ring into the device's output frame, zero-padding when
// the ring is empty so the device keeps running between agent turns.
func (s *DeviceSink) fill(out []byte, frames int) {
	samples := make([]float32, frames)
	n := s.ring.Read(samples)
	for i := 0; i < frames; i++ {
		var v float32
		if i < n {
			v = samples[i]
		}
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
}

// Play feeds buf into the ring at its scheduled start time and returns a
// handle that can silence it early.
func (s *DeviceSink) Play(buf Buffer, at time.Time) Handle {
	samples := buf.Samples
	if buf.SampleRate != s.sampleRate {
		samples = audio.Resample(samples, buf.SampleRate, s.sampleRate)
	}

	h := &sinkHandle{sink: s}
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	h.timer = time.AfterFunc(delay, func() {
		if h.stopped.Load() {
			return
		}
		written := s.ring.Write(samples)
		if written < len(samples) {
			s.logger.Warn().
				Int("dropped", len(samples)-written).
				Msg("Playback ring full, dropped samples")
		}
	})
	return h
}

// Close stops and releases the playback device.
func (s *DeviceSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	if s.device != nil {
		s.device.Uninit()
		s.device = nil
	}
	if s.ctx != nil {
		s.ctx.Uninit()
		s.ctx.Free()
		s.ctx = nil
	}
	s.ring.Clear()
}

type sinkHandle struct {
	sink    *DeviceSink
	timer   *time.Timer
	stopped atomic.Bool
}

// Stop cancels the pending feed and clears any samples already queued.
// Stop is only invoked on flush/shutdown, where every in-flight buffer is
// being silenced, so clearing the shared ring is the intended effect.
func (h *sinkHandle) Stop() {
	if h.stopped.Swap(true) {
		return
	}
	h.timer.Stop()
	h.sink.ring.Clear()
}
