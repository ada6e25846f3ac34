package audio

import (
	"encoding/base64"
	"fmt"
	"math"
)

// Wire format for the live endpoint: 16-bit signed little-endian mono PCM,
// base64 encoded. Capture and playback run at different fixed rates, so the
// framer never resamples on its own; callers pass frames at the rate the
// frame was produced at.

// EncodeFrame converts captured float32 samples into a base64 PCM frame
// ready to send on the live session. Samples outside [-1, 1] are clamped.
func EncodeFrame(samples []float32) string {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		v := int16(s * 32767)
		pcm[i*2] = byte(v)
		pcm[i*2+1] = byte(v >> 8)
	}
	return base64.StdEncoding.EncodeToString(pcm)
}

// DecodeFrame converts a base64 PCM frame received from the live session
// back into float32 samples. A malformed frame returns an error so the
// caller can drop it; it never panics into the transport's read loop.
func DecodeFrame(data string) ([]float32, error) {
	pcm, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 audio frame: %w", err)
	}
	return DecodePCM(pcm)
}

// DecodePCM converts raw 16-bit little-endian PCM bytes into float32 samples.
func DecodePCM(pcm []byte) ([]float32, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("PCM frame length must be even, got %d bytes", len(pcm))
	}
	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		v := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		samples[i] = float32(v) / 32768.0
	}
	return samples, nil
}

// RMS computes the root mean square of a frame. Used as the instantaneous
// volume metric for the session UI.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Resample performs linear interpolation resampling between two fixed rates.
// Basic quality is fine here: the only in-process consumer is a capture
// device that could not open at the requested rate.
func Resample(samples []float32, inputRate, outputRate int) []float32 {
	if inputRate == outputRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(outputRate) / float64(inputRate)
	outputLength := int(float64(len(samples)) * ratio)
	output := make([]float32, outputLength)

	for i := 0; i < outputLength; i++ {
		srcPos := float64(i) / ratio

		idx0 := int(srcPos)
		idx1 := idx0 + 1
		if idx1 >= len(samples) {
			idx1 = len(samples) - 1
		}

		fraction := srcPos - float64(idx0)
		output[i] = float32(float64(samples[idx0])*(1.0-fraction) + float64(samples[idx1])*fraction)
	}

	return output
}
