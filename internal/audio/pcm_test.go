package audio

import (
	"encoding/base64"
	"math"
	"testing"
)

func TestEncodeFrame_RoundTrip(t *testing.T) {
	samples := []float32{0.0, 0.5, -0.5, 0.25, -1.0, 1.0}

	frame := EncodeFrame(samples)
	decoded, err := DecodeFrame(frame)
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}

	if len(decoded) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(decoded))
	}
	for i := range samples {
		if math.Abs(float64(decoded[i]-samples[i])) > 0.001 {
			t.Errorf("Sample %d: expected %.3f, got %.3f", i, samples[i], decoded[i])
		}
	}
}

func TestEncodeFrame_ClampsOutOfRange(t *testing.T) {
	frame := EncodeFrame([]float32{2.0, -2.0})
	decoded, err := DecodeFrame(frame)
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	if decoded[0] < 0.99 {
		t.Errorf("Expected positive overflow clamped near 1.0, got %.3f", decoded[0])
	}
	if decoded[1] > -0.99 {
		t.Errorf("Expected negative overflow clamped near -1.0, got %.3f", decoded[1])
	}
}

func TestDecodeFrame_InvalidBase64(t *testing.T) {
	_, err := DecodeFrame("not-valid-base64!!!")
	if err == nil {
		t.Error("Expected error for invalid base64, got nil")
	}
}

func TestDecodeFrame_OddByteCount(t *testing.T) {
	frame := base64.StdEncoding.EncodeToString([]byte{1, 2, 3})
	_, err := DecodeFrame(frame)
	if err == nil {
		t.Error("Expected error for odd PCM byte count, got nil")
	}
}

func TestRMS(t *testing.T) {
	tests := []struct {
		name    string
		samples []float32
		want    float64
	}{
		{"empty", nil, 0.0},
		{"silence", []float32{0, 0, 0, 0}, 0.0},
		{"full scale", []float32{1, -1, 1, -1}, 1.0},
		{"half scale", []float32{0.5, -0.5, 0.5, -0.5}, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RMS(tt.samples)
			if math.Abs(got-tt.want) > 0.0001 {
				t.Errorf("RMS = %.4f, want %.4f", got, tt.want)
			}
		})
	}
}

func TestResample_SameRate(t *testing.T) {
	samples := []float32{0.1, 0.2, 0.3}
	out := Resample(samples, 16000, 16000)
	if len(out) != 3 {
		t.Errorf("Expected passthrough of 3 samples, got %d", len(out))
	}
}

func TestResample_Downsample(t *testing.T) {
	samples := make([]float32, 480) // 10ms at 48kHz
	for i := range samples {
		samples[i] = float32(math.Sin(float64(i) * 0.1))
	}

	out := Resample(samples, 48000, 16000)
	if len(out) != 160 {
		t.Errorf("Expected 160 output samples, got %d", len(out))
	}
}

func TestResample_Upsample(t *testing.T) {
	samples := []float32{0.0, 1.0}
	out := Resample(samples, 8000, 16000)
	if len(out) != 4 {
		t.Fatalf("Expected 4 output samples, got %d", len(out))
	}
	// Interpolated values must be monotonic between the two inputs
	for i := 1; i < len(out); i++ {
		if out[i] < out[i-1] {
			t.Errorf("Expected non-decreasing ramp, got %v", out)
			break
		}
	}
}
