package audio

import (
	"testing"
)

func TestRingBuffer_WriteRead(t *testing.T) {
	rb := NewRingBuffer(10)

	written := rb.Write([]float32{0.1, 0.2, 0.3, 0.4, 0.5})
	if written != 5 {
		t.Errorf("Expected to write 5 samples, got %d", written)
	}
	if rb.Available() != 5 {
		t.Errorf("Expected available 5, got %d", rb.Available())
	}

	out := make([]float32, 3)
	read := rb.Read(out)
	if read != 3 {
		t.Errorf("Expected to read 3 samples, got %d", read)
	}
	if out[0] != 0.1 || out[1] != 0.2 || out[2] != 0.3 {
		t.Errorf("Read incorrect samples: %v", out)
	}
	if rb.Available() != 2 {
		t.Errorf("Expected available 2 after read, got %d", rb.Available())
	}
}

func TestRingBuffer_WriteFull(t *testing.T) {
	rb := NewRingBuffer(5)

	written := rb.Write([]float32{1, 2, 3, 4, 5, 6})
	if written != 4 {
		t.Errorf("Expected to write 4 samples (capacity size-1), got %d", written)
	}

	written = rb.Write([]float32{7})
	if written != 0 {
		t.Errorf("Expected to write 0 samples into full buffer, got %d", written)
	}
}

func TestRingBuffer_ReadEmpty(t *testing.T) {
	rb := NewRingBuffer(10)

	if !rb.IsEmpty() {
		t.Error("Expected new buffer to be empty")
	}

	out := make([]float32, 5)
	if read := rb.Read(out); read != 0 {
		t.Errorf("Expected to read 0 samples from empty buffer, got %d", read)
	}
}

func TestRingBuffer_WrapAround(t *testing.T) {
	rb := NewRingBuffer(5)

	rb.Write([]float32{1, 2, 3, 4})
	out := make([]float32, 2)
	rb.Read(out)
	rb.Write([]float32{5, 6})

	if rb.Available() != 4 {
		t.Fatalf("Expected available 4, got %d", rb.Available())
	}

	out = make([]float32, 4)
	rb.Read(out)
	expected := []float32{3, 4, 5, 6}
	for i := range expected {
		if out[i] != expected[i] {
			t.Errorf("Expected %v at position %d, got %v", expected[i], i, out[i])
		}
	}
}

func TestRingBuffer_Clear(t *testing.T) {
	rb := NewRingBuffer(10)
	rb.Write([]float32{1, 2, 3})

	rb.Clear()
	if !rb.IsEmpty() {
		t.Error("Expected buffer to be empty after clear")
	}
	if rb.Space() != 9 {
		t.Errorf("Expected space 9 after clear, got %d", rb.Space())
	}
}
