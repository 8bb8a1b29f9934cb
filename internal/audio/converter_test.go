package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestBytesToSamples(t *testing.T) {
	want := []int16{0, 1000, -1000, 32767, -32768}
	pcmData := make([]byte, len(want)*2)
	for i, sample := range want {
		binary.LittleEndian.PutUint16(pcmData[i*2:], uint16(sample))
	}

	samples, err := BytesToSamples(pcmData)
	if err != nil {
		t.Fatalf("BytesToSamples failed: %v", err)
	}
	for i := range want {
		if samples[i] != want[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, want[i], samples[i])
		}
	}
}

func TestBytesToSamples_OddLength(t *testing.T) {
	if _, err := BytesToSamples([]byte{1, 2, 3}); err == nil {
		t.Error("Expected error for odd-length PCM data")
	}
}

func TestSamplesToBytes(t *testing.T) {
	samples := []int16{0, 1000, -1000, 32767, -32768}
	back, err := BytesToSamples(SamplesToBytes(samples))
	if err != nil {
		t.Fatalf("BytesToSamples failed: %v", err)
	}
	for i := range samples {
		if back[i] != samples[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, samples[i], back[i])
		}
	}
}

func TestDownmixToMono(t *testing.T) {
	stereo := []int16{100, 300, -200, 200, 50, 50}
	mono := DownmixToMono(stereo, 2)

	want := []int16{200, 0, 50}
	if len(mono) != len(want) {
		t.Fatalf("Expected %d frames, got %d", len(want), len(mono))
	}
	for i := range want {
		if mono[i] != want[i] {
			t.Errorf("Frame %d: expected %d, got %d", i, want[i], mono[i])
		}
	}
}

func TestResample(t *testing.T) {
	samples := make([]int16, 2400) // 0.1 seconds at 24kHz
	for i := range samples {
		samples[i] = int16(i % 1000)
	}

	out := Resample(samples, 24000, 8000)
	if len(out) != 800 {
		t.Errorf("Expected 800 samples, got %d", len(out))
	}

	same := Resample(samples, 16000, 16000)
	if len(same) != len(samples) {
		t.Errorf("Expected no-op resample to keep %d samples, got %d", len(samples), len(same))
	}
}

func TestDecodeMulaw(t *testing.T) {
	// 0xFF encodes zero, 0x00 and 0x80 encode the negative and positive peaks
	samples := DecodeMulaw([]byte{0xFF, 0x00, 0x80})

	if samples[0] != 0 {
		t.Errorf("Expected 0xFF to decode to 0, got %d", samples[0])
	}
	if samples[1] >= 0 {
		t.Errorf("Expected 0x00 to decode negative, got %d", samples[1])
	}
	if samples[2] <= 0 {
		t.Errorf("Expected 0x80 to decode positive, got %d", samples[2])
	}
	if samples[1] != -samples[2] {
		t.Errorf("Expected symmetric peaks, got %d and %d", samples[1], samples[2])
	}
}

func TestNormalizeAudio(t *testing.T) {
	samples := []int16{10000, -20000, 5000}
	normalized := NormalizeAudio(samples, 10000)

	for i, s := range normalized {
		if s > 10000 || s < -10000 {
			t.Errorf("Sample %d exceeds max amplitude: %d", i, s)
		}
	}
	if normalized[1] != -10000 {
		t.Errorf("Expected peak to be scaled to -10000, got %d", normalized[1])
	}
}

func TestNormalizeAudio_Empty(t *testing.T) {
	if out := NormalizeAudio(nil, 1000); len(out) != 0 {
		t.Errorf("Expected empty output, got %d samples", len(out))
	}
}

func TestNormalizeAudio_AlreadyNormalized(t *testing.T) {
	samples := []int16{100, -200, 300}
	normalized := NormalizeAudio(samples, 1000)
	for i := range samples {
		if normalized[i] != samples[i] {
			t.Errorf("Sample %d changed: %d -> %d", i, samples[i], normalized[i])
		}
	}
}

func TestCalculateRMS(t *testing.T) {
	samples := []int16{100, -100, 100, -100}
	if rms := CalculateRMS(samples); math.Abs(rms-100) > 0.001 {
		t.Errorf("Expected RMS 100, got %f", rms)
	}
	if rms := CalculateRMS(nil); rms != 0 {
		t.Errorf("Expected RMS 0 for empty input, got %f", rms)
	}
}

func TestTone(t *testing.T) {
	samples := Tone(440, 0.5, 16000, 8000)
	if len(samples) != 8000 {
		t.Fatalf("Expected 8000 samples, got %d", len(samples))
	}
	rms := CalculateRMS(samples)
	// RMS of a sine is amplitude / sqrt(2)
	if math.Abs(rms-8000/math.Sqrt2) > 100 {
		t.Errorf("Unexpected tone RMS %f", rms)
	}
}
