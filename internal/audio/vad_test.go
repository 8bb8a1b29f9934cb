package audio

import (
	"testing"
	"time"
)

func testVADConfig() *VADConfig {
	return &VADConfig{
		EnergyThreshold: 500.0,
		SilenceFrames:   10,
		FrameDuration:   20 * time.Millisecond,
		MinSpeechFrames: 3,
	}
}

func constantFrame(n int, value int16) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = value
	}
	return samples
}

func TestVADDetector_ProcessFrame_Speech(t *testing.T) {
	vad := NewVADDetector(testVADConfig())
	samples := constantFrame(160, 5000)

	for i := 0; i < 5; i++ {
		isSpeaking, speechStarted, _ := vad.ProcessFrame(samples)
		if !isSpeaking {
			t.Errorf("Expected speech detection on frame %d", i)
		}
		if i == 0 && !speechStarted {
			t.Error("Expected speech to start on first frame")
		}
	}
}

func TestVADDetector_ProcessFrame_Silence(t *testing.T) {
	vad := NewVADDetector(testVADConfig())
	samples := constantFrame(160, 10)

	for i := 0; i < 15; i++ {
		if isSpeaking, _, _ := vad.ProcessFrame(samples); isSpeaking {
			t.Errorf("Expected silence on frame %d", i)
		}
	}
}

func TestVADDetector_ProcessFrame_SpeechToSilence(t *testing.T) {
	vad := NewVADDetector(testVADConfig())
	high := constantFrame(160, 5000)
	low := constantFrame(160, 10)

	for i := 0; i < 5; i++ {
		vad.ProcessFrame(high)
	}

	ended := false
	for i := 0; i < 10; i++ {
		_, _, speechEnded := vad.ProcessFrame(low)
		if speechEnded {
			ended = true
			if i != 9 {
				t.Errorf("Expected speech to end on the 10th silent frame, ended on %d", i+1)
			}
		}
	}
	if !ended {
		t.Error("Expected speech to end after enough silence")
	}
	if vad.IsSpeaking() {
		t.Error("Expected speaking state false after speech ended")
	}
}

func TestVADDetector_Threshold(t *testing.T) {
	low := NewVADDetector(&VADConfig{EnergyThreshold: 100.0, SilenceFrames: 10})
	high := NewVADDetector(&VADConfig{EnergyThreshold: 5000.0, SilenceFrames: 10})
	samples := constantFrame(160, 1000)

	if isSpeaking, _, _ := low.ProcessFrame(samples); !isSpeaking {
		t.Error("Expected low threshold to detect speech")
	}
	if isSpeaking, _, _ := high.ProcessFrame(samples); isSpeaking {
		t.Error("Expected high threshold to not detect speech")
	}
}

func TestVADDetector_Reset(t *testing.T) {
	vad := NewVADDetector(testVADConfig())
	vad.ProcessFrame(constantFrame(160, 5000))
	if !vad.IsSpeaking() {
		t.Fatal("Expected speech to be detected")
	}

	vad.Reset()
	if vad.IsSpeaking() {
		t.Error("Expected speech state to be false after reset")
	}
}

func TestVADConfig_FrameSize(t *testing.T) {
	cfg := testVADConfig()
	if got := cfg.FrameSize(16000); got != 320 {
		t.Errorf("Expected 320 samples at 16kHz, got %d", got)
	}
	if got := cfg.FrameSize(8000); got != 160 {
		t.Errorf("Expected 160 samples at 8kHz, got %d", got)
	}
}

func TestContainsSpeech(t *testing.T) {
	cfg := testVADConfig()

	silence := constantFrame(16000, 20)
	if ContainsSpeech(silence, 16000, cfg) {
		t.Error("Expected one second of near-silence to contain no speech")
	}

	tone := Tone(220, 1.0, 16000, 6000)
	if !ContainsSpeech(tone, 16000, cfg) {
		t.Error("Expected a loud tone to count as speech")
	}

	// A single loud click is shorter than MinSpeechFrames
	click := constantFrame(16000, 20)
	copy(click[:320], constantFrame(320, 9000))
	if ContainsSpeech(click, 16000, cfg) {
		t.Error("Expected a single loud frame not to count as speech")
	}
}

func TestDetectSilence(t *testing.T) {
	if DetectSilence([]int16{5000, 5000, 5000}, 1000.0) {
		t.Error("Expected high energy samples to not be silence")
	}
	if !DetectSilence([]int16{10, 10, 10}, 1000.0) {
		t.Error("Expected low energy samples to be silence")
	}
}
