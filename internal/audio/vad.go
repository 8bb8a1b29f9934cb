package audio

import "time"

// VADConfig holds configuration for Voice Activity Detection
type VADConfig struct {
	EnergyThreshold float64       // RMS energy threshold for speech detection
	SilenceFrames   int           // Consecutive silence frames that end a speech run
	FrameDuration   time.Duration // Analysis window, converted to samples per chunk sample rate
	MinSpeechFrames int           // Speech frames required before a chunk counts as speech
}

// DefaultVADConfig returns a default VAD configuration
func DefaultVADConfig() *VADConfig {
	return &VADConfig{
		EnergyThreshold: 300.0,
		SilenceFrames:   10, // 200ms of silence (10 frames * 20ms)
		FrameDuration:   20 * time.Millisecond,
		MinSpeechFrames: 3,
	}
}

// FrameSize returns the number of samples per analysis frame at sampleRate
func (c *VADConfig) FrameSize(sampleRate int) int {
	size := int(float64(sampleRate) * c.FrameDuration.Seconds())
	if size <= 0 {
		return 160
	}
	return size
}

// VADDetector performs frame-by-frame Voice Activity Detection
type VADDetector struct {
	config         *VADConfig
	silenceCounter int
	isSpeaking     bool
}

// NewVADDetector creates a new VAD detector
func NewVADDetector(config *VADConfig) *VADDetector {
	if config == nil {
		config = DefaultVADConfig()
	}
	return &VADDetector{config: config}
}

// ProcessFrame processes an audio frame and returns whether speech is detected
// Returns: (isSpeaking, speechStarted, speechEnded)
func (v *VADDetector) ProcessFrame(samples []int16) (bool, bool, bool) {
	frameHasSpeech := CalculateRMS(samples) > v.config.EnergyThreshold

	var speechStarted, speechEnded bool

	if frameHasSpeech {
		v.silenceCounter = 0
		if !v.isSpeaking {
			speechStarted = true
			v.isSpeaking = true
		}
	} else {
		v.silenceCounter++
		if v.isSpeaking && v.silenceCounter >= v.config.SilenceFrames {
			speechEnded = true
			v.isSpeaking = false
			v.silenceCounter = 0
		}
	}

	return v.isSpeaking, speechStarted, speechEnded
}

// Reset resets the VAD detector state
func (v *VADDetector) Reset() {
	v.silenceCounter = 0
	v.isSpeaking = false
}

// IsSpeaking returns whether speech is currently detected
func (v *VADDetector) IsSpeaking() bool {
	return v.isSpeaking
}

// ContainsSpeech scans a whole mono chunk and reports whether it holds at least
// MinSpeechFrames frames above the energy threshold.
func ContainsSpeech(samples []int16, sampleRate int, config *VADConfig) bool {
	if config == nil {
		config = DefaultVADConfig()
	}
	frameSize := config.FrameSize(sampleRate)
	detector := NewVADDetector(config)

	speechFrames := 0
	for start := 0; start < len(samples); start += frameSize {
		end := start + frameSize
		if end > len(samples) {
			end = len(samples)
		}
		if speaking, _, _ := detector.ProcessFrame(samples[start:end]); speaking && detector.silenceCounter == 0 {
			speechFrames++
			if speechFrames >= config.MinSpeechFrames {
				return true
			}
		}
	}
	return false
}

// DetectSilence detects if audio samples represent silence
func DetectSilence(samples []int16, threshold float64) bool {
	return CalculateRMS(samples) < threshold
}
