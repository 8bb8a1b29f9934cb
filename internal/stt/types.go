package stt

import (
	"context"

	"github.com/lexiqai/translation-gateway/internal/audio"
)

// TranscriptionResult represents the transcription of one audio chunk
type TranscriptionResult struct {
	// Text is the transcribed text, empty when nothing was said
	Text string

	// Confidence is the confidence score (0.0 to 1.0) if available
	Confidence float64

	// Duration is the audio duration in seconds as reported by the provider
	Duration float64
}

// Transcriber is the interface for speech-to-text adapters.
// Each call handles one self-contained chunk; implementations keep no per-session state.
type Transcriber interface {
	Transcribe(ctx context.Context, chunk *audio.DecodedChunk, language string) (*TranscriptionResult, error)
}
