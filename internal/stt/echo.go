package stt

import (
	"context"
	"fmt"

	"github.com/lexiqai/translation-gateway/internal/audio"
)

// EchoTranscriber describes the chunk instead of recognizing speech.
// Used for local development and tests with ADAPTER_PROVIDER=echo.
type EchoTranscriber struct{}

// NewEchoTranscriber creates an echo transcriber
func NewEchoTranscriber() *EchoTranscriber {
	return &EchoTranscriber{}
}

// Transcribe returns a deterministic description of the chunk
func (e *EchoTranscriber) Transcribe(ctx context.Context, chunk *audio.DecodedChunk, language string) (*TranscriptionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &TranscriptionResult{
		Text:       fmt.Sprintf("%s audio, %.1f seconds, %d bytes", chunk.Format, chunk.Duration.Seconds(), len(chunk.Payload)),
		Confidence: 1,
		Duration:   chunk.Duration.Seconds(),
	}, nil
}
