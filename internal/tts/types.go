package tts

import "context"

// Clip is one synthesized utterance packaged as a playable container
type Clip struct {
	Data       []byte // WAV bytes
	MIMEType   string
	SampleRate int
	Channels   int
}

// Synthesizer defines the interface for a Text-to-Speech adapter
type Synthesizer interface {
	// Synthesize renders text spoken in language. Implementations are stateless per call.
	Synthesize(ctx context.Context, text, language string) (*Clip, error)
}
