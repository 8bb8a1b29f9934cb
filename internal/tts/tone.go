package tts

import (
	"context"
	"fmt"
	"hash/fnv"
	"unicode/utf8"

	"github.com/lexiqai/translation-gateway/internal/audio"
)

const toneSampleRate = 16000

// ToneSynthesizer renders a short sine tone instead of speech.
// Pitch depends on the language and length on the text, so output is deterministic.
type ToneSynthesizer struct{}

// NewToneSynthesizer creates a tone synthesizer
func NewToneSynthesizer() *ToneSynthesizer {
	return &ToneSynthesizer{}
}

// Synthesize returns a WAV tone between 0.2s and 1s long
func (t *ToneSynthesizer) Synthesize(ctx context.Context, text, language string) (*Clip, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if text == "" {
		return nil, fmt.Errorf("nothing to synthesize")
	}

	h := fnv.New32a()
	h.Write([]byte(language))
	frequency := 220 + float64(h.Sum32()%440)

	duration := float64(utf8.RuneCountInString(text)) * 0.02
	if duration < 0.2 {
		duration = 0.2
	}
	if duration > 1 {
		duration = 1
	}

	wav, err := audio.EncodeWAV(audio.Tone(frequency, duration, toneSampleRate, 8000), toneSampleRate, 1)
	if err != nil {
		return nil, err
	}
	return &Clip{Data: wav, MIMEType: "audio/wav", SampleRate: toneSampleRate, Channels: 1}, nil
}
