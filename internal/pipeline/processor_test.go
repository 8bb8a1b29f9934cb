package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lexiqai/translation-gateway/internal/audio"
	"github.com/lexiqai/translation-gateway/internal/cache"
	"github.com/lexiqai/translation-gateway/internal/stt"
	"github.com/lexiqai/translation-gateway/internal/translate"
	"github.com/lexiqai/translation-gateway/internal/tts"
)

type scriptedTranscriber struct {
	text  string
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (s *scriptedTranscriber) Transcribe(ctx context.Context, chunk *audio.DecodedChunk, language string) (*stt.TranscriptionResult, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &stt.TranscriptionResult{Text: s.text}, nil
}

type failingTranslator struct {
	failFor string
}

func (f *failingTranslator) Translate(ctx context.Context, text, from, to string) (string, error) {
	if to == f.failFor {
		return "", errors.New("unsupported language")
	}
	return translate.NewEchoTranslator().Translate(ctx, text, from, to)
}

type failingSynth struct{}

func (failingSynth) Synthesize(ctx context.Context, text, language string) (*tts.Clip, error) {
	return nil, errors.New("voice unavailable")
}

func speechChunk(t *testing.T) *audio.DecodedChunk {
	t.Helper()
	payload, err := audio.EncodeWAV(audio.Tone(300, 1, 16000, 6000), 16000, 1)
	if err != nil {
		t.Fatalf("Failed to encode WAV: %v", err)
	}
	chunk, err := audio.NewCodec(0).Decode(payload)
	if err != nil {
		t.Fatalf("Failed to decode chunk: %v", err)
	}
	return chunk
}

func silentChunk(t *testing.T) *audio.DecodedChunk {
	t.Helper()
	payload, err := audio.EncodeWAV(make([]int16, 16000), 16000, 1)
	if err != nil {
		t.Fatalf("Failed to encode WAV: %v", err)
	}
	chunk, err := audio.NewCodec(0).Decode(payload)
	if err != nil {
		t.Fatalf("Failed to decode chunk: %v", err)
	}
	return chunk
}

func newTestProcessor(t *testing.T, tr stt.Transcriber, translator translate.Translator, synth tts.Synthesizer) *Processor {
	t.Helper()
	outputs, err := cache.New(translator, synth, 32, 32)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	return NewProcessor(tr, outputs, time.Second, audio.DefaultVADConfig())
}

func TestProcess_AllLanguages(t *testing.T) {
	p := newTestProcessor(t, &scriptedTranscriber{text: " hello "}, translate.NewEchoTranslator(), tts.NewToneSynthesizer())

	result := p.Process(context.Background(), Job{
		SessionID:       "ABC123",
		Sequence:        1,
		Chunk:           speechChunk(t),
		SourceLanguage:  "en",
		TargetLanguages: []string{"ar", "fr"},
	})

	if !result.Deliverable() || len(result.Errors) != 0 {
		t.Fatalf("Expected deliverable result, got errors %v", result.Errors)
	}
	if result.Original.Text != "hello" || result.Original.Language != "en" {
		t.Errorf("Unexpected original %+v", result.Original)
	}
	if result.PerLanguage["ar"].Text != "[ar] hello" || !result.PerLanguage["ar"].HasAudio() {
		t.Errorf("Unexpected Arabic entry %+v", result.PerLanguage["ar"])
	}
	if result.PerLanguage["fr"] == nil {
		t.Error("Expected French entry")
	}
	if result.ProcessingTime <= 0 {
		t.Error("Expected processing time to be recorded")
	}
}

func TestProcess_SilentChunkSkipsTranscription(t *testing.T) {
	tr := &scriptedTranscriber{text: "should not be called"}
	p := newTestProcessor(t, tr, translate.NewEchoTranslator(), tts.NewToneSynthesizer())

	result := p.Process(context.Background(), Job{SessionID: "S", Sequence: 1, Chunk: silentChunk(t), SourceLanguage: "en", TargetLanguages: []string{"fr"}})

	if !result.Silent || result.Deliverable() {
		t.Error("Expected silent, undeliverable result")
	}
	if tr.calls.Load() != 0 {
		t.Error("Expected transcription to be skipped")
	}
}

func TestProcess_EmptyTranscriptIsSilent(t *testing.T) {
	p := newTestProcessor(t, &scriptedTranscriber{text: "  "}, translate.NewEchoTranslator(), tts.NewToneSynthesizer())

	result := p.Process(context.Background(), Job{SessionID: "S", Sequence: 1, Chunk: speechChunk(t), SourceLanguage: "en", TargetLanguages: []string{"fr"}})
	if !result.Silent || len(result.PerLanguage) != 0 {
		t.Errorf("Expected silent result, got %+v", result)
	}
}

func TestProcess_TranscriptionFailure(t *testing.T) {
	p := newTestProcessor(t, &scriptedTranscriber{err: errors.New("stt down")}, translate.NewEchoTranslator(), tts.NewToneSynthesizer())

	result := p.Process(context.Background(), Job{SessionID: "S", Sequence: 1, Chunk: speechChunk(t), SourceLanguage: "en", TargetLanguages: []string{"fr"}})

	if !result.TranscriptionFailed() || result.Deliverable() {
		t.Error("Expected transcription failure")
	}
	if len(result.PerLanguage) != 0 {
		t.Error("Expected no languages after transcription failure")
	}
	if !errors.Is(result.Errors[0], ErrAdapterFailure) {
		t.Error("Expected adapter error to match ErrAdapterFailure")
	}
}

func TestProcess_TranscriptionTimeout(t *testing.T) {
	outputs, _ := cache.New(translate.NewEchoTranslator(), tts.NewToneSynthesizer(), 8, 8)
	p := NewProcessor(&scriptedTranscriber{text: "late", delay: time.Second}, outputs, 30*time.Millisecond, nil)

	start := time.Now()
	result := p.Process(context.Background(), Job{SessionID: "S", Sequence: 1, Chunk: speechChunk(t), SourceLanguage: "en", TargetLanguages: []string{"fr"}})

	if !result.TranscriptionFailed() {
		t.Fatal("Expected timeout to fail transcription")
	}
	if !errors.Is(result.Errors[0], context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", result.Errors[0])
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("Expected the per-call deadline to bound processing")
	}
}

func TestProcess_TranslationFailureOmitsLanguage(t *testing.T) {
	p := newTestProcessor(t, &scriptedTranscriber{text: "hello"}, &failingTranslator{failFor: "ja"}, tts.NewToneSynthesizer())

	result := p.Process(context.Background(), Job{SessionID: "S", Sequence: 1, Chunk: speechChunk(t), SourceLanguage: "en", TargetLanguages: []string{"ja", "de"}})

	if !result.Deliverable() {
		t.Fatal("Expected result to stay deliverable")
	}
	if _, ok := result.PerLanguage["ja"]; ok {
		t.Error("Expected failed language to be omitted")
	}
	if result.PerLanguage["de"] == nil {
		t.Error("Expected other languages to proceed")
	}
	if len(result.Errors) != 1 || result.Errors[0].Stage != StageTranslate || result.Errors[0].Language != "ja" {
		t.Errorf("Unexpected errors %v", result.Errors)
	}
}

func TestProcess_SynthesisFailureKeepsText(t *testing.T) {
	p := newTestProcessor(t, &scriptedTranscriber{text: "hello"}, translate.NewEchoTranslator(), failingSynth{})

	result := p.Process(context.Background(), Job{SessionID: "S", Sequence: 1, Chunk: speechChunk(t), SourceLanguage: "en", TargetLanguages: []string{"ar"}})

	entry := result.PerLanguage["ar"]
	if entry == nil || entry.Text != "[ar] hello" || entry.HasAudio() {
		t.Errorf("Expected text-only Arabic entry, got %+v", entry)
	}
	if len(result.Errors) != 1 || result.Errors[0].Stage != StageSynthesize {
		t.Errorf("Expected one synthesis error, got %v", result.Errors)
	}
}

func TestAdapterError(t *testing.T) {
	err := &AdapterError{Stage: StageTranslate, Language: "fr", Err: errors.New("boom")}
	if err.Error() != "translate failed for fr: boom" {
		t.Errorf("Unexpected message %q", err.Error())
	}
	if !errors.Is(err, ErrAdapterFailure) {
		t.Error("Expected ErrAdapterFailure match")
	}
}

// inboundAudioBytes reads the inbound audio byte counter from the default registry
func inboundAudioBytes(t *testing.T) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}
	for _, family := range families {
		if family.GetName() != "translation_gateway_audio_bytes_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "direction" && label.GetValue() == "in" {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestProcess_DoesNotCountInboundBytes(t *testing.T) {
	p := newTestProcessor(t, &scriptedTranscriber{text: "hello"}, translate.NewEchoTranslator(), tts.NewToneSynthesizer())

	before := inboundAudioBytes(t)
	result := p.Process(context.Background(), Job{
		SessionID:       "ABC123",
		Sequence:        9,
		Chunk:           speechChunk(t),
		SourceLanguage:  "en",
		TargetLanguages: []string{"es"},
	})
	if !result.Deliverable() {
		t.Fatalf("Expected deliverable result, got errors %v", result.Errors)
	}

	// Inbound bytes are counted once when the session accepts the chunk
	if after := inboundAudioBytes(t); after != before {
		t.Errorf("Process changed inbound byte count from %v to %v", before, after)
	}
}
