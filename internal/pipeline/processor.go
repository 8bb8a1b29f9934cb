// Package pipeline runs one audio chunk through transcription and the per-language dual output cache.
package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/translation-gateway/internal/audio"
	"github.com/lexiqai/translation-gateway/internal/cache"
	"github.com/lexiqai/translation-gateway/internal/observability"
	"github.com/lexiqai/translation-gateway/internal/stt"
)

// Job is one sequenced chunk ready for processing
type Job struct {
	SessionID       string
	Sequence        uint64
	Chunk           *audio.DecodedChunk
	SourceLanguage  string
	TargetLanguages []string
}

// Original is the transcription of a chunk in the broadcaster's language
type Original struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// TranslationResult is the outcome of processing one chunk
type TranslationResult struct {
	SessionID      string
	Sequence       uint64
	Original       Original
	PerLanguage    map[string]*cache.Entry
	ProcessingTime time.Duration

	// Silent is set when the chunk held no speech and nothing should reach subscribers
	Silent bool
	// Errors holds every adapter failure; a transcription failure leaves PerLanguage empty
	Errors []*AdapterError
}

// TranscriptionFailed reports whether the chunk could not be transcribed at all
func (r *TranslationResult) TranscriptionFailed() bool {
	for _, err := range r.Errors {
		if err.Stage == StageTranscribe {
			return true
		}
	}
	return false
}

// Deliverable reports whether subscribers should receive events for this result
func (r *TranslationResult) Deliverable() bool {
	return !r.Silent && !r.TranscriptionFailed()
}

// Processor transcribes a chunk and resolves every requested language through the cache
type Processor struct {
	transcriber stt.Transcriber
	outputs     *cache.DualOutputCache
	timeout     time.Duration
	vad         *audio.VADConfig
	logger      zerolog.Logger
}

// NewProcessor creates a processor. timeout bounds the transcription call; vad may be nil
// to disable the silence skip.
func NewProcessor(transcriber stt.Transcriber, outputs *cache.DualOutputCache, timeout time.Duration, vad *audio.VADConfig) *Processor {
	return &Processor{
		transcriber: transcriber,
		outputs:     outputs,
		timeout:     timeout,
		vad:         vad,
		logger:      observability.Component("pipeline"),
	}
}

// Process never fails as a whole: adapter failures are collected on the result
func (p *Processor) Process(ctx context.Context, job Job) *TranslationResult {
	start := time.Now()
	result := &TranslationResult{
		SessionID:   job.SessionID,
		Sequence:    job.Sequence,
		Original:    Original{Language: job.SourceLanguage},
		PerLanguage: make(map[string]*cache.Entry),
	}
	defer func() {
		result.ProcessingTime = time.Since(start)
		observability.RecordChunkProcessing(result.ProcessingTime)
	}()

	logger := p.logger.With().Str("session_id", job.SessionID).Uint64("sequence", job.Sequence).Logger()

	if p.vad != nil && job.Chunk.HasPCM() && !audio.ContainsSpeech(job.Chunk.Samples, job.Chunk.SampleRate, p.vad) {
		logger.Debug().Msg("Chunk is silent, skipping transcription")
		result.Silent = true
		return result
	}

	text, err := p.transcribe(ctx, job)
	if err != nil {
		logger.Warn().Err(err).Msg("Transcription failed")
		result.Errors = append(result.Errors, &AdapterError{Stage: StageTranscribe, Err: err})
		return result
	}
	result.Original.Text = text
	if text == "" {
		result.Silent = true
		return result
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, lang := range job.TargetLanguages {
		wg.Add(1)
		go func(lang string) {
			defer wg.Done()
			entry, err := p.outputs.Resolve(ctx, cache.Request{
				SessionID:      job.SessionID,
				Sequence:       job.Sequence,
				SourceLanguage: job.SourceLanguage,
				TargetLanguage: lang,
				Text:           text,
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warn().Err(err).Str("language", lang).Msg("Translation failed, omitting language")
				result.Errors = append(result.Errors, &AdapterError{Stage: StageTranslate, Language: lang, Err: err})
				return
			}
			if entry.SynthesisErr != nil {
				result.Errors = append(result.Errors, &AdapterError{Stage: StageSynthesize, Language: lang, Err: entry.SynthesisErr})
			}
			result.PerLanguage[lang] = entry
		}(lang)
	}
	wg.Wait()

	return result
}

func (p *Processor) transcribe(ctx context.Context, job Job) (string, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := p.transcriber.Transcribe(ctx, job.Chunk, job.SourceLanguage)
	observability.RecordAdapterCall(StageTranscribe, time.Since(start), err)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Text), nil
}

// Release frees per-chunk cache state once a sequence is dispatched or dropped
func (p *Processor) Release(sessionID string, sequence uint64) {
	p.outputs.Release(sessionID, sequence)
}

// Audio looks up a synthesized clip by reference
func (p *Processor) Audio(ref string) ([]byte, string, bool) {
	clip, ok := p.outputs.Audio(ref)
	if !ok {
		return nil, "", false
	}
	return clip.Data, clip.MIMEType, true
}

// CacheStats exposes the shared cache counters
func (p *Processor) CacheStats() cache.Stats {
	return p.outputs.Stats()
}
