package stt

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	restapi "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	restinterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/lexiqai/translation-gateway/internal/audio"
	"github.com/lexiqai/translation-gateway/internal/config"
	"github.com/lexiqai/translation-gateway/internal/observability"
	"github.com/lexiqai/translation-gateway/internal/resilience"
)

// prerecordedAPI is the slice of the Deepgram REST client we use
type prerecordedAPI interface {
	FromStream(ctx context.Context, src io.Reader, options *interfaces.PreRecordedTranscriptionOptions) (*restinterfaces.PreRecordedResponse, error)
}

// DeepgramTranscriber implements Transcriber using Deepgram's pre-recorded API.
// Chunks are complete containers, so each one is posted as its own request.
type DeepgramTranscriber struct {
	api    prerecordedAPI
	model  string
	guard  *resilience.Guard
	logger zerolog.Logger
}

// NewDeepgramTranscriber creates a Deepgram REST transcriber
func NewDeepgramTranscriber(cfg *config.Config) *DeepgramTranscriber {
	listenClient.InitWithDefault()
	client := listenClient.NewREST(cfg.DeepgramAPIKey, &interfaces.ClientOptions{})

	return &DeepgramTranscriber{
		api:    restapi.New(client),
		model:  cfg.DeepgramModel,
		guard:  resilience.NewAdapterGuard("deepgram", cfg),
		logger: observability.Component("stt"),
	}
}

// Transcribe sends one chunk to Deepgram and returns the best alternative
func (d *DeepgramTranscriber) Transcribe(ctx context.Context, chunk *audio.DecodedChunk, language string) (*TranscriptionResult, error) {
	options := &interfaces.PreRecordedTranscriptionOptions{
		Model:       d.model,
		Language:    language,
		Punctuate:   true,
		SmartFormat: true,
	}

	var res *restinterfaces.PreRecordedResponse
	err := d.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		res, err = d.api.FromStream(ctx, bytes.NewReader(chunk.Payload), options)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("deepgram transcription failed: %w", err)
	}

	result := &TranscriptionResult{Duration: chunk.Duration.Seconds()}
	if res == nil || res.Results == nil || len(res.Results.Channels) == 0 || len(res.Results.Channels[0].Alternatives) == 0 {
		d.logger.Debug().Str("format", string(chunk.Format)).Msg("Deepgram returned no alternatives")
		return result, nil
	}

	alt := res.Results.Channels[0].Alternatives[0]
	result.Text = strings.TrimSpace(alt.Transcript)
	result.Confidence = alt.Confidence

	d.logger.Debug().
		Str("format", string(chunk.Format)).
		Float64("confidence", result.Confidence).
		Int("chars", len(result.Text)).
		Msg("Deepgram transcription")

	return result, nil
}

// Ready reports whether calls are currently allowed through the circuit breaker
func (d *DeepgramTranscriber) Ready(ctx context.Context) (bool, error) {
	return d.guard.Check(ctx)
}
