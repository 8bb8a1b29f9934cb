package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/lexiqai/translation-gateway/internal/audio"
	"github.com/lexiqai/translation-gateway/internal/config"
	"github.com/lexiqai/translation-gateway/internal/observability"
	"github.com/lexiqai/translation-gateway/internal/resilience"
	"github.com/lexiqai/translation-gateway/internal/translate"
)

// Cartesia outputs raw 16-bit PCM at this rate
const cartesiaSampleRate = 24000

// CartesiaSynthesizer implements Synthesizer using Cartesia's TTS API
type CartesiaSynthesizer struct {
	apiKey     string
	apiURL     string
	voiceID    string
	modelID    string
	httpClient *http.Client
	guard      *resilience.Guard
	logger     zerolog.Logger
}

// CartesiaRequest represents the request payload for Cartesia TTS API
type CartesiaRequest struct {
	Text            string  `json:"text"`
	VoiceID         string  `json:"voice_id"`
	ModelID         string  `json:"model_id,omitempty"`
	Language        string  `json:"language,omitempty"`
	OutputFormat    string  `json:"output_format,omitempty"`
	SampleRate      int     `json:"sample_rate,omitempty"`
	Speed           float64 `json:"speed,omitempty"`
	Stability       float64 `json:"stability,omitempty"`
	SimilarityBoost float64 `json:"similarity_boost,omitempty"`
}

// NewCartesiaSynthesizer creates a new Cartesia TTS client
func NewCartesiaSynthesizer(cfg *config.Config) *CartesiaSynthesizer {
	return &CartesiaSynthesizer{
		apiKey:     cfg.CartesiaAPIKey,
		apiURL:     "https://api.cartesia.ai/v1/tts",
		voiceID:    cfg.CartesiaVoiceID,
		modelID:    cfg.CartesiaModelID,
		httpClient: &http.Client{},
		guard:      resilience.NewAdapterGuard("cartesia", cfg),
		logger:     observability.Component("tts"),
	}
}

// Synthesize converts text to speech and wraps the PCM response in a WAV container
func (c *CartesiaSynthesizer) Synthesize(ctx context.Context, text, language string) (*Clip, error) {
	reqBody := CartesiaRequest{
		Text:            text,
		VoiceID:         c.voiceID,
		ModelID:         c.modelID,
		Language:        translate.BaseLanguage(language),
		OutputFormat:    "pcm",
		SampleRate:      cartesiaSampleRate,
		Speed:           1.0,
		Stability:       0.5,
		SimilarityBoost: 0.75,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var pcm []byte
	err = c.guard.Do(ctx, func(ctx context.Context) error {
		pcm, err = c.post(ctx, jsonData)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("cartesia synthesis failed: %w", err)
	}

	samples, err := audio.BytesToSamples(pcm[:len(pcm)&^1])
	if err != nil {
		return nil, fmt.Errorf("invalid PCM from cartesia: %w", err)
	}
	wav, err := audio.EncodeWAV(samples, cartesiaSampleRate, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to encode clip: %w", err)
	}

	c.logger.Debug().
		Str("language", language).
		Int("pcm_bytes", len(pcm)).
		Msg("Cartesia synthesis")

	return &Clip{Data: wav, MIMEType: "audio/wav", SampleRate: cartesiaSampleRate, Channels: 1}, nil
}

func (c *CartesiaSynthesizer) post(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("cartesia API returned status %d", resp.StatusCode)
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading audio response: %w", err)
	}
	if len(pcm) < 2 {
		return nil, fmt.Errorf("cartesia returned empty audio data")
	}
	return pcm, nil
}

// Ready reports whether calls are currently allowed through the circuit breaker
func (c *CartesiaSynthesizer) Ready(ctx context.Context) (bool, error) {
	return c.guard.Check(ctx)
}
