package translate

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/lexiqai/translation-gateway/internal/config"
	"github.com/lexiqai/translation-gateway/internal/observability"
	"github.com/lexiqai/translation-gateway/internal/resilience"
)

const translationInstruction = `You are a live interpreter. Translate the user's speech transcript from %s to %s.
Reply with the translation only, without quotes, notes or transliteration.
If the transcript is already in %s, reply with it unchanged.`

// contentGenerator is satisfied by *genai.GenerativeModel
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// GeminiTranslator implements Translator with a Gemini model
type GeminiTranslator struct {
	client *genai.Client
	model  contentGenerator
	guard  *resilience.Guard
	logger zerolog.Logger
}

// NewGeminiTranslator creates a Gemini client for the configured model
func NewGeminiTranslator(ctx context.Context, cfg *config.Config) (*GeminiTranslator, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiTranslator{
		client: client,
		model:  setupGenerativeModel(client, cfg.GeminiModel),
		guard:  resilience.NewAdapterGuard("gemini", cfg),
		logger: observability.Component("translate"),
	}, nil
}

func setupGenerativeModel(client *genai.Client, name string) *genai.GenerativeModel {
	model := client.GenerativeModel(name)
	model.GenerationConfig.SetMaxOutputTokens(1024)
	model.GenerationConfig.SetTemperature(0.1)
	model.GenerationConfig.SetTopP(1.0)
	// Speech transcripts are relayed verbatim; only block clearly harmful output
	model.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockOnlyHigh},
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockOnlyHigh},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockOnlyHigh},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockOnlyHigh},
	}
	return model
}

// Translate asks the model for a translation of text
func (g *GeminiTranslator) Translate(ctx context.Context, text, from, to string) (string, error) {
	if strings.TrimSpace(text) == "" || SameLanguage(from, to) {
		return text, nil
	}

	prompt := []genai.Part{
		genai.Text(fmt.Sprintf(translationInstruction, from, to, to)),
		genai.Text("<transcript>\n" + text + "\n</transcript>"),
	}

	var translated string
	err := g.guard.Do(ctx, func(ctx context.Context) error {
		resp, err := g.model.GenerateContent(ctx, prompt...)
		if err != nil {
			return err
		}
		translated = strings.TrimSpace(getResponseText(resp))
		if translated == "" {
			return fmt.Errorf("empty translation response")
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("gemini translation %s->%s failed: %w", from, to, err)
	}

	g.logger.Debug().Str("from", from).Str("to", to).Int("chars", len(translated)).Msg("Gemini translation")
	return translated, nil
}

// Close releases the underlying client
func (g *GeminiTranslator) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

func getResponseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var text strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}

// Ready reports whether calls are currently allowed through the circuit breaker
func (g *GeminiTranslator) Ready(ctx context.Context) (bool, error) {
	return g.guard.Check(ctx)
}
