package stt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	restinterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"

	"github.com/lexiqai/translation-gateway/internal/audio"
	"github.com/lexiqai/translation-gateway/internal/observability"
	"github.com/lexiqai/translation-gateway/internal/resilience"
)

type fakePrerecorded struct {
	body     string
	err      error
	calls    int
	payload  []byte
	language string
}

func (f *fakePrerecorded) FromStream(ctx context.Context, src io.Reader, options *interfaces.PreRecordedTranscriptionOptions) (*restinterfaces.PreRecordedResponse, error) {
	f.calls++
	f.payload, _ = io.ReadAll(src)
	f.language = options.Language
	if f.err != nil {
		return nil, f.err
	}
	var res restinterfaces.PreRecordedResponse
	if err := json.Unmarshal([]byte(f.body), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func newTestTranscriber(api prerecordedAPI) *DeepgramTranscriber {
	return &DeepgramTranscriber{
		api:    api,
		model:  "nova-2",
		guard:  resilience.NewGuard("deepgram-test", 5, time.Second, &resilience.RetryConfig{MaxAttempts: 1}),
		logger: observability.Component("stt"),
	}
}

func testChunk() *audio.DecodedChunk {
	return &audio.DecodedChunk{Format: audio.FormatWAV, Duration: 1500 * time.Millisecond, Payload: []byte("RIFF....WAVE")}
}

func TestDeepgramTranscriber_Transcribe(t *testing.T) {
	api := &fakePrerecorded{body: `{"results":{"channels":[{"alternatives":[{"transcript":" hello world ","confidence":0.93}]}]}}`}
	tr := newTestTranscriber(api)

	result, err := tr.Transcribe(context.Background(), testChunk(), "en")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Text != "hello world" {
		t.Errorf("Expected trimmed transcript, got %q", result.Text)
	}
	if result.Confidence != 0.93 {
		t.Errorf("Expected confidence 0.93, got %v", result.Confidence)
	}
	if result.Duration != 1.5 {
		t.Errorf("Expected duration 1.5, got %v", result.Duration)
	}
	if api.language != "en" || string(api.payload) != "RIFF....WAVE" {
		t.Errorf("Unexpected request: language %q payload %q", api.language, api.payload)
	}
}

func TestDeepgramTranscriber_NoAlternatives(t *testing.T) {
	tr := newTestTranscriber(&fakePrerecorded{body: `{"results":{"channels":[]}}`})

	result, err := tr.Transcribe(context.Background(), testChunk(), "en")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Text != "" {
		t.Errorf("Expected empty transcript, got %q", result.Text)
	}
}

func TestDeepgramTranscriber_Error(t *testing.T) {
	api := &fakePrerecorded{err: errors.New("status 401: invalid credentials")}
	tr := newTestTranscriber(api)

	if _, err := tr.Transcribe(context.Background(), testChunk(), "en"); err == nil {
		t.Fatal("Expected error")
	}
	if api.calls != 1 {
		t.Errorf("Expected 1 call, got %d", api.calls)
	}
}

func TestEchoTranscriber(t *testing.T) {
	result, err := NewEchoTranscriber().Transcribe(context.Background(), testChunk(), "en")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Text != "wav audio, 1.5 seconds, 12 bytes" {
		t.Errorf("Unexpected text %q", result.Text)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewEchoTranscriber().Transcribe(ctx, testChunk(), "en"); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
