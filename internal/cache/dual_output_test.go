package cache

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lexiqai/translation-gateway/internal/translate"
	"github.com/lexiqai/translation-gateway/internal/tts"
)

type countingSynth struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (s *countingSynth) Synthesize(ctx context.Context, text, language string) (*tts.Clip, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	return &tts.Clip{Data: []byte(language + ":" + text), MIMEType: "audio/wav"}, nil
}

type countingTranslator struct {
	calls atomic.Int32
	err   error
}

func (t *countingTranslator) Translate(ctx context.Context, text, from, to string) (string, error) {
	t.calls.Add(1)
	if t.err != nil {
		return "", t.err
	}
	return translate.NewEchoTranslator().Translate(ctx, text, from, to)
}

func newTestCache(t *testing.T, tr translate.Translator, synth tts.Synthesizer) *DualOutputCache {
	t.Helper()
	c, err := New(tr, synth, 16, 16)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	return c
}

func request(seq uint64, lang, text string) Request {
	return Request{SessionID: "ABC123", Sequence: seq, SourceLanguage: "en", TargetLanguage: lang, Text: text}
}

func TestResolve_TranslatesAndSynthesizes(t *testing.T) {
	synth := &countingSynth{}
	c := newTestCache(t, &countingTranslator{}, synth)

	entry, err := c.Resolve(context.Background(), request(1, "fr", "hello"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if entry.Text != "[fr] hello" {
		t.Errorf("Unexpected text %q", entry.Text)
	}
	if !entry.HasAudio() || len(entry.AudioRef) != 64 {
		t.Errorf("Expected a sha256 audio ref, got %q", entry.AudioRef)
	}

	clip, ok := c.Audio(entry.AudioRef)
	if !ok || !bytes.Equal(clip.Data, entry.Audio) {
		t.Error("Expected clip to be addressable by its ref")
	}
}

func TestResolve_DedupPerChunkLanguage(t *testing.T) {
	synth := &countingSynth{delay: 20 * time.Millisecond}
	tr := &countingTranslator{}
	c := newTestCache(t, tr, synth)

	const subscribers = 25
	var wg sync.WaitGroup
	entries := make([]*Entry, subscribers)
	for i := 0; i < subscribers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry, err := c.Resolve(context.Background(), request(7, "fr", "good morning"))
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}
			entries[i] = entry
		}(i)
	}
	wg.Wait()

	if got := synth.calls.Load(); got != 1 {
		t.Errorf("Expected 1 synthesis call for %d subscribers, got %d", subscribers, got)
	}
	if got := tr.calls.Load(); got != 1 {
		t.Errorf("Expected 1 translation call, got %d", got)
	}
	for i := 1; i < subscribers; i++ {
		if entries[i] != entries[0] {
			t.Fatal("Expected every subscriber to share the same entry")
		}
	}
}

func TestResolve_HitReturnsIdenticalAudio(t *testing.T) {
	synth := &countingSynth{}
	c := newTestCache(t, &countingTranslator{}, synth)

	first, err := c.Resolve(context.Background(), request(1, "de", "thank you"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	// Different chunk, same phrase with different spacing
	second, err := c.Resolve(context.Background(), request(2, "de", "  thank   you "))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !bytes.Equal(first.Audio, second.Audio) || first.AudioRef != second.AudioRef {
		t.Error("Expected bit-identical cached audio")
	}
	if synth.calls.Load() != 1 {
		t.Errorf("Expected 1 synthesis call, got %d", synth.calls.Load())
	}
	if stats := c.Stats(); stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("Expected 1 hit and 1 miss, got %+v", stats)
	}
}

func TestResolve_LanguagesAreIndependent(t *testing.T) {
	synth := &countingSynth{}
	c := newTestCache(t, &countingTranslator{}, synth)

	fr, _ := c.Resolve(context.Background(), request(1, "fr", "hello"))
	ar, _ := c.Resolve(context.Background(), request(1, "ar", "hello"))

	if fr.AudioRef == ar.AudioRef {
		t.Error("Expected different audio per language")
	}
	if synth.calls.Load() != 2 {
		t.Errorf("Expected 2 synthesis calls, got %d", synth.calls.Load())
	}
}

func TestResolve_SynthesisFailureDegradesToText(t *testing.T) {
	synth := &countingSynth{err: errors.New("tts down")}
	c := newTestCache(t, &countingTranslator{}, synth)

	entry, err := c.Resolve(context.Background(), request(1, "es", "hello"))
	if err != nil {
		t.Fatalf("Expected text-only entry, got error %v", err)
	}
	if entry.Text != "[es] hello" || entry.HasAudio() || entry.SynthesisErr == nil {
		t.Errorf("Unexpected entry %+v", entry)
	}

	// Memoized for the same chunk
	if _, err := c.Resolve(context.Background(), request(1, "es", "hello")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if synth.calls.Load() != 1 {
		t.Errorf("Expected synthesis to be attempted once per chunk, got %d", synth.calls.Load())
	}

	// Not cached across chunks, so the next chunk retries
	synth.err = nil
	entry, _ = c.Resolve(context.Background(), request(2, "es", "hello"))
	if !entry.HasAudio() {
		t.Error("Expected audio once synthesis recovers")
	}
}

func TestResolve_TranslationFailure(t *testing.T) {
	synth := &countingSynth{}
	c := newTestCache(t, &countingTranslator{err: errors.New("quota")}, synth)

	if _, err := c.Resolve(context.Background(), request(1, "ja", "hello")); err == nil {
		t.Fatal("Expected translation error")
	}
	if synth.calls.Load() != 0 {
		t.Error("Expected no synthesis after translation failure")
	}
}

func TestRelease(t *testing.T) {
	c := newTestCache(t, &countingTranslator{}, &countingSynth{})

	c.Resolve(context.Background(), request(1, "fr", "a"))
	c.Resolve(context.Background(), request(1, "ar", "a"))
	c.Resolve(context.Background(), request(2, "fr", "b"))
	if got := c.Stats().MemoEntries; got != 3 {
		t.Fatalf("Expected 3 memo entries, got %d", got)
	}

	c.Release("ABC123", 1)
	if got := c.Stats().MemoEntries; got != 1 {
		t.Errorf("Expected 1 memo entry after release, got %d", got)
	}
}

func TestLRUEviction(t *testing.T) {
	synth := &countingSynth{}
	c, err := New(&countingTranslator{}, synth, 2, 2)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}

	c.Resolve(context.Background(), request(1, "fr", "one"))
	c.Resolve(context.Background(), request(2, "fr", "two"))
	c.Resolve(context.Background(), request(3, "fr", "three"))
	// "one" was least recently used and is gone
	c.Resolve(context.Background(), request(4, "fr", "one"))

	if synth.calls.Load() != 4 {
		t.Errorf("Expected 4 synthesis calls after eviction, got %d", synth.calls.Load())
	}
	if stats := c.Stats(); stats.Entries != 2 {
		t.Errorf("Expected 2 entries, got %d", stats.Entries)
	}
}

func TestNormalizeText(t *testing.T) {
	if got := NormalizeText("  Hello \n  World\t"); got != "Hello World" {
		t.Errorf("Unexpected normalization %q", got)
	}
}

// contextSynth honours cancellation while it works
type contextSynth struct {
	delay time.Duration
	calls atomic.Int32
}

func (s *contextSynth) Synthesize(ctx context.Context, text, language string) (*tts.Clip, error) {
	s.calls.Add(1)
	select {
	case <-time.After(s.delay):
		return &tts.Clip{Data: []byte(language + ":" + text), MIMEType: "audio/wav"}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestResolve_CancelledSessionDoesNotFailSharedCall(t *testing.T) {
	synth := &contextSynth{delay: 100 * time.Millisecond}
	c := newTestCache(t, &countingTranslator{}, synth)

	first := Request{SessionID: "AAAAAA", Sequence: 1, SourceLanguage: "en", TargetLanguage: "fr", Text: "hello"}
	second := Request{SessionID: "BBBBBB", Sequence: 4, SourceLanguage: "en", TargetLanguage: "fr", Text: "hello"}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := c.Resolve(ctxA, first)
		errA <- err
	}()

	time.Sleep(20 * time.Millisecond)
	type result struct {
		entry *Entry
		err   error
	}
	resB := make(chan result, 1)
	go func() {
		entry, err := c.Resolve(context.Background(), second)
		resB <- result{entry, err}
	}()

	time.Sleep(20 * time.Millisecond)
	cancelA()

	select {
	case err := <-errA:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Cancelled session: expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Cancelled session did not stop waiting")
	}

	select {
	case r := <-resB:
		if r.err != nil {
			t.Fatalf("Other session should not see the cancellation, got %v", r.err)
		}
		if !r.entry.HasAudio() {
			t.Error("Expected the shared call to finish with audio")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Other session never got its result")
	}

	if got := synth.calls.Load(); got != 1 {
		t.Errorf("Expected 1 shared synthesis call, got %d", got)
	}
	if got := c.Stats().MemoEntries; got != 1 {
		t.Errorf("Expected only the surviving session to be memoized, got %d", got)
	}
}
