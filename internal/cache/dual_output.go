// Package cache deduplicates translation and synthesis work across subscribers and sessions.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/lexiqai/translation-gateway/internal/observability"
	"github.com/lexiqai/translation-gateway/internal/translate"
	"github.com/lexiqai/translation-gateway/internal/tts"
)

// defaultCallTimeout bounds adapter calls when CallTimeout is unset
const defaultCallTimeout = 10 * time.Second

// Lookup results reported to metrics
const (
	lookupMemo   = "memo"
	lookupHit    = "hit"
	lookupMiss   = "miss"
	lookupShared = "shared"
)

// Entry is the dual output for one (language, text). Entries are shared and must not be mutated.
type Entry struct {
	Text     string
	Audio    []byte
	AudioRef string // sha256 of Audio, empty when synthesis failed
	MIMEType string

	// SynthesisErr is set when the text is valid but no audio could be produced
	SynthesisErr error
}

// HasAudio reports whether synthesis succeeded
func (e *Entry) HasAudio() bool {
	return e.AudioRef != ""
}

// Request identifies one unit of work: one chunk of one session in one target language
type Request struct {
	SessionID      string
	Sequence       uint64
	SourceLanguage string
	TargetLanguage string
	Text           string
}

func (r Request) memoKey() string {
	return fmt.Sprintf("%s/%d/%s", r.SessionID, r.Sequence, translate.BaseLanguage(r.TargetLanguage))
}

func (r Request) contentKey() string {
	return translate.BaseLanguage(r.TargetLanguage) + "|" + translate.BaseLanguage(r.SourceLanguage) + "|" + NormalizeText(r.Text)
}

// NormalizeText trims and collapses whitespace. Case is preserved since it is shown to listeners.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Stats is a snapshot of cache counters
type Stats struct {
	Entries           int   `json:"entries"`
	Clips             int   `json:"clips"`
	MemoEntries       int   `json:"memoEntries"`
	Hits              int64 `json:"hits"`
	Misses            int64 `json:"misses"`
	Shared            int64 `json:"shared"`
	Translations      int64 `json:"translations"`
	Syntheses         int64 `json:"syntheses"`
	SynthesisFailures int64 `json:"synthesisFailures"`
}

// DualOutputCache memoizes per-chunk results and keeps an LRU of (language, text) outputs
type DualOutputCache struct {
	translator translate.Translator
	synth      tts.Synthesizer

	// CallTimeout bounds each adapter call; zero means defaultCallTimeout
	CallTimeout time.Duration

	entries *lru.Cache[string, *Entry]
	clips   *lru.Cache[string, *tts.Clip]
	group   singleflight.Group

	mu   sync.Mutex
	memo map[string]*Entry
	// memoBySequence indexes memo keys for Release
	memoBySequence map[string][]string

	hits, misses, shared            atomic.Int64
	translations, syntheses, failed atomic.Int64

	logger zerolog.Logger
}

// New creates a cache holding up to size (language, text) entries and clipSize addressable clips
func New(translator translate.Translator, synth tts.Synthesizer, size, clipSize int) (*DualOutputCache, error) {
	entries, err := lru.New[string, *Entry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create entry cache: %w", err)
	}
	clips, err := lru.New[string, *tts.Clip](clipSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create clip cache: %w", err)
	}

	return &DualOutputCache{
		translator:     translator,
		synth:          synth,
		entries:        entries,
		clips:          clips,
		memo:           make(map[string]*Entry),
		memoBySequence: make(map[string][]string),
		logger:         observability.Component("cache"),
	}, nil
}

// Resolve returns the translated text and audio for req, calling the adapters at most once
// per (session, sequence, language). A translation failure is returned as an error;
// a synthesis failure yields a text-only entry.
func (c *DualOutputCache) Resolve(ctx context.Context, req Request) (*Entry, error) {
	key := req.memoKey()
	if entry, ok := c.memoized(key); ok {
		observability.RecordCacheLookup(lookupMemo)
		return entry, nil
	}

	v, err, _ := c.group.Do("memo|"+key, func() (interface{}, error) {
		if entry, ok := c.memoized(key); ok {
			return entry, nil
		}
		entry, err := c.resolveContent(ctx, req)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.memo[key] = entry
		seqKey := sequenceKey(req.SessionID, req.Sequence)
		c.memoBySequence[seqKey] = append(c.memoBySequence[seqKey], key)
		c.mu.Unlock()
		return entry, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

func (c *DualOutputCache) memoized(key string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.memo[key]
	return entry, ok
}

func (c *DualOutputCache) resolveContent(ctx context.Context, req Request) (*Entry, error) {
	key := req.contentKey()
	if entry, ok := c.entries.Get(key); ok {
		c.hits.Add(1)
		observability.RecordCacheLookup(lookupHit)
		return entry, nil
	}

	// Shared across sessions: runs detached from the first caller, and each caller
	// stops waiting on its own context
	ch := c.group.DoChan("content|"+key, func() (interface{}, error) {
		if entry, ok := c.entries.Get(key); ok {
			return entry, nil
		}
		c.misses.Add(1)
		observability.RecordCacheLookup(lookupMiss)
		return c.produce(context.WithoutCancel(ctx), key, req)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.shared.Add(1)
			observability.RecordCacheLookup(lookupShared)
		}
		return res.Val.(*Entry), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// produce calls the translation and synthesis adapters for a content key miss
func (c *DualOutputCache) produce(ctx context.Context, key string, req Request) (*Entry, error) {
	start := time.Now()
	callCtx, cancel := c.callContext(ctx)
	text, err := c.translator.Translate(callCtx, req.Text, req.SourceLanguage, req.TargetLanguage)
	cancel()
	observability.RecordAdapterCall("translate", time.Since(start), err)
	c.translations.Add(1)
	if err != nil {
		return nil, err
	}

	entry := &Entry{Text: text}
	if strings.TrimSpace(text) == "" {
		return entry, nil
	}

	start = time.Now()
	callCtx, cancel = c.callContext(ctx)
	clip, err := c.synth.Synthesize(callCtx, text, req.TargetLanguage)
	cancel()
	observability.RecordAdapterCall("synthesize", time.Since(start), err)
	c.syntheses.Add(1)
	if err != nil {
		// Text-only entries are not cached so a later chunk can retry synthesis
		c.failed.Add(1)
		entry.SynthesisErr = err
		c.logger.Warn().Err(err).Str("language", req.TargetLanguage).Msg("Synthesis failed, delivering text only")
		return entry, nil
	}

	sum := sha256.Sum256(clip.Data)
	entry.Audio = clip.Data
	entry.AudioRef = hex.EncodeToString(sum[:])
	entry.MIMEType = clip.MIMEType

	c.entries.Add(key, entry)
	c.clips.Add(entry.AudioRef, clip)
	return entry, nil
}

// callContext bounds one adapter call. Shared calls run detached from any caller,
// so they always get a deadline.
func (c *DualOutputCache) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// Release drops the per-chunk memo for one dispatched or abandoned sequence
func (c *DualOutputCache) Release(sessionID string, sequence uint64) {
	seqKey := sequenceKey(sessionID, sequence)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range c.memoBySequence[seqKey] {
		delete(c.memo, key)
	}
	delete(c.memoBySequence, seqKey)
}

// Audio returns a recently synthesized clip by its content address
func (c *DualOutputCache) Audio(ref string) (*tts.Clip, bool) {
	return c.clips.Get(ref)
}

// Stats returns a snapshot of the cache counters
func (c *DualOutputCache) Stats() Stats {
	c.mu.Lock()
	memo := len(c.memo)
	c.mu.Unlock()

	return Stats{
		Entries:           c.entries.Len(),
		Clips:             c.clips.Len(),
		MemoEntries:       memo,
		Hits:              c.hits.Load(),
		Misses:            c.misses.Load(),
		Shared:            c.shared.Load(),
		Translations:      c.translations.Load(),
		Syntheses:         c.syntheses.Load(),
		SynthesisFailures: c.failed.Load(),
	}
}

func sequenceKey(sessionID string, sequence uint64) string {
	return fmt.Sprintf("%s/%d", sessionID, sequence)
}
