// Package session implements the per-session actor: lifecycle, chunk sequencing,
// result reordering and per-subscriber fan-out.
package session

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/lexiqai/translation-gateway/internal/audio"
	"github.com/lexiqai/translation-gateway/internal/observability"
	"github.com/lexiqai/translation-gateway/internal/pipeline"
	"github.com/lexiqai/translation-gateway/internal/quality"
)

// Status is a session lifecycle state
type Status string

const (
	StatusSetup  Status = "setup"
	StatusActive Status = "active"
	StatusPaused Status = "paused"
	StatusEnded  Status = "ended"
)

// End reasons
const (
	ReasonEndedByBroadcaster = "ended_by_broadcaster"
	ReasonBroadcasterTimeout = "broadcaster_timeout"
	ReasonIdleTimeout        = "idle_timeout"
	ReasonShutdown           = "shutdown"
)

// Processor runs one chunk through the adapters. *pipeline.Processor satisfies it.
type Processor interface {
	Process(ctx context.Context, job pipeline.Job) *pipeline.TranslationResult
	Release(sessionID string, sequence uint64)
}

type subscriber struct {
	id            string
	sink          Sink
	language      string
	displayName   string
	joinedAt      time.Time
	active        bool
	joinSequence  uint64
	lastDelivered uint64
	delivered     bool
	quality       *quality.Sample
}

type queuedChunk struct {
	sequence   uint64
	chunk      *audio.DecodedChunk
	receivedAt time.Time
}

// Session is one live broadcast. All mutable state below the actor marker is owned by
// the run goroutine; other goroutines reach it only through the inbox.
type Session struct {
	id             string
	title          string
	sourceLanguage string
	passwordHash   []byte
	broadcasterKey string
	createdAt      time.Time

	opts      Options
	processor Processor
	codec     *audio.Codec
	logger    zerolog.Logger

	ctx         context.Context
	cancel      context.CancelFunc
	inbox       chan func()
	completions chan *pipeline.TranslationResult
	done        chan struct{}
	final       atomic.Pointer[Info]

	// actor state
	status       Status
	broadcaster  Sink
	subscribers  map[string]*subscriber
	nextSequence uint64
	lastSequence uint64 // last dispatched
	inFlight     int
	queue        []queuedChunk
	reorder      *reorderBuffer
	stats        ChunkStats
	lastActivity time.Time
	graceTimer   *time.Timer
	graceC       <-chan time.Time
	endedAt      time.Time
	endReason    string
}

type sessionParams struct {
	id             string
	title          string
	sourceLanguage string
	passwordHash   []byte
	broadcasterKey string
}

func newSession(p sessionParams, broadcaster Sink, processor Processor, opts Options) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()

	s := &Session{
		id:             p.id,
		title:          p.title,
		sourceLanguage: p.sourceLanguage,
		passwordHash:   p.passwordHash,
		broadcasterKey: p.broadcasterKey,
		createdAt:      now,
		opts:           opts,
		processor:      processor,
		codec:          audio.NewCodec(opts.MaxChunkBytes),
		logger:         observability.Component("session").With().Str("session_id", p.id).Logger(),
		ctx:            ctx,
		cancel:         cancel,
		inbox:          make(chan func(), 64),
		completions:    make(chan *pipeline.TranslationResult, opts.PipelineDepth+opts.PipelineQueue+1),
		done:           make(chan struct{}),
		status:         StatusSetup,
		broadcaster:    broadcaster,
		subscribers:    make(map[string]*subscriber),
		nextSequence:   1,
		reorder:        newReorderBuffer(1, opts.ReorderTimeout),
		lastActivity:   now,
	}
	go s.run()
	return s
}

// ID returns the shareable session code
func (s *Session) ID() string {
	return s.id
}

// BroadcasterKey returns the secret used to reclaim the broadcaster role
func (s *Session) BroadcasterKey() string {
	return s.broadcasterKey
}

// Done is closed once the session has ended
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// ended is true as soon as the final snapshot is published, slightly before done closes
func (s *Session) ended() bool {
	return s.final.Load() != nil
}

func (s *Session) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.opts.tickInterval())
	defer ticker.Stop()

	s.logger.Info().Str("title", s.title).Str("source_language", s.sourceLanguage).Msg("Session created")

	for s.status != StatusEnded {
		select {
		case fn := <-s.inbox:
			fn()
		case res := <-s.completions:
			s.onComplete(res)
		case now := <-ticker.C:
			s.onTick(now)
		case <-s.graceC:
			s.onGraceExpired()
		}
	}
}

// call runs fn on the actor goroutine and waits for its result
func (s *Session) call(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	select {
	case s.inbox <- func() { errc <- fn() }:
	case <-s.done:
		return ErrSessionEnded
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-errc:
		return err
	case <-s.done:
		// fn may itself have ended the session
		select {
		case err := <-errc:
			return err
		default:
			return ErrSessionEnded
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues fn without waiting; it is dropped once the session has ended
func (s *Session) post(fn func()) {
	select {
	case s.inbox <- fn:
	case <-s.done:
	}
}

func (s *Session) requireBroadcaster(connID string) error {
	if s.broadcaster == nil || s.broadcaster.ID() != connID {
		return ErrNotBroadcaster
	}
	return nil
}

func (s *Session) touch() {
	s.lastActivity = time.Now()
}

// Start moves the session to active. Only the broadcaster may start it.
func (s *Session) Start(ctx context.Context, connID string) error {
	return s.call(ctx, func() error {
		if err := s.requireBroadcaster(connID); err != nil {
			return err
		}
		s.touch()
		if s.status != StatusActive {
			s.setStatus(StatusActive)
		}
		return nil
	})
}

// Pause stops accepting chunks while keeping membership
func (s *Session) Pause(ctx context.Context, connID string) error {
	return s.call(ctx, func() error {
		if err := s.requireBroadcaster(connID); err != nil {
			return err
		}
		switch s.status {
		case StatusActive:
			s.setStatus(StatusPaused)
			return nil
		case StatusPaused:
			return nil
		default:
			return ErrSessionNotActive
		}
	})
}

// End terminates the session on the broadcaster's request
func (s *Session) End(ctx context.Context, connID string) error {
	return s.call(ctx, func() error {
		if err := s.requireBroadcaster(connID); err != nil {
			return err
		}
		s.end(ReasonEndedByBroadcaster)
		return nil
	})
}

// terminate ends the session regardless of the caller
func (s *Session) terminate(ctx context.Context, reason string) error {
	err := s.call(ctx, func() error {
		s.end(reason)
		return nil
	})
	if err == ErrSessionEnded {
		return nil
	}
	return err
}

// SubmitAudio decodes payload and hands it to the sequencer. The returned sequence
// identifies the chunk in later events.
func (s *Session) SubmitAudio(ctx context.Context, connID string, payload []byte) (uint64, error) {
	chunk, decodeErr := s.codec.Decode(payload)

	var seq uint64
	err := s.call(ctx, func() error {
		if err := s.requireBroadcaster(connID); err != nil {
			return err
		}
		if s.status != StatusActive {
			s.stats.Rejected++
			observability.RecordChunk("rejected")
			return ErrSessionNotActive
		}
		if decodeErr != nil {
			s.stats.DecodeErrors++
			observability.RecordChunk("decode_error")
			s.logger.Warn().Err(decodeErr).Int("bytes", len(payload)).Msg("Dropping undecodable chunk")
			return decodeErr
		}
		seq = s.accept(chunk)
		return nil
	})
	return seq, err
}

// Join adds a subscriber. The password is checked before the actor is involved.
func (s *Session) Join(ctx context.Context, sink Sink, language, displayName, password string) (string, error) {
	if s.ended() {
		return "", ErrSessionEnded
	}
	language = strings.TrimSpace(language)
	if language == "" {
		return "", fmt.Errorf("%w: targetLanguage is required", ErrInvalidRequest)
	}
	if len(s.passwordHash) > 0 {
		if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)); err != nil {
			return "", ErrAuthenticationFailed
		}
	}

	var id string
	err := s.call(ctx, func() error {
		if len(s.subscribers) >= s.opts.MaxSubscribers {
			return ErrCapacityExceeded
		}
		id = uuid.New().String()
		s.subscribers[id] = &subscriber{
			id:           id,
			sink:         sink,
			language:     language,
			displayName:  displayName,
			joinedAt:     time.Now(),
			active:       true,
			joinSequence: s.nextSequence,
		}
		observability.RecordSubscriberJoined()
		s.logger.Info().
			Str("subscriber_id", id).
			Str("conn_id", sink.ID()).
			Str("language", language).
			Int("subscribers", len(s.subscribers)).
			Msg("Subscriber joined")
		return nil
	})
	return id, err
}

// Leave removes a subscriber held by connID. Unknown ids and ended sessions are no-ops;
// a subscriber joined from another connection cannot be removed.
func (s *Session) Leave(ctx context.Context, connID, subscriberID string) error {
	err := s.call(ctx, func() error {
		sub, ok := s.subscribers[subscriberID]
		if !ok {
			return nil
		}
		if sub.sink.ID() != connID {
			return fmt.Errorf("%w: subscriber belongs to another connection", ErrAuthenticationFailed)
		}
		s.removeSubscriber(subscriberID)
		return nil
	})
	if err == ErrSessionEnded {
		return nil
	}
	return err
}

func (s *Session) removeSubscriber(id string) {
	if _, ok := s.subscribers[id]; !ok {
		return
	}
	delete(s.subscribers, id)
	observability.RecordSubscriberLeft()
	s.logger.Info().Str("subscriber_id", id).Int("subscribers", len(s.subscribers)).Msg("Subscriber left")
}

// Reclaim reattaches the broadcaster role to a new connection
func (s *Session) Reclaim(ctx context.Context, key string, sink Sink) error {
	if s.ended() {
		return ErrSessionEnded
	}
	if subtle.ConstantTimeCompare([]byte(key), []byte(s.broadcasterKey)) != 1 {
		return ErrAuthenticationFailed
	}

	return s.call(ctx, func() error {
		wasDetached := s.broadcaster == nil
		s.broadcaster = sink
		s.stopGrace()
		s.touch()
		if wasDetached {
			s.notifySubscribers(EventBroadcasterReconnected, struct{}{})
		}
		s.logger.Info().Str("conn_id", sink.ID()).Msg("Broadcaster reclaimed session")
		return nil
	})
}

// ConnectionClosed detaches every role held by a closed connection
func (s *Session) ConnectionClosed(connID string) {
	s.post(func() {
		for id, sub := range s.subscribers {
			if sub.sink.ID() == connID {
				s.removeSubscriber(id)
			}
		}
		if s.broadcaster != nil && s.broadcaster.ID() == connID {
			s.broadcasterLost()
		}
	})
}

// ReportQuality stores the latest probe result for a subscriber and forwards it
func (s *Session) ReportQuality(subscriberID string, sample quality.Sample) {
	s.post(func() {
		sub, ok := s.subscribers[subscriberID]
		if !ok {
			return
		}
		sub.quality = &sample
		s.send(sub.sink, EventConnectionQuality, ConnectionQualityData{
			SubscriberID: sub.id,
			LatencyMs:    sample.LatencyMs(),
			Tier:         string(sample.Tier),
		})
	})
}

// Info returns a diagnostics snapshot. Ended sessions return their final snapshot.
func (s *Session) Info(ctx context.Context) (*Info, error) {
	var info *Info
	err := s.call(ctx, func() error {
		info = s.snapshot()
		return nil
	})
	if err == ErrSessionEnded {
		if final := s.final.Load(); final != nil {
			return final, nil
		}
	}
	return info, err
}

func (s *Session) setStatus(status Status) {
	prev := s.status
	s.status = status
	s.logger.Info().Str("from", string(prev)).Str("to", string(status)).Msg("Session status changed")

	data := StatusChangedData{Status: status, Previous: prev}
	s.send(s.broadcaster, EventSessionStatusChanged, data)
	s.notifySubscribers(EventSessionStatusChanged, data)
}

func (s *Session) broadcasterLost() {
	s.broadcaster = nil
	s.stopGrace()
	s.graceTimer = time.NewTimer(s.opts.BroadcasterGrace)
	s.graceC = s.graceTimer.C

	s.logger.Warn().Dur("grace", s.opts.BroadcasterGrace).Msg("Broadcaster disconnected")
	s.notifySubscribers(EventBroadcasterDisconnected, BroadcasterDisconnectedData{
		GraceSeconds: int(s.opts.BroadcasterGrace.Seconds()),
	})
}

func (s *Session) stopGrace() {
	if s.graceTimer != nil {
		s.graceTimer.Stop()
		s.graceTimer = nil
	}
	s.graceC = nil
}

func (s *Session) onGraceExpired() {
	s.graceTimer = nil
	s.graceC = nil
	if s.broadcaster == nil {
		s.end(ReasonBroadcasterTimeout)
	}
}

func (s *Session) onTick(now time.Time) {
	s.releaseReady(now)
	if s.opts.IdleTimeout > 0 && now.Sub(s.lastActivity) >= s.opts.IdleTimeout {
		s.end(ReasonIdleTimeout)
	}
}

// end is the only transition into StatusEnded
func (s *Session) end(reason string) {
	if s.status == StatusEnded {
		return
	}
	s.status = StatusEnded
	s.endedAt = time.Now()
	s.endReason = reason
	s.cancel()
	s.stopGrace()

	data := SessionEndedData{Reason: reason}
	s.send(s.broadcaster, EventSessionEnded, data)
	s.notifySubscribers(EventSessionEnded, data)

	// Nothing pending will be dispatched; free its cache state
	for _, seq := range s.reorder.pending() {
		s.processor.Release(s.id, seq)
	}
	s.queue = nil
	for drained := false; !drained; {
		select {
		case res := <-s.completions:
			s.processor.Release(s.id, res.Sequence)
		default:
			drained = true
		}
	}

	for _, sub := range s.subscribers {
		sub.active = false
	}
	s.final.Store(s.snapshot())
	for id := range s.subscribers {
		delete(s.subscribers, id)
		observability.RecordSubscriberLeft()
	}

	observability.RecordSessionEnd(reason, s.createdAt)
	s.logger.Info().
		Str("reason", reason).
		Int64("accepted", s.stats.Accepted).
		Int64("dispatched", s.stats.Dispatched).
		Int64("gaps", s.stats.GapCount).
		Msg("Session ended")
}

// targetLanguages returns the distinct languages of active subscribers
func (s *Session) targetLanguages() []string {
	seen := make(map[string]bool)
	var langs []string
	for _, sub := range s.subscribers {
		if sub.active && !seen[sub.language] {
			seen[sub.language] = true
			langs = append(langs, sub.language)
		}
	}
	sort.Strings(langs)
	return langs
}

// orderedSubscribers returns subscribers by join time so fan-out is deterministic
func (s *Session) orderedSubscribers() []*subscriber {
	subs := make([]*subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].joinedAt.Equal(subs[j].joinedAt) {
			return subs[i].id < subs[j].id
		}
		return subs[i].joinedAt.Before(subs[j].joinedAt)
	})
	return subs
}
