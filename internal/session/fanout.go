package session

import (
	"time"

	"github.com/lexiqai/translation-gateway/internal/audio"
	"github.com/lexiqai/translation-gateway/internal/observability"
	"github.com/lexiqai/translation-gateway/internal/pipeline"
)

// accept assigns the next sequence and either starts the chunk, queues it, or drops
// the oldest queued chunk to make room.
func (s *Session) accept(chunk *audio.DecodedChunk) uint64 {
	seq := s.nextSequence
	s.nextSequence++
	s.stats.Accepted++
	observability.RecordChunk("accepted")
	observability.RecordAudioBytes("in", len(chunk.Payload))
	s.touch()

	s.reorder.expect(seq)
	qc := queuedChunk{sequence: seq, chunk: chunk, receivedAt: time.Now()}

	switch {
	case s.inFlight < s.opts.PipelineDepth:
		s.startJob(qc)
	case s.opts.PipelineQueue == 0:
		s.dropChunk(seq)
	default:
		if len(s.queue) >= s.opts.PipelineQueue {
			oldest := s.queue[0]
			s.queue = s.queue[1:]
			s.dropChunk(oldest.sequence)
		}
		s.queue = append(s.queue, qc)
	}
	return seq
}

func (s *Session) dropChunk(seq uint64) {
	s.reorder.drop(seq)
	s.stats.Dropped++
	s.stats.GapCount++
	observability.RecordChunk("dropped")
	s.logger.Warn().Uint64("sequence", seq).Int("in_flight", s.inFlight).Msg("Pipeline saturated, dropping chunk")

	s.send(s.broadcaster, EventChunkDropped, ChunkDroppedData{
		Sequence: seq,
		Reason:   "backpressure",
		GapCount: s.stats.GapCount,
	})
	s.releaseReady(time.Now())
}

func (s *Session) startJob(qc queuedChunk) {
	s.inFlight++
	job := pipeline.Job{
		SessionID:       s.id,
		Sequence:        qc.sequence,
		Chunk:           qc.chunk,
		SourceLanguage:  s.sourceLanguage,
		TargetLanguages: s.targetLanguages(),
	}

	go func() {
		res := s.processor.Process(s.ctx, job)
		select {
		case s.completions <- res:
		case <-s.ctx.Done():
		}
		// Nothing dispatches after end; Release is idempotent
		if s.ctx.Err() != nil {
			s.processor.Release(s.id, job.Sequence)
		}
	}()
}

func (s *Session) startQueued() {
	for s.inFlight < s.opts.PipelineDepth && len(s.queue) > 0 {
		qc := s.queue[0]
		s.queue = s.queue[1:]
		s.startJob(qc)
	}
}

func (s *Session) onComplete(res *pipeline.TranslationResult) {
	s.inFlight--
	now := time.Now()

	for _, adapterErr := range res.Errors {
		s.stats.AdapterErrors++
		s.send(s.broadcaster, EventProcessingError, ProcessingErrorData{
			Sequence: res.Sequence,
			Code:     CodeAdapterFailure,
			Stage:    adapterErr.Stage,
			Language: adapterErr.Language,
			Message:  adapterErr.Error(),
		})
	}

	if !s.reorder.complete(res, now) {
		// Already skipped by the reorder timeout
		s.stats.Late++
		observability.RecordChunk("late")
		s.processor.Release(s.id, res.Sequence)
	}

	s.startQueued()
	s.releaseReady(now)
}

// releaseReady dispatches every result the reorder buffer lets go, in sequence order
func (s *Session) releaseReady(now time.Time) {
	for _, r := range s.reorder.release(now) {
		switch {
		case r.TimedOut:
			s.stats.TimedOut++
			s.stats.GapCount++
			observability.RecordChunk("timed_out")
			s.logger.Warn().Uint64("sequence", r.Sequence).Msg("Result did not arrive in time, skipping")
			s.send(s.broadcaster, EventChunkDropped, ChunkDroppedData{
				Sequence: r.Sequence,
				Reason:   "timeout",
				GapCount: s.stats.GapCount,
			})
		case r.Result != nil:
			s.dispatch(r.Result)
			s.processor.Release(s.id, r.Sequence)
		}
	}
}

// dispatch acknowledges a result to the broadcaster and fans it out to subscribers
func (s *Session) dispatch(res *pipeline.TranslationResult) {
	ms := res.ProcessingTime.Milliseconds()
	s.lastSequence = res.Sequence
	s.send(s.broadcaster, EventAudioProcessed, AudioProcessedData{
		Sequence:         res.Sequence,
		ProcessingTimeMs: ms,
		Languages:        len(res.PerLanguage),
		Silent:           res.Silent,
		Failed:           res.TranscriptionFailed(),
	})

	switch {
	case res.Silent:
		s.stats.Silent++
		observability.RecordChunk("skipped")
		return
	case !res.Deliverable():
		s.stats.Failed++
		observability.RecordChunk("failed")
		return
	}
	s.stats.Dispatched++
	observability.RecordChunk("dispatched")

	tracks := make(map[string]BroadcastTranslation, len(res.PerLanguage))
	for lang, entry := range res.PerLanguage {
		tracks[lang] = BroadcastTranslation{Text: entry.Text, AudioRef: entry.AudioRef}
	}
	broadcast := TranslationBroadcastData{
		Sequence:         res.Sequence,
		Original:         res.Original,
		Translations:     tracks,
		ProcessingTimeMs: ms,
	}

	for _, sub := range s.orderedSubscribers() {
		if !sub.active || res.Sequence < sub.joinSequence {
			continue
		}
		if sub.delivered && res.Sequence <= sub.lastDelivered {
			continue
		}

		personal := PersonalTranslationData{
			Sequence:         res.Sequence,
			SubscriberID:     sub.id,
			Original:         res.Original,
			Language:         sub.language,
			ProcessingTimeMs: ms,
		}
		if entry, ok := res.PerLanguage[sub.language]; ok {
			personal.Translated = true
			personal.Text = entry.Text
			if entry.HasAudio() {
				personal.Audio = entry.Audio
				personal.AudioRef = entry.AudioRef
				personal.MIMEType = entry.MIMEType
			}
		}

		if !s.send(sub.sink, EventTranslationBroadcast, broadcast) || !s.send(sub.sink, EventPersonalTranslation, personal) {
			s.detach(sub)
			continue
		}
		if personal.Audio != nil {
			observability.RecordAudioBytes("out", len(personal.Audio))
		}
		sub.lastDelivered = res.Sequence
		sub.delivered = true
	}
}

// detach marks a subscriber whose connection cannot keep up; it stays listed until it leaves
func (s *Session) detach(sub *subscriber) {
	sub.active = false
	s.logger.Warn().Str("subscriber_id", sub.id).Msg("Delivery failed, marking subscriber inactive")
}

func (s *Session) notifySubscribers(eventType string, data interface{}) {
	for _, sub := range s.orderedSubscribers() {
		if sub.active {
			if !s.send(sub.sink, eventType, data) {
				s.detach(sub)
			}
		}
	}
}

// send queues one event on a sink without blocking
func (s *Session) send(sink Sink, eventType string, data interface{}) bool {
	if sink == nil {
		return false
	}
	if !sink.Send(Event{Type: eventType, SessionID: s.id, Data: data}) {
		observability.RecordDeliveryFailure()
		return false
	}
	observability.RecordEventSent(eventType)
	return true
}
