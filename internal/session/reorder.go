package session

import (
	"time"

	"github.com/lexiqai/translation-gateway/internal/pipeline"
)

// released is one sequence leaving the reorder buffer. Result is nil for
// sequences that were dropped or skipped after the wait timed out.
type released struct {
	Sequence uint64
	Result   *pipeline.TranslationResult
	TimedOut bool
}

type slot struct {
	result      *pipeline.TranslationResult
	dropped     bool
	completedAt time.Time
}

// reorderBuffer holds completed results until every lower sequence has been
// released, dropped, or waited on for longer than timeout. It is owned by the
// session actor and is not safe for concurrent use.
type reorderBuffer struct {
	next    uint64
	slots   map[uint64]*slot
	timeout time.Duration
}

func newReorderBuffer(first uint64, timeout time.Duration) *reorderBuffer {
	return &reorderBuffer{
		next:    first,
		slots:   make(map[uint64]*slot),
		timeout: timeout,
	}
}

// expect registers an accepted sequence
func (b *reorderBuffer) expect(seq uint64) {
	if seq >= b.next {
		b.slots[seq] = &slot{}
	}
}

// drop marks a sequence that will never complete
func (b *reorderBuffer) drop(seq uint64) {
	if s, ok := b.slots[seq]; ok {
		s.dropped = true
	}
}

// complete stores a finished result. It returns false when the sequence was
// already released, dropped or skipped, in which case the result must be discarded.
func (b *reorderBuffer) complete(res *pipeline.TranslationResult, now time.Time) bool {
	s, ok := b.slots[res.Sequence]
	if !ok || s.dropped || s.result != nil {
		return false
	}
	s.result = res
	s.completedAt = now
	return true
}

// release pops every sequence that may leave the buffer, in ascending order
func (b *reorderBuffer) release(now time.Time) []released {
	var out []released
	for len(b.slots) > 0 {
		head, ok := b.slots[b.next]
		if !ok {
			// Never registered; nothing to wait for
			b.next++
			continue
		}

		switch {
		case head.result != nil:
			out = append(out, released{Sequence: b.next, Result: head.result})
		case head.dropped:
			// Counted when it was dropped
		case b.headExpired(now):
			out = append(out, released{Sequence: b.next, TimedOut: true})
		default:
			return out
		}
		delete(b.slots, b.next)
		b.next++
	}
	return out
}

// headExpired reports whether some later result has waited on the head for longer than timeout
func (b *reorderBuffer) headExpired(now time.Time) bool {
	oldest, found := b.oldestWaiting()
	return found && now.Sub(oldest) >= b.timeout
}

func (b *reorderBuffer) oldestWaiting() (time.Time, bool) {
	var oldest time.Time
	found := false
	for seq, s := range b.slots {
		if seq == b.next || s.result == nil {
			continue
		}
		if !found || s.completedAt.Before(oldest) {
			oldest = s.completedAt
			found = true
		}
	}
	return oldest, found
}

// pending returns the sequences still held, used to release cache state when a session ends
func (b *reorderBuffer) pending() []uint64 {
	seqs := make([]uint64, 0, len(b.slots))
	for seq := range b.slots {
		seqs = append(seqs, seq)
	}
	return seqs
}

func (b *reorderBuffer) size() int {
	return len(b.slots)
}
