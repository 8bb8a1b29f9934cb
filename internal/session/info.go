package session

import (
	"time"
)

// ChunkStats counts chunk outcomes over the life of a session
type ChunkStats struct {
	Accepted      int64 `json:"accepted"`
	Rejected      int64 `json:"rejected"`
	DecodeErrors  int64 `json:"decodeErrors"`
	Dropped       int64 `json:"dropped"`
	TimedOut      int64 `json:"timedOut"`
	Late          int64 `json:"late"`
	Dispatched    int64 `json:"dispatched"`
	Silent        int64 `json:"silent"`
	Failed        int64 `json:"failed"`
	AdapterErrors int64 `json:"adapterErrors"`
	// GapCount is the number of sequences listeners will never see
	GapCount int64 `json:"gapCount"`
}

// SubscriberInfo describes one attached listener
type SubscriberInfo struct {
	ID            string    `json:"id"`
	Language      string    `json:"language"`
	DisplayName   string    `json:"displayName,omitempty"`
	JoinedAt      time.Time `json:"joinedAt"`
	Active        bool      `json:"active"`
	JoinSequence  uint64    `json:"joinSequence"`
	LastDelivered uint64    `json:"lastDelivered"`
	QualityTier   string    `json:"qualityTier,omitempty"`
	LatencyMs     int64     `json:"latencyMs,omitempty"`
}

// Info is a point-in-time view of a session
type Info struct {
	ID                   string           `json:"id"`
	Title                string           `json:"title"`
	SourceLanguage       string           `json:"sourceLanguage"`
	Status               Status           `json:"status"`
	PasswordProtected    bool             `json:"passwordProtected"`
	BroadcasterConnected bool             `json:"broadcasterConnected"`
	CreatedAt            time.Time        `json:"createdAt"`
	LastActivity         time.Time        `json:"lastActivity"`
	EndedAt              *time.Time       `json:"endedAt,omitempty"`
	EndReason            string           `json:"endReason,omitempty"`
	NextSequence         uint64           `json:"nextSequence"`
	LastDispatched       uint64           `json:"lastDispatched"`
	InFlight             int              `json:"inFlight"`
	Queued               int              `json:"queued"`
	Reordering           int              `json:"reordering"`
	TargetLanguages      []string         `json:"targetLanguages"`
	Subscribers          []SubscriberInfo `json:"subscribers"`
	Chunks               ChunkStats       `json:"chunks"`
}

// SubscriberCount returns the number of listed subscribers, active or not
func (i *Info) SubscriberCount() int {
	return len(i.Subscribers)
}

func (s *Session) snapshot() *Info {
	info := &Info{
		ID:                   s.id,
		Title:                s.title,
		SourceLanguage:       s.sourceLanguage,
		Status:               s.status,
		PasswordProtected:    len(s.passwordHash) > 0,
		BroadcasterConnected: s.broadcaster != nil,
		CreatedAt:            s.createdAt,
		LastActivity:         s.lastActivity,
		EndReason:            s.endReason,
		NextSequence:         s.nextSequence,
		LastDispatched:       s.lastSequence,
		InFlight:             s.inFlight,
		Queued:               len(s.queue),
		Reordering:           s.reorder.size(),
		TargetLanguages:      s.targetLanguages(),
		Chunks:               s.stats,
	}
	if !s.endedAt.IsZero() {
		endedAt := s.endedAt
		info.EndedAt = &endedAt
	}

	info.Subscribers = make([]SubscriberInfo, 0, len(s.subscribers))
	for _, sub := range s.orderedSubscribers() {
		si := SubscriberInfo{
			ID:            sub.id,
			Language:      sub.language,
			DisplayName:   sub.displayName,
			JoinedAt:      sub.joinedAt,
			Active:        sub.active,
			JoinSequence:  sub.joinSequence,
			LastDelivered: sub.lastDelivered,
		}
		if sub.quality != nil {
			si.QualityTier = string(sub.quality.Tier)
			si.LatencyMs = sub.quality.LatencyMs()
		}
		info.Subscribers = append(info.Subscribers, si)
	}
	return info
}
