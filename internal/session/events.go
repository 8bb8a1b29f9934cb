package session

import (
	"github.com/lexiqai/translation-gateway/internal/pipeline"
)

// Server to client event types
const (
	EventTranslationBroadcast    = "translationBroadcast"
	EventPersonalTranslation     = "personalTranslation"
	EventSessionStatusChanged    = "sessionStatusChanged"
	EventSessionEnded            = "sessionEnded"
	EventBroadcasterDisconnected = "broadcasterDisconnected"
	EventBroadcasterReconnected  = "broadcasterReconnected"
	EventProcessingError         = "processingError"
	EventAudioProcessed          = "audioProcessed"
	EventChunkDropped            = "chunkDropped"
	EventConnectionQuality       = "connectionQuality"
)

// Event is one message queued to a connection
type Event struct {
	Type      string
	SessionID string
	Data      interface{}
}

// Sink is a client connection as seen by a session.
// Send must not block; it returns false when the event could not be queued.
type Sink interface {
	ID() string
	Send(ev Event) bool
}

// BroadcastTranslation is one language track in a translationBroadcast
type BroadcastTranslation struct {
	Text     string `json:"text"`
	AudioRef string `json:"audioRef,omitempty"`
}

// TranslationBroadcastData carries every language track of one chunk
type TranslationBroadcastData struct {
	Sequence         uint64                          `json:"sequence"`
	Original         pipeline.Original               `json:"original"`
	Translations     map[string]BroadcastTranslation `json:"translations"`
	ProcessingTimeMs int64                           `json:"processingTimeMs"`
}

// PersonalTranslationData is the single-language event sent to one subscriber
type PersonalTranslationData struct {
	Sequence         uint64            `json:"sequence"`
	SubscriberID     string            `json:"subscriberId"`
	Original         pipeline.Original `json:"original"`
	Language         string            `json:"language"`
	Text             string            `json:"text,omitempty"`
	Translated       bool              `json:"translated"`
	Audio            []byte            `json:"audio,omitempty"` // base64 in JSON
	AudioRef         string            `json:"audioRef,omitempty"`
	MIMEType         string            `json:"mimeType,omitempty"`
	ProcessingTimeMs int64             `json:"processingTimeMs"`
}

// StatusChangedData reports a lifecycle transition
type StatusChangedData struct {
	Status   Status `json:"status"`
	Previous Status `json:"previous"`
}

// SessionEndedData is the terminal notification
type SessionEndedData struct {
	Reason string `json:"reason"`
}

// BroadcasterDisconnectedData tells subscribers how long the session waits
type BroadcasterDisconnectedData struct {
	GraceSeconds int `json:"graceSeconds"`
}

// ProcessingErrorData reports an adapter failure to the broadcaster
type ProcessingErrorData struct {
	Sequence uint64 `json:"sequence"`
	Code     string `json:"code"`
	Stage    string `json:"stage"`
	Language string `json:"language,omitempty"`
	Message  string `json:"message"`
}

// AudioProcessedData acknowledges a chunk to the broadcaster once it is dispatched
type AudioProcessedData struct {
	Sequence         uint64 `json:"sequence"`
	ProcessingTimeMs int64  `json:"processingTimeMs"`
	Languages        int    `json:"languages"`
	Silent           bool   `json:"silent,omitempty"`
	Failed           bool   `json:"failed,omitempty"`
}

// ChunkDroppedData reports a chunk that was never processed
type ChunkDroppedData struct {
	Sequence uint64 `json:"sequence"`
	Reason   string `json:"reason"`
	GapCount int64  `json:"gapCount"`
}

// ConnectionQualityData is sent to a subscriber after each probe
type ConnectionQualityData struct {
	SubscriberID string `json:"subscriberId"`
	LatencyMs    int64  `json:"latencyMs"`
	Tier         string `json:"tier"`
}
