package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/lexiqai/translation-gateway/internal/cache"
	"github.com/lexiqai/translation-gateway/internal/session"
)

// Client to server message types
const (
	TypeCreateSession  = "createSession"
	TypeStartBroadcast = "startBroadcast"
	TypePauseBroadcast = "pauseBroadcast"
	TypeEndSession     = "endSession"
	TypeAudioChunk     = "audioChunk"
	TypeJoinSession    = "joinSession"
	TypeLeaveSession   = "leaveSession"
	TypeReclaimSession = "reclaimSession"
	TypeGetSessionInfo = "getSessionInfo"
	TypePing           = "ping"
)

// Server reply types; events use the session event names
const (
	TypeAck   = "ack"
	TypeError = "error"
	TypePong  = "pong"
)

// ClientMessage is the envelope for every text frame sent by a client.
// Payload is base64 in JSON.
type ClientMessage struct {
	Type           string `json:"type"`
	RequestID      string `json:"requestId,omitempty"`
	SessionID      string `json:"sessionId,omitempty"`
	Title          string `json:"title,omitempty"`
	SourceLanguage string `json:"sourceLanguage,omitempty"`
	TargetLanguage string `json:"targetLanguage,omitempty"`
	DisplayName    string `json:"displayName,omitempty"`
	Password       string `json:"password,omitempty"`
	SubscriberID   string `json:"subscriberId,omitempty"`
	BroadcasterKey string `json:"broadcasterKey,omitempty"`
	Payload        []byte `json:"payload,omitempty"`
}

// ServerMessage is the envelope for every frame sent to a client
type ServerMessage struct {
	Type      string      `json:"type"`
	RequestID string      `json:"requestId,omitempty"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Code      string      `json:"code,omitempty"`
	Message   string      `json:"message,omitempty"`
}

// CreatedData acknowledges createSession
type CreatedData struct {
	SessionID      string `json:"sessionId"`
	BroadcasterKey string `json:"broadcasterKey"`
}

// JoinedData acknowledges joinSession
type JoinedData struct {
	SessionID    string `json:"sessionId"`
	SubscriberID string `json:"subscriberId"`
}

// ChunkAcceptedData acknowledges audioChunk
type ChunkAcceptedData struct {
	Sequence uint64 `json:"sequence"`
}

// SessionInfoData answers getSessionInfo and GET /sessions/{id}
type SessionInfoData struct {
	*session.Info
	Cache cache.Stats `json:"cache"`
}

func parseClientMessage(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: malformed message: %v", session.ErrInvalidRequest, err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("%w: message type is required", session.ErrInvalidRequest)
	}
	return &msg, nil
}

func encodeEvent(ev session.Event) ([]byte, error) {
	return json.Marshal(ServerMessage{Type: ev.Type, SessionID: ev.SessionID, Data: ev.Data})
}

func ackMessage(requestID, sessionID string, data interface{}) []byte {
	out, _ := json.Marshal(ServerMessage{Type: TypeAck, RequestID: requestID, SessionID: sessionID, Data: data})
	return out
}

func errorMessage(requestID, sessionID string, err error) []byte {
	out, _ := json.Marshal(ServerMessage{
		Type:      TypeError,
		RequestID: requestID,
		SessionID: sessionID,
		Code:      session.Code(err),
		Message:   err.Error(),
	})
	return out
}

func pongMessage(requestID string) []byte {
	out, _ := json.Marshal(ServerMessage{Type: TypePong, RequestID: requestID})
	return out
}
