package session

import (
	"context"
	"errors"

	"github.com/lexiqai/translation-gateway/internal/audio"
	"github.com/lexiqai/translation-gateway/internal/pipeline"
)

// Session level errors returned to clients
var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionEnded         = errors.New("session has ended")
	ErrSessionNotActive     = errors.New("session is not active")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrCapacityExceeded     = errors.New("capacity exceeded")
	ErrNotBroadcaster       = errors.New("only the broadcaster may do this")
	ErrInvalidRequest       = errors.New("invalid request")
)

// Wire error codes
const (
	CodeSessionNotFound      = "SESSION_NOT_FOUND"
	CodeSessionEnded         = "SESSION_ENDED"
	CodeSessionNotActive     = "SESSION_NOT_ACTIVE"
	CodeAuthenticationFailed = "AUTHENTICATION_FAILED"
	CodeAudioDecodeError     = "AUDIO_DECODE_ERROR"
	CodeAdapterFailure       = "ADAPTER_FAILURE"
	CodeCapacityExceeded     = "CAPACITY_EXCEEDED"
	CodeNotBroadcaster       = "NOT_BROADCASTER"
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeTimeout              = "TIMEOUT"
	CodeInternal             = "INTERNAL_ERROR"
)

// Code maps an error onto its stable wire code
func Code(err error) string {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return CodeSessionNotFound
	case errors.Is(err, ErrSessionEnded):
		return CodeSessionEnded
	case errors.Is(err, ErrSessionNotActive):
		return CodeSessionNotActive
	case errors.Is(err, ErrAuthenticationFailed):
		return CodeAuthenticationFailed
	case errors.Is(err, audio.ErrAudioDecode):
		return CodeAudioDecodeError
	case errors.Is(err, pipeline.ErrAdapterFailure):
		return CodeAdapterFailure
	case errors.Is(err, ErrCapacityExceeded):
		return CodeCapacityExceeded
	case errors.Is(err, ErrNotBroadcaster):
		return CodeNotBroadcaster
	case errors.Is(err, ErrInvalidRequest):
		return CodeInvalidRequest
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return CodeTimeout
	default:
		return CodeInternal
	}
}
