package pipeline

import (
	"errors"
	"fmt"
)

// Adapter stages
const (
	StageTranscribe = "transcribe"
	StageTranslate  = "translate"
	StageSynthesize = "synthesize"
)

// ErrAdapterFailure matches any *AdapterError with errors.Is
var ErrAdapterFailure = errors.New("adapter failure")

// AdapterError reports a transcription, translation or synthesis failure for one chunk.
// Language is empty for transcription.
type AdapterError struct {
	Stage    string
	Language string
	Err      error
}

func (e *AdapterError) Error() string {
	if e.Language == "" {
		return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s failed for %s: %v", e.Stage, e.Language, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrAdapterFailure) true for every adapter error
func (e *AdapterError) Is(target error) bool {
	return target == ErrAdapterFailure
}
