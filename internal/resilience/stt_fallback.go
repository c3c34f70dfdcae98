package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/zenzone/pkg/audio"
	"github.com/MrWong99/zenzone/pkg/provider/stt"
)

// TranscriberFallback implements [stt.Transcriber] with automatic failover
// across multiple speech-to-text backends. Each backend has its own circuit
// breaker.
//
// [stt.ErrNoSpeech] is a verdict, not a failure: it is converted into a
// successful empty result so the group neither fails over nor trips the
// breaker, since a silent recording stays silent no matter who listens
// to it.
type TranscriberFallback struct {
	group *FallbackGroup[stt.Transcriber]
}

// Compile-time interface assertion.
var _ stt.Transcriber = (*TranscriberFallback)(nil)

// NewTranscriberFallback creates a [TranscriberFallback] with primary as the
// preferred backend.
func NewTranscriberFallback(primary stt.Transcriber, primaryName string, cfg FallbackConfig) *TranscriberFallback {
	return &TranscriberFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional transcriber as a fallback.
func (f *TranscriberFallback) AddFallback(name string, transcriber stt.Transcriber) {
	f.group.AddFallback(name, transcriber)
}

// Transcribe runs the buffer through the first healthy backend. If the
// primary fails, subsequent fallbacks are tried.
func (f *TranscriberFallback) Transcribe(ctx context.Context, b *audio.Buffer) (stt.Result, error) {
	result, err := ExecuteWithResult(f.group, func(t stt.Transcriber) (stt.Result, error) {
		r, err := t.Transcribe(ctx, b)
		if errors.Is(err, stt.ErrNoSpeech) {
			return stt.Result{}, nil
		}
		return r, err
	})
	if err != nil {
		return stt.Result{}, err
	}
	return result, nil
}
