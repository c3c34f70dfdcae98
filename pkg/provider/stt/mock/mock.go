// Package mock provides a configurable in-memory stt.Transcriber for tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/zenzone/pkg/audio"
	"github.com/MrWong99/zenzone/pkg/provider/stt"
)

// Compile-time assertion that Transcriber implements stt.Transcriber.
var _ stt.Transcriber = (*Transcriber)(nil)

// Transcriber is a test double. Configure Result/Err before use, or set
// TranscribeFunc for full control. Safe for concurrent use.
type Transcriber struct {
	// Result and Err are returned by Transcribe when TranscribeFunc is nil.
	Result stt.Result
	Err    error

	// TranscribeFunc, when set, handles calls entirely.
	TranscribeFunc func(ctx context.Context, b *audio.Buffer) (stt.Result, error)

	mu    sync.Mutex
	calls []*audio.Buffer
}

// Transcribe records the call and returns the configured outcome.
func (t *Transcriber) Transcribe(ctx context.Context, b *audio.Buffer) (stt.Result, error) {
	t.mu.Lock()
	t.calls = append(t.calls, b)
	t.mu.Unlock()

	if t.TranscribeFunc != nil {
		return t.TranscribeFunc(ctx, b)
	}
	return t.Result, t.Err
}

// Calls returns the buffers passed to Transcribe so far.
func (t *Transcriber) Calls() []*audio.Buffer {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*audio.Buffer, len(t.calls))
	copy(out, t.calls)
	return out
}
