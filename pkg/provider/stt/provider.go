// Package stt defines the Transcriber interface for speech-to-text backends.
//
// Analysis works on finished recordings, not live streams, so the central
// abstraction is a single batch call: hand the backend a decoded buffer, get
// the transcript back. Backends that are streaming by nature (Deepgram)
// bridge to this shape internally.
//
// Implementations must be safe for concurrent use; the server runs several
// analyses at once.
package stt

import (
	"context"
	"errors"
	"time"

	"github.com/MrWong99/zenzone/pkg/audio"
)

// ErrNoSpeech may be wrapped by implementations when the backend processed
// the audio but produced no text. Callers generally treat an empty Result
// the same way; the sentinel exists for backends that signal it explicitly.
var ErrNoSpeech = errors.New("stt: no speech detected")

// Word is one recognised token with its timing, when the backend provides
// word-level detail. Backends without timing return an empty Words slice.
type Word struct {
	Text       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// Result is the outcome of one transcription.
type Result struct {
	// Text is the full transcript, whitespace-trimmed. May be empty: silence
	// is a valid recording and not an error.
	Text string

	// Confidence in [0,1] when the backend reports one, else 0.
	Confidence float64

	// Duration of the audio that was transcribed.
	Duration time.Duration

	// Words carries word-level detail when available.
	Words []Word
}

// Transcriber is the abstraction over any speech-to-text backend.
type Transcriber interface {
	// Transcribe converts the buffer to text. The buffer should be mono
	// 16 kHz (see audio.Preprocess); implementations may resample or downmix
	// if handed something else.
	Transcribe(ctx context.Context, b *audio.Buffer) (Result, error)
}
