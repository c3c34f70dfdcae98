//go:build !whisper

package whisper

import (
	"context"
	"errors"

	"github.com/MrWong99/zenzone/pkg/audio"
	"github.com/MrWong99/zenzone/pkg/provider/stt"
)

// errNativeDisabled is returned by the stub when the binary was built
// without the `whisper` build tag.
var errNativeDisabled = errors.New("whisper: native transcription requires building with -tags whisper")

// Native is a stub; building with `-tags whisper` replaces it with the CGO
// implementation.
type Native struct{}

// NativeOption is a functional option for configuring a Native transcriber.
type NativeOption func(*Native)

// WithNativeLanguage is accepted for signature compatibility; the stub
// ignores it.
func WithNativeLanguage(string) NativeOption {
	return func(*Native) {}
}

// NewNative always fails in builds without the `whisper` tag.
func NewNative(string, ...NativeOption) (*Native, error) {
	return nil, errNativeDisabled
}

// Close is a no-op on the stub.
func (n *Native) Close() error { return nil }

// Transcribe always fails on the stub.
func (n *Native) Transcribe(context.Context, *audio.Buffer) (stt.Result, error) {
	return stt.Result{}, errNativeDisabled
}

var _ stt.Transcriber = (*Native)(nil)
