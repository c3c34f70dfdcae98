// Package audio defines the decoded-audio value that flows through the
// ZenZone analysis pipeline, plus the preprocessing steps applied to it
// before transcription and feature extraction.
//
// A [Buffer] holds planar float64 samples — one plane per channel, every
// plane the same length. Decoders produce Buffers, the WAV encoder and the
// feature extractor consume them. Buffers are plain values with no internal
// synchronisation; do not mutate one from multiple goroutines.
package audio

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Buffer is a block of decoded multi-channel audio.
//
// Channels holds one sample plane per channel, all of identical length.
// Samples are nominally in [-1, 1]; out-of-range values are tolerated
// everywhere and clamped at quantisation time, never rejected.
type Buffer struct {
	// SampleRate in Hz (e.g., 48000 for browser Opus, 16000 for STT input).
	SampleRate int

	// Channels are the ordered per-channel sample planes.
	Channels [][]float64
}

// Frames returns the number of frames (samples per channel). A Buffer with
// no channels has zero frames.
func (b *Buffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the playback duration of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// Clone returns a deep copy of the buffer. The returned value shares no
// storage with the receiver.
func (b *Buffer) Clone() *Buffer {
	out := &Buffer{SampleRate: b.SampleRate, Channels: make([][]float64, len(b.Channels))}
	for i, ch := range b.Channels {
		out.Channels[i] = make([]float64, len(ch))
		copy(out.Channels[i], ch)
	}
	return out
}

// Validate reports whether the buffer is well formed: positive sample rate
// and equal-length channel planes. Zero channels and zero frames are both
// valid (degenerate recordings are encoded, not rejected).
func (b *Buffer) Validate() error {
	if b.SampleRate <= 0 {
		return fmt.Errorf("audio: sample rate must be positive, got %d", b.SampleRate)
	}
	for i, ch := range b.Channels {
		if len(ch) != b.Frames() {
			return fmt.Errorf("audio: channel %d has %d frames, channel 0 has %d", i, len(ch), b.Frames())
		}
	}
	return nil
}

// FromPCM16 builds a Buffer from interleaved 16-bit signed little-endian PCM
// bytes, the format every decoder backend in this repo natively produces.
// Samples are normalised by 1/32768. A trailing odd byte is ignored.
func FromPCM16(pcm []byte, sampleRate, channels int) *Buffer {
	if channels < 1 {
		channels = 1
	}
	frames := len(pcm) / (2 * channels)
	planes := make([][]float64, channels)
	for c := range planes {
		planes[c] = make([]float64, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			idx := (i*channels + c) * 2
			s := int16(binary.LittleEndian.Uint16(pcm[idx : idx+2]))
			planes[c][i] = float64(s) / 32768.0
		}
	}
	return &Buffer{SampleRate: sampleRate, Channels: planes}
}

// FromInt16 builds a Buffer from interleaved int16 samples (the gopus decoder
// output shape). Samples are normalised by 1/32768.
func FromInt16(pcm []int16, sampleRate, channels int) *Buffer {
	if channels < 1 {
		channels = 1
	}
	frames := len(pcm) / channels
	planes := make([][]float64, channels)
	for c := range planes {
		planes[c] = make([]float64, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			planes[c][i] = float64(pcm[i*channels+c]) / 32768.0
		}
	}
	return &Buffer{SampleRate: sampleRate, Channels: planes}
}
