package decode

import (
	"bytes"
	"fmt"
	"io"

	"github.com/MrWong99/zenzone/pkg/audio"
	mp3 "github.com/hajimehoshi/go-mp3"
)

// DecodeMP3 decodes an MPEG-1 Layer III payload. go-mp3 always emits
// interleaved stereo 16-bit little-endian PCM at the stream's sample rate,
// duplicating the channel for mono sources.
func DecodeMP3(data []byte) (*audio.Buffer, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode: open mp3 stream: %w", err)
	}

	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("decode: read mp3 stream: %w", err)
	}

	return audio.FromPCM16(pcm, dec.SampleRate(), 2), nil
}
