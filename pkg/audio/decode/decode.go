// Package decode sniffs and decodes the audio containers the ingest API
// accepts: WAV, MP3, and Ogg-encapsulated Opus (what browsers produce from
// MediaRecorder). All decoders return a planar [audio.Buffer] at the
// container's native sample rate; preprocessing downstream handles rate and
// channel conversion.
package decode

import (
	"errors"
	"fmt"

	"github.com/MrWong99/zenzone/pkg/audio"
	"github.com/MrWong99/zenzone/pkg/audio/wav"
)

// ErrUnknownFormat is returned when the payload matches none of the
// supported container signatures. Handlers map it to 415 Unsupported Media
// Type.
var ErrUnknownFormat = errors.New("decode: unknown audio format")

// Format identifies a supported audio container.
type Format string

const (
	FormatWAV     Format = "wav"
	FormatMP3     Format = "mp3"
	FormatOggOpus Format = "ogg-opus"
)

// Detect sniffs the container format from the payload's leading bytes.
// Detection is content-based only; filenames and Content-Type headers are
// advisory at best coming from browsers.
func Detect(data []byte) (Format, error) {
	if len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE" {
		return FormatWAV, nil
	}
	if len(data) >= 4 && string(data[0:4]) == "OggS" {
		return FormatOggOpus, nil
	}
	if len(data) >= 3 && string(data[0:3]) == "ID3" {
		return FormatMP3, nil
	}
	// Bare MPEG frame sync: 11 set bits.
	if len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0 {
		return FormatMP3, nil
	}
	return "", ErrUnknownFormat
}

// Decode sniffs the format and decodes the payload with the matching
// decoder. Unknown formats return ErrUnknownFormat.
func Decode(data []byte) (*audio.Buffer, error) {
	format, err := Detect(data)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatWAV:
		return wav.Decode(data)
	case FormatMP3:
		return DecodeMP3(data)
	case FormatOggOpus:
		return DecodeOggOpus(data)
	}
	return nil, fmt.Errorf("decode: no decoder for format %q", format)
}
