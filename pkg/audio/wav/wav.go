// Package wav encodes and decodes RIFF/WAVE containers carrying 16-bit PCM.
//
// Encode is the canonical serialisation for every recording that leaves the
// capture path: a fixed 44-byte header followed by interleaved little-endian
// samples, at most two channels. Decode accepts anything Encode produces plus
// well-formed PCM WAV files from other tools (extra chunks are skipped).
package wav

import (
	"encoding/binary"
	"fmt"

	"github.com/MrWong99/zenzone/pkg/audio"
)

const (
	// MIMEType is the content type for encoded output.
	MIMEType = "audio/wav"

	// DefaultFilename is the filename used when uploading an encoded
	// recording as a multipart form part.
	DefaultFilename = "sample.wav"

	headerSize    = 44
	bitsPerSample = 16
	pcmFormat     = 1
)

// maxChannels caps the encoded channel count. Recordings with more channels
// keep only the first two.
const maxChannels = 2

// Encode serialises the buffer as a complete WAV file: 44-byte header plus
// interleaved 16-bit little-endian PCM. At most two channels are written;
// extra channels are dropped. A zero-frame buffer yields a valid 44-byte
// container with an empty data chunk. A buffer with no channels also encodes
// with an empty data chunk, but its header declares one channel: a zero in
// the channel-count field would make the container unparseable.
//
// Samples are clamped to [-1, 1] and quantised asymmetrically: values at or
// below zero scale by 32768, values above zero by 32767, so both rails map
// onto the full int16 range without overflow.
func Encode(b *audio.Buffer) []byte {
	channels := len(b.Channels)
	if channels > maxChannels {
		channels = maxChannels
	}
	if channels < 1 {
		channels = 1
	}
	frames := b.Frames()

	blockAlign := channels * bitsPerSample / 8
	dataSize := frames * blockAlign
	byteRate := b.SampleRate * blockAlign

	out := make([]byte, headerSize+dataSize)

	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+dataSize))
	copy(out[8:12], "WAVE")

	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], pcmFormat)
	binary.LittleEndian.PutUint16(out[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(b.SampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], bitsPerSample)

	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(dataSize))

	pos := headerSize
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			var s float64
			if c < len(b.Channels) {
				s = b.Channels[c][i]
			}
			binary.LittleEndian.PutUint16(out[pos:pos+2], uint16(Quantize(s)))
			pos += 2
		}
	}
	return out
}

// Quantize converts one float sample to int16 using the encoder's clamp and
// asymmetric scaling rules. The fractional part is truncated toward zero.
func Quantize(s float64) int16 {
	if s <= -1 {
		return -32768
	}
	if s >= 1 {
		return 32767
	}
	if s <= 0 {
		return int16(s * 32768)
	}
	return int16(s * 32767)
}

// Decode parses a PCM WAV file into a Buffer. Only 16-bit PCM is accepted;
// unknown chunks between fmt and data are skipped. The data chunk may be
// shorter than its declared size (truncated uploads decode what is present).
func Decode(data []byte) (*audio.Buffer, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("wav: file too short: %d bytes", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("wav: not a RIFF/WAVE file")
	}

	var (
		sampleRate int
		channels   int
		bits       int
		format     int
		haveFmt    bool
	)

	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(data) {
				return nil, fmt.Errorf("wav: malformed fmt chunk")
			}
			format = int(binary.LittleEndian.Uint16(data[body : body+2]))
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			haveFmt = true

		case "data":
			if !haveFmt {
				return nil, fmt.Errorf("wav: data chunk before fmt chunk")
			}
			if format != pcmFormat {
				return nil, fmt.Errorf("wav: unsupported format tag %d (want PCM)", format)
			}
			if bits != bitsPerSample {
				return nil, fmt.Errorf("wav: unsupported bit depth %d (want 16)", bits)
			}
			if channels < 1 {
				return nil, fmt.Errorf("wav: invalid channel count %d", channels)
			}
			if sampleRate <= 0 {
				return nil, fmt.Errorf("wav: invalid sample rate %d", sampleRate)
			}
			end := body + size
			if end > len(data) {
				end = len(data)
			}
			return audio.FromPCM16(data[body:end], sampleRate, channels), nil
		}

		// Chunks are word-aligned; odd sizes carry a pad byte.
		pos = body + size
		if size%2 == 1 {
			pos++
		}
	}

	return nil, fmt.Errorf("wav: no data chunk found")
}
