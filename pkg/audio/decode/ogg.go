package decode

import (
	"encoding/binary"
	"fmt"

	"github.com/MrWong99/zenzone/pkg/audio"
	"layeh.com/gopus"
)

// Opus always decodes at 48 kHz regardless of the original input rate; the
// maximum packet duration is 120 ms, so 5760 samples per channel bounds any
// single Decode call.
const (
	opusDecodeRate   = 48000
	opusMaxFrameSize = 5760
)

// DecodeOggOpus decodes an Opus stream encapsulated in Ogg pages (RFC 3533
// framing, RFC 7845 Opus mapping). The OpusHead packet supplies the channel
// count and pre-skip; audio is decoded at 48 kHz.
func DecodeOggOpus(data []byte) (*audio.Buffer, error) {
	packets, err := oggPackets(data)
	if err != nil {
		return nil, err
	}
	if len(packets) < 2 {
		return nil, fmt.Errorf("decode: ogg stream has no opus header packets")
	}

	head := packets[0]
	if len(head) < 19 || string(head[0:8]) != "OpusHead" {
		return nil, fmt.Errorf("decode: first ogg packet is not OpusHead")
	}
	channels := int(head[9])
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("decode: unsupported opus channel count %d", channels)
	}
	preSkip := int(binary.LittleEndian.Uint16(head[10:12]))

	// packets[1] is OpusTags; audio starts at packets[2].
	dec, err := gopus.NewDecoder(opusDecodeRate, channels)
	if err != nil {
		return nil, fmt.Errorf("decode: create opus decoder: %w", err)
	}

	var pcm []int16
	for i, pkt := range packets[2:] {
		if len(pkt) == 0 {
			continue
		}
		frame, err := dec.Decode(pkt, opusMaxFrameSize, false)
		if err != nil {
			return nil, fmt.Errorf("decode: opus packet %d: %w", i, err)
		}
		pcm = append(pcm, frame...)
	}

	// Pre-skip counts decoded samples (per channel) to discard at the start.
	if skip := preSkip * channels; skip > 0 {
		if skip > len(pcm) {
			skip = len(pcm)
		}
		pcm = pcm[skip:]
	}

	return audio.FromInt16(pcm, opusDecodeRate, channels), nil
}

// oggPackets walks the Ogg pages of a single logical stream and reassembles
// the packet sequence from the segment lacing tables. Packets may span page
// boundaries (continuation flag); a terminal 255-byte segment continues into
// the next page.
func oggPackets(data []byte) ([][]byte, error) {
	var (
		packets [][]byte
		partial []byte
	)

	pos := 0
	for pos < len(data) {
		if pos+27 > len(data) || string(data[pos:pos+4]) != "OggS" {
			return nil, fmt.Errorf("decode: malformed ogg page at offset %d", pos)
		}
		if data[pos+4] != 0 {
			return nil, fmt.Errorf("decode: unsupported ogg version %d", data[pos+4])
		}
		segCount := int(data[pos+26])
		tableStart := pos + 27
		bodyStart := tableStart + segCount
		if bodyStart > len(data) {
			return nil, fmt.Errorf("decode: truncated ogg segment table at offset %d", pos)
		}

		body := bodyStart
		for s := 0; s < segCount; s++ {
			segLen := int(data[tableStart+s])
			if body+segLen > len(data) {
				return nil, fmt.Errorf("decode: truncated ogg page body at offset %d", body)
			}
			partial = append(partial, data[body:body+segLen]...)
			body += segLen

			// A lacing value below 255 terminates the packet.
			if segLen < 255 {
				packets = append(packets, partial)
				partial = nil
			}
		}
		pos = body
	}

	if len(partial) > 0 {
		// Trailing unterminated packet: the stream was cut off mid-page
		// sequence. Keep what decoded cleanly and drop the fragment.
		return packets, nil
	}
	return packets, nil
}
