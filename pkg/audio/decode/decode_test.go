package decode_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/MrWong99/zenzone/pkg/audio"
	"github.com/MrWong99/zenzone/pkg/audio/decode"
	"github.com/MrWong99/zenzone/pkg/audio/wav"
)

// oggPage assembles one Ogg page holding the given packets, each terminated
// within this page (no spanning).
func oggPage(seq uint32, packets ...[]byte) []byte {
	var table []byte
	var body []byte
	for _, pkt := range packets {
		n := len(pkt)
		for n >= 255 {
			table = append(table, 255)
			n -= 255
		}
		table = append(table, byte(n))
		body = append(body, pkt...)
	}

	page := make([]byte, 27)
	copy(page[0:4], "OggS")
	binary.LittleEndian.PutUint32(page[18:22], seq)
	page[26] = byte(len(table))
	page = append(page, table...)
	return append(page, body...)
}

func opusHead(channels int, preSkip uint16) []byte {
	head := make([]byte, 19)
	copy(head[0:8], "OpusHead")
	head[8] = 1 // version
	head[9] = byte(channels)
	binary.LittleEndian.PutUint16(head[10:12], preSkip)
	binary.LittleEndian.PutUint32(head[12:16], 48000)
	return head
}

func opusTags() []byte {
	tags := []byte("OpusTags")
	tags = append(tags, 4, 0, 0, 0)
	tags = append(tags, "test"...)
	return append(tags, 0, 0, 0, 0)
}

func TestDetect(t *testing.T) {
	wavData := wav.Encode(&audio.Buffer{SampleRate: 16000, Channels: [][]float64{{0}}})

	cases := []struct {
		name string
		data []byte
		want decode.Format
	}{
		{"wav", wavData, decode.FormatWAV},
		{"ogg", oggPage(0, opusHead(1, 0)), decode.FormatOggOpus},
		{"mp3 id3", append([]byte("ID3"), make([]byte, 16)...), decode.FormatMP3},
		{"mp3 frame sync", []byte{0xFF, 0xFB, 0x90, 0x00}, decode.FormatMP3},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := decode.Detect(c.data)
			if err != nil {
				t.Fatalf("Detect: %v", err)
			}
			if got != c.want {
				t.Errorf("Detect = %q, want %q", got, c.want)
			}
		})
	}
}

func TestDetectUnknown(t *testing.T) {
	for _, data := range [][]byte{nil, []byte("hello world"), {0x00, 0x01, 0x02}} {
		if _, err := decode.Detect(data); !errors.Is(err, decode.ErrUnknownFormat) {
			t.Errorf("Detect(%q) error = %v, want ErrUnknownFormat", data, err)
		}
	}
}

func TestDecodeWAVRoundTrip(t *testing.T) {
	src := &audio.Buffer{
		SampleRate: 16000,
		Channels:   [][]float64{{0.0, 0.5, -0.5, 0.25}},
	}
	got, err := decode.Decode(wav.Encode(src))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.SampleRate != 16000 || got.Frames() != 4 {
		t.Errorf("got %d Hz × %d frames, want 16000 × 4", got.SampleRate, got.Frames())
	}
}

func TestDecodeUnknownFormat(t *testing.T) {
	if _, err := decode.Decode([]byte("definitely not audio")); !errors.Is(err, decode.ErrUnknownFormat) {
		t.Errorf("Decode error = %v, want ErrUnknownFormat", err)
	}
}

func TestDecodeOggOpusHeaders(t *testing.T) {
	// A header-only stream (no audio packets) decodes to an empty 48 kHz buffer.
	stream := append(oggPage(0, opusHead(2, 312)), oggPage(1, opusTags())...)

	buf, err := decode.DecodeOggOpus(stream)
	if err != nil {
		t.Fatalf("DecodeOggOpus: %v", err)
	}
	if buf.SampleRate != 48000 {
		t.Errorf("sample rate = %d, want 48000", buf.SampleRate)
	}
	if len(buf.Channels) != 2 {
		t.Errorf("channels = %d, want 2", len(buf.Channels))
	}
	if buf.Frames() != 0 {
		t.Errorf("frames = %d, want 0", buf.Frames())
	}
}

func TestDecodeOggOpusRejectsBadHead(t *testing.T) {
	cases := map[string][]byte{
		"missing headers": oggPage(0, []byte("JunkPkt")),
		"bad magic":       append(oggPage(0, []byte("NotOpusHead oh no")), oggPage(1, opusTags())...),
		"truncated page":  []byte("OggS\x00"),
	}
	for name, data := range cases {
		if _, err := decode.DecodeOggOpus(data); err == nil {
			t.Errorf("%s: DecodeOggOpus accepted malformed stream", name)
		}
	}
}
