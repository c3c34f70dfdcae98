// Package deepgram provides Deepgram-backed transcription over the
// streaming WebSocket API, bridged to the batch stt.Transcriber shape: one
// call opens a connection, streams the whole recording, closes the stream,
// and collects the final results.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/zenzone/pkg/audio"
	"github.com/MrWong99/zenzone/pkg/audio/wav"
	"github.com/MrWong99/zenzone/pkg/provider/stt"
	"github.com/coder/websocket"
)

const (
	deepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "en"

	// chunkSize is the binary frame size for audio upload: 8 KiB ≈ 250 ms of
	// 16 kHz mono PCM per message.
	chunkSize = 8192
)

// Compile-time assertion that Client implements stt.Transcriber.
var _ stt.Transcriber = (*Client)(nil)

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en",
// "de-DE").
func WithLanguage(language string) Option {
	return func(c *Client) { c.language = language }
}

// WithEndpoint overrides the WebSocket endpoint (for tests and self-hosted
// Deepgram deployments).
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

// Client implements stt.Transcriber against the Deepgram streaming API.
type Client struct {
	apiKey   string
	model    string
	language string
	endpoint string
}

// New creates a Deepgram Client. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	c := &Client{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		endpoint: deepgramEndpoint,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Transcribe streams the buffer's PCM to Deepgram, closes the stream, and
// concatenates the final results into one transcript.
func (c *Client) Transcribe(ctx context.Context, b *audio.Buffer) (stt.Result, error) {
	mono := b
	if len(b.Channels) != 1 {
		mono = audio.Downmix(b)
	}

	wsURL, err := c.buildURL(mono.SampleRate)
	if err != nil {
		return stt.Result{}, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+c.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return stt.Result{}, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "transcription done")

	// Reuse the WAV quantiser to get 16-bit LE PCM, then strip the header:
	// Deepgram is told the raw format via query parameters.
	pcm := wav.Encode(mono)[44:]

	// Reader goroutine collects results while we stream audio; Deepgram
	// emits interim results during upload and would stall the socket if
	// nobody read them.
	resultCh := make(chan outcome, 1)
	go func() {
		resultCh <- collectFinals(ctx, conn)
	}()

	for off := 0; off < len(pcm); off += chunkSize {
		end := off + chunkSize
		if end > len(pcm) {
			end = len(pcm)
		}
		if err := conn.Write(ctx, websocket.MessageBinary, pcm[off:end]); err != nil {
			return stt.Result{}, fmt.Errorf("deepgram: send audio: %w", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return stt.Result{}, fmt.Errorf("deepgram: close stream: %w", err)
	}

	select {
	case out := <-resultCh:
		if out.err != nil {
			return stt.Result{}, out.err
		}
		out.result.Duration = b.Duration()
		return out.result, nil
	case <-ctx.Done():
		return stt.Result{}, fmt.Errorf("deepgram: wait for results: %w", ctx.Err())
	}
}

type outcome struct {
	result stt.Result
	err    error
}

// collectFinals reads Results events until the server closes the connection
// and merges the finals into one transcript.
func collectFinals(ctx context.Context, conn *websocket.Conn) (out outcome) {
	var (
		parts      []string
		words      []stt.Word
		confSum    float64
		confChunks int
	)
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			// Normal closure after CloseStream ends the result stream.
			var closeErr websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.StatusNormalClosure {
				break
			}
			if ctx.Err() != nil {
				out.err = fmt.Errorf("deepgram: read results: %w", ctx.Err())
				return
			}
			// EOF-style teardown after the final Results message is also fine.
			break
		}

		resp, ok := parseResponse(msg)
		if !ok || !resp.isFinal || resp.text == "" {
			continue
		}
		parts = append(parts, resp.text)
		words = append(words, resp.words...)
		confSum += resp.confidence
		confChunks++
	}

	out.result = stt.Result{
		Text:  strings.TrimSpace(strings.Join(parts, " ")),
		Words: words,
	}
	if confChunks > 0 {
		out.result.Confidence = confSum / float64(confChunks)
	}
	return
}

// buildURL constructs the streaming endpoint URL for raw 16-bit PCM at the
// given sample rate.
func (c *Client) buildURL(sampleRate int) (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", c.model)
	q.Set("language", c.language)
	q.Set("punctuate", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("channels", "1")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// deepgramResponse is the JSON structure of a Results event.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
			Words      []struct {
				Word       string  `json:"word"`
				Start      float64 `json:"start"`
				End        float64 `json:"end"`
				Confidence float64 `json:"confidence"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type parsedResult struct {
	text       string
	isFinal    bool
	confidence float64
	words      []stt.Word
}

// parseResponse parses one WebSocket message. Returns ok=false for
// non-Results events and unparseable payloads.
func parseResponse(data []byte) (parsedResult, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return parsedResult{}, false
	}
	if resp.Type != "Results" || len(resp.Channel.Alternatives) == 0 {
		return parsedResult{}, false
	}

	alt := resp.Channel.Alternatives[0]
	words := make([]stt.Word, 0, len(alt.Words))
	for _, w := range alt.Words {
		words = append(words, stt.Word{
			Text:       w.Word,
			Start:      time.Duration(w.Start * float64(time.Second)),
			End:        time.Duration(w.End * float64(time.Second)),
			Confidence: w.Confidence,
		})
	}

	return parsedResult{
		text:       alt.Transcript,
		isFinal:    resp.IsFinal,
		confidence: alt.Confidence,
		words:      words,
	}, true
}
