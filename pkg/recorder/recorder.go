// Package recorder drives the capture-and-upload flow as an explicit state
// machine: Idle → Recording → Processing → Idle. Capture and upload are
// collaborator interfaces so the machine itself stays host-agnostic; the CLI
// feeds it from files, tests feed it from stubs.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/zenzone/pkg/audio/decode"
	"github.com/MrWong99/zenzone/pkg/audio/wav"
)

// State is the recorder's lifecycle position.
type State string

const (
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StateProcessing State = "processing"
)

// Event names a transition trigger, reported to observers.
type Event string

const (
	EventStart          Event = "start"
	EventStop           Event = "stop"
	EventUploadComplete Event = "uploadComplete"
	EventUploadFailed   Event = "uploadFailed"
)

// Strategy is the upload path chosen after capture stops.
type Strategy string

const (
	// StrategyEncode means the capture decoded cleanly and was re-encoded
	// as WAV before upload.
	StrategyEncode Strategy = "encode-then-upload"

	// StrategyRaw means decoding failed and the original compressed bytes
	// were uploaded unmodified.
	StrategyRaw Strategy = "upload-raw"
)

// ErrInvalidTransition is returned when an operation is called in a state
// that does not permit it.
var ErrInvalidTransition = errors.New("recorder: invalid state transition")

// Source supplies captured compressed audio. Start begins capture; Stop
// ends it and returns the captured bytes with their container content type.
type Source interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (data []byte, contentType string, err error)
}

// Uploader delivers a finished payload to the analysis service and returns
// the parsed report.
type Uploader interface {
	Upload(ctx context.Context, p Payload) (*Report, error)
}

// Payload is one upload unit.
type Payload struct {
	Data        []byte
	ContentType string
	Filename    string
	UserID      string
}

// Transition is the value observers receive on every state change.
type Transition struct {
	From  State
	To    State
	Event Event

	// Strategy is set on the stop transition once the upload path is chosen.
	Strategy Strategy

	// Report is set on uploadComplete; Err on uploadFailed.
	Report *Report
	Err    error
}

// Observer is a UI notification hook. Observers run synchronously on the
// transitioning goroutine and must not call back into the Recorder.
type Observer func(Transition)

// Option configures a Recorder.
type Option func(*Recorder)

// WithObserver registers a transition observer. May be given multiple times.
func WithObserver(o Observer) Option {
	return func(r *Recorder) { r.observers = append(r.observers, o) }
}

// WithUserID attaches a user identity to every uploaded payload.
func WithUserID(id string) Option {
	return func(r *Recorder) { r.userID = id }
}

// Recorder is the capture state machine. Safe for concurrent use; at most
// one capture is in flight at a time.
type Recorder struct {
	source   Source
	uploader Uploader
	userID   string

	observers []Observer

	mu    sync.Mutex
	state State
}

// New creates a Recorder in the Idle state.
func New(source Source, uploader Uploader, opts ...Option) *Recorder {
	r := &Recorder{source: source, uploader: uploader, state: StateIdle}
	for _, o := range opts {
		o(r)
	}
	return r
}

// State returns the current lifecycle state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start begins a capture. Legal only from Idle.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateIdle {
		state := r.state
		r.mu.Unlock()
		return fmt.Errorf("recorder: start from %s: %w", state, ErrInvalidTransition)
	}
	r.state = StateRecording
	r.mu.Unlock()

	if err := r.source.Start(ctx); err != nil {
		r.setState(StateRecording, StateIdle, Transition{Event: EventStart, Err: err})
		return fmt.Errorf("recorder: start capture: %w", err)
	}
	r.notify(Transition{From: StateIdle, To: StateRecording, Event: EventStart})
	return nil
}

// Stop ends the capture, picks the upload strategy, and delivers the
// payload. Legal only from Recording. On upload failure the machine returns
// to Idle with the error surfaced both to observers and the caller; there
// is no automatic retry.
func (r *Recorder) Stop(ctx context.Context) (*Report, error) {
	r.mu.Lock()
	if r.state != StateRecording {
		state := r.state
		r.mu.Unlock()
		return nil, fmt.Errorf("recorder: stop from %s: %w", state, ErrInvalidTransition)
	}
	r.state = StateProcessing
	r.mu.Unlock()

	data, contentType, err := r.source.Stop(ctx)
	if err != nil {
		r.setState(StateProcessing, StateIdle, Transition{Event: EventUploadFailed, Err: err})
		return nil, fmt.Errorf("recorder: stop capture: %w", err)
	}

	payload, strategy := r.buildPayload(data, contentType)
	r.notify(Transition{From: StateRecording, To: StateProcessing, Event: EventStop, Strategy: strategy})

	report, err := r.uploader.Upload(ctx, payload)
	if err != nil {
		r.setState(StateProcessing, StateIdle, Transition{Event: EventUploadFailed, Err: err})
		return nil, fmt.Errorf("recorder: upload: %w", err)
	}

	r.setState(StateProcessing, StateIdle, Transition{Event: EventUploadComplete, Report: report})
	return report, nil
}

// buildPayload decodes the capture and re-encodes it as WAV. When decoding
// fails the original bytes are shipped unmodified; the fallback is a
// strategy, not an error.
func (r *Recorder) buildPayload(data []byte, contentType string) (Payload, Strategy) {
	buf, err := decode.Decode(data)
	if err != nil {
		slog.Warn("recorder: decoding capture failed, uploading raw bytes",
			"content_type", contentType, "error", err)
		return Payload{
			Data:        data,
			ContentType: contentType,
			Filename:    "sample",
			UserID:      r.userID,
		}, StrategyRaw
	}
	return Payload{
		Data:        wav.Encode(buf),
		ContentType: wav.MIMEType,
		Filename:    wav.DefaultFilename,
		UserID:      r.userID,
	}, StrategyEncode
}

func (r *Recorder) setState(from, to State, t Transition) {
	r.mu.Lock()
	r.state = to
	r.mu.Unlock()
	t.From = from
	t.To = to
	r.notify(t)
}

func (r *Recorder) notify(t Transition) {
	for _, o := range r.observers {
		o(t)
	}
}
