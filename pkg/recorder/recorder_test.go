package recorder_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/zenzone/pkg/audio"
	"github.com/MrWong99/zenzone/pkg/audio/wav"
	"github.com/MrWong99/zenzone/pkg/recorder"
)

type stubSource struct {
	startErr error
	stopErr  error
	data     []byte
	mime     string
}

func (s *stubSource) Start(context.Context) error { return s.startErr }
func (s *stubSource) Stop(context.Context) ([]byte, string, error) {
	return s.data, s.mime, s.stopErr
}

type stubUploader struct {
	got    recorder.Payload
	report *recorder.Report
	err    error
}

func (u *stubUploader) Upload(_ context.Context, p recorder.Payload) (*recorder.Report, error) {
	u.got = p
	return u.report, u.err
}

func wavBytes(t *testing.T) []byte {
	t.Helper()
	return wav.Encode(&audio.Buffer{SampleRate: 16000, Channels: [][]float64{{0, 0.5, -0.5}}})
}

func TestLifecycle(t *testing.T) {
	src := &stubSource{data: wavBytes(t), mime: "audio/wav"}
	up := &stubUploader{report: &recorder.Report{Emotion: "neutral", StressScore: 30}}

	var events []recorder.Event
	r := recorder.New(src, up, recorder.WithObserver(func(tr recorder.Transition) {
		events = append(events, tr.Event)
	}))

	if got := r.State(); got != recorder.StateIdle {
		t.Fatalf("initial state = %s, want idle", got)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := r.State(); got != recorder.StateRecording {
		t.Fatalf("state after Start = %s, want recording", got)
	}

	report, err := r.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if report.Emotion != "neutral" {
		t.Errorf("report emotion = %q, want neutral", report.Emotion)
	}
	if got := r.State(); got != recorder.StateIdle {
		t.Errorf("state after Stop = %s, want idle", got)
	}

	want := []recorder.Event{recorder.EventStart, recorder.EventStop, recorder.EventUploadComplete}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, events[i], want[i])
		}
	}
}

func TestIllegalTransitions(t *testing.T) {
	r := recorder.New(&stubSource{}, &stubUploader{report: &recorder.Report{}})

	if _, err := r.Stop(context.Background()); !errors.Is(err, recorder.ErrInvalidTransition) {
		t.Errorf("Stop while idle: err = %v, want ErrInvalidTransition", err)
	}

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Start(context.Background()); !errors.Is(err, recorder.ErrInvalidTransition) {
		t.Errorf("double Start: err = %v, want ErrInvalidTransition", err)
	}
}

func TestEncodeStrategy(t *testing.T) {
	src := &stubSource{data: wavBytes(t), mime: "audio/wav"}
	up := &stubUploader{report: &recorder.Report{}}

	var strategy recorder.Strategy
	r := recorder.New(src, up, recorder.WithObserver(func(tr recorder.Transition) {
		if tr.Event == recorder.EventStop {
			strategy = tr.Strategy
		}
	}), recorder.WithUserID("alice"))

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := r.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if strategy != recorder.StrategyEncode {
		t.Errorf("strategy = %s, want encode-then-upload", strategy)
	}
	if up.got.ContentType != wav.MIMEType {
		t.Errorf("payload content type = %q, want %q", up.got.ContentType, wav.MIMEType)
	}
	if up.got.Filename != wav.DefaultFilename {
		t.Errorf("payload filename = %q, want %q", up.got.Filename, wav.DefaultFilename)
	}
	if up.got.UserID != "alice" {
		t.Errorf("payload user id = %q, want alice", up.got.UserID)
	}
}

func TestRawFallbackStrategy(t *testing.T) {
	raw := []byte("not decodable audio at all")
	src := &stubSource{data: raw, mime: "audio/webm"}
	up := &stubUploader{report: &recorder.Report{}}

	var strategy recorder.Strategy
	r := recorder.New(src, up, recorder.WithObserver(func(tr recorder.Transition) {
		if tr.Event == recorder.EventStop {
			strategy = tr.Strategy
		}
	}))

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := r.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if strategy != recorder.StrategyRaw {
		t.Errorf("strategy = %s, want upload-raw", strategy)
	}
	if string(up.got.Data) != string(raw) {
		t.Error("raw payload bytes were modified")
	}
	if up.got.ContentType != "audio/webm" {
		t.Errorf("payload content type = %q, want original audio/webm", up.got.ContentType)
	}
}

func TestUploadFailureReturnsToIdle(t *testing.T) {
	src := &stubSource{data: wavBytes(t), mime: "audio/wav"}
	up := &stubUploader{err: errors.New("boom")}

	var failed error
	r := recorder.New(src, up, recorder.WithObserver(func(tr recorder.Transition) {
		if tr.Event == recorder.EventUploadFailed {
			failed = tr.Err
		}
	}))

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := r.Stop(context.Background()); err == nil {
		t.Fatal("Stop succeeded, want upload error")
	}
	if failed == nil {
		t.Error("observer never saw uploadFailed")
	}
	if got := r.State(); got != recorder.StateIdle {
		t.Errorf("state after failed upload = %s, want idle", got)
	}

	// No automatic retry happened, and the machine is usable again.
	if err := r.Start(context.Background()); err != nil {
		t.Errorf("Start after failure: %v", err)
	}
}

func TestHTTPUploader(t *testing.T) {
	var gotField, gotFilename, gotUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if f, fh, err := r.FormFile("audio"); err == nil {
			gotField = "audio"
			gotFilename = fh.Filename
			f.Close()
		}
		gotUser = r.FormValue("user_id")
		json.NewEncoder(w).Encode(recorder.Report{
			Text:        "hello",
			Emotion:     "joy",
			StressScore: 12.5,
		})
	}))
	defer srv.Close()

	up := recorder.NewHTTPUploader(srv.URL + "/analyze")
	report, err := up.Upload(context.Background(), recorder.Payload{
		Data:        wavBytes(t),
		ContentType: wav.MIMEType,
		Filename:    wav.DefaultFilename,
		UserID:      "bob",
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if gotField != "audio" {
		t.Error("file was not sent in form field \"audio\"")
	}
	if gotFilename != wav.DefaultFilename {
		t.Errorf("filename = %q, want %q", gotFilename, wav.DefaultFilename)
	}
	if gotUser != "bob" {
		t.Errorf("user_id = %q, want bob", gotUser)
	}
	if report.Emotion != "joy" || report.StressScore != 12.5 {
		t.Errorf("report = %+v, want joy / 12.5", report)
	}
}

func TestHTTPUploaderErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnsupportedMediaType)
		json.NewEncoder(w).Encode(map[string]string{"error": "unknown audio format"})
	}))
	defer srv.Close()

	up := recorder.NewHTTPUploader(srv.URL)
	_, err := up.Upload(context.Background(), recorder.Payload{Data: []byte("x"), Filename: "sample"})
	if err == nil {
		t.Fatal("Upload succeeded, want error")
	}
	if want := "unknown audio format"; !strings.Contains(err.Error(), want) {
		t.Errorf("error %q does not mention %q", err, want)
	}
}
