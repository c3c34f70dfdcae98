package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrWong99/zenzone/internal/app"
	"github.com/MrWong99/zenzone/internal/config"
	"github.com/MrWong99/zenzone/pkg/audio"
	"github.com/MrWong99/zenzone/pkg/audio/wav"
	historymock "github.com/MrWong99/zenzone/pkg/history/mock"
	"github.com/MrWong99/zenzone/pkg/provider/stt"
	sttmock "github.com/MrWong99/zenzone/pkg/provider/stt/mock"
)

func wavPayload(t *testing.T) []byte {
	t.Helper()
	const rate = 16000
	plane := make([]float64, rate/2)
	for i := range plane {
		plane[i] = 0.4 * math.Sin(2*math.Pi*330*float64(i)/rate)
	}
	return wav.Encode(&audio.Buffer{SampleRate: rate, Channels: [][]float64{plane}})
}

func multipartBody(t *testing.T, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("audio", "sample.wav")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func newApp(t *testing.T, providers *app.Providers, opts ...app.Option) (*app.App, *historymock.Store) {
	t.Helper()
	store := &historymock.Store{}
	opts = append([]app.Option{app.WithHistoryStore(store)}, opts...)
	a, err := app.New(context.Background(), &config.Config{}, providers, opts...)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})
	return a, store
}

func postAnalyze(t *testing.T, handler http.Handler, data []byte) *http.Response {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	body, contentType := multipartBody(t, data)
	resp, err := http.Post(ts.URL+"/analyze", contentType, body)
	if err != nil {
		t.Fatalf("POST /analyze: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAnalyzeWithoutProviders(t *testing.T) {
	// No STT and no LLM: the silent transcriber and lexicon analyzer still
	// produce a full report from acoustic features alone.
	a, store := newApp(t, &app.Providers{})

	resp := postAnalyze(t, a.Handler(), wavPayload(t))
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, body: %s", resp.StatusCode, raw)
	}

	var report struct {
		Text        string  `json:"text"`
		Emotion     string  `json:"emotion"`
		StressScore float64 `json:"stress_score"`
		Suggestion  struct {
			Activity string `json:"activity"`
		} `json:"suggestion"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Text != "" {
		t.Errorf("text = %q, want empty without STT", report.Text)
	}
	if report.Emotion != "neutral" {
		t.Errorf("emotion = %q, want neutral", report.Emotion)
	}
	if report.StressScore < 0 || report.StressScore > 100 {
		t.Errorf("stress_score = %v, want within [0,100]", report.StressScore)
	}
	if report.Suggestion.Activity == "" {
		t.Error("suggestion activity is empty")
	}

	if got := store.CallCount("Insert"); got != 1 {
		t.Errorf("Insert calls = %d, want 1", got)
	}
}

func TestAnalyzeUsesTranscriberFallback(t *testing.T) {
	primary := &sttmock.Transcriber{Err: errors.New("primary down")}
	backup := &sttmock.Transcriber{Result: stt.Result{Text: "I am so worried about everything"}}

	a, _ := newApp(t, &app.Providers{STT: primary, STTFallback: backup})

	resp := postAnalyze(t, a.Handler(), wavPayload(t))
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, body: %s", resp.StatusCode, raw)
	}

	var report struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Text != "I am so worried about everything" {
		t.Errorf("text = %q, want the fallback transcript", report.Text)
	}
	if len(primary.Calls()) != 1 || len(backup.Calls()) != 1 {
		t.Errorf("calls primary=%d backup=%d, want 1 each", len(primary.Calls()), len(backup.Calls()))
	}
}

func TestHealthAndSessionsEndpoints(t *testing.T) {
	a, store := newApp(t, &app.Providers{})
	store.RecentResult = nil

	ts := httptest.NewServer(a.Handler())
	defer ts.Close()

	for _, path := range []string{"/healthz", "/readyz", "/api/sessions", "/metrics"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	a, _ := newApp(t, &app.Providers{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("first shutdown: %v", err)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	store := &historymock.Store{}
	cfg := &config.Config{}
	cfg.Server.ListenAddr = "127.0.0.1:0"
	a, err := app.New(context.Background(), cfg, &app.Providers{}, app.WithHistoryStore(store))
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer scancel()
	if err := a.Shutdown(sctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
