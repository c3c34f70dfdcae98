package server_test

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
	"sync"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/zenzone/internal/analysis"
	"github.com/MrWong99/zenzone/internal/emotion"
	"github.com/MrWong99/zenzone/internal/observe"
	"github.com/MrWong99/zenzone/internal/server"
	"github.com/MrWong99/zenzone/pkg/audio"
	"github.com/MrWong99/zenzone/pkg/audio/wav"
	"github.com/MrWong99/zenzone/pkg/history"
	historymock "github.com/MrWong99/zenzone/pkg/history/mock"
	embedmock "github.com/MrWong99/zenzone/pkg/provider/embeddings/mock"
	"github.com/MrWong99/zenzone/pkg/provider/stt"
	sttmock "github.com/MrWong99/zenzone/pkg/provider/stt/mock"
)

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func wavPayload(t *testing.T) []byte {
	t.Helper()
	const rate = 16000
	plane := make([]float64, rate/2)
	for i := range plane {
		plane[i] = 0.4 * math.Sin(2*math.Pi*330*float64(i)/rate)
	}
	return wav.Encode(&audio.Buffer{SampleRate: rate, Channels: [][]float64{plane}})
}

// multipartBody builds an upload body with the audio file and optional
// user_id field.
func multipartBody(t *testing.T, field, userID string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		fw, err := mw.CreateFormFile(field, "sample.wav")
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if userID != "" {
		if err := mw.WriteField("user_id", userID); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func newTestServer(t *testing.T, opts ...server.Option) (*server.Server, *historymock.Store) {
	t.Helper()
	store := &historymock.Store{}
	pipeline := analysis.New(
		&sttmock.Transcriber{Result: stt.Result{Text: "everything is fine"}},
		emotion.NewLexiconAnalyzer(),
		analysis.WithStore(store),
	)
	opts = append([]server.Option{
		server.WithStore(store),
		server.WithMetrics(testMetrics(t)),
	}, opts...)
	return server.New(pipeline, opts...), store
}

func TestAnalyzeSuccess(t *testing.T) {
	srv, store := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body, contentType := multipartBody(t, "audio", "user-7", wavPayload(t))
	resp, err := http.Post(ts.URL+"/analyze", contentType, body)
	if err != nil {
		t.Fatalf("POST /analyze: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, body: %s", resp.StatusCode, raw)
	}

	var report analysis.Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Text != "everything is fine" {
		t.Errorf("text = %q", report.Text)
	}
	if report.FriendlyLabel != report.Suggestion.Title {
		t.Errorf("friendly_label = %q, suggestion title = %q",
			report.FriendlyLabel, report.Suggestion.Title)
	}
	if len(report.AudioFeatures) != 3 {
		t.Errorf("audio_features = %v, want rms/centroid/tempo", report.AudioFeatures)
	}

	inserted := store.Inserted()
	if len(inserted) != 1 || inserted[0].UserID != "user-7" {
		t.Errorf("stored sessions = %+v, want one for user-7", inserted)
	}
}

func TestAnalyzeMissingFile(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body, contentType := multipartBody(t, "", "", nil)
	resp, err := http.Post(ts.URL+"/analyze", contentType, body)
	if err != nil {
		t.Fatalf("POST /analyze: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAnalyzeUnsupportedFormat(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body, contentType := multipartBody(t, "audio", "", []byte("plain text, not audio"))
	resp, err := http.Post(ts.URL+"/analyze", contentType, body)
	if err != nil {
		t.Fatalf("POST /analyze: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d, want 415", resp.StatusCode)
	}
}

func TestAnalyzeOversizedUpload(t *testing.T) {
	srv, _ := newTestServer(t, server.WithMaxUploadBytes(1024))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body, contentType := multipartBody(t, "audio", "", wavPayload(t))
	resp, err := http.Post(ts.URL+"/analyze", contentType, body)
	if err != nil {
		t.Fatalf("POST /analyze: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", resp.StatusCode)
	}
}

func TestAnalyzePipelineFailure(t *testing.T) {
	pipeline := analysis.New(
		&sttmock.Transcriber{Err: errors.New("backend down")},
		emotion.NewLexiconAnalyzer(),
	)
	srv := server.New(pipeline, server.WithMetrics(testMetrics(t)))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body, contentType := multipartBody(t, "audio", "", wavPayload(t))
	resp, err := http.Post(ts.URL+"/analyze", contentType, body)
	if err != nil {
		t.Fatalf("POST /analyze: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
	var errBody struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errBody); err != nil || errBody.Error == "" {
		t.Errorf("error body = %+v, %v", errBody, err)
	}
}

func TestAnalyzeSaturated(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	tr := &sttmock.Transcriber{
		TranscribeFunc: func(context.Context, *audio.Buffer) (stt.Result, error) {
			close(started)
			<-release
			return stt.Result{}, nil
		},
	}
	pipeline := analysis.New(tr, emotion.NewLexiconAnalyzer())
	srv := server.New(pipeline,
		server.WithMetrics(testMetrics(t)),
		server.WithMaxConcurrent(1),
	)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		body, contentType := multipartBody(t, "audio", "", wavPayload(t))
		resp, err := http.Post(ts.URL+"/analyze", contentType, body)
		if err == nil {
			resp.Body.Close()
		}
	}()

	<-started // first analysis holds the only slot

	body, contentType := multipartBody(t, "audio", "", wavPayload(t))
	resp, err := http.Post(ts.URL+"/analyze", contentType, body)
	if err != nil {
		t.Fatalf("POST /analyze: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 while saturated", resp.StatusCode)
	}

	close(release)
	wg.Wait()
}

func TestApplyLimits(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	// Shrink the upload cap at runtime; a payload that previously fit is
	// now rejected.
	srv.ApplyLimits(0, 1024)

	body, contentType := multipartBody(t, "audio", "", wavPayload(t))
	resp, err := http.Post(ts.URL+"/analyze", contentType, body)
	if err != nil {
		t.Fatalf("POST /analyze: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413 after lowering the cap", resp.StatusCode)
	}

	// Restoring defaults accepts it again.
	srv.ApplyLimits(0, 0)
	body, contentType = multipartBody(t, "audio", "", wavPayload(t))
	resp, err = http.Post(ts.URL+"/analyze", contentType, body)
	if err != nil {
		t.Fatalf("POST /analyze: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200 after restoring defaults", resp.StatusCode)
	}
}

func TestSessionsListing(t *testing.T) {
	srv, store := newTestServer(t)
	store.RecentResult = []history.Session{
		{ID: 2, UserID: "u", StressScore: 70.5, Emotion: "anger", Transcript: "later"},
		{ID: 1, UserID: "u", StressScore: 12.0, Emotion: "joy", Transcript: "earlier"},
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/sessions?user_id=u&limit=5")
	if err != nil {
		t.Fatalf("GET /api/sessions: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var sessions []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(sessions))
	}
	if sessions[0]["transcript"] != "later" {
		t.Errorf("first transcript = %v, want newest first", sessions[0]["transcript"])
	}

	calls := store.Calls()
	if len(calls) != 1 || calls[0].Method != "Recent" {
		t.Fatalf("store calls = %+v", calls)
	}
	if calls[0].Args[0] != "u" || calls[0].Args[1] != 5 {
		t.Errorf("Recent args = %v, want [u 5]", calls[0].Args)
	}
}

func TestSessionsWithoutStore(t *testing.T) {
	pipeline := analysis.New(&sttmock.Transcriber{}, emotion.NewLexiconAnalyzer())
	srv := server.New(pipeline, server.WithMetrics(testMetrics(t)))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/sessions")
	if err != nil {
		t.Fatalf("GET /api/sessions: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 without a store", resp.StatusCode)
	}
}

func TestSimilarSearch(t *testing.T) {
	embedder := &embedmock.Provider{EmbedResult: []float32{1, 2, 3}}
	srv, store := newTestServer(t, server.WithEmbeddings(embedder))
	store.SimilarResult = []history.Session{{ID: 9, Transcript: "a close match"}}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/sessions/similar?text=deadlines&limit=3")
	if err != nil {
		t.Fatalf("GET similar: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var sessions []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sessions) != 1 || sessions[0]["transcript"] != "a close match" {
		t.Errorf("sessions = %v", sessions)
	}

	if store.CallCount("Similar") != 1 {
		t.Errorf("Similar calls = %d, want 1", store.CallCount("Similar"))
	}
}

func TestSimilarWithoutEmbeddings(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/sessions/similar?text=anything")
	if err != nil {
		t.Fatalf("GET similar: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 without embeddings", resp.StatusCode)
	}
}

func TestSimilarMissingText(t *testing.T) {
	embedder := &embedmock.Provider{EmbedResult: []float32{1}}
	srv, _ := newTestServer(t, server.WithEmbeddings(embedder))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/sessions/similar")
	if err != nil {
		t.Fatalf("GET similar: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 without text", resp.StatusCode)
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	for _, path := range []string{"/healthz", "/readyz"} {
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

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
