package whisper_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/zenzone/pkg/audio"
	"github.com/MrWong99/zenzone/pkg/provider/stt/whisper"
)

func testBuffer() *audio.Buffer {
	samples := make([]float64, 1600)
	for i := range samples {
		samples[i] = 0.1
	}
	return &audio.Buffer{SampleRate: 16000, Channels: [][]float64{samples}}
}

func TestTranscribe(t *testing.T) {
	var gotLanguage, gotModel string
	var gotWAVPrefix []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inference" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(4 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotLanguage = r.FormValue("language")
		gotModel = r.FormValue("model")
		if f, _, err := r.FormFile("file"); err == nil {
			head := make([]byte, 4)
			f.Read(head)
			gotWAVPrefix = head
			f.Close()
		}
		json.NewEncoder(w).Encode(map[string]string{"text": "  hello world "})
	}))
	defer srv.Close()

	c, err := whisper.New(srv.URL, whisper.WithLanguage("de"), whisper.WithModel("base.en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := c.Transcribe(context.Background(), testBuffer())
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if result.Text != "hello world" {
		t.Errorf("text = %q, want trimmed \"hello world\"", result.Text)
	}
	if result.Duration.Milliseconds() != 100 {
		t.Errorf("duration = %v, want 100ms", result.Duration)
	}
	if gotLanguage != "de" {
		t.Errorf("language field = %q, want de", gotLanguage)
	}
	if gotModel != "base.en" {
		t.Errorf("model field = %q, want base.en", gotModel)
	}
	if string(gotWAVPrefix) != "RIFF" {
		t.Errorf("uploaded file does not start with RIFF, got %q", gotWAVPrefix)
	}
}

func TestTranscribeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := whisper.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Transcribe(context.Background(), testBuffer()); err == nil {
		t.Fatal("Transcribe succeeded, want error on HTTP 503")
	}
}

func TestNewRequiresURL(t *testing.T) {
	if _, err := whisper.New(""); err == nil {
		t.Fatal("New accepted empty server URL")
	}
}
