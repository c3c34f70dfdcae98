package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/zenzone/pkg/provider/llm"
)

func TestNew_MissingAPIKey(t *testing.T) {
	_, err := New("", "gpt-4o-mini")
	if err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestNew_MissingModel(t *testing.T) {
	_, err := New("sk-test", "")
	if err == nil {
		t.Fatal("expected error for empty model")
	}
}

func TestBuildParams_SystemPromptFirst(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini"}
	params, err := p.buildParams(llm.Request{
		SystemPrompt: "Classify the speaker's emotion.",
		Messages: []llm.Message{
			{Role: "user", Content: "I am so worried about the deadline"},
		},
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("messages = %d, want 2 (system + user)", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil {
		t.Error("first message should carry the system prompt")
	}
	if params.Messages[1].OfUser == nil {
		t.Error("second message should be the user transcript")
	}
}

func TestBuildParams_AllRoles(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini"}
	params, err := p.buildParams(llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: "Answer with one JSON object."},
			{Role: "user", Content: "how stressed do I sound?"},
			{Role: "assistant", Content: `{"label":"fear","confidence":0.8}`},
		},
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if params.Messages[0].OfSystem == nil {
		t.Error("expected OfSystem for system role")
	}
	if params.Messages[1].OfUser == nil {
		t.Error("expected OfUser for user role")
	}
	if params.Messages[2].OfAssistant == nil {
		t.Error("expected OfAssistant for assistant role")
	}
}

func TestBuildParams_UnknownRole(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini"}
	_, err := p.buildParams(llm.Request{
		Messages: []llm.Message{{Role: "narrator", Content: "test"}},
	})
	if err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestBuildParams_Tuning(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini"}
	params, err := p.buildParams(llm.Request{
		Messages:    []llm.Message{{Role: "user", Content: "hi"}},
		Temperature: 0.2,
		MaxTokens:   64,
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if got := params.Temperature.Value; got != 0.2 {
		t.Errorf("temperature = %v, want 0.2", got)
	}
	if got := params.MaxCompletionTokens.Value; got != 64 {
		t.Errorf("max completion tokens = %v, want 64", got)
	}
}

func TestComplete_ChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %q", r.URL.Path)
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "gpt-4o-mini" {
			t.Errorf("model = %q, want gpt-4o-mini", req.Model)
		}
		if len(req.Messages) == 0 || !strings.Contains(req.Messages[len(req.Messages)-1].Content, "worried") {
			t.Errorf("last message should carry the transcript, got %+v", req.Messages)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"role": "assistant", "content": "{\"label\":\"fear\",\"confidence\":0.9}"}}],
			"usage": {"prompt_tokens": 21, "completion_tokens": 12, "total_tokens": 33}
		}`))
	}))
	defer srv.Close()

	p, err := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resp, err := p.Complete(context.Background(), llm.Request{
		SystemPrompt: "Classify the speaker's emotion as JSON.",
		Messages: []llm.Message{
			{Role: "user", Content: "I am so worried about everything"},
		},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !strings.Contains(resp.Content, `"label":"fear"`) {
		t.Errorf("content = %q, want the classification JSON", resp.Content)
	}
	if resp.Usage.TotalTokens != 33 {
		t.Errorf("total tokens = %d, want 33", resp.Usage.TotalTokens)
	}
}

func TestComplete_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	p, err := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.Complete(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error for empty choices")
	}
}
