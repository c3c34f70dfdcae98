package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/zenzone/internal/emotion"
	"github.com/MrWong99/zenzone/pkg/provider/llm"
	llmmock "github.com/MrWong99/zenzone/pkg/provider/llm/mock"
)

func TestAnalyzerFallback_LLMThenLexicon(t *testing.T) {
	// LLM classifier whose provider is down; lexicon as terminal fallback.
	broken := emotion.NewLLMAnalyzer(&llmmock.Provider{CompleteErr: errors.New("provider down")})

	fb := NewAnalyzerFallback(broken, "llm", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("lexicon", emotion.NewLexiconAnalyzer())

	r, err := fb.Analyze(context.Background(), "I am furious and so frustrated")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Label != emotion.LabelAnger {
		t.Fatalf("label = %q, want anger from lexicon fallback", r.Label)
	}
}

func TestAnalyzerFallback_PrimaryWins(t *testing.T) {
	p := &llmmock.Provider{
		CompleteResponse: &llm.Response{Content: `{"emotion": "joy", "confidence": 0.9}`},
	}

	fb := NewAnalyzerFallback(emotion.NewLLMAnalyzer(p), "llm", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("lexicon", emotion.NewLexiconAnalyzer())

	r, err := fb.Analyze(context.Background(), "I feel miserable")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Label != emotion.LabelJoy {
		t.Fatalf("label = %q, want the primary's classification", r.Label)
	}
}
