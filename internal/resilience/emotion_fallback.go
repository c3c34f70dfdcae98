package resilience

import (
	"context"

	"github.com/MrWong99/zenzone/internal/emotion"
)

// AnalyzerFallback implements [emotion.Analyzer] with automatic failover
// across classifiers. The intended wiring is LLM classifier first, lexicon
// classifier last: the lexicon cannot fail, which makes the chain total.
type AnalyzerFallback struct {
	group *FallbackGroup[emotion.Analyzer]
}

// Compile-time interface assertion.
var _ emotion.Analyzer = (*AnalyzerFallback)(nil)

// NewAnalyzerFallback creates an [AnalyzerFallback] with primary as the
// preferred classifier.
func NewAnalyzerFallback(primary emotion.Analyzer, primaryName string, cfg FallbackConfig) *AnalyzerFallback {
	return &AnalyzerFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional classifier as a fallback.
func (f *AnalyzerFallback) AddFallback(name string, analyzer emotion.Analyzer) {
	f.group.AddFallback(name, analyzer)
}

// Analyze classifies the text with the first healthy classifier. If the
// primary fails, subsequent fallbacks are tried.
func (f *AnalyzerFallback) Analyze(ctx context.Context, text string) (emotion.Result, error) {
	return ExecuteWithResult(f.group, func(a emotion.Analyzer) (emotion.Result, error) {
		return a.Analyze(ctx, text)
	})
}
