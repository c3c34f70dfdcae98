package emotion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MrWong99/zenzone/pkg/provider/llm"
)

const classifyPrompt = `You are an emotion classifier. Classify the emotional tone of the user's text into exactly one of: joy, sadness, anger, fear, surprise, neutral.

Respond with ONLY a JSON object, no prose, no markdown fences:
{"emotion": "<label>", "confidence": <number between 0 and 1>}`

// LLMAnalyzer classifies text with a completion call against any
// llm.Provider. The reply must be the strict JSON shape requested in the
// system prompt; anything unparseable is an error so the caller can fail
// over to the lexicon analyzer.
type LLMAnalyzer struct {
	provider llm.Provider
}

// Compile-time assertion that LLMAnalyzer satisfies Analyzer.
var _ Analyzer = (*LLMAnalyzer)(nil)

// NewLLMAnalyzer creates an analyzer on top of the given provider.
func NewLLMAnalyzer(provider llm.Provider) *LLMAnalyzer {
	return &LLMAnalyzer{provider: provider}
}

// Analyze implements Analyzer.
func (a *LLMAnalyzer) Analyze(ctx context.Context, text string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Neutral(), nil
	}

	resp, err := a.provider.Complete(ctx, llm.Request{
		SystemPrompt: classifyPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: text},
		},
		Temperature: 0.1,
		MaxTokens:   64,
	})
	if err != nil {
		return Result{}, fmt.Errorf("emotion: classify: %w", err)
	}

	return parseClassification(resp.Content)
}

// parseClassification extracts the JSON reply, tolerating surrounding
// whitespace and markdown code fences that some models insist on adding.
func parseClassification(content string) (Result, error) {
	cleaned := strings.TrimSpace(content)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var parsed struct {
		Emotion    string  `json:"emotion"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return Result{}, fmt.Errorf("emotion: parse classifier reply %q: %w", content, err)
	}

	label := strings.ToLower(strings.TrimSpace(parsed.Emotion))
	if !Valid(label) {
		return Result{}, fmt.Errorf("emotion: classifier returned unknown label %q", parsed.Emotion)
	}
	conf := parsed.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return Result{Label: label, Confidence: conf}, nil
}
