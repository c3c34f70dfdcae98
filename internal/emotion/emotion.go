// Package emotion classifies transcript text into a small emotion set and
// maps the classification onto a text stress score.
//
// Two analyzers exist: the LLM-backed classifier (primary) and a rule-based
// lexicon matcher (fallback for offline operation or provider outages).
// Both are bridged through the same Analyzer interface so resilience
// wiring can fail over between them.
package emotion

import "context"

// Recognised emotion labels.
const (
	LabelJoy      = "joy"
	LabelSadness  = "sadness"
	LabelAnger    = "anger"
	LabelFear     = "fear"
	LabelSurprise = "surprise"
	LabelNeutral  = "neutral"
)

// Result is one classification outcome.
type Result struct {
	// Label is one of the Label constants. Analyzers never return labels
	// outside that set.
	Label string

	// Confidence in [0,1].
	Confidence float64
}

// Analyzer classifies a piece of text.
type Analyzer interface {
	// Analyze classifies text. Empty text returns the neutral result
	// without any backend call — silence is a valid recording.
	Analyze(ctx context.Context, text string) (Result, error)
}

// Neutral is the result used for empty transcripts and as the safe default
// when classification is impossible.
func Neutral() Result {
	return Result{Label: LabelNeutral, Confidence: 1}
}

// baseStress is the per-label stress contribution before confidence
// weighting.
var baseStress = map[string]float64{
	LabelJoy:      10,
	LabelSadness:  50,
	LabelAnger:    90,
	LabelFear:     80,
	LabelSurprise: 40,
	LabelNeutral:  30,
}

// StressScore converts a classification into the text stress component:
// the label's base value weighted by confidence, capped at 100. Labels
// outside the recognised set score a flat 50.
func StressScore(r Result) float64 {
	base, ok := baseStress[r.Label]
	if !ok {
		base = 50
	}
	score := base * r.Confidence
	if score > 100 {
		return 100
	}
	return score
}

// Labels returns the recognised label set, in stable order.
func Labels() []string {
	return []string{LabelJoy, LabelSadness, LabelAnger, LabelFear, LabelSurprise, LabelNeutral}
}

// Valid reports whether label is one of the recognised labels.
func Valid(label string) bool {
	_, ok := baseStress[label]
	return ok
}
