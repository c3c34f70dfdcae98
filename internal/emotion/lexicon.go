package emotion

import (
	"context"
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	// fuzzyThreshold is the minimum Jaro-Winkler score for a token to count
	// as a lexicon hit when it also phonetically matches. STT output is
	// noisy; "angrey" should still land on "angry".
	fuzzyThreshold = 0.85
)

// defaultLexicon maps each label to the keywords that signal it. Tokens are
// matched case-insensitively, exact first, then Double Metaphone plus
// Jaro-Winkler for near-misses.
var defaultLexicon = map[string][]string{
	LabelJoy: {
		"happy", "glad", "great", "wonderful", "excited", "love", "loving",
		"joy", "joyful", "amazing", "fantastic", "awesome", "delighted",
		"pleased", "cheerful", "grateful", "thrilled",
	},
	LabelSadness: {
		"sad", "unhappy", "depressed", "down", "miserable", "crying", "cried",
		"lonely", "grief", "heartbroken", "hopeless", "gloomy", "tired",
		"exhausted", "disappointed",
	},
	LabelAnger: {
		"angry", "furious", "mad", "annoyed", "irritated", "rage", "hate",
		"frustrated", "frustrating", "outraged", "pissed", "livid", "fed",
	},
	LabelFear: {
		"afraid", "scared", "anxious", "anxiety", "worried", "worry",
		"nervous", "terrified", "panicking", "panic", "dread", "frightened",
		"stressed", "overwhelmed",
	},
	LabelSurprise: {
		"surprised", "shocked", "astonished", "unexpected", "unbelievable",
		"incredible", "wow", "stunned", "startled",
	},
}

// LexiconAnalyzer is the rule-based fallback classifier: keyword counting
// over an emotion lexicon with phonetic tolerance for misrecognised words.
// It never fails, which makes it the terminal analyzer in a failover chain.
type LexiconAnalyzer struct {
	lexicon map[string][]string
	codes   map[string]map[string][]string // label → metaphone code → keywords
}

// Compile-time assertion that LexiconAnalyzer satisfies Analyzer.
var _ Analyzer = (*LexiconAnalyzer)(nil)

// NewLexiconAnalyzer creates the rule-based analyzer with the built-in
// lexicon.
func NewLexiconAnalyzer() *LexiconAnalyzer {
	a := &LexiconAnalyzer{
		lexicon: defaultLexicon,
		codes:   make(map[string]map[string][]string, len(defaultLexicon)),
	}
	// Precompute phonetic codes once; the lexicon is read-only afterwards.
	for label, words := range defaultLexicon {
		byCode := make(map[string][]string)
		for _, w := range words {
			p, s := matchr.DoubleMetaphone(w)
			if p != "" {
				byCode[p] = append(byCode[p], w)
			}
			if s != "" && s != p {
				byCode[s] = append(byCode[s], w)
			}
		}
		a.codes[label] = byCode
	}
	return a
}

// Analyze implements Analyzer. It cannot fail: text with no lexicon hits is
// neutral.
func (a *LexiconAnalyzer) Analyze(_ context.Context, text string) (Result, error) {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return Neutral(), nil
	}

	hits := make(map[string]int, len(a.lexicon))
	for _, tok := range tokens {
		for label := range a.lexicon {
			if a.matches(label, tok) {
				hits[label]++
			}
		}
	}

	bestLabel, bestHits := "", 0
	for _, label := range Labels() {
		if hits[label] > bestHits {
			bestLabel, bestHits = label, hits[label]
		}
	}
	if bestHits == 0 {
		return Neutral(), nil
	}

	// One hit is a weak signal; each additional hit raises confidence.
	conf := 0.6 + 0.1*float64(bestHits-1)
	if conf > 0.95 {
		conf = 0.95
	}
	return Result{Label: bestLabel, Confidence: conf}, nil
}

// matches reports whether token hits the label's lexicon: exact first, then
// phonetic (shared Double Metaphone code) confirmed by Jaro-Winkler.
func (a *LexiconAnalyzer) matches(label, token string) bool {
	for _, w := range a.lexicon[label] {
		if token == w {
			return true
		}
	}

	p, s := matchr.DoubleMetaphone(token)
	for _, code := range []string{p, s} {
		if code == "" {
			continue
		}
		for _, w := range a.codes[label][code] {
			if matchr.JaroWinkler(token, w, false) >= fuzzyThreshold {
				return true
			}
		}
	}
	return false
}

// tokenize lowercases and splits on runs of anything other than letters,
// digits, and apostrophes, so contractions like "can't" stay whole.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '\''
	})
}
