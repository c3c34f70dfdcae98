package analysis

import (
	"math"

	"github.com/MrWong99/zenzone/pkg/audio/features"
)

// VoiceInfluence collapses the normalized acoustic scores into a single
// [0,1] factor. Energy and spectral brightness dominate; tempo contributes
// less because the estimate is the noisiest of the three.
func VoiceInfluence(s features.Scores) float64 {
	return (s.RMS*0.4 + s.Centroid*0.4 + s.Tempo*0.2) / 100
}

// CombineStress merges the text-derived stress score with the voice
// influence factor. A neutral voice (influence 0.5) leaves the text score
// untouched; a tense voice can shift it by up to ±30 points. The result is
// clamped to [0,100] and rounded to one decimal.
func CombineStress(textScore, voiceInfluence float64) float64 {
	stress := textScore + (voiceInfluence-0.5)*60
	if stress < 0 {
		stress = 0
	}
	if stress > 100 {
		stress = 100
	}
	return math.Round(stress*10) / 10
}
