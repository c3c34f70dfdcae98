package audio

import (
	"math"
)

// Preprocessing constants matching the analysis pipeline's expectations:
// mono 16 kHz input, normalised to a fixed loudness, with long leading and
// trailing silence stripped.
const (
	// AnalysisSampleRate is the sample rate the analysis pipeline operates at.
	AnalysisSampleRate = 16000

	// NormalizeTargetDBFS is the target loudness for gain normalisation.
	NormalizeTargetDBFS = -20.0

	// SilenceThresholdDB is the level below which audio counts as silence
	// when trimming.
	SilenceThresholdDB = -50.0

	// SilenceMinRunMs is the minimum silent run length eligible for trimming.
	SilenceMinRunMs = 500

	// SilencePadMs is how much silence is kept on each trimmed end so the
	// recording does not start or stop abruptly.
	SilencePadMs = 100
)

// Preprocess applies the full conditioning chain used before transcription
// and feature extraction: downmix to mono, resample to 16 kHz, normalise to
// −20 dBFS, and trim leading/trailing silence. The input buffer is not
// modified.
func Preprocess(b *Buffer) *Buffer {
	out := Downmix(b)
	out = Resample(out, AnalysisSampleRate)
	out = Normalize(out, NormalizeTargetDBFS)
	out = TrimSilence(out, SilenceThresholdDB, SilenceMinRunMs, SilencePadMs)
	return out
}

// Downmix averages all channels into a single mono plane. A buffer that is
// already mono (or has no channels) is returned as a copy, never aliased.
func Downmix(b *Buffer) *Buffer {
	frames := b.Frames()
	mono := make([]float64, frames)
	if len(b.Channels) == 1 {
		copy(mono, b.Channels[0])
	} else if len(b.Channels) > 1 {
		n := float64(len(b.Channels))
		for i := 0; i < frames; i++ {
			var sum float64
			for _, ch := range b.Channels {
				sum += ch[i]
			}
			mono[i] = sum / n
		}
	}
	return &Buffer{SampleRate: b.SampleRate, Channels: [][]float64{mono}}
}

// Resample converts every channel plane to dstRate using linear
// interpolation. If the rates already match, a deep copy is returned so the
// output is always independently owned.
func Resample(b *Buffer, dstRate int) *Buffer {
	if dstRate <= 0 || b.SampleRate <= 0 || b.SampleRate == dstRate {
		out := b.Clone()
		if dstRate > 0 {
			out.SampleRate = dstRate
		}
		return out
	}

	srcFrames := b.Frames()
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(b.SampleRate))
	ratio := float64(b.SampleRate) / float64(dstRate)

	planes := make([][]float64, len(b.Channels))
	for c, src := range b.Channels {
		dst := make([]float64, dstFrames)
		for i := range dst {
			srcPos := float64(i) * ratio
			srcIdx := int(srcPos)
			frac := srcPos - float64(srcIdx)

			s0 := src[srcIdx]
			s1 := s0
			if srcIdx+1 < srcFrames {
				s1 = src[srcIdx+1]
			}
			dst[i] = s0*(1-frac) + s1*frac
		}
		planes[c] = dst
	}
	return &Buffer{SampleRate: dstRate, Channels: planes}
}

// Normalize scales all channels by a single gain factor so that the overall
// RMS level matches targetDBFS. Digital silence is returned unchanged (a
// copy) since no finite gain can raise it.
func Normalize(b *Buffer, targetDBFS float64) *Buffer {
	rms := RMS(b)
	if rms <= 0 {
		return b.Clone()
	}

	target := math.Pow(10, targetDBFS/20)
	gain := target / rms

	planes := make([][]float64, len(b.Channels))
	for c, src := range b.Channels {
		dst := make([]float64, len(src))
		for i, s := range src {
			dst[i] = s * gain
		}
		planes[c] = dst
	}
	return &Buffer{SampleRate: b.SampleRate, Channels: planes}
}

// TrimSilence removes leading and trailing stretches quieter than
// thresholdDB, but only when the stretch is at least minRunMs long, and
// always keeps padMs of the silence as padding. Interior silence is left
// alone — pauses between words carry prosodic information the feature
// extractor uses.
func TrimSilence(b *Buffer, thresholdDB float64, minRunMs, padMs int) *Buffer {
	frames := b.Frames()
	if frames == 0 || b.SampleRate <= 0 {
		return b.Clone()
	}

	threshold := math.Pow(10, thresholdDB/20)
	minRun := b.SampleRate * minRunMs / 1000
	pad := b.SampleRate * padMs / 1000

	// Per-frame loudness: max absolute sample across channels.
	loud := func(i int) bool {
		for _, ch := range b.Channels {
			if math.Abs(ch[i]) >= threshold {
				return true
			}
		}
		return false
	}

	start := 0
	for start < frames && !loud(start) {
		start++
	}
	end := frames
	for end > start && !loud(end-1) {
		end--
	}

	// All silence: keep nothing but an empty (still valid) buffer.
	if start >= end {
		planes := make([][]float64, len(b.Channels))
		for c := range planes {
			planes[c] = []float64{}
		}
		return &Buffer{SampleRate: b.SampleRate, Channels: planes}
	}

	// Only trim runs long enough to be deliberate silence, and keep padding.
	if start < minRun {
		start = 0
	} else {
		start -= pad
	}
	if frames-end < minRun {
		end = frames
	} else {
		end += pad
		if end > frames {
			end = frames
		}
	}

	planes := make([][]float64, len(b.Channels))
	for c, ch := range b.Channels {
		dst := make([]float64, end-start)
		copy(dst, ch[start:end])
		planes[c] = dst
	}
	return &Buffer{SampleRate: b.SampleRate, Channels: planes}
}

// RMS returns the root-mean-square level across all channels, in linear
// full-scale units (0–1 for in-range audio). Returns 0 for empty buffers.
func RMS(b *Buffer) float64 {
	var sum float64
	var n int
	for _, ch := range b.Channels {
		for _, s := range ch {
			sum += s * s
		}
		n += len(ch)
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}
