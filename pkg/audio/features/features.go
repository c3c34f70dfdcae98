// Package features extracts the acoustic measurements that feed voice
// stress scoring: energy, spectral shape, tempo, and pitch statistics over
// a short-time analysis grid.
//
// Extraction expects preprocessed mono audio (see audio.Preprocess); stereo
// input is downmixed first. All functions are pure and never fail —
// degenerate input yields a zero Profile whose normalised scores default to
// a neutral 50.
package features

import (
	"math"
	"math/cmplx"

	"github.com/MrWong99/zenzone/pkg/audio"
	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	frameSize = 2048
	hopSize   = 512

	// Tempo search window in BPM.
	tempoMin = 30
	tempoMax = 240

	// Pitch search band in Hz and the autocorrelation peak quality needed to
	// call a frame voiced.
	pitchMin        = 50
	pitchMax        = 400
	voicedThreshold = 0.3

	// Frames quieter than this RMS are skipped for pitch tracking.
	frameEnergyFloor = 1e-4

	rolloffFraction = 0.85
)

// Profile holds the raw (un-normalised) acoustic measurements of one
// recording.
type Profile struct {
	RMSMean      float64 // mean per-frame RMS, linear full scale
	RMSStd       float64
	CentroidMean float64 // Hz
	CentroidStd  float64
	Rolloff      float64 // Hz below which 85% of spectral energy lies
	Tempo        float64 // BPM estimate, 0 when undetectable
	PitchMean    float64 // Hz over voiced frames, 0 when none
	PitchStd     float64
	ZCR          float64 // zero crossings per sample
	Frames       int     // analysis frames measured
}

// Scores are the three normalised stress inputs, each clamped to [0,100].
type Scores struct {
	RMS      float64
	Centroid float64
	Tempo    float64
}

// Extract measures the profile of a buffer. Multi-channel input is
// downmixed to mono first. Input shorter than one analysis frame produces
// a zero Profile.
func Extract(b *audio.Buffer) Profile {
	mono := b
	if len(b.Channels) != 1 {
		mono = audio.Downmix(b)
	}
	samples := []float64{}
	if len(mono.Channels) == 1 {
		samples = mono.Channels[0]
	}
	if len(samples) < frameSize || mono.SampleRate <= 0 {
		return Profile{}
	}

	fft := fourier.NewFFT(frameSize)
	window := hann(frameSize)
	binHz := float64(mono.SampleRate) / frameSize

	var (
		rmsVals   []float64
		centroids []float64
		pitches   []float64
		rolloffs  []float64
		flux      []float64
		prevMag   []float64
		frame     = make([]float64, frameSize)
	)

	for off := 0; off+frameSize <= len(samples); off += hopSize {
		var energy float64
		for i := 0; i < frameSize; i++ {
			s := samples[off+i]
			energy += s * s
			frame[i] = s * window[i]
		}
		rms := math.Sqrt(energy / frameSize)
		rmsVals = append(rmsVals, rms)

		coeffs := fft.Coefficients(nil, frame)
		mag := make([]float64, len(coeffs))
		var magSum, weighted, energySum float64
		for k, c := range coeffs {
			m := cmplx.Abs(c)
			mag[k] = m
			magSum += m
			weighted += float64(k) * binHz * m
			energySum += m * m
		}

		if magSum > 0 {
			centroids = append(centroids, weighted/magSum)
		}
		if energySum > 0 {
			rolloffs = append(rolloffs, rolloffBin(mag, energySum)*binHz)
		}

		// Half-wave rectified spectral flux drives onset detection.
		if prevMag != nil {
			var f float64
			for k := range mag {
				if d := mag[k] - prevMag[k]; d > 0 {
					f += d
				}
			}
			flux = append(flux, f)
		}
		prevMag = mag

		if rms >= frameEnergyFloor {
			if f0 := framePitch(samples[off:off+frameSize], mono.SampleRate); f0 > 0 {
				pitches = append(pitches, f0)
			}
		}
	}

	p := Profile{Frames: len(rmsVals)}
	p.RMSMean, p.RMSStd = meanStd(rmsVals)
	p.CentroidMean, p.CentroidStd = meanStd(centroids)
	p.Rolloff, _ = meanStd(rolloffs)
	p.PitchMean, p.PitchStd = meanStd(pitches)
	p.Tempo = tempo(flux, float64(mono.SampleRate)/hopSize)
	p.ZCR = zeroCrossingRate(samples)
	return p
}

// Scores normalises the profile into the three [0,100] stress inputs. A
// profile with no measured frames scores a neutral 50 everywhere.
func (p Profile) Scores() Scores {
	if p.Frames == 0 {
		return Scores{RMS: 50, Centroid: 50, Tempo: 50}
	}
	return Scores{
		RMS:      clip100(p.RMSMean / 0.02 * 100),
		Centroid: clip100(p.CentroidMean / 2000 * 100),
		Tempo:    clip100(p.Tempo / 180 * 100),
	}
}

// Extended returns the wider voice profile exposed alongside the stress
// scores, each value clamped to [0,100]. Unmeasurable quantities default to
// a neutral 50.
func (p Profile) Extended() map[string]float64 {
	if p.Frames == 0 {
		return map[string]float64{
			"volume":              50,
			"pitch":               50,
			"speech_rate":         50,
			"voice_variability":   50,
			"energy_distribution": 50,
		}
	}
	return map[string]float64{
		"volume":              clip100(p.RMSMean * 1000),
		"pitch":               clip100(p.PitchMean / 20),
		"speech_rate":         clip100(p.Tempo / 2),
		"voice_variability":   clip100(p.PitchStd * 10),
		"energy_distribution": clip100(p.Rolloff / 100),
	}
}

// ── internals ────────────────────────────────────────────────────────────────

func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

// rolloffBin returns the (fractional-free) bin index below which
// rolloffFraction of the frame's spectral energy lies.
func rolloffBin(mag []float64, energySum float64) float64 {
	target := rolloffFraction * energySum
	var cum float64
	for k, m := range mag {
		cum += m * m
		if cum >= target {
			return float64(k)
		}
	}
	return float64(len(mag) - 1)
}

// tempo estimates BPM by autocorrelating the onset-strength envelope and
// picking the strongest lag inside the 30–240 BPM window. Returns 0 when
// the envelope is too short or flat to measure.
func tempo(flux []float64, frameRate float64) float64 {
	if len(flux) < 4 || frameRate <= 0 {
		return 0
	}

	mean, _ := meanStd(flux)
	env := make([]float64, len(flux))
	for i, f := range flux {
		env[i] = f - mean
	}

	minLag := int(60 * frameRate / tempoMax)
	maxLag := int(60 * frameRate / tempoMin)
	if minLag < 1 {
		minLag = 1
	}
	if maxLag >= len(env) {
		maxLag = len(env) - 1
	}
	if maxLag < minLag {
		return 0
	}

	bestLag, bestCorr := 0, 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		var corr float64
		for i := 0; i+lag < len(env); i++ {
			corr += env[i] * env[i+lag]
		}
		if corr > bestCorr {
			bestCorr = corr
			bestLag = lag
		}
	}
	if bestLag == 0 || bestCorr <= 0 {
		return 0
	}
	return 60 * frameRate / float64(bestLag)
}

// framePitch estimates F0 of one frame via normalised time-domain
// autocorrelation over the 50–400 Hz lag band. Returns 0 for unvoiced
// frames.
func framePitch(frame []float64, sampleRate int) float64 {
	minLag := sampleRate / pitchMax
	maxLag := sampleRate / pitchMin
	if minLag < 1 || maxLag >= len(frame) {
		return 0
	}

	var energy float64
	for _, s := range frame {
		energy += s * s
	}
	if energy == 0 {
		return 0
	}

	bestLag, bestCorr := 0, 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		var corr float64
		for i := 0; i+lag < len(frame); i++ {
			corr += frame[i] * frame[i+lag]
		}
		corr /= energy
		if corr > bestCorr {
			bestCorr = corr
			bestLag = lag
		}
	}
	if bestLag == 0 || bestCorr < voicedThreshold {
		return 0
	}
	return float64(sampleRate) / float64(bestLag)
}

func zeroCrossingRate(samples []float64) float64 {
	if len(samples) < 2 {
		return 0
	}
	var crossings int
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples))
}

func meanStd(vals []float64) (mean, std float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))
	for _, v := range vals {
		d := v - mean
		std += d * d
	}
	return mean, math.Sqrt(std / float64(len(vals)))
}

func clip100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
