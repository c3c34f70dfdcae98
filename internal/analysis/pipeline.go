// Package analysis orchestrates the per-upload scoring pipeline:
// decode → preprocess → (transcribe ∥ extract features) → emotion →
// combine → suggest → store.
//
// Transcription and feature extraction run concurrently; persistence and
// embedding failures degrade to log warnings so the caller still gets a
// report.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/zenzone/internal/emotion"
	"github.com/MrWong99/zenzone/pkg/audio"
	"github.com/MrWong99/zenzone/pkg/audio/decode"
	"github.com/MrWong99/zenzone/pkg/audio/features"
	"github.com/MrWong99/zenzone/pkg/history"
	"github.com/MrWong99/zenzone/pkg/provider/embeddings"
	"github.com/MrWong99/zenzone/pkg/provider/stt"
)

// Report is the analysis result returned to the uploader.
type Report struct {
	Text          string             `json:"text"`
	Emotion       string             `json:"emotion"`
	FriendlyLabel string             `json:"friendly_label"`
	StressScore   float64            `json:"stress_score"`
	Suggestion    Suggestion         `json:"suggestion"`
	AudioFeatures map[string]float64 `json:"audio_features"`
}

// Pipeline runs the full analysis for one uploaded recording. Safe for
// concurrent use; each Analyze call is independent.
type Pipeline struct {
	transcriber stt.Transcriber
	analyzer    emotion.Analyzer
	store       history.Store
	embedder    embeddings.Provider
}

// Option configures a Pipeline during construction.
type Option func(*Pipeline)

// WithStore enables session persistence. Without a store, reports are
// returned but not recorded.
func WithStore(s history.Store) Option {
	return func(p *Pipeline) { p.store = s }
}

// WithEmbeddings enables transcript embedding for similar-session search.
// Without a provider, sessions are stored with a NULL embedding.
func WithEmbeddings(e embeddings.Provider) Option {
	return func(p *Pipeline) { p.embedder = e }
}

// New constructs a Pipeline with the given transcriber and emotion
// analyzer. Both are required; persistence and embeddings are optional.
func New(transcriber stt.Transcriber, analyzer emotion.Analyzer, opts ...Option) *Pipeline {
	p := &Pipeline{
		transcriber: transcriber,
		analyzer:    analyzer,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Analyze decodes and scores one uploaded recording. The returned error
// wraps [decode.ErrUnknownFormat] when the payload is not a supported
// audio container, so callers can map it to an unsupported-media response.
func (p *Pipeline) Analyze(ctx context.Context, data []byte, userID string) (*Report, error) {
	buf, err := decode.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("analysis: decode: %w", err)
	}
	buf = audio.Preprocess(buf)

	var (
		tr      stt.Result
		profile features.Profile
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		result, err := p.transcriber.Transcribe(gctx, buf)
		if err != nil {
			// Silence is a valid recording; it scores as neutral downstream.
			if errors.Is(err, stt.ErrNoSpeech) {
				return nil
			}
			return fmt.Errorf("analysis: transcribe: %w", err)
		}
		tr = result
		return nil
	})
	g.Go(func() error {
		profile = features.Extract(buf)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	emo, err := p.analyzer.Analyze(ctx, tr.Text)
	if err != nil {
		return nil, fmt.Errorf("analysis: emotion: %w", err)
	}

	scores := profile.Scores()
	stress := CombineStress(emotion.StressScore(emo), VoiceInfluence(scores))
	sug := Suggest(stress)

	report := &Report{
		Text:          tr.Text,
		Emotion:       emo.Label,
		FriendlyLabel: sug.Title,
		StressScore:   stress,
		Suggestion:    sug,
		AudioFeatures: map[string]float64{
			"rms":      scores.RMS,
			"centroid": scores.Centroid,
			"tempo":    scores.Tempo,
		},
	}

	p.persist(ctx, userID, report, profile)
	return report, nil
}

// persist stores the session and its transcript embedding. Failures here
// never fail the analysis: the uploader already has a usable report.
func (p *Pipeline) persist(ctx context.Context, userID string, report *Report, profile features.Profile) {
	if p.store == nil {
		return
	}

	sess := &history.Session{
		UserID:          userID,
		StressScore:     report.StressScore,
		Emotion:         report.Emotion,
		Transcript:      report.Text,
		Features:        featureMap(report, profile),
		SuggestedAction: report.Suggestion.Activity,
	}

	if p.embedder != nil && strings.TrimSpace(report.Text) != "" {
		vec, err := p.embedder.Embed(ctx, report.Text)
		if err != nil {
			slog.Warn("transcript embedding failed, storing session without vector",
				"error", err)
		} else {
			sess.Embedding = vec
		}
	}

	if err := p.store.Insert(ctx, sess); err != nil {
		slog.Warn("session store failed, report returned without persistence",
			"error", err)
	}
}

// featureMap merges the normalized scores with the extended acoustic
// profile for the session record.
func featureMap(report *Report, profile features.Profile) map[string]float64 {
	m := make(map[string]float64, len(report.AudioFeatures)+6)
	for k, v := range report.AudioFeatures {
		m[k] = v
	}
	for k, v := range profile.Extended() {
		m[k] = v
	}
	return m
}
