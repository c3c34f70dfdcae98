// Package history defines the session record and the Store interface over
// persisted analysis sessions.
//
// Every successful analysis produces one Session. The postgres subpackage
// is the production backend; mock provides an in-memory store for tests.
package history

import (
	"context"
	"errors"
	"time"
)

// DefaultUserID is recorded when an upload carries no user identity.
const DefaultUserID = "anonymous"

// ErrNotFound is returned by lookups that match no session.
var ErrNotFound = errors.New("history: session not found")

// Session is one stored analysis result.
type Session struct {
	// ID is assigned by the store on insert.
	ID int64

	// UserID identifies the uploader; DefaultUserID when anonymous.
	UserID string

	// RecordedAt is when the session was stored (UTC).
	RecordedAt time.Time

	// StressScore is the combined score in [0,100], one-decimal precision.
	StressScore float64

	// Emotion is the classified label (see internal/emotion).
	Emotion string

	// Transcript is the recognised text. May be empty.
	Transcript string

	// Features holds the normalised acoustic profile.
	Features map[string]float64

	// SuggestedAction is the activity key recommended for this score
	// (e.g., "breathing", "play_lofi").
	SuggestedAction string

	// Embedding is the transcript's vector, nil when no embeddings
	// provider is configured or the transcript was empty.
	Embedding []float32
}

// TrendPoint is one day of aggregated stress for a user.
type TrendPoint struct {
	Day       time.Time
	AvgStress float64
	Sessions  int
}

// Store persists and queries sessions.
type Store interface {
	// Insert stores the session and fills in ID and RecordedAt.
	Insert(ctx context.Context, s *Session) error

	// Recent returns the user's sessions, newest first, up to limit.
	// An empty userID returns sessions for all users.
	Recent(ctx context.Context, userID string, limit int) ([]Session, error)

	// SearchTranscripts runs a full-text search over transcripts.
	SearchTranscripts(ctx context.Context, query string, limit int) ([]Session, error)

	// Similar returns the sessions whose transcript embeddings are closest
	// to the given vector (cosine distance), best match first.
	Similar(ctx context.Context, embedding []float32, limit int) ([]Session, error)

	// StressTrend returns per-day average stress for the user over the
	// last `days` days, oldest day first.
	StressTrend(ctx context.Context, userID string, days int) ([]TrendPoint, error)
}
