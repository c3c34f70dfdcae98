// Package postgres provides the PostgreSQL-backed history.Store.
//
// The pgvector extension must be available in the target database;
// [Migrate] installs it automatically via CREATE EXTENSION IF NOT EXISTS
// and runs on every NewStore call (all DDL is idempotent).
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, 1536)
//	if err != nil { … }
//	defer store.Close()
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/zenzone/pkg/history"
)

// Compile-time assertion that Store implements history.Store.
var _ history.Store = (*Store)(nil)

const ddlSessions = `
CREATE TABLE IF NOT EXISTS sessions (
    id               BIGSERIAL         PRIMARY KEY,
    user_id          TEXT              NOT NULL DEFAULT 'anonymous',
    recorded_at      TIMESTAMPTZ       NOT NULL DEFAULT now(),
    stress_score     DOUBLE PRECISION  NOT NULL,
    emotion          TEXT              NOT NULL,
    transcript       TEXT              NOT NULL DEFAULT '',
    features         JSONB             NOT NULL DEFAULT '{}',
    suggested_action TEXT              NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_sessions_user_id
    ON sessions (user_id);

CREATE INDEX IF NOT EXISTS idx_sessions_recorded_at
    ON sessions (recorded_at);

CREATE INDEX IF NOT EXISTS idx_sessions_fts
    ON sessions USING GIN (to_tsvector('english', transcript));
`

// ddlEmbedding returns the embedding column and index DDL with the vector
// dimension substituted. The dimension is baked into the column type at
// schema creation time.
func ddlEmbedding(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

ALTER TABLE sessions ADD COLUMN IF NOT EXISTS embedding vector(%d);

CREATE INDEX IF NOT EXISTS idx_sessions_embedding
    ON sessions USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures all required tables, indexes, and extensions
// exist. Idempotent and safe to call on every application start.
//
// embeddingDimensions must match the configured embedding model (e.g., 1536
// for OpenAI text-embedding-3-small, 768 for nomic-embed-text). Changing it
// after the first migration requires a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	for _, stmt := range []string{ddlSessions, ddlEmbedding(embeddingDimensions)} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}

// Store is the PostgreSQL-backed session history. All operations are safe
// for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore establishes a connection pool to the database at dsn, registers
// pgvector types on every connection, and runs [Migrate].
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so vector columns can
	// be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies the database is reachable. Used by readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres store: ping: %w", err)
	}
	return nil
}

// Insert implements history.Store.
func (s *Store) Insert(ctx context.Context, sess *history.Session) error {
	const q = `
		INSERT INTO sessions
		    (user_id, stress_score, emotion, transcript, features, suggested_action, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, recorded_at`

	userID := sess.UserID
	if userID == "" {
		userID = history.DefaultUserID
	}

	var embedding any
	if sess.Embedding != nil {
		embedding = pgvector.NewVector(sess.Embedding)
	}

	row := s.pool.QueryRow(ctx, q,
		userID,
		sess.StressScore,
		sess.Emotion,
		sess.Transcript,
		sess.Features,
		sess.SuggestedAction,
		embedding,
	)
	if err := row.Scan(&sess.ID, &sess.RecordedAt); err != nil {
		return fmt.Errorf("postgres store: insert session: %w", err)
	}
	sess.UserID = userID
	return nil
}

const selectColumns = `id, user_id, recorded_at, stress_score, emotion, transcript, features, suggested_action, embedding`

// Recent implements history.Store.
func (s *Store) Recent(ctx context.Context, userID string, limit int) ([]history.Session, error) {
	var (
		q    string
		args []any
	)
	if userID == "" {
		q = `SELECT ` + selectColumns + ` FROM sessions ORDER BY recorded_at DESC LIMIT $1`
		args = []any{limit}
	} else {
		q = `SELECT ` + selectColumns + ` FROM sessions WHERE user_id = $1 ORDER BY recorded_at DESC LIMIT $2`
		args = []any{userID, limit}
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store: recent: %w", err)
	}
	sessions, err := pgx.CollectRows(rows, scanSession)
	if err != nil {
		return nil, fmt.Errorf("postgres store: recent: %w", err)
	}
	return sessions, nil
}

// SearchTranscripts implements history.Store using Postgres full-text
// search over the transcript column.
func (s *Store) SearchTranscripts(ctx context.Context, query string, limit int) ([]history.Session, error) {
	const q = `
		SELECT ` + selectColumns + `
		FROM   sessions
		WHERE  to_tsvector('english', transcript) @@ plainto_tsquery('english', $1)
		ORDER  BY recorded_at DESC
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres store: search transcripts: %w", err)
	}
	sessions, err := pgx.CollectRows(rows, scanSession)
	if err != nil {
		return nil, fmt.Errorf("postgres store: search transcripts: %w", err)
	}
	return sessions, nil
}

// Similar implements history.Store using cosine distance over the pgvector
// HNSW index. Sessions without an embedding are excluded.
func (s *Store) Similar(ctx context.Context, embedding []float32, limit int) ([]history.Session, error) {
	const q = `
		SELECT ` + selectColumns + `
		FROM   sessions
		WHERE  embedding IS NOT NULL
		ORDER  BY embedding <=> $1
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres store: similar: %w", err)
	}
	sessions, err := pgx.CollectRows(rows, scanSession)
	if err != nil {
		return nil, fmt.Errorf("postgres store: similar: %w", err)
	}
	return sessions, nil
}

// StressTrend implements history.Store: daily stress averages for the user
// over the last `days` days, oldest day first.
func (s *Store) StressTrend(ctx context.Context, userID string, days int) ([]history.TrendPoint, error) {
	const q = `
		SELECT date_trunc('day', recorded_at) AS day,
		       avg(stress_score)              AS avg_stress,
		       count(*)                       AS sessions
		FROM   sessions
		WHERE  user_id = $1
		  AND  recorded_at > now() - make_interval(days => $2)
		GROUP  BY day
		ORDER  BY day`

	rows, err := s.pool.Query(ctx, q, userID, days)
	if err != nil {
		return nil, fmt.Errorf("postgres store: stress trend: %w", err)
	}
	points, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (history.TrendPoint, error) {
		var p history.TrendPoint
		err := row.Scan(&p.Day, &p.AvgStress, &p.Sessions)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: stress trend: %w", err)
	}
	return points, nil
}

// scanSession maps one row onto a history.Session, tolerating a NULL
// embedding.
func scanSession(row pgx.CollectableRow) (history.Session, error) {
	var (
		sess history.Session
		vec  *pgvector.Vector
	)
	err := row.Scan(
		&sess.ID,
		&sess.UserID,
		&sess.RecordedAt,
		&sess.StressScore,
		&sess.Emotion,
		&sess.Transcript,
		&sess.Features,
		&sess.SuggestedAction,
		&vec,
	)
	if err != nil {
		return history.Session{}, err
	}
	if vec != nil {
		sess.Embedding = vec.Slice()
	}
	return sess, nil
}
