package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/ispitch/pkg/analysis"
)

// Schema is the DDL for the analyses table. [PostgresStore.Migrate] applies
// it; it is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS analyses (
    id              TEXT PRIMARY KEY,
    user_id         TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL,
    filename        TEXT NOT NULL DEFAULT '',
    score           INTEGER,
    transcription   JSONB,
    speech_analysis JSONB,
    audio_analysis  JSONB,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_analyses_user_created ON analyses(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_analyses_status ON analyses(status);
`

// DB is the subset of pgx used by [PostgresStore]. *pgxpool.Pool and
// *pgx.Conn both satisfy it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by PostgreSQL.
type PostgresStore struct {
	db   DB
	ping func(context.Context) error
	now  func() time.Time
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps db. The caller runs [PostgresStore.Migrate] before
// the first query.
func NewPostgresStore(db DB) *PostgresStore {
	s := &PostgresStore{db: db, now: time.Now}
	if p, ok := db.(interface{ Ping(context.Context) error }); ok {
		s.ping = p.Ping
	}
	return s
}

// Connect opens a pool for dsn, checks it and applies the schema.
func Connect(ctx context.Context, dsn string) (*PostgresStore, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("store: ping: %w", err)
	}
	s := NewPostgresStore(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool, nil
}

// Migrate executes [Schema].
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Ping checks the connection when the underlying DB supports it.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

const selectAnalysis = `
		SELECT id, user_id, status, filename, score,
		       transcription, speech_analysis, audio_analysis,
		       created_at, updated_at
		FROM analyses`

// Save upserts a. created_at is only written on insert. Rows that already
// hold a terminal status are left alone and Save returns [ErrFinalized].
func (s *PostgresStore) Save(ctx context.Context, a *analysis.Analysis) (*analysis.Analysis, error) {
	tr, err := marshalOptional(a.Transcription)
	if err != nil {
		return nil, fmt.Errorf("store: marshal transcription: %w", err)
	}
	speech, err := marshalOptional(a.SpeechAnalysis)
	if err != nil {
		return nil, fmt.Errorf("store: marshal speech analysis: %w", err)
	}
	audio, err := marshalOptional(a.AudioAnalysis)
	if err != nil {
		return nil, fmt.Errorf("store: marshal audio analysis: %w", err)
	}

	const query = `
		INSERT INTO analyses (
			id, user_id, status, filename, score,
			transcription, speech_analysis, audio_analysis,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			status = EXCLUDED.status,
			filename = EXCLUDED.filename,
			score = EXCLUDED.score,
			transcription = EXCLUDED.transcription,
			speech_analysis = EXCLUDED.speech_analysis,
			audio_analysis = EXCLUDED.audio_analysis,
			updated_at = EXCLUDED.updated_at
		WHERE analyses.status NOT IN ('COMPLETED', 'FAILED')
		RETURNING created_at, updated_at`

	createdAt, updatedAt := a.CreatedAt, a.UpdatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	out := *a
	err = s.db.QueryRow(ctx, query,
		a.ID, a.UserID, string(a.Status), a.Filename, a.Score,
		tr, speech, audio,
		createdAt, updatedAt,
	).Scan(&out.CreatedAt, &out.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("store: save %q: %w", a.ID, ErrFinalized)
	}
	if err != nil {
		return nil, fmt.Errorf("store: save %q: %w", a.ID, err)
	}
	return &out, nil
}

// FindByID returns the analysis with id or [ErrNotFound].
func (s *PostgresStore) FindByID(ctx context.Context, id string) (*analysis.Analysis, error) {
	a, err := scanAnalysis(s.db.QueryRow(ctx, selectAnalysis+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: find %q: %w", id, err)
	}
	return a, nil
}

// summaryColumns projects the list view straight out of the JSONB columns.
const summaryColumns = `
		SELECT id, filename, created_at, status, score,
		       COALESCE((speech_analysis->'fillerwordsAnalysis'->>'total')::int, 0),
		       COALESCE((audio_analysis->>'speechRate')::float8, 0),
		       COALESCE((speech_analysis->'silenceAnalysis'->>'pauses')::int, 0)
		FROM analyses`

// ListByUser implements [Store].
func (s *PostgresStore) ListByUser(ctx context.Context, userID string, page, pageSize int) ([]analysis.Summary, int, error) {
	var total int
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM analyses WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count analyses: %w", err)
	}

	rows, err := s.db.Query(ctx, summaryColumns+`
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`,
		userID, pageSize, offset(page, pageSize))
	if err != nil {
		return nil, 0, fmt.Errorf("store: list analyses: %w", err)
	}
	defer rows.Close()

	out := []analysis.Summary{}
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("store: list scan: %w", err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("store: list analyses: %w", err)
	}
	return out, total, nil
}

// FindRecentByUser implements [Store].
func (s *PostgresStore) FindRecentByUser(ctx context.Context, userID string) (*analysis.Summary, error) {
	sum, err := scanSummary(s.db.QueryRow(ctx, summaryColumns+`
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT 1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: find recent: %w", err)
	}
	return &sum, nil
}

// Stats implements [Store]. Aggregation happens in Go so bucket naming is
// shared with [MemStore].
func (s *PostgresStore) Stats(ctx context.Context, userID string, r analysis.TimeRange) (analysis.Stats, error) {
	query := `
		SELECT created_at,
		       COALESCE((speech_analysis->'fillerwordsAnalysis'->>'total')::int, 0),
		       COALESCE((audio_analysis->>'duration')::float8, 0)
		FROM analyses
		WHERE user_id = $1 AND status = $2`
	args := []any{userID, string(analysis.StatusCompleted)}
	if since, ok := r.Since(s.now()); ok {
		query += ` AND created_at >= $3`
		args = append(args, since)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return analysis.Stats{}, fmt.Errorf("store: stats: %w", err)
	}
	defer rows.Close()

	var items []analysis.StatsInput
	for rows.Next() {
		var in analysis.StatsInput
		if err := rows.Scan(&in.CreatedAt, &in.FillerWords, &in.Duration); err != nil {
			return analysis.Stats{}, fmt.Errorf("store: stats scan: %w", err)
		}
		items = append(items, in)
	}
	if err := rows.Err(); err != nil {
		return analysis.Stats{}, fmt.Errorf("store: stats: %w", err)
	}
	return analysis.BuildStats(r, items), nil
}

func scanAnalysis(row pgx.Row) (*analysis.Analysis, error) {
	var (
		a                 analysis.Analysis
		status            string
		tr, speech, audio []byte
	)
	if err := row.Scan(
		&a.ID, &a.UserID, &status, &a.Filename, &a.Score,
		&tr, &speech, &audio,
		&a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a.Status = analysis.Status(status)

	var err error
	if a.Transcription, err = unmarshalOptional[analysis.Transcription](tr); err != nil {
		return nil, fmt.Errorf("store: unmarshal transcription: %w", err)
	}
	if a.SpeechAnalysis, err = unmarshalOptional[analysis.SpeechAnalysis](speech); err != nil {
		return nil, fmt.Errorf("store: unmarshal speech analysis: %w", err)
	}
	if a.AudioAnalysis, err = unmarshalOptional[analysis.AudioAnalysis](audio); err != nil {
		return nil, fmt.Errorf("store: unmarshal audio analysis: %w", err)
	}
	return &a, nil
}

func scanSummary(row pgx.Row) (analysis.Summary, error) {
	var (
		sum    analysis.Summary
		status string
	)
	err := row.Scan(
		&sum.ID, &sum.Filename, &sum.CreatedAt, &status, &sum.Score,
		&sum.FillerWordsCount, &sum.SpeechRate, &sum.PausesCount,
	)
	sum.Status = analysis.Status(status)
	return sum, err
}

// marshalOptional encodes v as JSON, or returns nil (SQL NULL) when v is
// nil so absent sub-analyses stay absent.
func marshalOptional[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalOptional[T any](data []byte) (*T, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
