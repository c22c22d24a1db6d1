package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Run is one terminal transcription outcome. No audio and no transcript text is stored.
type Run struct {
	ID                    int64     `json:"id"`
	RunID                 string    `json:"run_id"`
	Filename              string    `json:"filename"`
	UploadBytes           int64     `json:"upload_bytes"`
	Classification        string    `json:"classification"`
	RemoveNoiseRequested  bool      `json:"remove_noise_requested"`
	ForceEnglishRequested bool      `json:"force_english_requested"`
	NoiseRemoved          bool      `json:"noise_removed"`
	ForcedEnglish         bool      `json:"forced_english"`
	Strategy              string    `json:"strategy"`
	Converted             bool      `json:"converted"`
	Recompressed          bool      `json:"recompressed"`
	Retried               bool      `json:"retried"`
	State                 string    `json:"state"`
	DurationMs            int64     `json:"duration_ms"`
	Error                 string    `json:"error,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
}

// DB is the subset of pgxpool.Pool used here.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var _ DB = (*pgxpool.Pool)(nil)

type Service struct {
	db DB
}

func NewService(db DB) *Service {
	return &Service{db: db}
}

func (s *Service) RecordRun(ctx context.Context, r Run) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO transcription_runs (run_id, filename, upload_bytes, classification,
		   remove_noise_requested, force_english_requested, noise_removed, forced_english,
		   strategy, converted, recompressed, retried, state, duration_ms, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NULLIF($15, ''))`,
		r.RunID, r.Filename, r.UploadBytes, r.Classification,
		r.RemoveNoiseRequested, r.ForceEnglishRequested, r.NoiseRemoved, r.ForcedEnglish,
		r.Strategy, r.Converted, r.Recompressed, r.Retried, r.State, r.DurationMs, r.Error,
	)
	if err != nil {
		return fmt.Errorf("insert transcription run: %w", err)
	}
	return nil
}

type RunQuery struct {
	State     string
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

// BuildRunQuery returns the SQL and arguments for ListRuns.
func BuildRunQuery(q RunQuery) (string, []any) {
	if q.Limit <= 0 || q.Limit > 500 {
		q.Limit = 50
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	query := `SELECT id, run_id, filename, upload_bytes, classification,
			         remove_noise_requested, force_english_requested, noise_removed, forced_english,
			         strategy, converted, recompressed, retried, state, duration_ms,
			         COALESCE(error, ''), created_at
			  FROM transcription_runs WHERE 1=1`
	var args []any
	argIdx := 1

	if q.State != "" {
		query += fmt.Sprintf(" AND state = $%d", argIdx)
		args = append(args, q.State)
		argIdx++
	}
	if q.StartDate != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *q.StartDate)
		argIdx++
	}
	if q.EndDate != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *q.EndDate)
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, q.Limit, q.Offset)
	return query, args
}

func (s *Service) ListRuns(ctx context.Context, q RunQuery) ([]Run, error) {
	query, args := BuildRunQuery(q)
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transcription runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.RunID, &r.Filename, &r.UploadBytes, &r.Classification,
			&r.RemoveNoiseRequested, &r.ForceEnglishRequested, &r.NoiseRemoved, &r.ForcedEnglish,
			&r.Strategy, &r.Converted, &r.Recompressed, &r.Retried, &r.State, &r.DurationMs,
			&r.Error, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transcription run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcription runs: %w", err)
	}
	return runs, nil
}
