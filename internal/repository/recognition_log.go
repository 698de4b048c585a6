package repository

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/studentid/internal/domain"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 200
)

type RecognitionLogRepository struct {
	pool PgxPool
}

func NewRecognitionLogRepository(pool PgxPool) *RecognitionLogRepository {
	return &RecognitionLogRepository{pool: pool}
}

// Create appends a recognition record; records are never updated
func (r *RecognitionLogRepository) Create(ctx context.Context, log *domain.RecognitionLog) error {
	query := `
		INSERT INTO recognition_logs (
			id, student_id, outcome, success, confidence, processing_time_ms,
			timed_out, candidates, skipped, error_code, image_ref, client_ip, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		RETURNING created_at
	`

	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}

	err := r.pool.QueryRow(ctx, query,
		log.ID,
		log.StudentID,
		string(log.Outcome),
		log.Success,
		log.Confidence,
		log.ProcessingTimeMs,
		log.TimedOut,
		log.Candidates,
		log.Skipped,
		log.ErrorCode,
		log.ImageRef,
		log.ClientIP,
	).Scan(&log.CreatedAt)

	if err != nil {
		return fmt.Errorf("create recognition log: %w", err)
	}

	return nil
}

// List returns records newest first
func (r *RecognitionLogRepository) List(ctx context.Context, filter domain.RecognitionLogFilter) ([]domain.RecognitionLog, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLogLimit
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}

	builder := psql.Select(
		"id", "student_id", "outcome", "success", "confidence", "processing_time_ms",
		"timed_out", "candidates", "skipped", "error_code", "image_ref", "client_ip", "created_at",
	).From("recognition_logs")

	if filter.Success != nil {
		builder = builder.Where(sq.Eq{"success": *filter.Success})
	}
	if filter.Outcome != nil {
		builder = builder.Where(sq.Eq{"outcome": string(*filter.Outcome)})
	}
	if filter.StudentID != nil {
		builder = builder.Where(sq.Eq{"student_id": *filter.StudentID})
	}
	if filter.Since != nil {
		builder = builder.Where(sq.GtOrEq{"created_at": *filter.Since})
	}

	builder = builder.OrderBy("created_at DESC").Limit(uint64(limit))
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("list recognition logs: build query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list recognition logs: %w", err)
	}
	defer rows.Close()

	logs := make([]domain.RecognitionLog, 0)
	for rows.Next() {
		var l domain.RecognitionLog
		var outcome string
		if err := rows.Scan(
			&l.ID,
			&l.StudentID,
			&outcome,
			&l.Success,
			&l.Confidence,
			&l.ProcessingTimeMs,
			&l.TimedOut,
			&l.Candidates,
			&l.Skipped,
			&l.ErrorCode,
			&l.ImageRef,
			&l.ClientIP,
			&l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan recognition log: %w", err)
		}
		l.Outcome = domain.Outcome(outcome)
		logs = append(logs, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recognition logs: %w", err)
	}

	return logs, nil
}

// LogStats aggregates the audit trail for the dashboard
type LogStats struct {
	VerifiedSince     int
	FailedAttempts    int
	AvgProcessingTime float64 // milliseconds
}

// Stats counts successes since the given instant, failures overall and the
// mean processing time over every record that has one.
func (r *RecognitionLogRepository) Stats(ctx context.Context, since time.Time) (*LogStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE success AND created_at >= $1),
			COUNT(*) FILTER (WHERE NOT success),
			COALESCE(AVG(processing_time_ms), 0)::float8
		FROM recognition_logs
	`

	var stats LogStats
	err := r.pool.QueryRow(ctx, query, since).Scan(
		&stats.VerifiedSince,
		&stats.FailedAttempts,
		&stats.AvgProcessingTime,
	)
	if err != nil {
		return nil, fmt.Errorf("recognition log stats: %w", err)
	}

	return &stats, nil
}
