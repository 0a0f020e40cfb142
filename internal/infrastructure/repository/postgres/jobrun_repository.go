package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/oddsgrid/sportpipe/internal/domain/jobrun"
)

type jobRunTableModel struct {
	ID          string         `db:"id"`
	JobName     string         `db:"job_name"`
	Status      string         `db:"status"`
	StartedAt   time.Time      `db:"started_at"`
	FinishedAt  *time.Time     `db:"finished_at"`
	RecordsSeen int            `db:"records_seen"`
	Matched     int            `db:"matched"`
	Created     int            `db:"created"`
	Queued      int            `db:"queued"`
	Failed      int            `db:"failed"`
	Error       sql.NullString `db:"error"`
}

func (m jobRunTableModel) toDomain() jobrun.Run {
	run := jobrun.Run{
		ID:          m.ID,
		JobName:     m.JobName,
		Status:      jobrun.Status(m.Status),
		StartedAt:   m.StartedAt,
		RecordsSeen: m.RecordsSeen,
		Matched:     m.Matched,
		Created:     m.Created,
		Queued:      m.Queued,
		Failed:      m.Failed,
		Error:       m.Error.String,
	}
	if m.FinishedAt != nil {
		run.FinishedAt = *m.FinishedAt
	}
	return run
}

type JobRunRepository struct {
	db *sqlx.DB
}

func NewJobRunRepository(db *sqlx.DB) *JobRunRepository {
	return &JobRunRepository{db: db}
}

func (r *JobRunRepository) Create(ctx context.Context, run jobrun.Run) error {
	if err := run.Validate(); err != nil {
		return err
	}

	const query = `
		INSERT INTO job_runs (id, job_name, status, started_at, records_seen, matched, created, queued, failed, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.ExecContext(ctx, query,
		run.ID, run.JobName, string(run.Status), run.StartedAt,
		run.RecordsSeen, run.Matched, run.Created, run.Queued, run.Failed,
		nullableString(run.Error),
	)
	if err != nil {
		return fmt.Errorf("insert job run: %w", err)
	}
	return nil
}

func (r *JobRunRepository) Update(ctx context.Context, run jobrun.Run) error {
	if err := run.Validate(); err != nil {
		return err
	}

	const query = `
		UPDATE job_runs
		SET status = $1, finished_at = $2, records_seen = $3,
		    matched = $4, created = $5, queued = $6, failed = $7, error = $8
		WHERE id = $9`

	res, err := r.db.ExecContext(ctx, query,
		string(run.Status), nullableTime(run.FinishedAt),
		run.RecordsSeen, run.Matched, run.Created, run.Queued, run.Failed,
		nullableString(run.Error), run.ID,
	)
	if err != nil {
		return fmt.Errorf("update job run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job run rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: id=%s", jobrun.ErrNotFound, run.ID)
	}
	return nil
}

func (r *JobRunRepository) ListByJob(ctx context.Context, jobName string, limit int) ([]jobrun.Run, error) {
	query := `
		SELECT id, job_name, status, started_at, finished_at, records_seen, matched, created, queued, failed, error
		FROM job_runs
		WHERE job_name = $1
		ORDER BY started_at DESC`
	args := []any{jobName}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	var rows []jobRunTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select job runs: %w", err)
	}

	out := make([]jobrun.Run, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
