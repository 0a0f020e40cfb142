package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/oddsgrid/sportpipe/internal/domain/record"
	"github.com/oddsgrid/sportpipe/internal/domain/review"
)

type reviewTableModel struct {
	ID                string         `db:"id"`
	EntityType        string         `db:"entity_type"`
	Source            string         `db:"source"`
	ExternalID        string         `db:"external_id"`
	RecordName        string         `db:"record_name"`
	RecordAttributes  string         `db:"record_attributes"`
	RecordSourceURL   sql.NullString `db:"record_source_url"`
	RecordObservedAt  time.Time      `db:"record_observed_at"`
	CandidateEntityID string         `db:"candidate_entity_id"`
	Score             float64        `db:"score"`
	Status            string         `db:"status"`
	Decision          sql.NullString `db:"decision"`
	CreatedAt         time.Time      `db:"created_at"`
	ResolvedAt        *time.Time     `db:"resolved_at"`
}

func (m reviewTableModel) toDomain() review.Item {
	item := review.Item{
		ID: m.ID,
		Record: record.NormalizedRecord{
			EntityType: record.EntityType(m.EntityType),
			Source:     m.Source,
			ExternalID: m.ExternalID,
			Name:       m.RecordName,
			Attributes: decodeAttributes(m.RecordAttributes),
			SourceURL:  m.RecordSourceURL.String,
			ObservedAt: m.RecordObservedAt,
		},
		CandidateEntityID: m.CandidateEntityID,
		Score:             m.Score,
		Status:            review.Status(m.Status),
		Decision:          review.Decision(m.Decision.String),
		CreatedAt:         m.CreatedAt,
	}
	if m.ResolvedAt != nil {
		item.ResolvedAt = *m.ResolvedAt
	}
	return item
}

type ReviewRepository struct {
	db *sqlx.DB
}

func NewReviewRepository(db *sqlx.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

func (r *ReviewRepository) Create(ctx context.Context, item review.Item) error {
	if err := item.Validate(); err != nil {
		return err
	}

	const query = `
		INSERT INTO mapping_review_queue (
			id, entity_type, source, external_id,
			record_name, record_attributes, record_source_url, record_observed_at,
			candidate_entity_id, score, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	status := item.Status
	if status == "" {
		status = review.StatusPending
	}
	createdAt := item.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, query,
		item.ID,
		string(item.Record.EntityType),
		item.Record.Source,
		item.Record.ExternalID,
		item.Record.Name,
		encodeAttributes(item.Record.Attributes),
		item.Record.SourceURL,
		item.Record.ObservedAt,
		item.CandidateEntityID,
		item.Score,
		string(status),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert review item: %w", err)
	}
	return nil
}

func (r *ReviewRepository) GetByID(ctx context.Context, itemID string) (review.Item, error) {
	const query = `
		SELECT id, entity_type, source, external_id,
		       record_name, record_attributes, record_source_url, record_observed_at,
		       candidate_entity_id, score, status, decision, created_at, resolved_at
		FROM mapping_review_queue
		WHERE id = $1`

	var row reviewTableModel
	if err := r.db.GetContext(ctx, &row, query, itemID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return review.Item{}, fmt.Errorf("%w: id=%s", review.ErrNotFound, itemID)
		}
		return review.Item{}, fmt.Errorf("select review item: %w", err)
	}

	return row.toDomain(), nil
}

func (r *ReviewRepository) ListPending(ctx context.Context, limit int) ([]review.Item, error) {
	query := `
		SELECT id, entity_type, source, external_id,
		       record_name, record_attributes, record_source_url, record_observed_at,
		       candidate_entity_id, score, status, decision, created_at, resolved_at
		FROM mapping_review_queue
		WHERE status = $1
		ORDER BY created_at`
	args := []any{string(review.StatusPending)}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	var rows []reviewTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select pending review items: %w", err)
	}

	out := make([]review.Item, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *ReviewRepository) MarkResolved(ctx context.Context, itemID string, decision review.Decision) error {
	const query = `
		UPDATE mapping_review_queue
		SET status = $1, decision = $2, resolved_at = $3
		WHERE id = $4`

	res, err := r.db.ExecContext(ctx, query, string(decision.TerminalStatus()), string(decision), time.Now(), itemID)
	if err != nil {
		return fmt.Errorf("update review item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update review item rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: id=%s", review.ErrNotFound, itemID)
	}
	return nil
}
