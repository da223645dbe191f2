package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ragdesk/ragdesk/internal/domain"
)

type FeedbackRepository struct {
	db dbtx
}

func NewFeedbackRepository(pool *pgxpool.Pool) *FeedbackRepository {
	return &FeedbackRepository{db: pool}
}

func (r *FeedbackRepository) Create(ctx context.Context, f *domain.Feedback) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO feedback
			(id, user_id, department, original_question, original_answer, corrected_answer,
			 admin_notes, status, created_at, reviewed_at, reviewed_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		f.ID, f.UserID, f.Department, f.OriginalQuestion, f.OriginalAnswer, f.CorrectedAnswer,
		nullableString(f.AdminNotes), f.Status, f.CreatedAt, f.ReviewedAt, nullableString(f.ReviewedBy),
	)
	return err
}

func (r *FeedbackRepository) GetByID(ctx context.Context, id string) (*domain.Feedback, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, user_id, department, original_question, original_answer, corrected_answer,
		        admin_notes, status, created_at, reviewed_at, reviewed_by
		 FROM feedback WHERE id = $1`,
		id,
	)
	f, err := scanFeedbackRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrFeedbackNotFound
		}
		return nil, err
	}
	return f, nil
}

// UpdateStatus moves a feedback entry through its review lifecycle and
// stamps the reviewer.
func (r *FeedbackRepository) UpdateStatus(ctx context.Context, id string, status domain.FeedbackStatus, reviewedBy, adminNotes string) error {
	if err := status.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	tag, err := r.db.Exec(ctx,
		`UPDATE feedback
		 SET status = $1, reviewed_at = $2, reviewed_by = $3, admin_notes = $4
		 WHERE id = $5`,
		status, now, nullableString(reviewedBy), nullableString(adminNotes), id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrFeedbackNotFound
	}
	return nil
}

func (r *FeedbackRepository) ListApproved(ctx context.Context) ([]*domain.Feedback, error) {
	return r.listByStatus(ctx, domain.FeedbackStatusApproved)
}

func (r *FeedbackRepository) ListPending(ctx context.Context) ([]*domain.Feedback, error) {
	return r.listByStatus(ctx, domain.FeedbackStatusPending)
}

func (r *FeedbackRepository) listByStatus(ctx context.Context, status domain.FeedbackStatus) ([]*domain.Feedback, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, department, original_question, original_answer, corrected_answer,
		        admin_notes, status, created_at, reviewed_at, reviewed_by
		 FROM feedback
		 WHERE status = $1
		 ORDER BY created_at ASC`,
		status,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domain.Feedback
	for rows.Next() {
		f, err := scanFeedbackRow(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, f)
	}
	return results, rows.Err()
}

func scanFeedbackRow(row pgx.Row) (*domain.Feedback, error) {
	var f domain.Feedback
	var adminNotes, reviewedBy pgtype.Text
	err := row.Scan(
		&f.ID, &f.UserID, &f.Department, &f.OriginalQuestion, &f.OriginalAnswer,
		&f.CorrectedAnswer, &adminNotes, &f.Status, &f.CreatedAt, &f.ReviewedAt, &reviewedBy,
	)
	if err != nil {
		return nil, err
	}
	if adminNotes.Valid {
		f.AdminNotes = adminNotes.String
	}
	if reviewedBy.Valid {
		f.ReviewedBy = reviewedBy.String
	}
	return &f, nil
}
