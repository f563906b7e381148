package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"editserver/internal/domain"
	"editserver/internal/infra"
	"editserver/internal/sqlinline"
)

// FeedbackRepository persists one immutable feedback row per completed edit.
type FeedbackRepository struct {
	db infra.SQLExecutor
}

func NewFeedbackRepository(db infra.SQLExecutor) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

// Create inserts feedback for an edit. A second submission for the same
// edit returns domain.ErrFeedbackExists.
func (r *FeedbackRepository) Create(ctx context.Context, fb *domain.Feedback) error {
	tag, err := r.db.Exec(ctx, sqlinline.QInsertFeedback,
		fb.EditUUID,
		fb.Rating,
		nullableString(fb.Text),
		nullableString(fb.UserIP),
		nullableString(fb.Country),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrFeedbackExists
	}
	return nil
}

// GetByEditUUID fetches the feedback attached to an edit, if any.
func (r *FeedbackRepository) GetByEditUUID(ctx context.Context, editUUID string) (*domain.Feedback, error) {
	row := r.db.QueryRow(ctx, sqlinline.QGetFeedback, editUUID)
	var fb domain.Feedback
	if err := row.Scan(
		&fb.EditUUID,
		&fb.Rating,
		&fb.Text,
		&fb.UserIP,
		&fb.Country,
		&fb.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &fb, nil
}
