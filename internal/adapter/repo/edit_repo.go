package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"editserver/internal/domain"
	"editserver/internal/infra"
	"editserver/internal/sqlinline"
)

// EditRepository persists edit rows and their chain links in PostgreSQL.
type EditRepository struct {
	db infra.SQLExecutor
}

func NewEditRepository(db infra.SQLExecutor) *EditRepository {
	return &EditRepository{db: db}
}

// Create inserts a new edit in pending state and fills in the generated
// sequence id and creation timestamp.
func (r *EditRepository) Create(ctx context.Context, edit *domain.Edit) error {
	row := r.db.QueryRow(ctx, sqlinline.QInsertEdit,
		edit.UUID,
		edit.Prompt,
		nullableString(edit.EnhancedPrompt),
		edit.OriginalImageURL,
	)
	if err := row.Scan(&edit.ID, &edit.CreatedAt); err != nil {
		return err
	}
	edit.Status = domain.EditStatusPending
	edit.Stage = domain.StagePending
	return nil
}

// GetByID fetches an edit by its internal sequence id.
func (r *EditRepository) GetByID(ctx context.Context, id int64) (*domain.Edit, error) {
	return r.scanEdit(r.db.QueryRow(ctx, sqlinline.QGetEditByID, id))
}

// GetByUUID fetches an edit by its public identifier.
func (r *EditRepository) GetByUUID(ctx context.Context, uuid string) (*domain.Edit, error) {
	return r.scanEdit(r.db.QueryRow(ctx, sqlinline.QGetEditByUUID, uuid))
}

// UpdateStatus sets the coarse status axis only.
func (r *EditRepository) UpdateStatus(ctx context.Context, id int64, status domain.EditStatus) error {
	_, err := r.db.Exec(ctx, sqlinline.QUpdateEditStatus, id, status)
	return err
}

// UpdateStage sets the fine-grained stage axis only. Each call is a
// separately committed write so a polling client sees incremental progress.
func (r *EditRepository) UpdateStage(ctx context.Context, id int64, stage string) error {
	_, err := r.db.Exec(ctx, sqlinline.QUpdateEditStage, id, stage)
	return err
}

// UpdateStatusAndStage sets both axes in a single statement, used for the
// terminal failed/failed write.
func (r *EditRepository) UpdateStatusAndStage(ctx context.Context, id int64, status domain.EditStatus, stage string) error {
	_, err := r.db.Exec(ctx, sqlinline.QUpdateEditStatusAndStage, id, status, stage)
	return err
}

// SetEnhancedPrompt persists the enhancer output so a redelivered job
// reuses it instead of calling the LLM again.
func (r *EditRepository) SetEnhancedPrompt(ctx context.Context, id int64, enhanced string) error {
	_, err := r.db.Exec(ctx, sqlinline.QUpdateEditEnhancedPrompt, id, enhanced)
	return err
}

// CompleteWithResult marks the edit completed with its result URL. Status,
// result and stage land in one statement so the completed/url invariant
// cannot be observed half-written.
func (r *EditRepository) CompleteWithResult(ctx context.Context, id int64, editedImageURL string) error {
	_, err := r.db.Exec(ctx, sqlinline.QCompleteEditWithResult, id, editedImageURL)
	return err
}

// ChainPosition returns the 1-based chain position of the edit, treating an
// unlinked edit as a root at position 1.
func (r *EditRepository) ChainPosition(ctx context.Context, uuid string) (int, error) {
	row := r.db.QueryRow(ctx, sqlinline.QGetChainPosition, uuid)
	var position int
	if err := row.Scan(&position); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, err
	}
	return position, nil
}

// InsertChainLink attaches a child edit to its parent at the given position.
func (r *EditRepository) InsertChainLink(ctx context.Context, link domain.ChainLink) error {
	_, err := r.db.Exec(ctx, sqlinline.QInsertChainLink,
		link.EditUUID, link.ParentEditUUID, link.Position)
	return err
}

// ChainHistory resolves the lineage containing the edit, root first, via a
// recursive ancestor walk.
func (r *EditRepository) ChainHistory(ctx context.Context, uuid string) ([]domain.ChainEntry, error) {
	rows, err := r.db.Query(ctx, sqlinline.QChainHistory, uuid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.ChainEntry
	for rows.Next() {
		var entry domain.ChainEntry
		if err := rows.Scan(
			&entry.Edit.ID,
			&entry.Edit.UUID,
			&entry.Edit.Prompt,
			&entry.Edit.EnhancedPrompt,
			&entry.Edit.OriginalImageURL,
			&entry.Edit.EditedImageURL,
			&entry.Edit.Status,
			&entry.Edit.Stage,
			&entry.Edit.CreatedAt,
			&entry.Position,
		); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, domain.ErrNotFound
	}
	return entries, nil
}

func (r *EditRepository) scanEdit(row pgx.Row) (*domain.Edit, error) {
	var edit domain.Edit
	if err := row.Scan(
		&edit.ID,
		&edit.UUID,
		&edit.Prompt,
		&edit.EnhancedPrompt,
		&edit.OriginalImageURL,
		&edit.EditedImageURL,
		&edit.Status,
		&edit.Stage,
		&edit.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &edit, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
