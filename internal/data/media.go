package data

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Media asset processing statuses. Transitions are monotonic:
// pending -> processing -> completed|failed. A failed asset may be
// re-claimed (failed -> processing) for manual reprocessing.
const (
	MediaStatusPending    = "pending"
	MediaStatusProcessing = "processing"
	MediaStatusCompleted  = "completed"
	MediaStatusFailed     = "failed"
)

const (
	MediaKindVideo = "video"
	MediaKindImage = "image"
)

// MediaAsset is one uploaded video or image tracked through the pipeline.
type MediaAsset struct {
	ID           uuid.UUID  `json:"id"`
	CameraID     uuid.UUID  `json:"camera_id"`
	FileName     string     `json:"file_name"`
	Kind         string     `json:"kind"`
	StorageKey   string     `json:"storage_key"`
	Status       string     `json:"status"`
	FailureCause *string    `json:"failure_cause,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
}

type MediaModel struct {
	DB DBTX
}

func (m MediaModel) Create(ctx context.Context, a *MediaAsset) error {
	query := `
		INSERT INTO media_assets (camera_id, file_name, kind, storage_key, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	a.Status = MediaStatusPending
	return m.DB.QueryRowContext(ctx, query,
		a.CameraID, a.FileName, a.Kind, a.StorageKey, a.Status,
	).Scan(&a.ID, &a.CreatedAt)
}

func (m MediaModel) GetByID(ctx context.Context, id uuid.UUID) (*MediaAsset, error) {
	query := `
		SELECT id, camera_id, file_name, kind, storage_key, status, failure_cause, created_at, processed_at
		FROM media_assets
		WHERE id = $1`

	var a MediaAsset
	var cause sql.NullString
	var processedAt sql.NullTime

	err := m.DB.QueryRowContext(ctx, query, id).Scan(
		&a.ID, &a.CameraID, &a.FileName, &a.Kind, &a.StorageKey, &a.Status,
		&cause, &a.CreatedAt, &processedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	if cause.Valid {
		a.FailureCause = &cause.String
	}
	if processedAt.Valid {
		a.ProcessedAt = &processedAt.Time
	}
	return &a, nil
}

// Delete removes the asset row. Detection and alert rows must be purged
// first; the schema does not cascade from media_assets.
func (m MediaModel) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := m.DB.ExecContext(ctx, `DELETE FROM media_assets WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// MarkProcessing moves an asset into processing. Pending and failed assets
// are eligible, and so is processing itself: a crashed worker leaves the row
// in processing, and once its lease expires the redelivered asset must be
// claimable again. Completed assets are never re-entered, which keeps the
// status monotonic even when the queue redelivers.
func (m MediaModel) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE media_assets
		SET status = $2, failure_cause = NULL, processed_at = NULL
		WHERE id = $1 AND status IN ($3, $4, $2)`

	res, err := m.DB.ExecContext(ctx, query, id, MediaStatusProcessing, MediaStatusPending, MediaStatusFailed)
	if err != nil {
		return err
	}
	return m.checkTransition(res)
}

func (m MediaModel) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE media_assets
		SET status = $2, processed_at = (NOW() AT TIME ZONE 'UTC')
		WHERE id = $1 AND status = $3`

	res, err := m.DB.ExecContext(ctx, query, id, MediaStatusCompleted, MediaStatusProcessing)
	if err != nil {
		return err
	}
	return m.checkTransition(res)
}

func (m MediaModel) MarkFailed(ctx context.Context, id uuid.UUID, cause string) error {
	query := `
		UPDATE media_assets
		SET status = $2, failure_cause = $3, processed_at = (NOW() AT TIME ZONE 'UTC')
		WHERE id = $1 AND status = $4`

	res, err := m.DB.ExecContext(ctx, query, id, MediaStatusFailed, cause, MediaStatusProcessing)
	if err != nil {
		return err
	}
	return m.checkTransition(res)
}

func (m MediaModel) checkTransition(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInvalidTransition
	}
	return nil
}
