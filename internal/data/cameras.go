package data

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Camera represents a registered capture device. Full camera management is
// handled by the record-management layer; the pipeline only needs lookups.
type Camera struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Location  string    `json:"location"`
	Status    string    `json:"status"`
	StreamURL string    `json:"stream_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CameraModel struct {
	DB DBTX
}

func (m CameraModel) GetByID(ctx context.Context, id uuid.UUID) (*Camera, error) {
	query := `
		SELECT id, name, location, status, COALESCE(stream_url, ''), created_at, updated_at
		FROM cameras
		WHERE id = $1`

	var c Camera
	err := m.DB.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.Location, &c.Status, &c.StreamURL, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (m CameraModel) Create(ctx context.Context, c *Camera) error {
	query := `
		INSERT INTO cameras (name, location, status, stream_url)
		VALUES ($1, $2, $3, NULLIF($4, ''))
		RETURNING id, created_at, updated_at`

	return m.DB.QueryRowContext(ctx, query,
		c.Name, c.Location, c.Status, c.StreamURL,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}
