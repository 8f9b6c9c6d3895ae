package data

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const (
	AlertStatusNew          = "new"
	AlertStatusAcknowledged = "acknowledged"
	AlertStatusResolved     = "resolved"
)

// Alert is a qualifying detection surfaced for human attention.
type Alert struct {
	ID             uuid.UUID  `json:"id"`
	DetectionID    uuid.UUID  `json:"detection_id"`
	CameraID       uuid.UUID  `json:"camera_id"`
	Severity       string     `json:"severity"`
	Status         string     `json:"status"`
	Description    string     `json:"description"`
	ThumbnailKey   string     `json:"thumbnail_key,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	Notes          string     `json:"notes,omitempty"`
}

// AlertFilter narrows List results. Zero values mean "no filter".
type AlertFilter struct {
	Status   string
	Severity string
	CameraID *uuid.UUID
	Limit    int
	Offset   int
}

// AlertStats is the summary returned by the stats endpoint.
type AlertStats struct {
	Total      int            `json:"total"`
	ByStatus   map[string]int `json:"by_status"`
	BySeverity map[string]int `json:"by_severity"`
}

type AlertModel struct {
	DB DBTX
}

func (m AlertModel) Insert(ctx context.Context, a *Alert) error {
	query := `
		INSERT INTO alerts (detection_id, camera_id, severity, status, description, thumbnail_key)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		RETURNING id, created_at`

	a.Status = AlertStatusNew
	return m.DB.QueryRowContext(ctx, query,
		a.DetectionID, a.CameraID, a.Severity, a.Status, a.Description, a.ThumbnailKey,
	).Scan(&a.ID, &a.CreatedAt)
}

func (m AlertModel) GetByID(ctx context.Context, id uuid.UUID) (*Alert, error) {
	query := selectAlert + ` WHERE id = $1`

	row := m.DB.QueryRowContext(ctx, query, id)
	a, err := scanAlert(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (m AlertModel) List(ctx context.Context, f AlertFilter) ([]*Alert, error) {
	query := selectAlert + `
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR severity = $2)
		  AND ($3::uuid IS NULL OR camera_id = $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5`

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := m.DB.QueryContext(ctx, query, f.Status, f.Severity, f.CameraID, limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Alert
	for rows.Next() {
		a, err := scanAlert(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Update persists lifecycle fields. Status/timestamp transition rules are
// enforced by the alerts service before calling this.
func (m AlertModel) Update(ctx context.Context, a *Alert) error {
	query := `
		UPDATE alerts
		SET status = $2, acknowledged_at = $3, resolved_at = $4,
		    acknowledged_by = NULLIF($5, ''), notes = NULLIF($6, '')
		WHERE id = $1`

	res, err := m.DB.ExecContext(ctx, query,
		a.ID, a.Status, a.AcknowledgedAt, a.ResolvedAt, a.AcknowledgedBy, a.Notes,
	)
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

// DeleteByMedia purges alerts created by a previous processing attempt of
// the given asset. Used together with DetectionModel.DeleteByMedia.
func (m AlertModel) DeleteByMedia(ctx context.Context, mediaID uuid.UUID) error {
	query := `
		DELETE FROM alerts
		WHERE detection_id IN (SELECT id FROM detections WHERE media_id = $1)`
	_, err := m.DB.ExecContext(ctx, query, mediaID)
	return err
}

func (m AlertModel) Stats(ctx context.Context) (*AlertStats, error) {
	query := `SELECT status, severity, COUNT(*) FROM alerts GROUP BY status, severity`

	rows, err := m.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &AlertStats{
		ByStatus:   map[string]int{},
		BySeverity: map[string]int{},
	}
	for rows.Next() {
		var status, severity string
		var count int
		if err := rows.Scan(&status, &severity, &count); err != nil {
			return nil, err
		}
		stats.Total += count
		stats.ByStatus[status] += count
		stats.BySeverity[severity] += count
	}
	return stats, rows.Err()
}

const selectAlert = `
	SELECT id, detection_id, camera_id, severity, status, description,
	       COALESCE(thumbnail_key, ''), created_at, acknowledged_at, resolved_at,
	       COALESCE(acknowledged_by, ''), COALESCE(notes, '')
	FROM alerts`

func scanAlert(scan func(dest ...any) error) (*Alert, error) {
	var a Alert
	var ackAt, resAt sql.NullTime

	err := scan(
		&a.ID, &a.DetectionID, &a.CameraID, &a.Severity, &a.Status, &a.Description,
		&a.ThumbnailKey, &a.CreatedAt, &ackAt, &resAt, &a.AcknowledgedBy, &a.Notes,
	)
	if err != nil {
		return nil, err
	}
	if ackAt.Valid {
		a.AcknowledgedAt = &ackAt.Time
	}
	if resAt.Valid {
		a.ResolvedAt = &resAt.Time
	}
	return &a, nil
}
