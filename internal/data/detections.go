package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// BBox is a pixel-space bounding box.
type BBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Detection is one normalized detection result from one frame.
// Rows are immutable once created.
type Detection struct {
	ID         uuid.UUID `json:"id"`
	MediaID    uuid.UUID `json:"media_id"`
	FrameIndex *int      `json:"frame_index,omitempty"`
	Type       string    `json:"detection_type"`
	Confidence float64   `json:"confidence"`
	BBox       *BBox     `json:"bounding_box,omitempty"`
	DetectedAt time.Time `json:"detected_at"`
}

type DetectionModel struct {
	DB DBTX
}

func (m DetectionModel) Insert(ctx context.Context, d *Detection) error {
	query := `
		INSERT INTO detections (media_id, frame_index, detection_type, confidence, bounding_box)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, detected_at`

	var bbox any
	if d.BBox != nil {
		b, err := json.Marshal(d.BBox)
		if err != nil {
			return err
		}
		bbox = b
	}

	return m.DB.QueryRowContext(ctx, query,
		d.MediaID, d.FrameIndex, d.Type, d.Confidence, bbox,
	).Scan(&d.ID, &d.DetectedAt)
}

func (m DetectionModel) ListByMedia(ctx context.Context, mediaID uuid.UUID) ([]*Detection, error) {
	query := `
		SELECT id, media_id, frame_index, detection_type, confidence, bounding_box, detected_at
		FROM detections
		WHERE media_id = $1
		ORDER BY frame_index NULLS FIRST, detected_at`

	rows, err := m.DB.QueryContext(ctx, query, mediaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Detection
	for rows.Next() {
		var d Detection
		var frameIdx sql.NullInt64
		var bbox []byte

		if err := rows.Scan(&d.ID, &d.MediaID, &frameIdx, &d.Type, &d.Confidence, &bbox, &d.DetectedAt); err != nil {
			return nil, err
		}
		if frameIdx.Valid {
			idx := int(frameIdx.Int64)
			d.FrameIndex = &idx
		}
		if len(bbox) > 0 {
			var b BBox
			if err := json.Unmarshal(bbox, &b); err == nil {
				d.BBox = &b
			}
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

// DeleteByMedia purges detection rows from a previous processing attempt,
// so a re-claimed failed asset never accumulates duplicates.
func (m DetectionModel) DeleteByMedia(ctx context.Context, mediaID uuid.UUID) error {
	_, err := m.DB.ExecContext(ctx, `DELETE FROM detections WHERE media_id = $1`, mediaID)
	return err
}
