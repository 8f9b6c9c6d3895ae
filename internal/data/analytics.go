package data

import (
	"context"

	"github.com/google/uuid"
)

// DashboardStats is the aggregate snapshot backing the dashboard view.
type DashboardStats struct {
	TotalCameras     int            `json:"total_cameras"`
	ActiveCameras    int            `json:"active_cameras"`
	TotalAlerts      int            `json:"total_alerts"`
	AlertsToday      int            `json:"alerts_today"`
	AlertsBySeverity map[string]int `json:"alerts_by_severity"`
	RecentAlerts     []*Alert       `json:"recent_alerts"`
}

// TimelineBucket is one day of alert counts.
type TimelineBucket struct {
	Date       string         `json:"date"`
	Total      int            `json:"total"`
	BySeverity map[string]int `json:"by_severity"`
}

// DetectionTypeStat aggregates detections of one canonical type.
type DetectionTypeStat struct {
	Type          string  `json:"type"`
	Count         int     `json:"count"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// CameraActivity is the per-camera alert tally.
type CameraActivity struct {
	CameraID   uuid.UUID `json:"camera_id"`
	CameraName string    `json:"camera_name"`
	Location   string    `json:"location"`
	AlertCount int       `json:"alert_count"`
}

// AnalyticsModel answers read-only aggregation queries over cameras,
// detections and alerts. It never writes; row ownership stays with the
// per-table models.
type AnalyticsModel struct {
	DB DBTX
}

func (m AnalyticsModel) Dashboard(ctx context.Context) (*DashboardStats, error) {
	stats := &DashboardStats{AlertsBySeverity: map[string]int{}}

	cameraQuery := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'active')
		FROM cameras`
	if err := m.DB.QueryRowContext(ctx, cameraQuery).Scan(&stats.TotalCameras, &stats.ActiveCameras); err != nil {
		return nil, err
	}

	alertQuery := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE created_at >= date_trunc('day', now()))
		FROM alerts`
	if err := m.DB.QueryRowContext(ctx, alertQuery).Scan(&stats.TotalAlerts, &stats.AlertsToday); err != nil {
		return nil, err
	}

	severityQuery := `SELECT severity, COUNT(*) FROM alerts GROUP BY severity`
	rows, err := m.DB.QueryContext(ctx, severityQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var severity string
		var count int
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, err
		}
		stats.AlertsBySeverity[severity] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	recentQuery := selectAlert + ` ORDER BY created_at DESC LIMIT 10`
	recent, err := m.DB.QueryContext(ctx, recentQuery)
	if err != nil {
		return nil, err
	}
	defer recent.Close()
	for recent.Next() {
		a, err := scanAlert(recent.Scan)
		if err != nil {
			return nil, err
		}
		stats.RecentAlerts = append(stats.RecentAlerts, a)
	}
	return stats, recent.Err()
}

// Timeline returns per-day alert counts for the last days days, oldest
// first. Days without alerts are absent.
func (m AnalyticsModel) Timeline(ctx context.Context, days int) ([]*TimelineBucket, error) {
	query := `
		SELECT to_char(created_at::date, 'YYYY-MM-DD'), severity, COUNT(*)
		FROM alerts
		WHERE created_at >= now() - $1 * interval '1 day'
		GROUP BY created_at::date, severity
		ORDER BY created_at::date`

	rows, err := m.DB.QueryContext(ctx, query, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*TimelineBucket
	byDate := map[string]*TimelineBucket{}
	for rows.Next() {
		var date, severity string
		var count int
		if err := rows.Scan(&date, &severity, &count); err != nil {
			return nil, err
		}
		b, ok := byDate[date]
		if !ok {
			b = &TimelineBucket{Date: date, BySeverity: map[string]int{}}
			byDate[date] = b
			out = append(out, b)
		}
		b.BySeverity[severity] = count
		b.Total += count
	}
	return out, rows.Err()
}

func (m AnalyticsModel) DetectionTypes(ctx context.Context, days int) ([]*DetectionTypeStat, error) {
	query := `
		SELECT detection_type, COUNT(*), ROUND(AVG(confidence)::numeric, 2)
		FROM detections
		WHERE detected_at >= now() - $1 * interval '1 day'
		GROUP BY detection_type
		ORDER BY COUNT(*) DESC`

	rows, err := m.DB.QueryContext(ctx, query, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*DetectionTypeStat
	for rows.Next() {
		var s DetectionTypeStat
		if err := rows.Scan(&s.Type, &s.Count, &s.AvgConfidence); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

// CameraActivity tallies alerts per camera, including cameras that have
// never alerted.
func (m AnalyticsModel) CameraActivity(ctx context.Context) ([]*CameraActivity, error) {
	query := `
		SELECT c.id, c.name, c.location, COUNT(a.id)
		FROM cameras c
		LEFT JOIN alerts a ON a.camera_id = c.id
		GROUP BY c.id, c.name, c.location
		ORDER BY COUNT(a.id) DESC, c.name`

	rows, err := m.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*CameraActivity
	for rows.Next() {
		var a CameraActivity
		if err := rows.Scan(&a.CameraID, &a.CameraName, &a.Location, &a.AlertCount); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}
