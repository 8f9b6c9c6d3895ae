package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/vigilai/vigil-core/internal/data"
)

// AnalyticsStore is the read-only aggregation surface the dashboard uses.
type AnalyticsStore interface {
	Dashboard(ctx context.Context) (*data.DashboardStats, error)
	Timeline(ctx context.Context, days int) ([]*data.TimelineBucket, error)
	DetectionTypes(ctx context.Context, days int) ([]*data.DetectionTypeStat, error)
	CameraActivity(ctx context.Context) ([]*data.CameraActivity, error)
}

type AnalyticsHandler struct {
	Store AnalyticsStore
}

func NewAnalyticsHandler(store AnalyticsStore) *AnalyticsHandler {
	return &AnalyticsHandler{Store: store}
}

// GET /api/v1/analytics/dashboard
func (h *AnalyticsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Store.Dashboard(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "dashboard stats failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GET /api/v1/analytics/timeline?days=7
func (h *AnalyticsHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	days := queryDays(r, "days", 7)
	timeline, err := h.Store.Timeline(r.Context(), days)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "timeline failed")
		return
	}
	writeJSON(w, http.StatusOK, envelope{"days": days, "timeline": timeline})
}

// GET /api/v1/analytics/detections/types?days=30
func (h *AnalyticsHandler) DetectionTypes(w http.ResponseWriter, r *http.Request) {
	days := queryDays(r, "days", 30)
	stats, err := h.Store.DetectionTypes(r.Context(), days)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "detection stats failed")
		return
	}
	writeJSON(w, http.StatusOK, envelope{"days": days, "types": stats})
}

// GET /api/v1/analytics/cameras/activity
func (h *AnalyticsHandler) CameraActivity(w http.ResponseWriter, r *http.Request) {
	activity, err := h.Store.CameraActivity(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "camera activity failed")
		return
	}
	writeJSON(w, http.StatusOK, envelope{"cameras": activity})
}

func queryDays(r *http.Request, param string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(param))
	if err != nil || n <= 0 || n > 365 {
		return def
	}
	return n
}
