package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vigilai/vigil-core/internal/tokens"
)

// Deps bundles everything the router mounts.
type Deps struct {
	Media     *MediaHandler
	Alerts    *AlertHandler
	Analytics *AnalyticsHandler
	WS        *WSHandler
	Tokens    *tokens.Manager
}

// NewRouter assembles the full HTTP surface. When Tokens is nil the API
// runs open, which is what local development and the test suite use.
func NewRouter(d Deps) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Websocket upgrade carries its token in the query string, so it stays
	// outside the header-based auth group.
	r.Get("/ws/alerts", d.WS.Serve)

	r.Route("/api/v1", func(r chi.Router) {
		if d.Tokens != nil {
			r.Use(requireAuth(d.Tokens))
		}
		// Uploads are large; give them their own timeout budget.
		r.With(chimiddleware.Timeout(10 * time.Minute)).
			Post("/media", d.Media.Upload)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(30 * time.Second))

			r.Get("/media/{id}", d.Media.Get)
			r.Delete("/media/{id}", d.Media.Delete)
			r.Get("/media/{id}/detections", d.Media.ListDetections)
			r.Get("/media/{id}/url", d.Media.DownloadURL)

			r.Get("/alerts", d.Alerts.List)
			r.Get("/alerts/stats", d.Alerts.Stats)
			r.Get("/alerts/{id}", d.Alerts.Get)
			r.Patch("/alerts/{id}", d.Alerts.Update)

			r.Get("/analytics/dashboard", d.Analytics.Dashboard)
			r.Get("/analytics/timeline", d.Analytics.Timeline)
			r.Get("/analytics/detections/types", d.Analytics.DetectionTypes)
			r.Get("/analytics/cameras/activity", d.Analytics.CameraActivity)
		})
	})

	return r
}

func requireAuth(mgr *tokens.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			if _, err := mgr.Validate(token); err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
