package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vigilai/vigil-core/internal/data"
	"github.com/vigilai/vigil-core/internal/media"
)

// maxUploadBytes caps request bodies on the upload endpoint.
const maxUploadBytes = 512 << 20

type DetectionLister interface {
	ListByMedia(ctx context.Context, mediaID uuid.UUID) ([]*data.Detection, error)
}

type Presigner interface {
	PresignGet(ctx context.Context, key string, expires time.Duration) (string, error)
}

type MediaHandler struct {
	Service    *media.Service
	Detections DetectionLister
	Blobs      Presigner
}

func NewMediaHandler(svc *media.Service, detections DetectionLister, blobs Presigner) *MediaHandler {
	return &MediaHandler{Service: svc, Detections: detections, Blobs: blobs}
}

// POST /api/v1/media
func (h *MediaHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	cameraID, err := uuid.Parse(r.FormValue("camera_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid camera_id")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()

	asset, err := h.Service.Ingest(r.Context(), cameraID, header.Filename,
		header.Header.Get("Content-Type"), file)
	if err != nil {
		switch {
		case errors.Is(err, media.ErrUnsupportedMediaKind):
			writeError(w, http.StatusUnsupportedMediaType, err.Error())
		case errors.Is(err, media.ErrCameraNotFound):
			writeError(w, http.StatusNotFound, "camera not found")
		default:
			log.Printf("[API] Upload failed: %v", err)
			writeError(w, http.StatusInternalServerError, "upload failed")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, asset)
}

// GET /api/v1/media/{id}
func (h *MediaHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid media id")
		return
	}

	asset, err := h.Service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "media not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, asset)
}

// DELETE /api/v1/media/{id}
func (h *MediaHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid media id")
		return
	}

	if err := h.Service.Remove(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, data.ErrRecordNotFound):
			writeError(w, http.StatusNotFound, "media not found")
		case errors.Is(err, media.ErrAssetProcessing):
			writeError(w, http.StatusConflict, "media is being processed")
		default:
			log.Printf("[API] Delete failed for %s: %v", id, err)
			writeError(w, http.StatusInternalServerError, "delete failed")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/media/{id}/detections
func (h *MediaHandler) ListDetections(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid media id")
		return
	}

	if _, err := h.Service.Get(r.Context(), id); err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "media not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	dets, err := h.Detections.ListByMedia(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing failed")
		return
	}
	writeJSON(w, http.StatusOK, envelope{"media_id": id, "detections": dets})
}

// GET /api/v1/media/{id}/url
func (h *MediaHandler) DownloadURL(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid media id")
		return
	}

	asset, err := h.Service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "media not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	url, err := h.Blobs.PresignGet(r.Context(), asset.StorageKey, 15*time.Minute)
	if err != nil {
		log.Printf("[API] Presign failed for %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "presign failed")
		return
	}
	writeJSON(w, http.StatusOK, envelope{"url": url})
}
