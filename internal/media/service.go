// Package media owns the ingestion boundary: validate the upload, persist
// the blob and the asset row, then hand the job to the dispatch queue.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/vigilai/vigil-core/internal/data"
)

var (
	ErrUnsupportedMediaKind = errors.New("unsupported media type")
	ErrCameraNotFound       = errors.New("camera not found")
	ErrAssetProcessing      = errors.New("asset is being processed")
)

// kindByExt is the accepted upload surface. Anything else is rejected
// before any blob or row is written.
var kindByExt = map[string]string{
	".mp4":  data.MediaKindVideo,
	".avi":  data.MediaKindVideo,
	".mov":  data.MediaKindVideo,
	".mkv":  data.MediaKindVideo,
	".jpg":  data.MediaKindImage,
	".jpeg": data.MediaKindImage,
	".png":  data.MediaKindImage,
}

// KindForFile classifies an upload by extension.
func KindForFile(fileName string) (string, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	kind, ok := kindByExt[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMediaKind, ext)
	}
	return kind, nil
}

type CameraLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*data.Camera, error)
}

type AssetStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*data.MediaAsset, error)
	Create(ctx context.Context, a *data.MediaAsset) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type BlobStore interface {
	Put(ctx context.Context, fileName, contentType string, body io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
}

type Enqueuer interface {
	Enqueue(ctx context.Context, assetID uuid.UUID) error
}

// Purger removes rows tied to one media asset.
type Purger interface {
	DeleteByMedia(ctx context.Context, mediaID uuid.UUID) error
}

type Service struct {
	cameras    CameraLookup
	assets     AssetStore
	blobs      BlobStore
	queue      Enqueuer
	detections Purger
	alertRows  Purger
}

func NewService(cameras CameraLookup, assets AssetStore, blobs BlobStore, queue Enqueuer, detections, alertRows Purger) *Service {
	return &Service{
		cameras:    cameras,
		assets:     assets,
		blobs:      blobs,
		queue:      queue,
		detections: detections,
		alertRows:  alertRows,
	}
}

// Ingest accepts one upload: classify, verify the camera, store the blob,
// create the pending asset, enqueue the job. The asset is returned in
// pending state; processing happens asynchronously.
func (s *Service) Ingest(ctx context.Context, cameraID uuid.UUID, fileName, contentType string, body io.Reader) (*data.MediaAsset, error) {
	kind, err := KindForFile(fileName)
	if err != nil {
		return nil, err
	}

	if _, err := s.cameras.GetByID(ctx, cameraID); err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			return nil, ErrCameraNotFound
		}
		return nil, fmt.Errorf("look up camera: %w", err)
	}

	key, err := s.blobs.Put(ctx, fileName, contentType, body)
	if err != nil {
		return nil, fmt.Errorf("store blob: %w", err)
	}

	asset := &data.MediaAsset{
		CameraID:   cameraID,
		FileName:   fileName,
		Kind:       kind,
		StorageKey: key,
	}
	if err := s.assets.Create(ctx, asset); err != nil {
		return nil, fmt.Errorf("create asset: %w", err)
	}

	if err := s.queue.Enqueue(ctx, asset.ID); err != nil {
		// The row exists but no job does. Surface the error; the upload is
		// reported failed and the pending row is harmless to retry over.
		return nil, fmt.Errorf("enqueue asset %s: %w", asset.ID, err)
	}

	log.Printf("[Media] Ingested %s asset %s for camera %s", kind, asset.ID, cameraID)
	return asset, nil
}

// Get returns one asset by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*data.MediaAsset, error) {
	return s.assets.GetByID(ctx, id)
}

// Remove deletes an asset's rows and its stored blob. Assets mid-run are
// refused; retry after they reach a terminal state. A pending asset can
// still have a queued job, which the worker drops once the row is gone.
func (s *Service) Remove(ctx context.Context, id uuid.UUID) error {
	asset, err := s.assets.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if asset.Status == data.MediaStatusProcessing {
		return ErrAssetProcessing
	}

	if err := s.alertRows.DeleteByMedia(ctx, id); err != nil {
		return fmt.Errorf("purge alerts: %w", err)
	}
	if err := s.detections.DeleteByMedia(ctx, id); err != nil {
		return fmt.Errorf("purge detections: %w", err)
	}
	if err := s.assets.Delete(ctx, id); err != nil {
		return err
	}

	if err := s.blobs.Delete(ctx, asset.StorageKey); err != nil {
		// Rows are gone; an orphaned blob is only storage cost.
		log.Printf("[Media] Blob delete error for %s: %v", asset.StorageKey, err)
	}

	log.Printf("[Media] Removed asset %s", id)
	return nil
}
