// Package pipeline drives one media asset from pending to a terminal state:
// claim, sample, detect, persist, emit, complete or fail. Every error path
// still lands the asset in a terminal state; nothing is left parked in
// processing by an exiting worker.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/vigilai/vigil-core/internal/data"
	"github.com/vigilai/vigil-core/internal/detect"
	"github.com/vigilai/vigil-core/internal/metrics"
	"github.com/vigilai/vigil-core/internal/sampler"
)

// CrowdPersonCount is how many person detections in a single frame
// constitute a crowd.
const CrowdPersonCount = 20

type AssetStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*data.MediaAsset, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkCompleted(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, cause string) error
}

type DetectionStore interface {
	Insert(ctx context.Context, d *data.Detection) error
	DeleteByMedia(ctx context.Context, mediaID uuid.UUID) error
}

// AlertPurger removes alerts left over from a prior failed attempt.
type AlertPurger interface {
	DeleteByMedia(ctx context.Context, mediaID uuid.UUID) error
}

// AlertSink receives every persisted detection and decides whether it
// becomes an alert. The frame bytes are available for thumbnailing.
// Forget clears the sink's replay guard for an asset whose rows were just
// purged, so a reprocessing run emits fresh alerts.
type AlertSink interface {
	MaybeEmit(ctx context.Context, asset *data.MediaAsset, det *data.Detection, frameJPEG []byte) (*data.Alert, error)
	Forget(mediaID uuid.UUID)
}

// BlobFetcher streams stored media bytes.
type BlobFetcher interface {
	Fetch(ctx context.Context, key string) (io.ReadCloser, error)
}

type Config struct {
	DetectorThreshold float64
	DetectTimeout     time.Duration
	Retry             RetryPolicy
}

type Worker struct {
	assets     AssetStore
	detections DetectionStore
	alertRows  AlertPurger
	leases     *LeaseManager
	opener     sampler.Opener
	detector   detect.Detector
	emitter    AlertSink
	blobs      BlobFetcher
	cfg        Config
}

func NewWorker(
	assets AssetStore,
	detections DetectionStore,
	alertRows AlertPurger,
	leases *LeaseManager,
	opener sampler.Opener,
	detector detect.Detector,
	emitter AlertSink,
	blobs BlobFetcher,
	cfg Config,
) *Worker {
	if cfg.DetectTimeout <= 0 {
		cfg.DetectTimeout = 5 * time.Second
	}
	return &Worker{
		assets:     assets,
		detections: detections,
		alertRows:  alertRows,
		leases:     leases,
		opener:     opener,
		detector:   detector,
		emitter:    emitter,
		blobs:      blobs,
		cfg:        cfg,
	}
}

// Process drives one asset end-to-end. The returned error tells the
// dispatcher what to do with the queue message: nil means done (terminal
// state reached, or nothing to do), ErrAlreadyClaimed means another worker
// owns it, anything else means the attempt could not even start and the
// message should be redelivered.
func (w *Worker) Process(ctx context.Context, assetID uuid.UUID) error {
	asset, err := w.assets.GetByID(ctx, assetID)
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			log.Printf("[Worker] Asset %s not found, dropping", assetID)
			return nil
		}
		return fmt.Errorf("load asset: %w", err)
	}

	// Redelivery of a finished asset is a no-op; completed assets are
	// never reprocessed by this pipeline.
	if asset.Status == data.MediaStatusCompleted {
		return nil
	}

	lease, err := w.leases.Acquire(ctx, assetID)
	if err != nil {
		if errors.Is(err, ErrAlreadyClaimed) {
			metrics.ClaimConflictsTotal.Inc()
		}
		return err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			log.Printf("[Worker] Asset %s: lease release error: %v", assetID, err)
		}
	}()

	if err := w.assets.MarkProcessing(ctx, assetID); err != nil {
		if errors.Is(err, data.ErrInvalidTransition) {
			return nil
		}
		return fmt.Errorf("claim asset: %w", err)
	}

	start := time.Now()
	log.Printf("[Worker] Processing asset %s (kind=%s)", assetID, asset.Kind)

	// Long videos can outlive the lease TTL; a heartbeat keeps the claim
	// alive for as long as this worker is actually making progress.
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go w.keepLeaseAlive(hbCtx, lease, assetID)

	runErr := w.runGuarded(ctx, asset)
	if runErr != nil {
		return w.fail(asset, runErr, start)
	}
	return w.complete(asset, start)
}

func (w *Worker) complete(asset *data.MediaAsset, start time.Time) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := w.assets.MarkCompleted(ctx, asset.ID); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	metrics.RecordProcessed(data.MediaStatusCompleted, time.Since(start).Seconds())
	log.Printf("[Worker] Asset %s completed in %v", asset.ID, time.Since(start))
	return nil
}

// fail is the guaranteed-cleanup path. It runs on a fresh context so a
// cancelled processing context cannot block the terminal transition.
func (w *Worker) fail(asset *data.MediaAsset, cause error, start time.Time) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := w.assets.MarkFailed(ctx, asset.ID, cause.Error()); err != nil {
		// The asset is stuck in processing until the lease expires and the
		// queue redelivers; surface the error so that happens.
		return fmt.Errorf("mark failed (cause: %v): %w", cause, err)
	}
	metrics.RecordProcessed(data.MediaStatusFailed, time.Since(start).Seconds())
	log.Printf("[Worker] Asset %s failed: %v", asset.ID, cause)
	return nil
}

func (w *Worker) keepLeaseAlive(ctx context.Context, lease *Lease, assetID uuid.UUID) {
	interval := w.leases.ttl / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := lease.Extend(ctx)
			if err != nil {
				log.Printf("[Worker] Asset %s: lease extend error: %v", assetID, err)
				continue
			}
			if !ok {
				// Lost the lease; processing continues and the idempotent
				// detection purge cleans up if another worker overlaps.
				log.Printf("[Worker] Asset %s: lease expired mid-processing", assetID)
				return
			}
		}
	}
}

// runGuarded converts a panic anywhere in the pipeline into an ordinary
// failure so the terminal transition still happens.
func (w *Worker) runGuarded(ctx context.Context, asset *data.MediaAsset) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during processing: %v", r)
		}
	}()
	return w.run(ctx, asset)
}

func (w *Worker) run(ctx context.Context, asset *data.MediaAsset) error {
	// Purge rows from any earlier failed attempt so reprocessing never
	// duplicates detections or alerts.
	if err := w.alertRows.DeleteByMedia(ctx, asset.ID); err != nil {
		return fmt.Errorf("purge alerts: %w", err)
	}
	if err := w.detections.DeleteByMedia(ctx, asset.ID); err != nil {
		return fmt.Errorf("purge detections: %w", err)
	}
	w.emitter.Forget(asset.ID)

	seq, err := w.openSource(ctx, asset)
	if err != nil {
		return err
	}
	defer seq.Close()

	for {
		frame, err := seq.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read frame: %w", err)
		}
		metrics.FramesSampledTotal.Inc()

		results, err := w.detectFrame(ctx, frame)
		if err != nil {
			return err
		}
		if crowd := synthesizeCrowd(results); crowd != nil {
			results = append(results, *crowd)
		}

		for _, res := range results {
			idx := frame.Index
			det := &data.Detection{
				MediaID:    asset.ID,
				FrameIndex: &idx,
				Type:       res.Type,
				Confidence: res.Confidence,
				BBox:       res.BBox,
			}
			if err := w.detections.Insert(ctx, det); err != nil {
				return fmt.Errorf("persist detection: %w", err)
			}
			metrics.RecordDetection(det.Type)

			if _, err := w.emitter.MaybeEmit(ctx, asset, det, frame.JPEG); err != nil {
				return fmt.Errorf("emit alert: %w", err)
			}
		}
	}
}

// openSource fetches the blob and opens a frame sequence, retrying
// transient storage failures. An unreadable source is permanent and routes
// the asset to failed, never to completed-with-zero-detections.
func (w *Worker) openSource(ctx context.Context, asset *data.MediaAsset) (sampler.Sequence, error) {
	var seq sampler.Sequence
	err := w.cfg.Retry.Do(ctx, "open source", func() error {
		body, err := w.blobs.Fetch(ctx, asset.StorageKey)
		if err != nil {
			return Transient(fmt.Errorf("fetch blob: %w", err))
		}
		defer body.Close()

		s, err := w.opener.Open(ctx, asset.Kind, body)
		if err != nil {
			if errors.Is(err, sampler.ErrSourceUnreadable) {
				return err
			}
			return Transient(err)
		}
		seq = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return seq, nil
}

// detectFrame runs the adapter with a per-call timeout; timeouts and
// unavailable detectors are transient and go through the retry budget.
func (w *Worker) detectFrame(ctx context.Context, frame *sampler.Frame) ([]detect.Result, error) {
	var results []detect.Result
	err := w.cfg.Retry.Do(ctx, "detect", func() error {
		dctx, cancel := context.WithTimeout(ctx, w.cfg.DetectTimeout)
		defer cancel()

		r, err := w.detector.Detect(dctx, frame.JPEG, w.cfg.DetectorThreshold)
		if err != nil {
			if errors.Is(err, detect.ErrDetectorUnavailable) || errors.Is(err, context.DeadlineExceeded) {
				return Transient(err)
			}
			return err
		}
		results = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("frame %d: %w", frame.Index, err)
	}
	return results, nil
}

// synthesizeCrowd derives a crowd detection when enough people share one
// frame. Its confidence is the strongest contributing person detection.
func synthesizeCrowd(results []detect.Result) *detect.Result {
	persons := 0
	maxConf := 0.0
	for _, r := range results {
		if r.Type == detect.TypePerson {
			persons++
			if r.Confidence > maxConf {
				maxConf = r.Confidence
			}
		}
	}
	if persons < CrowdPersonCount {
		return nil
	}
	return &detect.Result{Type: detect.TypeCrowd, Confidence: maxConf}
}
